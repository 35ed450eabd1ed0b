package app

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/trackflow-backend/internal/http"
	httpH "github.com/yungbote/trackflow-backend/internal/http/handlers"
	httpMW "github.com/yungbote/trackflow-backend/internal/http/middleware"
	"github.com/yungbote/trackflow-backend/internal/observability"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
	"github.com/yungbote/trackflow-backend/internal/realtime"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	User     *httpH.UserHandler
	Project  *httpH.ProjectHandler
	Assembly *httpH.AssemblyHandler
	Batch    *httpH.BatchHandler
	Barcode  *httpH.BarcodeHandler
	NFC      *httpH.NFCHandler
	QC       *httpH.QCHandler
	Realtime *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, svc Services, hub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(db),
		User:     httpH.NewUserHandler(svc.User),
		Project:  httpH.NewProjectHandler(svc.Project),
		Assembly: httpH.NewAssemblyHandler(svc.Assembly),
		Batch:    httpH.NewBatchHandler(svc.Batch),
		Barcode:  httpH.NewBarcodeHandler(svc.Barcode, svc.Scheduler),
		NFC:      httpH.NewNFCHandler(svc.NFC),
		QC:       httpH.NewQCHandler(svc.QC),
		Realtime: httpH.NewRealtimeHandler(log, hub),
	}
}

func wireRouter(log *logger.Logger, cfg Config, h Handlers, svc Services, metrics *observability.Metrics) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		CORSOrigins:     cfg.CORSOrigins,
		ServiceName:     cfg.ServiceName,
		AuthMiddleware:  httpMW.NewAuthMiddleware(log, svc.Auth, svc.NFC),
		HealthHandler:   h.Health,
		UserHandler:     h.User,
		ProjectHandler:  h.Project,
		AssemblyHandler: h.Assembly,
		BatchHandler:    h.Batch,
		BarcodeHandler:  h.Barcode,
		NFCHandler:      h.NFC,
		QCHandler:       h.QC,
		RealtimeHandler: h.Realtime,
	})
}
