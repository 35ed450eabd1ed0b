package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	domainuser "github.com/yungbote/trackflow-backend/internal/domain/user"
	httpH "github.com/yungbote/trackflow-backend/internal/http/handlers"
	httpMW "github.com/yungbote/trackflow-backend/internal/http/middleware"
	"github.com/yungbote/trackflow-backend/internal/observability"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

const sseStreamRoute = "/api/sse/stream"

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	CORSOrigins    []string
	ServiceName    string
	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler   *httpH.HealthHandler
	UserHandler     *httpH.UserHandler
	ProjectHandler  *httpH.ProjectHandler
	AssemblyHandler *httpH.AssemblyHandler
	BatchHandler    *httpH.BatchHandler
	BarcodeHandler  *httpH.BarcodeHandler
	NFCHandler      *httpH.NFCHandler
	QCHandler       *httpH.QCHandler
	RealtimeHandler *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	r.Use(httpMW.Metrics(cfg.Metrics, sseStreamRoute))
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	am := cfg.AuthMiddleware

	// Handheld routes: operator identified by NFC card, card validation itself is open.
	mobile := api.Group("/mobile")
	{
		if cfg.NFCHandler != nil {
			mobile.POST("/nfc/validate", cfg.NFCHandler.Validate)
		}
		scan := mobile.Group("/")
		scan.Use(am.NFCAuth())
		if cfg.AssemblyHandler != nil {
			scan.GET("/assemblies/by-barcode/:code", cfg.AssemblyHandler.GetByBarcode)
			scan.PATCH("/assemblies/:id/status", cfg.AssemblyHandler.ChangeStatus)
		}
		if cfg.BatchHandler != nil {
			scan.POST("/batches/validate", cfg.BatchHandler.ValidateBarcode)
			scan.GET("/batches/:id/assemblies", cfg.BatchHandler.ListAssemblies)
			scan.POST("/batches/:id/assemblies", cfg.BatchHandler.AddAssembly)
			scan.DELETE("/batches/:id/assemblies/:assemblyId", cfg.BatchHandler.RemoveAssembly)
		}
		if cfg.QCHandler != nil {
			scan.POST("/assemblies/:id/qc-images", cfg.QCHandler.UploadImage)
		}
	}

	protected := api.Group("/")
	protected.Use(am.RequireAuth())
	admin := protected.Group("/")
	admin.Use(am.RequireRole(domainuser.RoleAdmin))

	if cfg.RealtimeHandler != nil {
		protected.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
		protected.POST("/sse/subscribe", cfg.RealtimeHandler.SSESubscribe)
		protected.POST("/sse/unsubscribe", cfg.RealtimeHandler.SSEUnsubscribe)
	}

	if cfg.UserHandler != nil {
		protected.GET("/me", cfg.UserHandler.GetMe)
		protected.GET("/users", cfg.UserHandler.List)
		protected.GET("/users/:id", cfg.UserHandler.Get)
		admin.POST("/users", cfg.UserHandler.Create)
		admin.PATCH("/users/:id", cfg.UserHandler.Update)
		admin.DELETE("/users/:id", cfg.UserHandler.Delete)
		admin.POST("/users/:id/reset-password", cfg.UserHandler.ResetPassword)
	}

	if cfg.NFCHandler != nil {
		protected.GET("/nfc-cards", cfg.NFCHandler.List)
		admin.POST("/nfc-cards", cfg.NFCHandler.Bind)
		admin.DELETE("/nfc-cards/:id", cfg.NFCHandler.Unbind)
	}

	if cfg.ProjectHandler != nil {
		protected.GET("/projects", cfg.ProjectHandler.List)
		protected.GET("/projects/:id", cfg.ProjectHandler.Get)
		protected.POST("/projects", cfg.ProjectHandler.Create)
		protected.PATCH("/projects/:id", cfg.ProjectHandler.Update)
		protected.DELETE("/projects/:id", cfg.ProjectHandler.Delete)
	}

	if cfg.AssemblyHandler != nil {
		protected.GET("/assemblies", cfg.AssemblyHandler.List)
		protected.GET("/assemblies/:id", cfg.AssemblyHandler.Get)
		protected.GET("/assemblies/:id/children", cfg.AssemblyHandler.Children)
		protected.GET("/assemblies/:id/history", cfg.AssemblyHandler.History)
		protected.POST("/assemblies", cfg.AssemblyHandler.Create)
		protected.PATCH("/assemblies/:id", cfg.AssemblyHandler.Update)
		protected.DELETE("/assemblies/:id", cfg.AssemblyHandler.Delete)
		protected.POST("/assemblies/:id/children/repair", cfg.AssemblyHandler.RepairChildren)
		protected.PATCH("/assemblies/:id/status", cfg.AssemblyHandler.ChangeStatus)
		protected.PATCH("/assemblies/:id/qc", cfg.AssemblyHandler.UpdateQC)
		protected.POST("/assemblies/:id/drawing", cfg.AssemblyHandler.UploadDrawing)
	}

	if cfg.QCHandler != nil {
		protected.GET("/assemblies/:id/qc-images", cfg.QCHandler.ListImages)
		protected.POST("/assemblies/:id/qc-images", cfg.QCHandler.UploadImage)
		protected.DELETE("/qc-images/:id", cfg.QCHandler.DeleteImage)
	}

	if cfg.BatchHandler != nil {
		protected.GET("/batches", cfg.BatchHandler.List)
		protected.GET("/batches/:id", cfg.BatchHandler.Get)
		protected.POST("/batches", cfg.BatchHandler.Create)
		protected.PATCH("/batches/:id", cfg.BatchHandler.Update)
		protected.DELETE("/batches/:id", cfg.BatchHandler.Delete)
		protected.PATCH("/batches/:id/status", cfg.BatchHandler.ChangeStatus)
		protected.GET("/batches/:id/assemblies", cfg.BatchHandler.ListAssemblies)
		protected.POST("/batches/:id/assemblies", cfg.BatchHandler.AddAssembly)
		protected.DELETE("/batches/:id/assemblies/:assemblyId", cfg.BatchHandler.RemoveAssembly)
	}

	if cfg.BarcodeHandler != nil {
		protected.GET("/barcodes/:code", cfg.BarcodeHandler.Resolve)
		protected.POST("/assemblies/:id/barcode", cfg.BarcodeHandler.BindAssembly)
		protected.POST("/batches/:id/barcode", cfg.BarcodeHandler.BindBatch)
		admin.POST("/barcodes/backfill", cfg.BarcodeHandler.Backfill)
	}

	return r
}
