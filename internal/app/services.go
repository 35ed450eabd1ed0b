package app

import (
	"fmt"

	"gorm.io/gorm"

	dataagg "github.com/yungbote/trackflow-backend/internal/data/aggregates"
	"github.com/yungbote/trackflow-backend/internal/data/repos"
	"github.com/yungbote/trackflow-backend/internal/events"
	"github.com/yungbote/trackflow-backend/internal/observability"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
	"github.com/yungbote/trackflow-backend/internal/realtime"
	"github.com/yungbote/trackflow-backend/internal/services"
	"github.com/yungbote/trackflow-backend/internal/temporalx/backfill"
	"github.com/yungbote/trackflow-backend/internal/temporalx/temporalworker"
)

type Services struct {
	Auth     services.AuthService
	User     services.UserService
	NFC      services.NFCService
	Project  services.ProjectService
	Assembly services.AssemblyService
	Batch    services.BatchService
	Barcode  services.BarcodeService
	QC       services.QCService

	Publisher events.Publisher
	// Scheduler is nil without Temporal; pending barcodes then wait for the admin backfill.
	Scheduler      services.BackfillScheduler
	TemporalWorker *temporalworker.Runner
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, rs repos.Set, clients Clients, hub *realtime.SSEHub, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	publishers := events.Multi{events.NewHubPublisher(log, hub, clients.SSEBus, metrics)}
	if clients.Kafka != nil {
		publishers = append(publishers, clients.Kafka)
	}

	base := dataagg.BaseDeps{
		DB:    db,
		Log:   log,
		Hooks: dataagg.NewMetricHooks(metrics),
	}
	assemblyAgg := dataagg.NewAssemblyAggregate(dataagg.AssemblyAggregateDeps{
		Base:       base,
		Projects:   rs.Projects,
		Assemblies: rs.Assemblies,
		Barcodes:   rs.Barcodes,
		Batches:    rs.Batches,
		Members:    rs.BatchAssembly,
		StatusLogs: rs.StatusLogs,
		QCImages:   rs.QCImages,
	})
	batchAgg := dataagg.NewBatchAggregate(dataagg.BatchAggregateDeps{
		Base:       base,
		Batches:    rs.Batches,
		Members:    rs.BatchAssembly,
		Assemblies: rs.Assemblies,
		Barcodes:   rs.Barcodes,
		StatusLogs: rs.StatusLogs,
	})

	var scheduler services.BackfillScheduler
	if clients.Temporal != nil {
		s, err := backfill.NewScheduler(log, clients.Temporal, cfg.Temporal.TaskQueue)
		if err != nil {
			return Services{}, fmt.Errorf("init backfill scheduler: %w", err)
		}
		scheduler = s
	}

	barcodeService := services.NewBarcodeService(db, log, rs.Barcodes, rs.Assemblies, rs.Batches)

	var runner *temporalworker.Runner
	if cfg.RunWorker {
		r, err := temporalworker.NewRunner(log, cfg.Temporal, clients.Temporal, barcodeService)
		if err != nil {
			return Services{}, fmt.Errorf("init temporal worker: %w", err)
		}
		runner = r
	}

	return Services{
		Auth:    services.NewAuthService(db, log, rs.Users, cfg.JWTSecretKey),
		User:    services.NewUserService(db, log, rs.Users, rs.NFCCards),
		NFC:     services.NewNFCService(db, log, rs.NFCCards, rs.Users),
		Project: services.NewProjectService(db, log, rs.Projects),
		Assembly: services.NewAssemblyService(db, log, services.AssemblyServiceDeps{
			Aggregate:  assemblyAgg,
			Assemblies: rs.Assemblies,
			Barcodes:   rs.Barcodes,
			Members:    rs.BatchAssembly,
			StatusLogs: rs.StatusLogs,
			Bucket:     clients.Bucket,
			Publisher:  publishers,
			Scheduler:  scheduler,
		}),
		Batch: services.NewBatchService(db, log, services.BatchServiceDeps{
			Aggregate:  batchAgg,
			Batches:    rs.Batches,
			Members:    rs.BatchAssembly,
			Assemblies: rs.Assemblies,
			Barcodes:   rs.Barcodes,
			Projects:   rs.Projects,
			Users:      rs.Users,
			Publisher:  publishers,
		}),
		Barcode:        barcodeService,
		QC:             services.NewQCService(db, log, rs.QCImages, rs.Assemblies, clients.Bucket),
		Publisher:      publishers,
		Scheduler:      scheduler,
		TemporalWorker: runner,
	}, nil
}
