package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/trackflow-backend/internal/data/db"
	"github.com/yungbote/trackflow-backend/internal/data/repos"
	httpserver "github.com/yungbote/trackflow-backend/internal/http"
	"github.com/yungbote/trackflow-backend/internal/observability"
	"github.com/yungbote/trackflow-backend/internal/platform/envutil"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
	"github.com/yungbote/trackflow-backend/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    repos.Set
	Services Services
	Clients  Clients
	SSEHub   *realtime.SSEHub
	Metrics  *observability.Metrics

	dbService    *db.Service
	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	bootLog, err := logger.New(envLogMode())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	cfg, err := LoadConfig(bootLog)
	if err != nil {
		bootLog.Sync()
		return nil, err
	}
	log := bootLog
	if cfg.LogMode != envLogMode() {
		if log, err = logger.New(cfg.LogMode); err != nil {
			bootLog.Sync()
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}

	otelShutdown := observability.InitTracing(ctx, log, observability.TracingConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	})
	metrics := observability.Init(log)

	dbs, err := db.Open(cfg.DBConfig(), log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := db.Migrate(dbs.DB()); err != nil {
		_ = dbs.Close()
		log.Sync()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	theDB := dbs.DB()

	hub := realtime.NewSSEHub(log, metrics)

	clients, err := wireClients(ctx, log, cfg, metrics)
	if err != nil {
		_ = dbs.Close()
		log.Sync()
		return nil, err
	}

	reposet := repos.NewSet(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, reposet, clients, hub, metrics)
	if err != nil {
		clients.Close()
		_ = dbs.Close()
		log.Sync()
		return nil, err
	}

	var router *gin.Engine
	if cfg.RunServer {
		router = wireRouter(log, cfg, wireHandlers(log, theDB, serviceset, hub), serviceset, metrics)
	}

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		Clients:      clients,
		SSEHub:       hub,
		Metrics:      metrics,
		dbService:    dbs,
		otelShutdown: otelShutdown,
	}, nil
}

// Run blocks until ctx is cancelled or a component fails. The API and the Temporal
// worker run in the same process when both RUN_SERVER and RUN_WORKER are set.
func (a *App) Run(ctx context.Context) error {
	if a == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Metrics.Serve(ctx, a.Log, a.Cfg.MetricsAddr)
	a.Metrics.StartCollectors(ctx, a.Log, a.DB, a.Clients.Redis)

	g, gctx := errgroup.WithContext(ctx)

	if a.Clients.SSEBus != nil && a.Router != nil {
		if err := a.Clients.SSEBus.Relay(gctx, a.SSEHub.Broadcast); err != nil {
			return fmt.Errorf("start SSE forwarder: %w", err)
		}
	}

	if a.Services.TemporalWorker != nil {
		g.Go(func() error {
			if err := a.Services.TemporalWorker.Start(gctx); err != nil {
				return fmt.Errorf("temporal worker: %w", err)
			}
			<-gctx.Done()
			return nil
		})
	}

	if a.Router != nil {
		addr := ":" + a.Cfg.Port
		g.Go(func() error {
			a.Log.Info("HTTP server listening", "addr", addr)
			return httpserver.NewServer(a.Router).Run(gctx, addr)
		})
	}

	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

func envLogMode() string {
	return envutil.String("LOG_MODE", "development")
}
