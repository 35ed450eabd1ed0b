package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/trackflow-backend/internal/platform/logger"
	"github.com/yungbote/trackflow-backend/internal/services"
	"github.com/yungbote/trackflow-backend/internal/temporalx"
	"github.com/yungbote/trackflow-backend/internal/temporalx/backfill"
)

// startWindow covers a Temporal server that is still booting next to us.
const startWindow = time.Minute

// Runner hosts the barcode backfill workflow and its activity.
type Runner struct {
	log      *logger.Logger
	cfg      temporalx.Config
	tc       temporalsdkclient.Client
	barcodes services.BarcodeService
}

func NewRunner(log *logger.Logger, cfg temporalx.Config, tc temporalsdkclient.Client, barcodes services.BarcodeService) (*Runner, error) {
	switch {
	case tc == nil:
		return nil, errors.New("temporal worker: no client")
	case barcodes == nil:
		return nil, errors.New("temporal worker: no barcode service")
	}
	return &Runner{
		log:      log.With("component", "temporal_worker", "task_queue", cfg.TaskQueue),
		cfg:      cfg,
		tc:       tc,
		barcodes: barcodes,
	}, nil
}

// Start begins polling and returns; the worker stops when ctx is done.
func (r *Runner) Start(ctx context.Context) error {
	r.log.Info("starting temporal worker", "namespace", r.cfg.Namespace)
	var w worker.Worker
	err := temporalx.Retry(ctx, r.log, "temporal worker start", startWindow, nil, func(int) error {
		w = r.build()
		err := w.Start()
		if err == nil {
			return nil
		}
		w.Stop()
		var missing *serviceerror.NamespaceNotFound
		if errors.As(err, &missing) && r.cfg.AutoRegisterNamespace {
			if nerr := temporalx.EnsureNamespace(ctx, r.cfg, r.log); nerr != nil {
				r.log.Warn("namespace registration failed", "namespace", r.cfg.Namespace, "error", nerr)
			}
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("start temporal worker on %s: %w", r.cfg.TaskQueue, err)
	}
	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}

func (r *Runner) build() worker.Worker {
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     r.cfg.WorkerConcurrency,
		MaxConcurrentWorkflowTaskExecutionSize: r.cfg.WorkerConcurrency,
	})
	acts := &backfill.Activities{Log: r.log, Barcodes: r.barcodes}
	w.RegisterWorkflowWithOptions(backfill.Workflow, workflow.RegisterOptions{Name: backfill.WorkflowName})
	w.RegisterActivityWithOptions(acts.Issue, activity.RegisterOptions{Name: backfill.ActivityIssue})
	return w
}
