package backfill

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

// Scheduler starts backfill workflows. It satisfies services.BackfillScheduler.
type Scheduler struct {
	log       *logger.Logger
	tc        temporalsdkclient.Client
	taskQueue string
}

func NewScheduler(log *logger.Logger, tc temporalsdkclient.Client, taskQueue string) (*Scheduler, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	return &Scheduler{log: log.With("component", "BackfillScheduler"), tc: tc, taskQueue: taskQueue}, nil
}

func (s *Scheduler) ScheduleBarcodeBackfill(ctx context.Context, assemblyIDs []uuid.UUID) error {
	if len(assemblyIDs) == 0 {
		return nil
	}
	in := Input{AssemblyIDs: make([]string, 0, len(assemblyIDs))}
	for _, id := range assemblyIDs {
		in.AssemblyIDs = append(in.AssemblyIDs, id.String())
	}
	run, err := s.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:        "barcode-backfill-" + uuid.NewString(),
		TaskQueue: s.taskQueue,
	}, WorkflowName, in)
	if err != nil {
		return fmt.Errorf("start barcode backfill: %w", err)
	}
	s.log.Info("barcode backfill scheduled", "workflow_id", run.GetID(), "run_id", run.GetRunID(), "assemblies", len(assemblyIDs))
	return nil
}
