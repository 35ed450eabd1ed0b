package backfill

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Workflow issues barcodes for the given assemblies in chunks. Without ids it
// scans for assemblies that have none, one page per activity, until a page issues nothing.
func Workflow(ctx workflow.Context, in Input) (Result, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    6,
		},
	})
	var total Result

	if len(in.AssemblyIDs) == 0 {
		limit := in.Limit
		if limit <= 0 {
			limit = scanLimit
		}
		for {
			var page Result
			if err := workflow.ExecuteActivity(ctx, ActivityIssue, ActivityInput{Limit: limit}).Get(ctx, &page); err != nil {
				return total, err
			}
			total.add(page)
			if page.Issued == 0 || page.Scanned < limit {
				return total, nil
			}
		}
	}

	for start := 0; start < len(in.AssemblyIDs); start += chunkSize {
		end := start + chunkSize
		if end > len(in.AssemblyIDs) {
			end = len(in.AssemblyIDs)
		}
		var part Result
		err := workflow.ExecuteActivity(ctx, ActivityIssue, ActivityInput{AssemblyIDs: in.AssemblyIDs[start:end]}).Get(ctx, &part)
		if err != nil {
			return total, err
		}
		total.add(part)
	}
	workflow.GetLogger(ctx).Info("barcode backfill finished", "scanned", total.Scanned, "issued", total.Issued)
	return total, nil
}
