package backfill

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/trackflow-backend/internal/platform/logger"
	"github.com/yungbote/trackflow-backend/internal/services"
)

type Activities struct {
	Log      *logger.Logger
	Barcodes services.BarcodeService
}

// Issue runs one backfill pass. Assemblies whose barcode could not be issued make the
// attempt fail so Temporal retries it; assemblies already served are skipped on retry.
func (a *Activities) Issue(ctx context.Context, in ActivityInput) (Result, error) {
	if a == nil || a.Barcodes == nil {
		return Result{}, temporal.NewNonRetryableApplicationError("backfill activity not configured", "config", nil)
	}
	ids := make([]uuid.UUID, 0, len(in.AssemblyIDs))
	for _, raw := range in.AssemblyIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return Result{}, temporal.NewNonRetryableApplicationError(fmt.Sprintf("invalid assembly id %q", raw), "input", err)
		}
		ids = append(ids, id)
	}

	out, err := a.Barcodes.Backfill(ctx, ids, in.Limit)
	if err != nil {
		return Result{}, err
	}
	res := Result{Scanned: out.Scanned, Issued: out.Issued}
	if out.Outcome.Partial() {
		a.Log.Warn("barcode backfill left assemblies without barcode", "pending", len(out.Outcome.Pending), "issued", out.Issued)
		return res, temporal.NewApplicationError(fmt.Sprintf("%d barcodes still pending", len(out.Outcome.Pending)), "pending")
	}
	return res, nil
}
