package aggregates

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yungbote/trackflow-backend/internal/data/repos"
	types "github.com/yungbote/trackflow-backend/internal/domain"
	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
)

const batchTable = "logistics_batches"

// batchWriter holds the pieces every batch-touching aggregate needs to keep
// total_weight and version consistent.
type batchWriter struct {
	batches  repos.BatchRepo
	members  repos.BatchAssemblyRepo
	guard    VersionGuard
	hooks    Hooks
	opPrefix string
}

// commit recomputes total weight from the ledger and writes it together with any
// extra updates, guarded by the version the caller locked. b is updated in place.
func (w batchWriter) commit(dbc dbctx.Context, b *types.LogisticsBatch, extra map[string]any) (decimal.Decimal, error) {
	lines, err := w.members.WeightLines(dbc, b.ID)
	if err != nil {
		return decimal.Zero, err
	}
	total := tracking.TotalWeight(lines)
	now := time.Now().UTC()
	updates := map[string]any{
		"total_weight": total,
		"updated_at":   now,
	}
	for k, v := range extra {
		updates[k] = v
	}
	if err := w.guard.Bump(dbc, batchTable, b.ID, b.Version, updates); err != nil {
		return decimal.Zero, err
	}
	w.hooks.IncReweigh(w.opPrefix)

	b.TotalWeight = total
	b.Version++
	b.UpdatedAt = now
	if s, ok := extra["status"].(string); ok {
		b.Status = s
	}
	return total, nil
}

// lockBatches locks every batch in ids, in id order, and returns them keyed by id.
func (w batchWriter) lockBatches(dbc dbctx.Context, ids []uuid.UUID) ([]*types.LogisticsBatch, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := w.batches.LockByIDs(dbc, ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID.String() < rows[j].ID.String() })
	return rows, nil
}

// reweighAll recomputes every batch in rows; it is used after assembly edits change member weights.
func (w batchWriter) reweighAll(dbc dbctx.Context, rows []*types.LogisticsBatch) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(rows))
	for _, b := range rows {
		if _, err := w.commit(dbc, b, nil); err != nil {
			return nil, err
		}
		out = append(out, b.ID)
	}
	return out, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
