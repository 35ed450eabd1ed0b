package aggregates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yungbote/trackflow-backend/internal/data/repos"
	types "github.com/yungbote/trackflow-backend/internal/domain"
	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
)

type BatchAggregateDeps struct {
	Base BaseDeps

	Batches    repos.BatchRepo
	Members    repos.BatchAssemblyRepo
	Assemblies repos.AssemblyRepo
	Barcodes   repos.BarcodeRepo
	StatusLogs repos.StatusLogRepo
}

type batchAggregate struct {
	deps   BatchAggregateDeps
	writer batchWriter
}

func NewBatchAggregate(deps BatchAggregateDeps) domainagg.BatchAggregate {
	deps.Base = deps.Base.withDefaults()
	return &batchAggregate{
		deps: deps,
		writer: batchWriter{
			batches:  deps.Batches,
			members:  deps.Members,
			guard:    deps.Base.Guard,
			hooks:    deps.Base.Hooks,
			opPrefix: "Tracking.Batch",
		},
	}
}

func (a *batchAggregate) Contract() domainagg.Contract {
	return domainagg.BatchAggregateContract
}

func (a *batchAggregate) configured() bool {
	return a.deps.Batches != nil && a.deps.Members != nil && a.deps.Assemblies != nil &&
		a.deps.Barcodes != nil && a.deps.StatusLogs != nil
}

// lockOpen locks the batch and rejects membership changes on shipped or cancelled batches.
func (a *batchAggregate) lockOpen(dbc dbctx.Context, op string, batchID uuid.UUID) (*types.LogisticsBatch, error) {
	b, err := a.deps.Batches.LockByID(dbc, batchID)
	if err != nil {
		return nil, err
	}
	if b.IsLocked() {
		return nil, domainagg.NewError(domainagg.CodeValidation, op,
			fmt.Sprintf("batch %s is %s; membership is frozen", b.BatchNumber, strings.ToLower(b.Status)), nil)
	}
	return b, nil
}

// resolveAssemblyID turns the scanned barcode (if any) into an assembly id.
func (a *batchAggregate) resolveAssemblyID(dbc dbctx.Context, op string, in domainagg.AddBatchAssemblyInput) (uuid.UUID, error) {
	code := strings.TrimSpace(in.Barcode)
	if code == "" {
		return in.AssemblyID, nil
	}
	bc, err := a.deps.Barcodes.GetByCode(dbc, code)
	if err != nil {
		return uuid.Nil, err
	}
	if bc == nil {
		return uuid.Nil, domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("barcode not found: %s", code), nil)
	}
	if bc.Kind() != tracking.BarcodeKindAssembly {
		return uuid.Nil, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("barcode %s does not identify an assembly", code), nil)
	}
	if in.AssemblyID != uuid.Nil && in.AssemblyID != *bc.AssemblyID {
		return uuid.Nil, domainagg.NewError(domainagg.CodeValidation, op, "barcode and assembly_id disagree", nil)
	}
	return *bc.AssemblyID, nil
}

func (a *batchAggregate) AddAssembly(ctx context.Context, in domainagg.AddBatchAssemblyInput) (domainagg.AddBatchAssemblyResult, error) {
	const op = "Tracking.Batch.AddAssembly"
	var out domainagg.AddBatchAssemblyResult
	if in.BatchID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing batch_id", nil)
	}
	if in.AssemblyID == uuid.Nil && strings.TrimSpace(in.Barcode) == "" {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "barcode or assembly_id is required", nil)
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "batch aggregate repos not configured", nil)
	}

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		out = domainagg.AddBatchAssemblyResult{}
		b, err := a.lockOpen(dbc, op, in.BatchID)
		if err != nil {
			return err
		}
		assemblyID, err := a.resolveAssemblyID(dbc, op, in)
		if err != nil {
			return err
		}
		asm, err := a.deps.Assemblies.LockByID(dbc, assemblyID)
		if err != nil {
			return err
		}
		if asm.ProjectID != b.ProjectID {
			return domainagg.NewError(domainagg.CodeValidation, op,
				fmt.Sprintf("assembly %s belongs to a different project than batch %s", asm.Name, b.BatchNumber), nil)
		}

		existing, err := a.deps.Members.Get(dbc, b.ID, asm.ID)
		if err != nil {
			return err
		}
		out.Batch = b
		out.Assembly = asm
		out.PreviousStatus = asm.Status
		if existing != nil {
			out.AlreadyAdded = true
			out.TotalWeight = b.TotalWeight
			return nil
		}

		if _, err := a.deps.Members.Create(dbc, &types.BatchAssembly{
			BatchID:    b.ID,
			AssemblyID: asm.ID,
			AddedBy:    in.ActorID,
			AddedAt:    time.Now().UTC(),
		}); err != nil {
			return err
		}

		if asm.Status != tracking.AssemblyStatusCompleted {
			if err := a.deps.Assemblies.UpdateFields(dbc, asm.ID, map[string]interface{}{
				"status": tracking.AssemblyStatusCompleted,
			}); err != nil {
				return err
			}
			if err := a.deps.StatusLogs.Create(dbc, []*types.AssemblyStatusLog{
				newStatusLog(asm.ID, asm.Status, tracking.AssemblyStatusCompleted, tracking.StatusSourceBatchLink, in.ActorID,
					map[string]any{"batch_id": b.ID.String(), "batch_number": b.BatchNumber}),
			}); err != nil {
				return err
			}
			asm.Status = tracking.AssemblyStatusCompleted
		}

		total, err := a.writer.commit(dbc, b, nil)
		if err != nil {
			return err
		}
		out.TotalWeight = total
		return nil
	})
	if err != nil {
		return domainagg.AddBatchAssemblyResult{}, err
	}
	return out, nil
}

func (a *batchAggregate) RemoveAssembly(ctx context.Context, in domainagg.RemoveBatchAssemblyInput) (domainagg.RemoveBatchAssemblyResult, error) {
	const op = "Tracking.Batch.RemoveAssembly"
	var out domainagg.RemoveBatchAssemblyResult
	if in.BatchID == uuid.Nil || in.AssemblyID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "batch_id and assembly_id are required", nil)
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "batch aggregate repos not configured", nil)
	}

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		b, err := a.lockOpen(dbc, op, in.BatchID)
		if err != nil {
			return err
		}
		n, err := a.deps.Members.DeletePair(dbc, b.ID, in.AssemblyID)
		if err != nil {
			return err
		}
		if n == 0 {
			return domainagg.NewError(domainagg.CodeNotFound, op,
				fmt.Sprintf("assembly %s is not in batch %s", in.AssemblyID, b.BatchNumber), nil)
		}
		total, err := a.writer.commit(dbc, b, nil)
		if err != nil {
			return err
		}
		out = domainagg.RemoveBatchAssemblyResult{Batch: b, AssemblyID: in.AssemblyID, TotalWeight: total}
		return nil
	})
	if err != nil {
		return domainagg.RemoveBatchAssemblyResult{}, err
	}
	return out, nil
}

func (a *batchAggregate) ChangeStatus(ctx context.Context, in domainagg.ChangeBatchStatusInput) (domainagg.ChangeBatchStatusResult, error) {
	const op = "Tracking.Batch.ChangeStatus"
	var out domainagg.ChangeBatchStatusResult
	if in.BatchID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing batch_id", nil)
	}
	next := tracking.NormalizeBatchStatus(in.Status)
	if next == "" {
		return out, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("unknown batch status %q", in.Status), nil)
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "batch aggregate repos not configured", nil)
	}

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		out = domainagg.ChangeBatchStatusResult{}
		b, err := a.deps.Batches.LockByID(dbc, in.BatchID)
		if err != nil {
			return err
		}
		if err := RequireVersion(b.Version, in.ExpectedVersion); err != nil {
			return err
		}
		out.Batch = b
		out.PreviousStatus = b.Status
		if b.Status == next {
			return nil
		}
		if !tracking.BatchTransitionAllowed(b.Status, next) {
			return ConflictError(fmt.Sprintf("batch status transition %s -> %s not allowed", b.Status, next))
		}

		if next == tracking.BatchStatusInTransit || next == tracking.BatchStatusDelivered {
			completed, err := a.completeMembers(dbc, b, next, in.ActorID)
			if err != nil {
				return err
			}
			out.AssembliesComplete = completed
		}

		_, err = a.writer.commit(dbc, b, map[string]any{"status": next})
		return err
	})
	if err != nil {
		return domainagg.ChangeBatchStatusResult{}, err
	}
	return out, nil
}

// completeMembers moves every member that is not yet Completed to Completed and logs it.
func (a *batchAggregate) completeMembers(dbc dbctx.Context, b *types.LogisticsBatch, next string, actor *uuid.UUID) ([]uuid.UUID, error) {
	ids, err := a.deps.Members.AssemblyIDsForBatch(dbc, b.ID)
	if err != nil {
		return nil, err
	}
	members, err := a.deps.Assemblies.GetByIDs(dbc, ids)
	if err != nil {
		return nil, err
	}
	var (
		changed []uuid.UUID
		logs    []*types.AssemblyStatusLog
	)
	for _, m := range members {
		if m.Status == tracking.AssemblyStatusCompleted {
			continue
		}
		if err := a.deps.Assemblies.UpdateFields(dbc, m.ID, map[string]interface{}{
			"status": tracking.AssemblyStatusCompleted,
		}); err != nil {
			return nil, err
		}
		logs = append(logs, newStatusLog(m.ID, m.Status, tracking.AssemblyStatusCompleted, tracking.StatusSourceBatchStatus, actor,
			map[string]any{"batch_id": b.ID.String(), "batch_status": next}))
		changed = append(changed, m.ID)
	}
	if err := a.deps.StatusLogs.Create(dbc, logs); err != nil {
		return nil, err
	}
	return changed, nil
}

func (a *batchAggregate) Reweigh(ctx context.Context, batchID uuid.UUID) (decimal.Decimal, error) {
	const op = "Tracking.Batch.Reweigh"
	if batchID == uuid.Nil {
		return decimal.Zero, domainagg.NewError(domainagg.CodeValidation, op, "missing batch_id", nil)
	}
	if !a.configured() {
		return decimal.Zero, domainagg.NewError(domainagg.CodeInternal, op, "batch aggregate repos not configured", nil)
	}
	var total decimal.Decimal
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		b, err := a.deps.Batches.LockByID(dbc, batchID)
		if err != nil {
			return err
		}
		total, err = a.writer.commit(dbc, b, nil)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
