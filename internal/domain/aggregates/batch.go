package aggregates

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
)

var BatchAggregateContract = Contract{
	Name:      "Tracking.BatchAggregate",
	LockOrder: []string{"logistics_batches", "assemblies"},
	Invariants: []string{
		"total_weight equals the sum of weight x quantity over batch_assemblies",
		"an assembly appears at most once per batch",
		"Delivered and Cancelled batches have a frozen ledger",
		"version increases on every committed change",
	},
}

// BatchAggregate owns the membership ledger of logistics batches.
//
// Write failures return *aggregates.Error with codes:
// CodeValidation (locked batch, project mismatch, bad barcode), CodeNotFound,
// CodeConflict (stale version, illegal transition), CodeRetryable, CodeInternal.
type BatchAggregate interface {
	Aggregate

	// AddAssembly links an assembly to a batch. Re-adding a member is a no-op reported as AlreadyAdded.
	AddAssembly(ctx context.Context, in AddBatchAssemblyInput) (AddBatchAssemblyResult, error)

	// RemoveAssembly unlinks an assembly. The assembly keeps its status.
	RemoveAssembly(ctx context.Context, in RemoveBatchAssemblyInput) (RemoveBatchAssemblyResult, error)

	// ChangeStatus moves a batch through its lifecycle and coerces members to Completed when shipping.
	ChangeStatus(ctx context.Context, in ChangeBatchStatusInput) (ChangeBatchStatusResult, error)

	// Reweigh recomputes total weight from the ledger.
	Reweigh(ctx context.Context, batchID uuid.UUID) (decimal.Decimal, error)
}

// AddBatchAssemblyInput identifies the assembly either by id or by scanned barcode.
type AddBatchAssemblyInput struct {
	BatchID    uuid.UUID
	AssemblyID uuid.UUID
	Barcode    string
	ActorID    *uuid.UUID
}

type AddBatchAssemblyResult struct {
	Batch          *tracking.LogisticsBatch
	Assembly       *tracking.Assembly
	AlreadyAdded   bool
	PreviousStatus string
	TotalWeight    decimal.Decimal
}

type RemoveBatchAssemblyInput struct {
	BatchID    uuid.UUID
	AssemblyID uuid.UUID
	ActorID    *uuid.UUID
}

type RemoveBatchAssemblyResult struct {
	Batch       *tracking.LogisticsBatch
	AssemblyID  uuid.UUID
	TotalWeight decimal.Decimal
}

type ChangeBatchStatusInput struct {
	BatchID         uuid.UUID
	Status          string
	ExpectedVersion *int
	ActorID         *uuid.UUID
}

type ChangeBatchStatusResult struct {
	Batch              *tracking.LogisticsBatch
	PreviousStatus     string
	AssembliesComplete []uuid.UUID
}
