package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
)

var AssemblyAggregateContract = Contract{
	Name:      "Tracking.AssemblyAggregate",
	LockOrder: []string{"logistics_batches", "assemblies"},
	Invariants: []string{
		"a parent of quantity N has children numbered 1..N, each of quantity 1",
		"children carry the parent's project, weight and dimensions",
		"batches holding an edited or deleted assembly are reweighed in the same transaction",
	},
}

// AssemblyAggregate owns the parent/child invariants of assembly orders.
//
// Write failures return *aggregates.Error with codes:
// CodeValidation, CodeNotFound, CodeConflict, CodeRetryable, CodeInternal.
type AssemblyAggregate interface {
	Aggregate

	// Create inserts a single assembly, or a parent plus quantity children, in one transaction.
	Create(ctx context.Context, in CreateAssemblyInput) (CreateAssemblyResult, error)

	// EnsureChildren inserts any missing child rows of a parent. Existing children are untouched.
	EnsureChildren(ctx context.Context, parentID uuid.UUID) (EnsureChildrenResult, error)

	// Update applies a patch; on a parent the propagated fields are copied to every child.
	Update(ctx context.Context, in UpdateAssemblyInput) (UpdateAssemblyResult, error)

	// Delete removes an assembly (and its children), their barcodes and batch memberships.
	Delete(ctx context.Context, in DeleteAssemblyInput) (DeleteAssemblyResult, error)
}

type CreateAssemblyInput struct {
	Name                 string
	ProjectID            uuid.UUID
	Weight               decimal.Decimal
	Quantity             int
	Width                decimal.Decimal
	Height               decimal.Decimal
	Length               decimal.Decimal
	PaintingSpec         string
	Status               string
	StartDate            *time.Time
	EndDate              *time.Time
	QualityControlStatus string
	QualityControlNotes  string
	ActorID              *uuid.UUID
	// SkipBarcodes leaves barcode issue to a later backfill.
	SkipBarcodes bool
}

type CreateAssemblyResult struct {
	Assembly   *tracking.Assembly
	ChildCount int
	ChildIDs   []uuid.UUID
	Barcode    string
	Outcome    Outcome
}

type EnsureChildrenResult struct {
	ParentID uuid.UUID
	Created  []uuid.UUID
	Existing int
	Outcome  Outcome
}

// AssemblyPatch holds optional field updates; nil means "leave unchanged".
type AssemblyPatch struct {
	Name                 *string
	Weight               *decimal.Decimal
	Quantity             *int
	Width                *decimal.Decimal
	Height               *decimal.Decimal
	Length               *decimal.Decimal
	PaintingSpec         *string
	Status               *string
	StartDate            *time.Time
	EndDate              *time.Time
	QualityControlStatus *string
	QualityControlNotes  *string
	DrawingKey           *string
}

type UpdateAssemblyInput struct {
	AssemblyID uuid.UUID
	Patch      AssemblyPatch
	ActorID    *uuid.UUID
	Source     string
}

type UpdateAssemblyResult struct {
	Assembly         *tracking.Assembly
	ChildrenUpdated  int
	ChildrenCreated  []uuid.UUID
	BatchesReweighed []uuid.UUID
	Outcome          Outcome
}

type DeleteAssemblyInput struct {
	AssemblyID uuid.UUID
	ActorID    *uuid.UUID
}

type DeleteAssemblyResult struct {
	DeletedIDs       []uuid.UUID
	BatchesReweighed []uuid.UUID
	// StorageKeys are the QC image and drawing objects the caller should remove after commit.
	StorageKeys []string
}
