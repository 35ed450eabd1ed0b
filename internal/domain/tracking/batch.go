package tracking

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	BatchStatusPending   = "Pending"
	BatchStatusInTransit = "In Transit"
	BatchStatusDelivered = "Delivered"
	BatchStatusCancelled = "Cancelled"
)

var batchStatuses = []string{
	BatchStatusPending,
	BatchStatusInTransit,
	BatchStatusDelivered,
	BatchStatusCancelled,
}

var batchTransitions = map[string][]string{
	BatchStatusPending:   {BatchStatusInTransit, BatchStatusCancelled},
	BatchStatusInTransit: {BatchStatusDelivered, BatchStatusPending, BatchStatusCancelled},
}

// LogisticsBatch is a shipment. TotalWeight is derived from the membership ledger
// and Version increments on every committed membership or status change.
type LogisticsBatch struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BatchNumber     string          `gorm:"uniqueIndex;not null;column:batch_number" json:"batch_number"`
	ClientName      string          `gorm:"column:client_name" json:"client_name"`
	ProjectID       uuid.UUID       `gorm:"type:uuid;not null;index;column:project_id" json:"project_id"`
	DeliveryAddress string          `gorm:"column:delivery_address" json:"delivery_address"`
	Notes           string          `gorm:"column:notes" json:"notes"`
	TotalWeight     decimal.Decimal `gorm:"type:numeric(14,3);not null;column:total_weight" json:"total_weight"`
	Status          string          `gorm:"not null;index;column:status" json:"status"`
	Version         int             `gorm:"not null;column:version" json:"version"`
	CreatedBy       *uuid.UUID      `gorm:"type:uuid;column:created_by" json:"created_by,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (LogisticsBatch) TableName() string { return "logistics_batches" }

func (b *LogisticsBatch) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// IsLocked reports whether membership changes are frozen for the batch.
func (b *LogisticsBatch) IsLocked() bool {
	return b != nil && IsLockedBatchStatus(b.Status)
}

func IsLockedBatchStatus(status string) bool {
	return status == BatchStatusDelivered || status == BatchStatusCancelled
}

func NormalizeBatchStatus(s string) string {
	return matchFold(s, batchStatuses)
}

func BatchTransitionAllowed(from, to string) bool {
	for _, next := range batchTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// BatchAssembly is one row of the membership ledger.
type BatchAssembly struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_batch_assembly_pair;column:batch_id" json:"batch_id"`
	AssemblyID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_batch_assembly_pair;index;column:assembly_id" json:"assembly_id"`
	AddedBy    *uuid.UUID `gorm:"type:uuid;column:added_by" json:"added_by,omitempty"`
	AddedAt    time.Time  `gorm:"not null;column:added_at" json:"added_at"`
}

func (BatchAssembly) TableName() string { return "batch_assemblies" }

func (ba *BatchAssembly) BeforeCreate(*gorm.DB) error {
	if ba.ID == uuid.Nil {
		ba.ID = uuid.New()
	}
	if ba.AddedAt.IsZero() {
		ba.AddedAt = time.Now().UTC()
	}
	return nil
}

// WeightLine is the slice of an assembly row a batch total depends on.
type WeightLine struct {
	AssemblyID uuid.UUID
	Weight     decimal.Decimal
	Quantity   int
}

// TotalWeight sums weight × quantity over the given members.
func TotalWeight(lines []WeightLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Weight.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}
