package tracking

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BarcodeKind string

const (
	BarcodeKindAssembly BarcodeKind = "assembly"
	BarcodeKindBatch    BarcodeKind = "batch"
)

// Barcode binds one scannable token to exactly one assembly or one batch.
// Rows are never updated; re-binding means issuing a new token.
type Barcode struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Code       string     `gorm:"uniqueIndex;not null;column:code" json:"code"`
	AssemblyID *uuid.UUID `gorm:"type:uuid;uniqueIndex;column:assembly_id" json:"assembly_id,omitempty"`
	BatchID    *uuid.UUID `gorm:"type:uuid;uniqueIndex;column:batch_id" json:"batch_id,omitempty"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
}

func (Barcode) TableName() string { return "barcodes" }

func (b *Barcode) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (b *Barcode) Kind() BarcodeKind {
	switch {
	case b == nil:
		return ""
	case b.AssemblyID != nil && *b.AssemblyID != uuid.Nil:
		return BarcodeKindAssembly
	case b.BatchID != nil && *b.BatchID != uuid.Nil:
		return BarcodeKindBatch
	default:
		return ""
	}
}

// TargetID returns the bound assembly or batch id.
func (b *Barcode) TargetID() uuid.UUID {
	switch b.Kind() {
	case BarcodeKindAssembly:
		return *b.AssemblyID
	case BarcodeKindBatch:
		return *b.BatchID
	default:
		return uuid.Nil
	}
}
