package tracking

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	AssemblyStatusWaiting      = "Waiting"
	AssemblyStatusInProduction = "In Production"
	AssemblyStatusWelding      = "Welding"
	AssemblyStatusPainting     = "Painting"
	AssemblyStatusCompleted    = "Completed"
)

var assemblyStatuses = []string{
	AssemblyStatusWaiting,
	AssemblyStatusInProduction,
	AssemblyStatusWelding,
	AssemblyStatusPainting,
	AssemblyStatusCompleted,
}

const (
	QCStatusPending = "Pending"
	QCStatusPassed  = "Passed"
	QCStatusFailed  = "Failed"
	QCStatusRework  = "Rework"
)

var qcStatuses = []string{QCStatusPending, QCStatusPassed, QCStatusFailed, QCStatusRework}

// Assembly is one fabricated unit. A fan-out order is stored as a parent row
// (IsParent, OriginalQuantity = N) plus N child rows numbered 1..N.
type Assembly struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"not null;column:name" json:"name"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index;column:project_id" json:"project_id"`

	Weight   decimal.Decimal `gorm:"type:numeric(12,3);not null;column:weight" json:"weight"`
	Quantity int             `gorm:"not null;column:quantity" json:"quantity"`
	Width    decimal.Decimal `gorm:"type:numeric(12,3);not null;column:width" json:"width"`
	Height   decimal.Decimal `gorm:"type:numeric(12,3);not null;column:height" json:"height"`
	Length   decimal.Decimal `gorm:"type:numeric(12,3);not null;column:length" json:"length"`

	PaintingSpec string     `gorm:"column:painting_spec" json:"painting_spec"`
	Status       string     `gorm:"not null;index;column:status" json:"status"`
	StartDate    *time.Time `gorm:"column:start_date" json:"start_date,omitempty"`
	EndDate      *time.Time `gorm:"column:end_date" json:"end_date,omitempty"`

	QualityControlStatus string `gorm:"column:quality_control_status" json:"quality_control_status"`
	QualityControlNotes  string `gorm:"column:quality_control_notes" json:"quality_control_notes"`

	ParentID         *uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_assembly_parent_child;column:parent_id" json:"parent_id,omitempty"`
	ChildNumber      *int       `gorm:"uniqueIndex:idx_assembly_parent_child;column:child_number" json:"child_number,omitempty"`
	IsParent         bool       `gorm:"not null;column:is_parent" json:"is_parent"`
	OriginalQuantity int        `gorm:"not null;column:original_quantity" json:"original_quantity"`

	DrawingKey string `gorm:"column:drawing_key" json:"drawing_key,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Assembly) TableName() string { return "assemblies" }

func (a *Assembly) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// IsChild reports whether the row was produced by a parent fan-out.
func (a *Assembly) IsChild() bool {
	return a != nil && a.ParentID != nil && *a.ParentID != uuid.Nil
}

// LineWeight is weight × quantity, the assembly's contribution to a batch total.
func (a *Assembly) LineWeight() decimal.Decimal {
	if a == nil {
		return decimal.Zero
	}
	return a.Weight.Mul(decimal.NewFromInt(int64(a.Quantity)))
}

// ChildName is the naming convention for fan-out children: "{parent}-{n}".
func ChildName(parentName string, n int) string {
	return fmt.Sprintf("%s-%d", strings.TrimSpace(parentName), n)
}

// NormalizeAssemblyStatus matches s case-insensitively against the known statuses.
// It returns "" when s is not a known status.
func NormalizeAssemblyStatus(s string) string {
	return matchFold(s, assemblyStatuses)
}

func NormalizeQCStatus(s string) string {
	return matchFold(s, qcStatuses)
}

func AssemblyStatuses() []string {
	return append([]string(nil), assemblyStatuses...)
}

func matchFold(s string, set []string) string {
	s = strings.TrimSpace(s)
	for _, v := range set {
		if strings.EqualFold(s, v) {
			return v
		}
	}
	return ""
}

// PropagatedFields lists the parent columns copied onto children on update.
// Name is not listed; children keep their numbered names.
var PropagatedFields = []string{
	"weight",
	"width",
	"height",
	"length",
	"painting_spec",
	"status",
	"start_date",
	"end_date",
	"quality_control_status",
	"quality_control_notes",
}
