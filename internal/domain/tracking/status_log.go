package tracking

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusSourceManual            = "manual"
	StatusSourceBatchLink         = "batch_link"
	StatusSourceBatchStatus       = "batch_status"
	StatusSourceParentPropagation = "parent_propagation"
	StatusSourceMobile            = "mobile"
)

// AssemblyStatusLog records one status transition of one assembly.
type AssemblyStatusLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AssemblyID uuid.UUID      `gorm:"type:uuid;not null;index;column:assembly_id" json:"assembly_id"`
	FromStatus string         `gorm:"column:from_status" json:"from_status"`
	ToStatus   string         `gorm:"not null;column:to_status" json:"to_status"`
	Source     string         `gorm:"not null;column:source" json:"source"`
	ChangedBy  *uuid.UUID     `gorm:"type:uuid;column:changed_by" json:"changed_by,omitempty"`
	Metadata   datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
}

func (AssemblyStatusLog) TableName() string { return "assembly_status_logs" }

func (l *AssemblyStatusLog) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
