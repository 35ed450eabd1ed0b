package quality

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type QCImage struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	AssemblyID  uuid.UUID  `gorm:"type:uuid;not null;index;column:assembly_id" json:"assembly_id"`
	StorageKey  string     `gorm:"not null;column:storage_key" json:"storage_key"`
	FileName    string     `gorm:"column:file_name" json:"file_name"`
	ContentType string     `gorm:"column:content_type" json:"content_type"`
	SizeBytes   int64      `gorm:"column:size_bytes" json:"size_bytes"`
	QCStatus    string     `gorm:"column:qc_status" json:"qc_status"`
	Notes       string     `gorm:"column:notes" json:"notes"`
	UploadedBy  *uuid.UUID `gorm:"type:uuid;column:uploaded_by" json:"uploaded_by,omitempty"`
	URL         string     `gorm:"-" json:"url,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (QCImage) TableName() string { return "qc_images" }

func (q *QCImage) BeforeCreate(*gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}
