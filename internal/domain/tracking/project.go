package tracking

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ProjectStatusActive   = "Active"
	ProjectStatusOnHold   = "On Hold"
	ProjectStatusFinished = "Finished"
)

type Project struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string    `gorm:"not null;column:name" json:"name"`
	Code       string    `gorm:"uniqueIndex;not null;column:code" json:"code"`
	ClientName string    `gorm:"column:client_name" json:"client_name"`
	Location   string    `gorm:"column:location" json:"location"`
	Status     string    `gorm:"not null;column:status" json:"status"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Project) TableName() string { return "projects" }

func (p *Project) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
