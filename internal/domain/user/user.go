package user

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleWorker  = "worker"
)

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null;column:email" json:"email"`
	Password  string    `gorm:"not null;column:password" json:"-"`
	FirstName string    `gorm:"not null;column:first_name" json:"first_name"`
	LastName  string    `gorm:"not null;column:last_name" json:"last_name"`
	Role      string    `gorm:"not null;column:role" json:"role"`
	IsActive  bool      `gorm:"not null;column:is_active" json:"is_active"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

func NormalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleAdmin:
		return RoleAdmin
	case RoleManager:
		return RoleManager
	case RoleWorker, "":
		return RoleWorker
	default:
		return ""
	}
}

// NFCCard binds a physical card UID to an operator.
type NFCCard struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CardID     string     `gorm:"uniqueIndex;not null;column:card_id" json:"card_id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index;column:user_id" json:"user_id"`
	Label      string     `gorm:"column:label" json:"label"`
	IsActive   bool       `gorm:"not null;column:is_active" json:"is_active"`
	LastUsedAt *time.Time `gorm:"column:last_used_at" json:"last_used_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (NFCCard) TableName() string { return "nfc_cards" }

func (c *NFCCard) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// NormalizeCardID uppercases and strips separators so "04:a2:19" and "04A219" match.
func NormalizeCardID(raw string) string {
	r := strings.NewReplacer(":", "", "-", "", " ", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(raw)))
}
