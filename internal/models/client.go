package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client represents the party an advisory engagement is delivered to.
type Client struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name         string         `gorm:"not null" json:"name" validate:"required"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email" validate:"required,email"`
	Organization string         `json:"organization"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// DefaultClientEmail identifies the demo client that is lazily created and
// reused when a request carries no client id.
const DefaultClientEmail = "demo@consultra.dev"
