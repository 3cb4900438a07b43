package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Work-module statuses.
const (
	ModulePending    = "pending"
	ModuleInProgress = "in_progress"
	ModuleCompleted  = "completed"
	ModuleFailed     = "failed"
)

// WorkModule is a unit of advisory work inside a project, with a specialist
// type, an hour estimate, and optional dependencies on sibling modules.
// Modules are created atomically with their project and never independently.
type WorkModule struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ProjectID      uuid.UUID      `gorm:"type:uuid;index;not null" json:"project_id" validate:"required"`
	ModuleType     string         `gorm:"type:varchar(64);not null" json:"module_type"`
	Title          string         `gorm:"not null" json:"title"`
	Description    string         `gorm:"type:text" json:"description"`
	SpecialistType string         `gorm:"type:varchar(64)" json:"specialist_type"`
	EstimatedHours int            `gorm:"not null;default:2" json:"estimated_hours" validate:"gte=1"`
	ActualHours    float64        `json:"actual_hours"`
	Status         string         `gorm:"type:varchar(32);index;not null;default:pending" json:"status"`
	QualityScore   float64        `json:"quality_score"`
	Deliverables   datatypes.JSON `gorm:"type:jsonb" json:"deliverables"`
	Dependencies   datatypes.JSON `gorm:"type:jsonb" json:"dependencies"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}
