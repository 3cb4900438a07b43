package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Project statuses. Completed and cancelled are terminal.
const (
	StatusInitiated  = "initiated"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// TerminalStatus reports whether no further status transition is permitted.
func TerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// Project is one advisory engagement: the client request, the derived
// requirements, and lifecycle bookkeeping. Status is mutated only through the
// store's whitelisted update path.
type Project struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ClientID             uuid.UUID      `gorm:"type:uuid;index;not null" json:"client_id" validate:"required"`
	Title                string         `gorm:"not null" json:"title" validate:"required"`
	Query                string         `gorm:"type:text" json:"query"`
	Context              string         `gorm:"type:text" json:"context"`
	Timeframe            string         `gorm:"type:varchar(128)" json:"timeframe"`
	Budget               string         `gorm:"type:varchar(128)" json:"budget"`
	Urgency              string         `gorm:"type:varchar(32)" json:"urgency"`
	ExpectedDeliverables datatypes.JSON `gorm:"type:jsonb" json:"expected_deliverables"`
	Requirements         datatypes.JSON `gorm:"type:jsonb" json:"requirements"`
	FeasibilityAnalysis  datatypes.JSON `gorm:"type:jsonb" json:"feasibility_analysis"`
	Status               string         `gorm:"type:varchar(32);index;not null;default:initiated" json:"status" validate:"required,oneof=initiated in_progress completed cancelled"`
	QualityScore         float64        `json:"quality_score"`
	ExecutionStart       *time.Time     `json:"execution_start"`
	ActualCompletion     *time.Time     `json:"actual_completion"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`

	Modules []WorkModule `gorm:"foreignKey:ProjectID" json:"modules,omitempty"`
}
