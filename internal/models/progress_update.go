package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ProgressUpdate is one entry in the append-only progress ledger. Rows are
// write-once: never mutated or deleted, ordered by creation time.
type ProgressUpdate struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ProjectID          uuid.UUID      `gorm:"type:uuid;index;not null" json:"project_id" validate:"required"`
	Phase              string         `gorm:"type:varchar(64)" json:"phase"`
	Message            string         `gorm:"type:text" json:"message"`
	ProgressPercentage int            `json:"progress_percentage"`
	AgentName          string         `gorm:"type:varchar(128)" json:"agent_name"`
	AgentRole          string         `gorm:"type:varchar(128)" json:"agent_role"`
	Metadata           datatypes.JSON `gorm:"type:jsonb" json:"metadata"`
	CreatedAt          time.Time      `gorm:"index" json:"created_at"`
}

// TableName keeps the ledger under the name external tooling expects.
func (ProgressUpdate) TableName() string { return "project_progress" }
