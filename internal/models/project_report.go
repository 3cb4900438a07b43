package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ProjectReport is a compiled deliverable for a project. The most recent row
// is the current report; older rows are retained for audit.
type ProjectReport struct {
	ID                    uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ProjectID             uuid.UUID      `gorm:"type:uuid;index;not null" json:"project_id" validate:"required"`
	ExecutiveSummary      string         `gorm:"type:text" json:"executive_summary"`
	KeyFindings           datatypes.JSON `gorm:"type:jsonb" json:"key_findings"`
	Recommendations       datatypes.JSON `gorm:"type:jsonb" json:"recommendations"`
	ImplementationRoadmap datatypes.JSON `gorm:"type:jsonb" json:"implementation_roadmap"`
	RiskMitigation        datatypes.JSON `gorm:"type:jsonb" json:"risk_mitigation"`
	SuccessMetrics        datatypes.JSON `gorm:"type:jsonb" json:"success_metrics"`
	QualityScore          float64        `json:"quality_score"`
	Deliverables          datatypes.JSON `gorm:"type:jsonb" json:"deliverables"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}
