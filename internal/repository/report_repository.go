package repository

import (
	"context"
	"errors"

	"github.com/consultra/engine/internal/models"
	appErr "github.com/consultra/engine/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReportRepository interface {
	BaseRepository[models.ProjectReport]
	// GetLatestByProject returns the current report for a project.
	GetLatestByProject(ctx context.Context, projectID uuid.UUID, dest *models.ProjectReport) error
}

type reportRepository struct {
	BaseRepository[models.ProjectReport]
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{BaseRepository: NewBaseRepository[models.ProjectReport](db), db: db}
}

func (r *reportRepository) GetLatestByProject(ctx context.Context, projectID uuid.UUID, dest *models.ProjectReport) error {
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("created_at DESC").First(dest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErr.New(appErr.CodeNotFound, "report not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get latest report failed")
	}
	return nil
}
