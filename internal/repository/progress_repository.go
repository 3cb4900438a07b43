package repository

import (
	"context"

	"github.com/consultra/engine/internal/models"
	appErr "github.com/consultra/engine/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProgressRepository is append-only: no update or delete surface exists.
type ProgressRepository interface {
	Append(ctx context.Context, update *models.ProgressUpdate) error
	// ListByProject returns up to limit entries, most recent first.
	ListByProject(ctx context.Context, projectID uuid.UUID, limit int) ([]models.ProgressUpdate, error)
}

type progressRepository struct {
	db *gorm.DB
}

func NewProgressRepository(db *gorm.DB) ProgressRepository {
	return &progressRepository{db: db}
}

func (r *progressRepository) Append(ctx context.Context, update *models.ProgressUpdate) error {
	if err := r.db.WithContext(ctx).Create(update).Error; err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "append progress update failed")
	}
	return nil
}

func (r *progressRepository) ListByProject(ctx context.Context, projectID uuid.UUID, limit int) ([]models.ProgressUpdate, error) {
	var out []models.ProgressUpdate
	q := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list progress updates failed")
	}
	return out, nil
}
