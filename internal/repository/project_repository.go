package repository

import (
	"context"
	"errors"

	"github.com/consultra/engine/internal/models"
	appErr "github.com/consultra/engine/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProjectRepository interface {
	BaseRepository[models.Project]
	// GetWithModules loads a project joined with its work modules.
	GetWithModules(ctx context.Context, projectID uuid.UUID, dest *models.Project) error
	ListByClient(ctx context.Context, clientID uuid.UUID, limit int) ([]models.Project, error)
	// UpdateFields applies a column map to a single project row.
	UpdateFields(ctx context.Context, projectID uuid.UUID, fields map[string]any) error
}

type projectRepository struct {
	BaseRepository[models.Project]
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{BaseRepository: NewBaseRepository[models.Project](db), db: db}
}

func (r *projectRepository) GetWithModules(ctx context.Context, projectID uuid.UUID, dest *models.Project) error {
	err := r.db.WithContext(ctx).
		Preload("Modules", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(dest, "id = ?", projectID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErr.New(appErr.CodeNotFound, "project not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get project failed")
	}
	return nil
}

func (r *projectRepository) ListByClient(ctx context.Context, clientID uuid.UUID, limit int) ([]models.Project, error) {
	var out []models.Project
	q := r.db.WithContext(ctx).Where("client_id = ?", clientID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list projects by client failed")
	}
	return out, nil
}

func (r *projectRepository) UpdateFields(ctx context.Context, projectID uuid.UUID, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", projectID).Updates(fields)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "update project failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "project not found")
	}
	return nil
}
