package repository

import (
	"context"

	"github.com/consultra/engine/internal/models"
	appErr "github.com/consultra/engine/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ModuleRepository interface {
	BaseRepository[models.WorkModule]
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.WorkModule, error)
	UpdateFields(ctx context.Context, moduleID uuid.UUID, fields map[string]any) error
}

type moduleRepository struct {
	BaseRepository[models.WorkModule]
	db *gorm.DB
}

func NewModuleRepository(db *gorm.DB) ModuleRepository {
	return &moduleRepository{BaseRepository: NewBaseRepository[models.WorkModule](db), db: db}
}

func (r *moduleRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.WorkModule, error) {
	var out []models.WorkModule
	if err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list work modules failed")
	}
	return out, nil
}

func (r *moduleRepository) UpdateFields(ctx context.Context, moduleID uuid.UUID, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.WorkModule{}).Where("id = ?", moduleID).Updates(fields)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "update work module failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "work module not found")
	}
	return nil
}
