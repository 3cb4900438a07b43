package repository

import (
	"context"
	"errors"

	"github.com/consultra/engine/internal/models"
	appErr "github.com/consultra/engine/pkg/errors"
	"gorm.io/gorm"
)

type ClientRepository interface {
	BaseRepository[models.Client]
	GetByEmail(ctx context.Context, email string, dest *models.Client) error
	// EnsureDefault returns the demo client, creating it on first use.
	EnsureDefault(ctx context.Context) (*models.Client, error)
}

type clientRepository struct {
	BaseRepository[models.Client]
	db *gorm.DB
}

func NewClientRepository(db *gorm.DB) ClientRepository {
	return &clientRepository{BaseRepository: NewBaseRepository[models.Client](db), db: db}
}

func (r *clientRepository) GetByEmail(ctx context.Context, email string, dest *models.Client) error {
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErr.New(appErr.CodeNotFound, "client not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get client failed")
	}
	return nil
}

func (r *clientRepository) EnsureDefault(ctx context.Context) (*models.Client, error) {
	c := models.Client{
		Name:         "Demo Client",
		Email:        models.DefaultClientEmail,
		Organization: "Consultra Demo",
	}
	if err := r.db.WithContext(ctx).Where("email = ?", models.DefaultClientEmail).FirstOrCreate(&c).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "ensure default client failed")
	}
	return &c, nil
}
