package repositories

import (
	"context"

	"github.com/reelhouse/backend/internal/models"
)

// UserRepository defines the data access contract for users.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByName(ctx context.Context, name string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	Update(ctx context.Context, user models.User) error
}

// CatalogRepository defines the data access contract for catalog titles.
type CatalogRepository interface {
	Create(ctx context.Context, title models.Title) error
	List(ctx context.Context, search string) ([]models.Title, error)
	SeriesTitles(ctx context.Context) ([]string, error)
	FindSeries(ctx context.Context, seriesTitle string) (models.Title, error)
	Delete(ctx context.Context, id string) (models.Title, error)
	DeleteSeries(ctx context.Context, seriesTitle string) ([]models.Title, error)
}
