package handlers

import (
	"context"

	"github.com/reelhouse/backend/internal/auth"
	"github.com/reelhouse/backend/internal/cleanup"
	"github.com/reelhouse/backend/internal/models"
)

// UserStore captures the persistence operations required by the auth handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByName(ctx context.Context, name string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	Update(ctx context.Context, user models.User) error
}

// CatalogStore captures the persistence operations required by the catalog handlers.
type CatalogStore interface {
	Create(ctx context.Context, title models.Title) error
	List(ctx context.Context, search string) ([]models.Title, error)
	SeriesTitles(ctx context.Context) ([]string, error)
	FindSeries(ctx context.Context, seriesTitle string) (models.Title, error)
	Delete(ctx context.Context, id string) (models.Title, error)
	DeleteSeries(ctx context.Context, seriesTitle string) ([]models.Title, error)
}

// TokenService issues session tokens and verifies presented ones.
type TokenService interface {
	Issue(identity auth.Identity) (auth.Token, error)
	Verify(token string) (auth.Identity, error)
}

// FileReaper removes media files in the background.
type FileReaper interface {
	EnqueueAll(ctx context.Context, removals ...cleanup.Removal) error
}

// TextCleaner strips markup from user-supplied text.
type TextCleaner interface {
	Clean(text string) string
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
