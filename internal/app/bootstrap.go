package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reelhouse/backend/internal/auth"
	"github.com/reelhouse/backend/internal/config"
	"github.com/reelhouse/backend/internal/models"
	"github.com/reelhouse/backend/internal/repositories"
)

// adminDOB is recorded for the bootstrap account, which has no real birthday.
var adminDOB = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

type adminStore interface {
	FindByName(ctx context.Context, name string) (models.User, error)
	Create(ctx context.Context, user models.User) error
}

// EnsureAdmin creates the configured administrator when no user holds its
// name. Without a configured password the step is skipped.
func EnsureAdmin(ctx context.Context, users adminStore, cfg config.AdminConfig, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" || cfg.Password == "" {
		logger.Warn("admin bootstrap skipped: REELHOUSE_ADMIN_PASSWORD not set")
		return nil
	}

	existing, err := users.FindByName(ctx, name)
	switch {
	case err == nil:
		if existing.Role != auth.RoleAdmin {
			logger.Warn("bootstrap admin name is held by a regular user", "name", name)
		}
		return nil
	case !errors.Is(err, repositories.ErrNotFound):
		return fmt.Errorf("look up admin %q: %w", name, err)
	}

	hash, err := auth.HashPassword(cfg.Password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	dob := adminDOB
	err = users.Create(ctx, models.User{
		ID:             uuid.NewString(),
		Name:           name,
		PasswordHash:   hash,
		DOB:            &dob,
		ProfilePicture: models.DefaultAdminPicture,
		Role:           auth.RoleAdmin,
	})
	if errors.Is(err, repositories.ErrConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create admin %q: %w", name, err)
	}

	logger.Info("admin user created", "name", name)
	return nil
}
