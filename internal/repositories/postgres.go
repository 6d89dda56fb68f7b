package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/reelhouse/backend/internal/db"
	"github.com/reelhouse/backend/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

const userColumns = `id, name, password_hash, dob, profile_picture, role, created_at, updated_at`

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (`+userColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, user.ID, user.Name, user.PasswordHash, user.DOB, user.ProfilePicture, user.Role, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if hasCode(err, codeUniqueViolation) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByName fetches a user by their unique name.
func (r *PostgresUserRepository) FindByName(ctx context.Context, name string) (models.User, error) {
	return r.findOne(ctx, `WHERE name = $1`, name)
}

// FindByID fetches a user by id. Malformed ids are reported as ErrNotFound.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, `WHERE id = $1`, id)
}

func (r *PostgresUserRepository) findOne(ctx context.Context, where string, arg any) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users `+where, arg)

	var user models.User
	if err := row.Scan(&user.ID, &user.Name, &user.PasswordHash, &user.DOB, &user.ProfilePicture, &user.Role, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || hasCode(err, codeInvalidTextRepr) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user: %w", err)
	}

	return user, nil
}

// Update modifies an existing user record.
func (r *PostgresUserRepository) Update(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET name = $2, password_hash = $3, dob = $4, profile_picture = $5, updated_at = $6
        WHERE id = $1
    `, user.ID, user.Name, user.PasswordHash, user.DOB, user.ProfilePicture, user.UpdatedAt)
	if err != nil {
		switch {
		case hasCode(err, codeUniqueViolation):
			return ErrConflict
		case hasCode(err, codeInvalidTextRepr):
			return ErrNotFound
		}
		return fmt.Errorf("update user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// PostgresCatalogRepository provides PostgreSQL-backed persistence for
// movies, series headers and episodes.
type PostgresCatalogRepository struct {
	pool db.Pool
}

// NewPostgresCatalogRepository constructs a catalog repository backed by PostgreSQL.
func NewPostgresCatalogRepository(pool db.Pool) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{pool: pool}
}

const titleColumns = `id, title, genre, age_rating, is_series, series_title, episode_number,
        video_file_name, series_logo_file_name, episode_logo_file_name, created_at`

// Create stores a new catalog record. A second header for the same series
// is reported as ErrConflict.
func (r *PostgresCatalogRepository) Create(ctx context.Context, title models.Title) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO titles (`+titleColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, title.ID, title.Title, title.Genre, title.AgeRating, title.IsSeries, title.SeriesTitle, title.EpisodeNumber,
		title.VideoFileName, title.SeriesLogoFileName, title.EpisodeLogoFileName, title.CreatedAt)
	if err != nil {
		if hasCode(err, codeUniqueViolation) {
			return ErrConflict
		}
		return fmt.Errorf("insert title: %w", err)
	}

	return nil
}

// List returns every title, optionally filtered by a case-insensitive
// substring of the title, genre or series title.
func (r *PostgresCatalogRepository) List(ctx context.Context, search string) ([]models.Title, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	query := `SELECT ` + titleColumns + ` FROM titles`
	var args []any
	if search = strings.TrimSpace(search); search != "" {
		// Backslash is the default LIKE escape character.
		query += ` WHERE title ILIKE $1 OR genre ILIKE $1 OR series_title ILIKE $1`
		args = append(args, "%"+escapeLike(search)+"%")
	}
	query += ` ORDER BY created_at, id`

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query titles: %w", err)
	}
	return collectTitles(rows)
}

// SeriesTitles returns the distinct names of series that have a header.
func (r *PostgresCatalogRepository) SeriesTitles(ctx context.Context) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT DISTINCT series_title
        FROM titles
        WHERE is_series AND series_title <> ''
        ORDER BY series_title
    `)
	if err != nil {
		return nil, fmt.Errorf("query series titles: %w", err)
	}

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan series titles: %w", err)
	}
	return names, nil
}

// FindSeries returns the header record of a series.
func (r *PostgresCatalogRepository) FindSeries(ctx context.Context, seriesTitle string) (models.Title, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Title{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+titleColumns+`
        FROM titles
        WHERE is_series AND episode_number IS NULL AND series_title = $1
        LIMIT 1
    `, seriesTitle)
	if err != nil {
		return models.Title{}, fmt.Errorf("query series header: %w", err)
	}

	titles, err := collectTitles(rows)
	if err != nil {
		return models.Title{}, err
	}
	if len(titles) == 0 {
		return models.Title{}, ErrNotFound
	}
	return titles[0], nil
}

// Delete removes one title and returns what was deleted so its files can be
// cleaned up.
func (r *PostgresCatalogRepository) Delete(ctx context.Context, id string) (models.Title, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Title{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `DELETE FROM titles WHERE id = $1 RETURNING `+titleColumns, id)
	if err != nil {
		if hasCode(err, codeInvalidTextRepr) {
			return models.Title{}, ErrNotFound
		}
		return models.Title{}, fmt.Errorf("delete title: %w", err)
	}

	titles, err := collectTitles(rows)
	if err != nil {
		if hasCode(err, codeInvalidTextRepr) {
			return models.Title{}, ErrNotFound
		}
		return models.Title{}, err
	}
	if len(titles) == 0 {
		return models.Title{}, ErrNotFound
	}
	return titles[0], nil
}

// DeleteSeries removes a series header and all of its episodes in a single
// statement and returns the deleted records.
func (r *PostgresCatalogRepository) DeleteSeries(ctx context.Context, seriesTitle string) ([]models.Title, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        DELETE FROM titles
        WHERE is_series AND series_title = $1
        RETURNING `+titleColumns, seriesTitle)
	if err != nil {
		return nil, fmt.Errorf("delete series: %w", err)
	}

	titles, err := collectTitles(rows)
	if err != nil {
		return nil, err
	}
	if len(titles) == 0 {
		return nil, ErrNotFound
	}
	return titles, nil
}

func collectTitles(rows pgx.Rows) ([]models.Title, error) {
	defer rows.Close()

	titles := []models.Title{}
	for rows.Next() {
		var t models.Title
		if err := rows.Scan(&t.ID, &t.Title, &t.Genre, &t.AgeRating, &t.IsSeries, &t.SeriesTitle, &t.EpisodeNumber,
			&t.VideoFileName, &t.SeriesLogoFileName, &t.EpisodeLogoFileName, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		titles = append(titles, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate titles: %w", err)
	}

	return titles, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ CatalogRepository = (*PostgresCatalogRepository)(nil)
