package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/reelhouse/backend/internal/api"
	"github.com/reelhouse/backend/internal/auth"
	"github.com/reelhouse/backend/internal/cleanup"
	"github.com/reelhouse/backend/internal/config"
	"github.com/reelhouse/backend/internal/models"
	"github.com/reelhouse/backend/internal/repositories"
	"github.com/reelhouse/backend/internal/security"
	"github.com/reelhouse/backend/internal/storage"
)

const testSecret = "handler-test-secret"

type inMemoryUserStore struct {
	mu        sync.Mutex
	users     map[string]models.User
	updateErr error
}

func newInMemoryUserStore() *inMemoryUserStore {
	return &inMemoryUserStore{users: make(map[string]models.User)}
}

func (s *inMemoryUserStore) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Name == user.Name {
			return repositories.ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *inMemoryUserStore) FindByName(_ context.Context, name string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Name == name {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *inMemoryUserStore) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (s *inMemoryUserStore) Update(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	if _, ok := s.users[user.ID]; !ok {
		return repositories.ErrNotFound
	}
	s.users[user.ID] = user
	return nil
}

type inMemoryCatalog struct {
	mu        sync.Mutex
	titles    []models.Title
	createErr error
	deleteErr error
}

func (c *inMemoryCatalog) Create(_ context.Context, title models.Title) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return c.createErr
	}
	c.titles = append(c.titles, title)
	return nil
}

func (c *inMemoryCatalog) List(_ context.Context, search string) ([]models.Title, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	search = strings.ToLower(search)
	var out []models.Title
	for _, t := range c.titles {
		if search == "" ||
			strings.Contains(strings.ToLower(t.Title), search) ||
			strings.Contains(strings.ToLower(t.Genre), search) ||
			strings.Contains(strings.ToLower(t.SeriesTitle), search) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *inMemoryCatalog) SeriesTitles(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[string]bool)
	var names []string
	for _, t := range c.titles {
		if t.IsSeries && !seen[t.SeriesTitle] {
			seen[t.SeriesTitle] = true
			names = append(names, t.SeriesTitle)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (c *inMemoryCatalog) FindSeries(_ context.Context, seriesTitle string) (models.Title, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.titles {
		if t.IsSeriesHeader() && t.SeriesTitle == seriesTitle {
			return t, nil
		}
	}
	return models.Title{}, repositories.ErrNotFound
}

func (c *inMemoryCatalog) Delete(_ context.Context, id string) (models.Title, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return models.Title{}, c.deleteErr
	}
	for i, t := range c.titles {
		if t.ID == id {
			c.titles = append(c.titles[:i], c.titles[i+1:]...)
			return t, nil
		}
	}
	return models.Title{}, repositories.ErrNotFound
}

func (c *inMemoryCatalog) DeleteSeries(_ context.Context, seriesTitle string) ([]models.Title, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return nil, c.deleteErr
	}
	var kept, deleted []models.Title
	for _, t := range c.titles {
		if t.IsSeries && t.SeriesTitle == seriesTitle {
			deleted = append(deleted, t)
			continue
		}
		kept = append(kept, t)
	}
	if len(deleted) == 0 {
		return nil, repositories.ErrNotFound
	}
	c.titles = kept
	return deleted, nil
}

type recordingReaper struct {
	mu       sync.Mutex
	removals []cleanup.Removal
}

func (r *recordingReaper) EnqueueAll(_ context.Context, removals ...cleanup.Removal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removals = append(r.removals, removals...)
	return nil
}

func (r *recordingReaper) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.removals))
	for _, removal := range r.removals {
		names = append(names, removal.Name)
	}
	sort.Strings(names)
	return names
}

type testEnv struct {
	users   *inMemoryUserStore
	catalog *inMemoryCatalog
	reaper  *recordingReaper
	issuer  *auth.Issuer
	media   storage.Buckets
	router  http.Handler
	clock   time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	issuer, err := auth.NewIssuer([]byte(testSecret), time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}

	buckets, err := storage.Open(context.Background(), config.StorageConfig{Backend: config.StorageDisk, MediaRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}

	env := &testEnv{
		users:   newInMemoryUserStore(),
		catalog: &inMemoryCatalog{},
		reaper:  &recordingReaper{},
		issuer:  issuer,
		media:   buckets,
		clock:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	env.router = NewRouter(Dependencies{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Users:     env.users,
		Catalog:   env.catalog,
		Tokens:    issuer,
		Media:     buckets,
		Reaper:    env.reaper,
		Sanitizer: security.NewTextSanitizer(),
		MaxUpload: 1 << 20,
		NowFunc:   func() time.Time { return env.clock },
	})
	return env
}

func (e *testEnv) addUser(t *testing.T, name, password, role string) models.User {
	t.Helper()
	hashed, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := models.User{
		ID:             name + "-id",
		Name:           name,
		PasswordHash:   hashed,
		DOB:            datePtr(1990, time.January, 1),
		ProfilePicture: models.DefaultUserPicture,
		Role:           role,
	}
	if err := e.users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func datePtr(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

func (e *testEnv) tokenFor(t *testing.T, user models.User) string {
	t.Helper()
	token, err := e.issuer.Issue(auth.Identity{ID: user.ID, Name: user.Name, Role: user.Role, ProfilePicture: user.ProfilePicture})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token.Value
}

func (e *testEnv) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) exists(t *testing.T, store storage.Store, name string) bool {
	t.Helper()
	_, err := store.Stat(context.Background(), name)
	return err == nil
}

type formFile struct {
	field    string
	filename string
	content  string
}

func multipartRequest(t *testing.T, method, target string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := io.WriteString(part, f.content); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return out
}

func expectFailure(t *testing.T, rec *httptest.ResponseRecorder, status int, kind api.Kind) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d got %d (body %q)", status, rec.Code, rec.Body.String())
	}
	failure := decodeBody[api.Failure](t, rec)
	if failure.Success || failure.Kind != kind {
		t.Fatalf("expected failure kind %q, got %+v", kind, failure)
	}
}
