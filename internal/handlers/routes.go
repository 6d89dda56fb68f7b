package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/reelhouse/backend/internal/auth"
	"github.com/reelhouse/backend/internal/media"
	"github.com/reelhouse/backend/internal/metrics"
	"github.com/reelhouse/backend/internal/middleware"
	"github.com/reelhouse/backend/internal/storage"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Logger      *slog.Logger
	DB          Pinger
	Users       UserStore
	Catalog     CatalogStore
	Tokens      TokenService
	Media       storage.Buckets
	Reaper      FileReaper
	Sanitizer   TextCleaner
	AuthLimiter middleware.RateLimiter
	Metrics     *metrics.Collector
	Gatherer    prometheus.Gatherer

	// TrustedProxies may set X-Forwarded-For for rate limiting.
	TrustedProxies middleware.TrustedProxies

	WebRoot      string
	MaxUpload    int64
	ChunkTimeout time.Duration
	NowFunc      func() time.Time
}

// NewRouter wires every route onto a chi router.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		requestObserver middleware.RequestObserver
		authRecorder    middleware.AuthRecorder
		streamObserver  media.Observer
	)
	if deps.Metrics != nil {
		requestObserver = deps.Metrics
		authRecorder = deps.Metrics
		streamObserver = deps.Metrics
	}

	uploads := &Uploader{
		MaxBytes: deps.MaxUpload,
		Names:    NewFileNamer(deps.NowFunc),
		Reaper:   deps.Reaper,
	}

	health := HealthHandler{DB: deps.DB}
	authH := AuthHandler{
		Users:     deps.Users,
		Tokens:    deps.Tokens,
		Pictures:  deps.Media.ProfilePictures,
		Uploads:   uploads,
		Sanitizer: deps.Sanitizer,
		Recorder:  authRecorder,
		NowFunc:   deps.NowFunc,
	}
	catalog := CatalogHandler{
		Catalog:   deps.Catalog,
		Media:     deps.Media,
		Uploads:   uploads,
		Sanitizer: deps.Sanitizer,
		NowFunc:   deps.NowFunc,
	}
	mediaH := MediaHandler{
		Videos: &media.Server{
			Store:           deps.Media.Videos,
			ContentType:     media.VideoContentType,
			NotFoundMessage: "video not found",
			ChunkTimeout:    deps.ChunkTimeout,
			Observer:        streamObserver,
		},
		Logos: &media.Server{
			Store:           deps.Media.Logos,
			NotFoundMessage: "logo not found",
			ChunkTimeout:    deps.ChunkTimeout,
		},
		ProfilePictures: &media.Server{
			Store:           deps.Media.ProfilePictures,
			NotFoundMessage: "profile picture not found",
			ChunkTimeout:    deps.ChunkTimeout,
		},
	}

	authenticate := middleware.Authenticate(deps.Tokens, authRecorder)
	requireAdmin := middleware.RequireRole(auth.RoleAdmin, authRecorder)

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(logger, requestObserver))

	r.Get("/healthz", health.Handle)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.With(middleware.RateLimit(deps.AuthLimiter, deps.TrustedProxies, "register")).Post("/register", authH.Register)
	r.With(middleware.RateLimit(deps.AuthLimiter, deps.TrustedProxies, "login")).Post("/login", authH.Login)
	r.With(authenticate).Put("/update-profile", authH.UpdateProfile)

	r.Get("/movies", catalog.List)
	r.Get("/series-list", catalog.SeriesList)

	r.Group(func(r chi.Router) {
		r.Use(authenticate, requireAdmin)
		r.Post("/upload-series", catalog.UploadSeries)
		r.Post("/upload-episode", catalog.UploadEpisode)
		r.Post("/upload-movie", catalog.UploadMovie)
		r.Delete("/delete/{id}", catalog.DeleteTitle)
		r.Delete("/delete-series/{seriesTitle}", catalog.DeleteSeries)
	})

	for pattern, handler := range map[string]http.HandlerFunc{
		"/videos/{filename}":       mediaH.Video,
		"/logos/{filename}":        mediaH.Logo,
		"/profile-pics/{filename}": mediaH.ProfilePicture,
	} {
		r.Get(pattern, handler)
		r.Head(pattern, handler)
	}

	if deps.WebRoot != "" {
		r.Handle("/*", StaticHandler(deps.WebRoot))
	}

	return r
}
