package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends understood by storage.Open.
const (
	StorageDisk = "disk"
	StorageS3   = "s3"
)

// Config captures the runtime configuration for the Reelhouse backend service.
type Config struct {
	AppPort      int
	DatabaseURL  string
	LogLevel     string
	WebRoot      string
	WriteTimeout time.Duration

	Token       TokenConfig
	Admin       AdminConfig
	Storage     StorageConfig
	RateLimit   RateLimitConfig
	Reaper      ReaperConfig
	MaxUpload   int64
	StreamChunk time.Duration
}

// TokenConfig holds the signing secret and lifetime of session tokens.
type TokenConfig struct {
	Secret []byte
	TTL    time.Duration
}

// AdminConfig describes the bootstrap administrator created at startup.
type AdminConfig struct {
	Name     string
	Password string
}

// StorageConfig selects where media files live.
type StorageConfig struct {
	Backend     string
	MediaRoot   string
	ObjectStore ObjectStoreConfig
}

// ObjectStoreConfig points at an S3-compatible bucket.
type ObjectStoreConfig struct {
	Bucket   string
	Endpoint string
	Region   string
	Prefix   string
}

// RateLimitConfig throttles the credential endpoints per client address.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Burst    int

	// TrustedProxies are CIDRs or addresses allowed to report the client
	// address through X-Forwarded-For. Empty trusts no proxy.
	TrustedProxies []string
}

// ReaperConfig sizes the background file cleanup pool.
type ReaperConfig struct {
	Workers   int
	QueueSize int
}

// Load reads configuration from environment variables. Secrets have no defaults:
// the token secret and database URL must be supplied by the deployment.
func Load() (Config, error) {
	cfg := Config{
		AppPort:      getInt("REELHOUSE_PORT", 3000),
		DatabaseURL:  strings.TrimSpace(os.Getenv("REELHOUSE_DATABASE_URL")),
		LogLevel:     getString("REELHOUSE_LOG_LEVEL", "info"),
		WebRoot:      getString("REELHOUSE_WEB_ROOT", "public"),
		WriteTimeout: getDuration("REELHOUSE_WRITE_TIMEOUT", 60*time.Second),
		Token: TokenConfig{
			Secret: []byte(os.Getenv("REELHOUSE_TOKEN_SECRET")),
			TTL:    getDuration("REELHOUSE_TOKEN_TTL", time.Hour),
		},
		Admin: AdminConfig{
			Name:     getString("REELHOUSE_ADMIN_NAME", "admin"),
			Password: os.Getenv("REELHOUSE_ADMIN_PASSWORD"),
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(getString("REELHOUSE_STORAGE_BACKEND", StorageDisk)),
			MediaRoot: getString("REELHOUSE_MEDIA_ROOT", "public"),
			ObjectStore: ObjectStoreConfig{
				Bucket:   os.Getenv("REELHOUSE_S3_BUCKET"),
				Endpoint: os.Getenv("REELHOUSE_S3_ENDPOINT"),
				Region:   getString("REELHOUSE_S3_REGION", "us-east-1"),
				Prefix:   os.Getenv("REELHOUSE_S3_PREFIX"),
			},
		},
		RateLimit: RateLimitConfig{
			Requests:       getInt("REELHOUSE_AUTH_RATE_LIMIT", 10),
			Window:         getDuration("REELHOUSE_AUTH_RATE_WINDOW", time.Minute),
			Burst:          getInt("REELHOUSE_AUTH_RATE_BURST", 5),
			TrustedProxies: getList("REELHOUSE_TRUSTED_PROXIES"),
		},
		Reaper: ReaperConfig{
			Workers:   getInt("REELHOUSE_REAPER_WORKERS", 2),
			QueueSize: getInt("REELHOUSE_REAPER_QUEUE", 64),
		},
		MaxUpload:   getInt64("REELHOUSE_MAX_UPLOAD_BYTES", 4<<30),
		StreamChunk: getDuration("REELHOUSE_STREAM_CHUNK_TIMEOUT", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports missing secrets and inconsistent storage settings.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("REELHOUSE_DATABASE_URL is required"))
	}
	if len(c.Token.Secret) == 0 {
		errs = append(errs, errors.New("REELHOUSE_TOKEN_SECRET is required"))
	}
	if c.Token.TTL <= 0 {
		errs = append(errs, fmt.Errorf("token ttl must be positive, got %s", c.Token.TTL))
	}
	switch c.Storage.Backend {
	case StorageDisk:
		if strings.TrimSpace(c.Storage.MediaRoot) == "" {
			errs = append(errs, errors.New("REELHOUSE_MEDIA_ROOT is required for disk storage"))
		}
	case StorageS3:
		if strings.TrimSpace(c.Storage.ObjectStore.Bucket) == "" {
			errs = append(errs, errors.New("REELHOUSE_S3_BUCKET is required for s3 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	return errors.Join(errs...)
}

func getString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getList(key string) []string {
	var items []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil || i <= 0 {
		return fallback
	}
	return i
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
