package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates runtime configuration for the benefits API.
type Config struct {
	Server     ServerConfig
	Postgres   PostgresConfig
	MinIO      MinIOConfig
	Auth       AuthConfig
	Metrics    MetricsConfig
	Upload     UploadConfig
	ChunkStore ChunkStoreConfig
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	AutoMigrate bool
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// MinIOConfig carries MinIO connection and bucket information.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
}

// AuthConfig groups authentication-related settings.
type AuthConfig struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	BcryptCost         int
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string
}

// UploadConfig bounds document uploads and drives the retry policy.
type UploadConfig struct {
	MaxFileSize      int64
	MaxFiles         int
	AllowedTypes     []string
	MaxAttempts      int
	BaseTimeout      time.Duration
	PerMBIncrement   time.Duration
	AttemptIncrement time.Duration
	AttemptCap       time.Duration
	BackoffBase      time.Duration
}

// ChunkStoreConfig selects and tunes the binary document store.
type ChunkStoreConfig struct {
	// Backend is one of "postgres", "minio" or "memory".
	Backend       string
	ChunkSize     int
	Compression   string
	OrphanTTL     time.Duration
	SweepInterval time.Duration
}

const (
	minChunkSize = 255 * 1024
	maxChunkSize = 1024 * 1024

	mib                 = 1024 * 1024
	minWriteTimeout     = 120 * time.Second
	uploadResponseSlack = 30 * time.Second
)

// BatchBudget is the longest a batch of MaxFiles maximum-size files can spend
// in upload attempts and the pauses between them.
func (u UploadConfig) BatchBudget() time.Duration {
	var perFile time.Duration
	for attempt := 1; attempt <= u.MaxAttempts; attempt++ {
		bonus := min(time.Duration(attempt)*u.AttemptIncrement, u.AttemptCap)
		perFile += u.BaseTimeout + time.Duration(u.MaxFileSize/mib)*u.PerMBIncrement + bonus
		if attempt < u.MaxAttempts {
			perFile += time.Duration(attempt) * u.BackoffBase
		}
	}
	return time.Duration(u.MaxFiles) * perFile
}

// defaultWriteTimeout leaves room for a worst-case upload batch to finish and
// still deliver its response.
func defaultWriteTimeout(upload UploadConfig) time.Duration {
	return max(minWriteTimeout, upload.BatchBudget()+uploadResponseSlack)
}

// Load reads configuration values from environment variables, applying defaults.
func Load() (Config, error) {
	upload := loadUploadConfig()
	cfg := Config{
		Server: ServerConfig{
			Host:         getString("BENEFITS_API_HOST", "0.0.0.0"),
			Port:         getInt("BENEFITS_API_PORT", 8080),
			ReadTimeout:  getDuration("BENEFITS_API_READ_TIMEOUT", 60*time.Second),
			WriteTimeout: getDuration("BENEFITS_API_WRITE_TIMEOUT", defaultWriteTimeout(upload)),
			IdleTimeout:  getDuration("BENEFITS_API_IDLE_TIMEOUT", 60*time.Second),
		},
		Postgres: PostgresConfig{
			Host:        getString("POSTGRES_HOST", "localhost"),
			Port:        getInt("POSTGRES_PORT", 5432),
			User:        getString("POSTGRES_USER", "benefits_app"),
			Password:    getString("POSTGRES_PASSWORD", "change-me"),
			Database:    getString("POSTGRES_DB", "benefits"),
			SSLMode:     strings.ToLower(getString("POSTGRES_SSL_MODE", "disable")),
			AutoMigrate: getBool("POSTGRES_AUTO_MIGRATE", true),
		},
		MinIO: MinIOConfig{
			Endpoint:        getString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getString("MINIO_ROOT_USER", "benefits"),
			SecretAccessKey: getString("MINIO_ROOT_PASSWORD", "change-me-strong-password"),
			Bucket:          getString("MINIO_BUCKET", "benefit-documents"),
			UseSSL:          getBool("MINIO_USE_SSL", false),
			Region:          getString("MINIO_REGION", ""),
		},
		Auth: loadAuthConfig(),
		Metrics: MetricsConfig{
			PrometheusPath: getString("BENEFITS_METRICS_PATH", "/metrics"),
		},
		Upload:     upload,
		ChunkStore: loadChunkStoreConfig(),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.ChunkStore.Backend {
	case "postgres", "minio", "memory":
	default:
		return fmt.Errorf("unsupported chunk store backend %q", c.ChunkStore.Backend)
	}
	switch c.ChunkStore.Compression {
	case "none", "zstd":
	default:
		return fmt.Errorf("unsupported chunk compression %q", c.ChunkStore.Compression)
	}
	if c.Upload.MaxAttempts < 1 {
		return fmt.Errorf("upload max attempts must be positive, got %d", c.Upload.MaxAttempts)
	}
	if c.Upload.MaxFiles < 1 {
		return fmt.Errorf("upload max files must be positive, got %d", c.Upload.MaxFiles)
	}
	if len(c.Upload.AllowedTypes) == 0 {
		return fmt.Errorf("at least one allowed upload content type is required")
	}
	return nil
}

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.ToLower(strings.TrimSpace(val))
		switch val {
		case "1", "true", "t", "yes", "y":
			return true
		case "0", "false", "f", "no", "n":
			return false
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// getList splits a comma separated variable, dropping blanks.
func getList(key string, fallback []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func loadAuthConfig() AuthConfig {
	cost := getInt("BENEFITS_AUTH_BCRYPT_COST", 12)
	if cost < 4 || cost > 31 {
		cost = 12
	}

	return AuthConfig{
		AccessTokenSecret:  getString("BENEFITS_JWT_SECRET", "change-me-to-a-32-byte-secret"),
		RefreshTokenSecret: getString("BENEFITS_JWT_REFRESH_SECRET", "change-me-to-a-64-byte-secret"),
		AccessTokenTTL:     getDuration("BENEFITS_AUTH_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:    getDuration("BENEFITS_AUTH_REFRESH_TOKEN_TTL", 720*time.Hour),
		BcryptCost:         cost,
	}
}

func loadUploadConfig() UploadConfig {
	return UploadConfig{
		MaxFileSize:      getInt64("UPLOAD_MAX_FILE_SIZE", 10*1024*1024),
		MaxFiles:         getInt("UPLOAD_MAX_FILES", 5),
		AllowedTypes:     getList("UPLOAD_ALLOWED_TYPES", []string{"image/jpeg", "image/png", "application/pdf"}),
		MaxAttempts:      getInt("UPLOAD_MAX_ATTEMPTS", 3),
		BaseTimeout:      getDuration("UPLOAD_BASE_TIMEOUT", 7500*time.Millisecond),
		PerMBIncrement:   getDuration("UPLOAD_PER_MB_TIMEOUT", time.Second),
		AttemptIncrement: getDuration("UPLOAD_ATTEMPT_TIMEOUT_INCREMENT", 300*time.Millisecond),
		AttemptCap:       getDuration("UPLOAD_ATTEMPT_TIMEOUT_CAP", 3*time.Second),
		BackoffBase:      getDuration("UPLOAD_BACKOFF_BASE", 5*time.Second),
	}
}

func loadChunkStoreConfig() ChunkStoreConfig {
	size := getInt("CHUNKSTORE_CHUNK_SIZE", minChunkSize)
	if size < minChunkSize {
		size = minChunkSize
	}
	if size > maxChunkSize {
		size = maxChunkSize
	}

	return ChunkStoreConfig{
		Backend:       strings.ToLower(getString("CHUNKSTORE_BACKEND", "postgres")),
		ChunkSize:     size,
		Compression:   strings.ToLower(getString("CHUNKSTORE_COMPRESSION", "zstd")),
		OrphanTTL:     getDuration("CHUNKSTORE_ORPHAN_TTL", time.Hour),
		SweepInterval: getDuration("CHUNKSTORE_SWEEP_INTERVAL", 15*time.Minute),
	}
}
