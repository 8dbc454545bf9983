package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultStorageRoot    = "storage/media"
	DefaultTTLDays        = 15
	DefaultReaperInterval = 60 * time.Minute
	DefaultReaperBatch    = 200
	DefaultRawMaxBytes    = 25 << 20

	defaultPort          = "8080"
	defaultDatabaseURL   = "file:mediastore.db?cache=shared"
	defaultJWTSecret     = "change-me-jwt-secret"
	defaultJWTAccessTTL  = "15m"
	defaultPublicBaseURL = "/api/v1"
	defaultS3PresignTTL  = "15m"
)

// Config is resolved once at startup and passed explicitly to every component.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	JWTSecret          string
	JWTAccessTTL       time.Duration
	CORSAllowedOrigins []string

	Media MediaConfig
	Redis RedisConfig
	S3    S3Config
}

type MediaConfig struct {
	StorageRoot    string
	TTLDays        int
	ReaperInterval time.Duration
	ReaperBatch    int
	// RawMaxBytes bounds raw uploads. Inline bodies carry base64 (about 4/3 larger)
	// plus JSON framing, so InlineMaxBytes is derived from it.
	RawMaxBytes    int64
	InlineMaxBytes int64
	PublicBaseURL  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type S3Config struct {
	Region     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	PresignTTL time.Duration
}

func (c RedisConfig) Enabled() bool { return c.Addr != "" }

func (c S3Config) Enabled() bool { return c.Region != "" }

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)
	cfg.Port = strings.TrimSpace(getEnv("PORT", defaultPort))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))
	cfg.CORSAllowedOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	var err error
	cfg.JWTAccessTTL, err = parseDurationEnv("JWT_ACCESS_TTL", defaultJWTAccessTTL)
	if err != nil {
		return nil, err
	}

	rawMax := int64(getEnvAsInt("MEDIA_RAW_MAX_BYTES", DefaultRawMaxBytes))
	if rawMax <= 0 {
		rawMax = DefaultRawMaxBytes
	}
	cfg.Media = MediaConfig{
		StorageRoot:    strings.TrimSpace(getEnv("MEDIA_STORAGE_ROOT", DefaultStorageRoot)),
		TTLDays:        NormalizeTTLDays(getEnvAsInt("MEDIA_TTL_DAYS", DefaultTTLDays)),
		ReaperInterval: NormalizeReaperInterval(time.Duration(getEnvAsInt("MEDIA_REAPER_INTERVAL_MINUTES", 60)) * time.Minute),
		ReaperBatch:    getEnvAsInt("MEDIA_REAPER_BATCH", DefaultReaperBatch),
		RawMaxBytes:    rawMax,
		InlineMaxBytes: int64(getEnvAsInt("MEDIA_INLINE_MAX_BYTES", int(InlineCeiling(rawMax)))),
		PublicBaseURL:  strings.TrimRight(strings.TrimSpace(getEnv("PUBLIC_BASE_URL", defaultPublicBaseURL)), "/"),
	}
	if cfg.Media.ReaperBatch <= 0 {
		cfg.Media.ReaperBatch = DefaultReaperBatch
	}

	cfg.Redis = RedisConfig{
		Addr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvAsInt("REDIS_DB", 0),
	}

	cfg.S3 = S3Config{
		Region:    strings.TrimSpace(os.Getenv("S3_REGION")),
		AccessKey: strings.TrimSpace(os.Getenv("S3_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("S3_SECRET_KEY")),
		Endpoint:  strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
	}
	cfg.S3.PresignTTL, err = parseDurationEnv("S3_PRESIGN_TTL", defaultS3PresignTTL)
	if err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NormalizeTTLDays replaces any non-positive value with the default.
func NormalizeTTLDays(days int) int {
	if days <= 0 {
		return DefaultTTLDays
	}
	return days
}

// NormalizeReaperInterval replaces any non-positive value with the default.
func NormalizeReaperInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultReaperInterval
	}
	return d
}

// InlineCeiling is the JSON body ceiling matching a raw byte ceiling once base64-encoded.
func InlineCeiling(rawMax int64) int64 {
	return rawMax*4/3 + 64<<10
}

func validateConfig(cfg *Config) error {
	if cfg.JWTAccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be > 0")
	}
	if cfg.Media.StorageRoot == "" {
		return fmt.Errorf("MEDIA_STORAGE_ROOT must not be empty")
	}
	if cfg.Media.InlineMaxBytes <= 0 {
		return fmt.Errorf("MEDIA_INLINE_MAX_BYTES must be > 0")
	}
	if cfg.S3.Enabled() && cfg.S3.PresignTTL <= 0 {
		return fmt.Errorf("S3_PRESIGN_TTL must be > 0")
	}
	if IsProdLike(cfg.AppEnv) {
		if cfg.JWTSecret == "" || cfg.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
	}
	return nil
}

func IsProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(name string, fallback int) int {
	if value, err := strconv.Atoi(strings.TrimSpace(getEnv(name, ""))); err == nil {
		return value
	}
	return fallback
}
