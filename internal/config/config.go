package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

type Config struct {
	Port        int
	Env         string
	Debug       bool
	DatabaseURL string
	RedisAddr   string
	JWTSecret   string
	DataDir     string

	// StoreDriver selects the catalog store: "postgres" or "memory".
	StoreDriver string
	// FileStore selects poster storage: "local" or "s3".
	FileStore string
	S3        S3Config

	TMDBAPIKey     string
	TMDBBaseURL    string
	TMDBRatePerSec float64

	IngestSchedule        string
	IngestPages           int
	IngestOnBoot          bool
	WorkerConcurrency     int
	IngestMaxFailureRatio float64
	IngestMinSamples      int
	// IngestWebhookURL receives a message when a run finishes; empty disables it.
	IngestWebhookURL      string
	IngestWebhookChannel  string
	ShutdownTimeout       time.Duration
}

type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; variables already set win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:        envInt("PORT", 8080),
		Env:         env("ENV", "production"),
		Debug:       envBool("DEBUG", false),
		DatabaseURL: env("DATABASE_URL", "postgres://cinehub:cinehub@db:5432/cinehub?sslmode=disable"),
		RedisAddr:   env("REDIS_ADDR", "redis:6379"),
		JWTSecret:   env("JWT_SECRET", "change-me-in-production"),
		DataDir:     env("DATA_DIR", "/data"),

		StoreDriver: env("STORE_DRIVER", "postgres"),
		FileStore:   env("FILE_STORE", "local"),
		S3: S3Config{
			Endpoint:  env("S3_ENDPOINT", ""),
			Region:    env("S3_REGION", "us-east-1"),
			Bucket:    env("S3_BUCKET", "cinehub"),
			AccessKey: env("S3_ACCESS_KEY", ""),
			SecretKey: env("S3_SECRET_KEY", ""),
		},

		TMDBAPIKey:     env("TMDB_API_KEY", ""),
		TMDBBaseURL:    env("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		TMDBRatePerSec: envFloat("TMDB_RATE_PER_SEC", 4),

		IngestSchedule:        env("INGEST_SCHEDULE", "0 3 * * *"),
		IngestPages:           envInt("INGEST_PAGES", 100),
		IngestOnBoot:          envBool("INGEST_ON_BOOT", false),
		WorkerConcurrency:     envInt("WORKER_CONCURRENCY", 2),
		IngestMaxFailureRatio: envFloat("INGEST_MAX_FAILURE_RATIO", 0.75),
		IngestMinSamples:      envInt("INGEST_MIN_SAMPLES", 4),
		IngestWebhookURL:      env("INGEST_WEBHOOK_URL", ""),
		IngestWebhookChannel:  env("INGEST_WEBHOOK_CHANNEL", "generic"),
		ShutdownTimeout:       envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) S3Enabled() bool {
	return c.FileStore == "s3" && c.S3.Bucket != ""
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := cast.ToIntE(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := cast.ToFloat64E(v); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := cast.ToBoolE(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := cast.ToDurationE(v); err == nil {
			return d
		}
	}
	return fallback
}
