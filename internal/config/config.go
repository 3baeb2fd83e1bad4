package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Embedding EmbeddingConfig
	Matcher   MatcherConfig
	Upload    UploadConfig
	Log       LogConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL (primary backend)
	MariaDBDSN   string // MariaDB DSN, used when URL is empty (e.g., rollcall:rollcall@tcp(mariadb:3306)/rollcall)
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type RedisConfig struct {
	URL     string        // redis://host:port/db or host:port; empty disables the distributed merge lock
	LockTTL time.Duration // expiry of a held merge lock
}

type EmbeddingConfig struct {
	URL string // face embedding service, defaults to http://localhost:8000
}

// MatcherConfig tunes the roster matcher.
type MatcherConfig struct {
	SimilarityThreshold float64       `yaml:"similarity_threshold"` // 0-100, a comparison at or above it is a match
	MemberTimeout       time.Duration `yaml:"member_timeout"`       // per roster member lookup + comparison
	Concurrency         int           `yaml:"concurrency"`          // max in-flight comparisons per batch
	MaxImageSize        int           `yaml:"max_image_size"`       // longest edge in pixels sent for comparison
}

type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type defaults struct {
	Matcher MatcherConfig `yaml:"matcher"`
	Upload  UploadConfig  `yaml:"upload"`
	Log     LogConfig     `yaml:"log"`
	Redis   struct {
		LockTTL time.Duration `yaml:"lock_ttl"`
	} `yaml:"redis"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads a positive Go duration ("20s", "1m"), falling back to defaultVal.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func loadDefaults() defaults {
	var d defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return d
}

func Load() *Config {
	d := loadDefaults()

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MariaDBDSN:   os.Getenv("MARIADB_DSN"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:     os.Getenv("REDIS_URL"),
			LockTTL: envDuration("REDIS_LOCK_TTL", d.Redis.LockTTL),
		},
		Embedding: EmbeddingConfig{
			URL: os.Getenv("EMBEDDING_URL"),
		},
		Matcher: MatcherConfig{
			SimilarityThreshold: envFloat("MATCH_SIMILARITY_THRESHOLD", d.Matcher.SimilarityThreshold),
			MemberTimeout:       envDuration("MATCH_MEMBER_TIMEOUT", d.Matcher.MemberTimeout),
			Concurrency:         envInt("MATCH_CONCURRENCY", d.Matcher.Concurrency),
			MaxImageSize:        envInt("MATCH_MAX_IMAGE_SIZE", d.Matcher.MaxImageSize),
		},
		Upload: UploadConfig{
			MaxBytes: int64(envInt("UPLOAD_MAX_BYTES", int(d.Upload.MaxBytes))),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", d.Log.Level),
			Format: envString("LOG_FORMAT", d.Log.Format),
		},
	}
}

// Validate reports configuration values the matcher cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Matcher.SimilarityThreshold <= 0 || c.Matcher.SimilarityThreshold > 100 {
		errs = append(errs, fmt.Errorf("similarity threshold must be in (0, 100], got %v", c.Matcher.SimilarityThreshold))
	}
	if c.Matcher.MemberTimeout <= 0 {
		errs = append(errs, errors.New("member timeout must be positive"))
	}
	if c.Matcher.Concurrency <= 0 {
		errs = append(errs, errors.New("matcher concurrency must be positive"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload size limit must be positive"))
	}
	return errors.Join(errs...)
}

// HasDatabase reports whether any storage backend is configured.
func (c *DatabaseConfig) HasDatabase() bool {
	return c.URL != "" || c.MariaDBDSN != ""
}
