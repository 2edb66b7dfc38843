package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/gpm-precipitation-etl/internal/domain"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/source"
)

const maxSampleWorkers = 32

// Config holds all run settings, populated from environment variables.
type Config struct {
	LogLevel  string
	LogFormat string

	Archive       domain.Archive
	ArchiveFile   string
	Mode          source.Mode
	FetchTimeout  time.Duration
	SampleWorkers int

	MetricsAddr     string
	ShutdownTimeout time.Duration

	// Optional Kafka sink. Empty brokers disable publishing.
	KafkaBrokers []string
	KafkaTopic   string
}

// KafkaEnabled reports whether rows should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("GPM_TIMEOUT", "5s"))
	if err != nil || fetchTimeout <= 0 {
		return nil, errors.New("invalid GPM_TIMEOUT")
	}

	mode, err := source.ParseMode(sharedcfg.EnvOrDefault("GPM_MODE", "download"))
	if err != nil {
		return nil, fmt.Errorf("invalid GPM_MODE: %w", err)
	}

	workers, err := strconv.Atoi(sharedcfg.EnvOrDefault("SAMPLE_WORKERS", "4"))
	if err != nil || workers < 1 || workers > maxSampleWorkers {
		return nil, fmt.Errorf("invalid SAMPLE_WORKERS: must be between 1 and %d", maxSampleWorkers)
	}

	archive, err := loadArchive()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
		Archive:         archive,
		ArchiveFile:     os.Getenv("GPM_ARCHIVE_FILE"),
		Mode:            mode,
		FetchTimeout:    fetchTimeout,
		SampleWorkers:   workers,
		MetricsAddr:     os.Getenv("METRICS_ADDR"),
		ShutdownTimeout: shutdownTimeout,
		KafkaTopic:      sharedcfg.EnvOrDefault("KAFKA_TOPIC", "daily-precipitation"),
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(v)
	}

	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("invalid LOG_FORMAT %q: want json or text", cfg.LogFormat)
	}
	if cfg.KafkaEnabled() && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// loadArchive starts from the production archive, applies the YAML profile
// named by GPM_ARCHIVE_FILE, then the individual GPM_* variables.
func loadArchive() (domain.Archive, error) {
	a := domain.DefaultArchive()

	if path := os.Getenv("GPM_ARCHIVE_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return a, fmt.Errorf("read GPM_ARCHIVE_FILE: %w", err)
		}
		if err := yaml.Unmarshal(b, &a); err != nil {
			return a, fmt.Errorf("parse GPM_ARCHIVE_FILE %s: %w", path, err)
		}
	}

	a.Host = sharedcfg.EnvOrDefault("GPM_HOST", a.Host)
	a.Scheme = sharedcfg.EnvOrDefault("GPM_SCHEME", a.Scheme)
	a.ProductType = sharedcfg.EnvOrDefault("GPM_PRODUCT", a.ProductType)
	if v := os.Getenv("GPM_VERSION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return a, errors.New("invalid GPM_VERSION")
		}
		a.Version = n
	}

	switch a.Scheme {
	case "ftp", "http", "https":
	default:
		return a, fmt.Errorf("invalid GPM_SCHEME %q: want ftp, http or https", a.Scheme)
	}
	if a.Host == "" {
		return a, errors.New("archive host is required")
	}
	return a, nil
}
