// Package config provides the configuration for the csvreduce harness and
// query server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	csverrors "github.com/arkilian/csvreduce/internal/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Dataset kinds.
const (
	DatasetAirQuality = "airquality"
	DatasetPopulation = "population"
)

// Config holds the configuration of one csvreduce run.
type Config struct {
	// Dataset selects the schema and the input location
	Dataset DatasetConfig `json:"dataset" yaml:"dataset"`

	// Reduce controls per-query parallelism
	Reduce ReduceConfig `json:"reduce" yaml:"reduce"`

	// Ingest controls file loading
	Ingest IngestConfig `json:"ingest" yaml:"ingest"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log"`

	// Snapshot configuration
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot"`
}

// DatasetConfig holds dataset selection.
type DatasetConfig struct {
	// Kind is the dataset: airquality, population
	Kind string `json:"kind" yaml:"kind" validate:"required,oneof=airquality population"`

	// Paths are files, directories or object prefixes to load
	Paths []string `json:"paths" yaml:"paths" validate:"required,min=1,dive,required"`
}

// ReduceConfig holds reducer configuration.
type ReduceConfig struct {
	// Workers overrides the worker count (0 = number of CPUs)
	Workers int `json:"workers" yaml:"workers" validate:"min=0"`

	// MinWorkers is the floor for the worker count
	MinWorkers int `json:"min_workers" yaml:"min_workers" validate:"min=1"`

	// Dispatch selects the dispatcher: goroutine, pool, serial
	Dispatch string `json:"dispatch" yaml:"dispatch" validate:"oneof=goroutine pool serial"`

	// PoolSize bounds in-flight tasks for the pool dispatcher
	PoolSize int `json:"pool_size" yaml:"pool_size" validate:"min=1"`
}

// IngestConfig holds loader configuration.
type IngestConfig struct {
	// Concurrency is the number of files parsed at once
	Concurrency int `json:"concurrency" yaml:"concurrency" validate:"min=1,max=256"`

	// Extensions are the object suffixes loaded from directories
	Extensions []string `json:"extensions" yaml:"extensions" validate:"min=1,dive,required"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type" validate:"oneof=local s3"`

	// Path is the base directory for local storage ("" = paths are used as given)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`

	// MaxRetries is the number of retries per request
	MaxRetries int `json:"max_retries" yaml:"max_retries" validate:"min=0,max=10"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Enabled starts the query server
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Addr is the HTTP listen address
	Addr string `json:"addr" yaml:"addr" validate:"required"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is the zerolog level name
	Level string `json:"level" yaml:"level" validate:"oneof=trace debug info warn error"`
}

// SnapshotConfig holds SQLite snapshot configuration.
type SnapshotConfig struct {
	// Path is the SQLite file written after load ("" = disabled)
	Path string `json:"path" yaml:"path"`
}

// DefaultConfig returns the default configuration for local runs.
func DefaultConfig() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Kind:  DatasetAirQuality,
			Paths: []string{"data"},
		},
		Reduce: ReduceConfig{
			Workers:    0,
			MinWorkers: 1,
			Dispatch:   "goroutine",
			PoolSize:   4,
		},
		Ingest: IngestConfig{
			Concurrency: 4,
			Extensions:  []string{".csv", ".csv.sz"},
		},
		Storage: StorageConfig{
			Type: "local",
			S3: S3Config{
				Region:     "us-east-1",
				MaxRetries: 3,
			},
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

var validate = validator.New()

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return csverrors.NewConfigError("invalid configuration", err)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return csverrors.NewConfigError("s3.bucket is required when storage type is s3", nil)
	}

	if c.Reduce.Workers > 0 && c.Reduce.Workers < c.Reduce.MinWorkers {
		return csverrors.NewConfigError(fmt.Sprintf("reduce.workers (%d) is below reduce.min_workers (%d)", c.Reduce.Workers, c.Reduce.MinWorkers), nil)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, csverrors.NewConfigError("failed to read config file", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, csverrors.NewConfigError("failed to parse YAML config", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, csverrors.NewConfigError("failed to parse JSON config", err)
		}
	default:
		return nil, csverrors.NewConfigError(fmt.Sprintf("unsupported config file format: %s", ext), nil)
	}

	return cfg, nil
}

// LoadFromEnv applies environment overrides.
// Environment variables use the CSVREDUCE_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("CSVREDUCE_DATASET"); v != "" {
		cfg.Dataset.Kind = v
	}
	if v := os.Getenv("CSVREDUCE_DATA_PATHS"); v != "" {
		cfg.Dataset.Paths = SplitList(v)
	}

	// Reduce configuration
	if v := os.Getenv("CSVREDUCE_WORKERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Reduce.Workers)
	}
	if v := os.Getenv("CSVREDUCE_MIN_WORKERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Reduce.MinWorkers)
	}
	if v := os.Getenv("CSVREDUCE_DISPATCH"); v != "" {
		cfg.Reduce.Dispatch = v
	}
	if v := os.Getenv("CSVREDUCE_POOL_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Reduce.PoolSize)
	}

	// Ingest configuration
	if v := os.Getenv("CSVREDUCE_INGEST_CONCURRENCY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Ingest.Concurrency)
	}

	// Storage configuration
	if v := os.Getenv("CSVREDUCE_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("CSVREDUCE_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("CSVREDUCE_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("CSVREDUCE_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("CSVREDUCE_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}

	// HTTP configuration
	if v := os.Getenv("CSVREDUCE_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("CSVREDUCE_HTTP_ENABLED"); v != "" {
		cfg.HTTP.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("CSVREDUCE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("CSVREDUCE_SNAPSHOT_PATH"); v != "" {
		cfg.Snapshot.Path = v
	}
}

// SplitList splits a comma separated list, trimming blanks and dropping
// empty entries.
func SplitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
