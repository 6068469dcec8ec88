/*
Package config loads the docflow settings.

PURPOSE:
  One Config value built at startup and passed down; nothing reads the
  environment after Load returns.

SOURCES (later wins):
  1. Defaults
  2. YAML file named by DOCFLOW_CONFIG (also carries adapter overrides)
  3. .env in the working directory, if present
  4. Process environment

ENVIRONMENT:
  DOCFLOW_DB_DRIVER         sqlite | postgres          (default sqlite)
  DOCFLOW_DB_PATH           SQLite file                (default docflow.db)
  DB_HOST, DB_PORT, DB_NAME, DB_USER, DB_PASSWORD, DB_SSLMODE
  DOCFLOW_TABLE             documents table            (default documents)
  DOCFLOW_SOURCE_DIR        extract directory          (default .)
  DOCFLOW_SOURCE_DIR_HISTO | _BACKLOG | _NAVY   per format override
  DOCFLOW_LOG_DIR           log root                   (default ./logs)
  DOCFLOW_LOG_LEVEL         logrus level               (default info)
  DOCFLOW_HTTP_PORT         API port                   (default 8080)
  DOCFLOW_CONSULTANTS       comma separated names, one view each
  DOCFLOW_INGEST_INTERVAL   Go duration; empty disables the scheduler
  DOCFLOW_CONFIG            YAML file

SEE ALSO:
  - config/logger.go: logger construction
  - factory/adapter.go: adapter overrides
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/celluledoc/docflow/factory"
	"github.com/celluledoc/docflow/formats"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB selects and locates the store.
type DB struct {
	Driver   string `yaml:"driver" validate:"oneof=sqlite postgres"`
	Path     string `yaml:"path" validate:"required_if=Driver sqlite"`
	Host     string `yaml:"host" validate:"required_if=Driver postgres"`
	Port     int    `yaml:"port" validate:"gte=0,lte=65535"`
	Name     string `yaml:"name" validate:"required_if=Driver postgres"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Config is the full application configuration.
type Config struct {
	DB          DB                `yaml:"db"`
	Table       string            `yaml:"table" validate:"required,max=63"`
	SourceDir   string            `yaml:"source_dir"`
	SourceDirs  map[string]string `yaml:"source_dirs"`
	LogDir      string            `yaml:"log_dir"`
	LogLevel    string            `yaml:"log_level" validate:"oneof=trace debug info warn warning error"`
	HTTPPort    int               `yaml:"http_port" validate:"gt=0,lte=65535"`
	Consultants []string          `yaml:"consultants"`
	// IngestInterval is the scheduler period; zero disables it.
	IngestInterval time.Duration `yaml:"ingest_interval" validate:"gte=0"`

	Adapters map[string]factory.DeclarationYAML `yaml:"adapters"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		DB:        DB{Driver: DriverSQLite, Path: "docflow.db", Port: 5432},
		Table:     "documents",
		SourceDir: ".",
		LogDir:    "logs",
		LogLevel:  "info",
		HTTPPort:  8080,
	}
}

// Load builds the configuration from the process environment, reading .env
// first when it exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds the configuration from lookup, which has the signature of
// os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path, ok := lookup("DOCFLOW_CONFIG"); ok && path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %q is not a number", key, v))
				return
			}
			*dst = n
		}
	}

	str("DOCFLOW_DB_DRIVER", &cfg.DB.Driver)
	str("DOCFLOW_DB_PATH", &cfg.DB.Path)
	str("DB_HOST", &cfg.DB.Host)
	num("DB_PORT", &cfg.DB.Port)
	str("DB_NAME", &cfg.DB.Name)
	str("DB_USER", &cfg.DB.User)
	str("DB_PASSWORD", &cfg.DB.Password)
	str("DB_SSLMODE", &cfg.DB.SSLMode)
	str("DOCFLOW_TABLE", &cfg.Table)
	str("DOCFLOW_SOURCE_DIR", &cfg.SourceDir)
	str("DOCFLOW_LOG_DIR", &cfg.LogDir)
	str("DOCFLOW_LOG_LEVEL", &cfg.LogLevel)
	num("DOCFLOW_HTTP_PORT", &cfg.HTTPPort)

	for kind, suffix := range sourceDirSuffixes {
		if v, ok := lookup("DOCFLOW_SOURCE_DIR_" + suffix); ok && v != "" {
			if cfg.SourceDirs == nil {
				cfg.SourceDirs = make(map[string]string)
			}
			cfg.SourceDirs[kind] = v
		}
	}
	if v, ok := lookup("DOCFLOW_CONSULTANTS"); ok {
		cfg.Consultants = splitList(v)
	}
	if v, ok := lookup("DOCFLOW_INGEST_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("DOCFLOW_INGEST_INTERVAL: %w", err))
		} else {
			cfg.IngestInterval = d
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var sourceDirSuffixes = map[string]string{
	formats.KindHisto:   "HISTO",
	formats.KindBacklog: "BACKLOG",
	formats.KindNavy:    "NAVY",
}

// Validate checks field constraints and the format names of the
// per-format directories.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for kind := range c.SourceDirs {
		if _, ok := sourceDirSuffixes[kind]; !ok {
			return fmt.Errorf("invalid configuration: source_dirs: unknown format %q", kind)
		}
	}
	return nil
}

// Dirs returns the extract directory of every format.
func (c *Config) Dirs() map[string]string {
	out := make(map[string]string, len(formats.Kinds))
	for _, kind := range formats.Kinds {
		out[kind] = c.SourceDir
		if d, ok := c.SourceDirs[kind]; ok {
			out[kind] = d
		}
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
