// Package config loads the converter configuration from a YAML file overlaid by
// environment variables, then validates it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// DefaultFile is read when no file is given and it exists in the working directory.
const DefaultFile = "permalink-converter.yaml"

// SupportedSRID is the only planar reference system the coordinate codec handles
// (EPSG:2056, Swiss LV95).
const SupportedSRID = 2056

// Record and catalog source selectors.
const (
	SourceDatabase = "database"
	SourceCSV      = "csv"
	SourceHTTP     = "http"
	SourceSnapshot = "snapshot"
)

// Config is the full converter configuration.
type Config struct {
	// OriginURL is the prefix every convertible source permalink starts with.
	OriginURL string `yaml:"origin_url" validate:"required,url"`
	// DestinationURL is the base the converted fragment is appended to.
	DestinationURL string `yaml:"destination_url" validate:"required,url"`
	// Resolutions maps zoom levels to map resolutions, coarsest first.
	Resolutions []float64 `yaml:"resolutions" validate:"required,min=1,dive,gt=0"`
	SRID        int       `yaml:"srid" validate:"required"`

	Database Database `yaml:"database"`
	// InputSource is "database" or the path of a JSON record file.
	InputSource string  `yaml:"input_source" validate:"required"`
	Catalog     Catalog `yaml:"catalog"`

	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
	// Development switches the logger to console output.
	Development bool `yaml:"development"`
	Workers     int  `yaml:"workers" validate:"min=1,max=64"`

	Report          Report `yaml:"report"`
	MetricsTextfile string `yaml:"metrics_textfile"`
}

// Database selects the relational store holding the catalog and short URLs.
type Database struct {
	Connection   string `yaml:"connection"`
	Driver       string `yaml:"driver" validate:"omitempty,oneof=pgx postgres sqlite"`
	MainSchema   string `yaml:"main_schema"`
	StaticSchema string `yaml:"static_schema"`
}

// Catalog selects where the layer catalog is loaded from.
type Catalog struct {
	Source       string        `yaml:"source" validate:"oneof=database csv http snapshot"`
	CSVPath      string        `yaml:"csv_path" validate:"required_if=Source csv"`
	SnapshotPath string        `yaml:"snapshot_path" validate:"required_if=Source snapshot"`
	URL          string        `yaml:"url" validate:"required_if=Source http,omitempty,url"`
	Timeout      time.Duration `yaml:"timeout" validate:"min=0"`
}

// Report configures the run report files and their optional upload.
type Report struct {
	Dir string   `yaml:"dir"`
	S3  S3Report `yaml:"s3"`
}

// S3Report is the upload target. Uploading is off when Bucket is empty.
type S3Report struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint" validate:"omitempty,url"`
	Prefix    string `yaml:"prefix"`
	PathStyle bool   `yaml:"path_style"`
}

// Default returns the configuration used before any file or variable is applied.
func Default() *Config {
	return &Config{
		Resolutions: []float64{250, 100, 50, 20, 10, 5, 2.5, 2, 1.5, 1, 0.5, 0.25, 0.1, 0.05},
		SRID:        SupportedSRID,
		Database: Database{
			Driver:       "pgx",
			MainSchema:   "main",
			StaticSchema: "main_static",
		},
		InputSource: SourceDatabase,
		Catalog: Catalog{
			Source:  SourceDatabase,
			Timeout: 30 * time.Second,
		},
		LogLevel: "info",
		Workers:  1,
		Report:   Report{Dir: "."},
	}
}

// Load builds the configuration: defaults, then the YAML file at path, then the
// environment, then validation.
//
// Parameters:
//   - path: YAML file to read. When empty, DefaultFile is read if it exists
//
// Returns:
//   - *Config: The validated configuration
//   - error: A read or parse error, or an error wrapping ErrInvalid
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := loadFile(cfg, path); err != nil {
		return nil, err
	}
	if err := loadEnvironmentVariables(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadEnvironmentVariables overlays the environment on cfg. Unset or empty variables
// leave the current value alone.
func loadEnvironmentVariables(cfg *Config) error {
	setString(&cfg.OriginURL, "ORIGIN_URL")
	setString(&cfg.DestinationURL, "DESTINATION_URL")
	setString(&cfg.Database.Connection, "DB_CONNECTION")
	setString(&cfg.Database.Driver, "DB_DRIVER")
	setString(&cfg.Database.MainSchema, "DB_MAIN_SCHEMA")
	setString(&cfg.Database.StaticSchema, "DB_MAIN_STATIC_SCHEMA")
	setString(&cfg.InputSource, "INPUT_SOURCE")
	setString(&cfg.Catalog.Source, "THEMES_SOURCE")
	setString(&cfg.Catalog.CSVPath, "THEMES_CSV")
	setString(&cfg.Catalog.SnapshotPath, "THEMES_SNAPSHOT")
	setString(&cfg.Catalog.URL, "THEMES_URL")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.Report.Dir, "REPORT_DIR")
	setString(&cfg.Report.S3.Bucket, "REPORT_S3_BUCKET")
	setString(&cfg.Report.S3.Region, "REPORT_S3_REGION")
	setString(&cfg.Report.S3.Endpoint, "REPORT_S3_ENDPOINT")
	setString(&cfg.Report.S3.Prefix, "REPORT_S3_PREFIX")
	setString(&cfg.MetricsTextfile, "METRICS_TEXTFILE")

	if val := os.Getenv("RESOLUTIONS"); val != "" {
		res, err := ParseResolutions(val)
		if err != nil {
			return fmt.Errorf("RESOLUTIONS: %w", err)
		}
		cfg.Resolutions = res
	}
	if val := os.Getenv("SRID"); val != "" {
		srid, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("SRID: %w", err)
		}
		cfg.SRID = srid
	}
	if val := os.Getenv("WORKERS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("WORKERS: %w", err)
		}
		cfg.Workers = n
	}
	if val := os.Getenv("REPORT_S3_PATH_STYLE"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("REPORT_S3_PATH_STYLE: %w", err)
		}
		cfg.Report.S3.PathStyle = b
	}
	return nil
}

func setString(dst *string, name string) {
	if val := os.Getenv(name); val != "" {
		*dst = val
	}
}

// ParseResolutions reads a resolution table written as comma separated numbers,
// optionally wrapped in brackets: "[250, 100, 50]".
func ParseResolutions(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid resolution %q", part)
		}
		out = append(out, v)
	}
	return out, nil
}

var validate = validator.New()

// Validate checks struct constraints and the supported reference system.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.SRID != SupportedSRID {
		return fmt.Errorf("%w: srid %d is not supported, only %d is", ErrInvalid, c.SRID, SupportedSRID)
	}
	if c.InputSource == SourceDatabase || c.Catalog.Source == SourceDatabase {
		if c.Database.MainSchema == "" {
			return fmt.Errorf("%w: database main schema required", ErrInvalid)
		}
	}
	return nil
}

// UsesDatabase reports whether records or the catalog are read from the database.
func (c *Config) UsesDatabase() bool {
	return c.InputSource == SourceDatabase || c.Catalog.Source == SourceDatabase
}

// RecordFile returns the JSON record file, or "" when records come from the database.
func (c *Config) RecordFile() string {
	if c.InputSource == SourceDatabase {
		return ""
	}
	return c.InputSource
}
