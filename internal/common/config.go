package common

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/arrestlog/constants"
)

// Config holds all application configuration
type Config struct {
	Extract  ExtractConfig  `yaml:"extract"`
	Source   SourceConfig   `yaml:"source"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	OCR      OCRConfig      `yaml:"ocr"`
	Log      LogConfig      `yaml:"log"`
}

// ExtractConfig controls how records are reconstructed
type ExtractConfig struct {
	Strategy           string `yaml:"strategy"` // blocks | fields
	FieldStreamEnabled bool   `yaml:"field_stream_enabled"`
	Workers            int    `yaml:"workers"`
	Preclean           bool   `yaml:"preclean"`

	Anchor         string   `yaml:"anchor"`
	DateMarker     string   `yaml:"date_marker"`
	LocationMarker string   `yaml:"location_marker"`
	LocationHint   string   `yaml:"location_hint"`
	Codes          []string `yaml:"codes"`

	// Fields is the label table used by the field-stream strategy.
	Fields []FieldLabel `yaml:"fields"`
}

// FieldLabel maps a printed label to a record field
type FieldLabel struct {
	Name    string `yaml:"name"`
	Label   string `yaml:"label"`
	Locator string `yaml:"locator"` // same_line | next_line
}

// SourceConfig holds where OCR output is read from
type SourceConfig struct {
	Dir        string       `yaml:"dir"`
	Extensions []string     `yaml:"extensions"`
	Bucket     BucketConfig `yaml:"bucket"`
}

// BucketConfig holds S3-compatible object storage settings
type BucketConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	Name      string `yaml:"name"`
	Prefix    string `yaml:"prefix"`
	Secure    bool   `yaml:"secure"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `yaml:"driver"` // postgres | sqlite
	DSN              string        `yaml:"dsn"`
	AutoMigrate      bool          `yaml:"auto_migrate"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	Persist  bool   `yaml:"persist"`
	// MaxDocuments caps a single Reconstruct request.
	MaxDocuments int `yaml:"max_documents"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Pdftotext     string `yaml:"pdftotext"`
	Pdftoppm      string `yaml:"pdftoppm"`
	Tesseract     string `yaml:"tesseract"`
	TessdataDir   string `yaml:"tessdata_dir"`
	Lang          string `yaml:"lang"`
	DPI           int    `yaml:"dpi"`
	MaxPages      int    `yaml:"max_pages"`
	PSM           int    `yaml:"psm"`
	OEM           int    `yaml:"oem"`
	TSVConfidence bool   `yaml:"tsv_confidence"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
}

// DefaultConfig returns the built-in defaults, before any file or env overlay.
func DefaultConfig() *Config {
	return &Config{
		Extract: ExtractConfig{
			Strategy:           constants.StrategyBlocks,
			FieldStreamEnabled: true,
			Workers:            4,
			Preclean:           true,
			Anchor:             "Case Number",
			DateMarker:         "Date Arrest",
			LocationMarker:     "Primary Location",
			LocationHint:       "CA",
			Codes:              append([]string(nil), constants.StatuteCodes...),
			Fields: []FieldLabel{
				{Name: string(constants.Location), Label: "Primary Location", Locator: "next_line"},
				{Name: string(constants.CaseNumber), Label: "Case_Number", Locator: "next_line"},
				{Name: string(constants.DateOfArrest), Label: "Date_Arrest", Locator: "next_line"},
				{Name: string(constants.Sex), Label: "Sex:", Locator: "same_line"},
				{Name: string(constants.Race), Label: "Race:", Locator: "same_line"},
			},
		},
		Source: SourceConfig{
			Bucket: BucketConfig{Secure: true},
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			AutoMigrate:     true,
			MaxConns:        20,
			MinConns:        5,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Server: ServerConfig{
			GRPCAddr:     ":8080",
			MaxDocuments: 500,
		},
		OCR: OCRConfig{
			Lang: "eng",
			DPI:  300,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	cfg := DefaultConfig()
	cfg.applyEnv()
	return cfg
}

// Load reads the optional YAML file at path (or $ARRESTLOG_CONFIG when path is
// empty) over the defaults, then applies environment variables on top.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = os.Getenv("ARRESTLOG_CONFIG")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, NewAppError("CONFIG_ERROR", fmt.Sprintf("read %s", path), err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, NewAppError("CONFIG_ERROR", fmt.Sprintf("parse %s", path), errors.Join(ErrInvalidInput, err))
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	e := &c.Extract
	e.Strategy = getEnv("ARRESTLOG_STRATEGY", e.Strategy)
	e.FieldStreamEnabled = getEnvAsBool("ARRESTLOG_FIELD_STREAM_ENABLED", e.FieldStreamEnabled)
	e.Workers = getEnvAsInt("ARRESTLOG_WORKERS", e.Workers)
	e.Preclean = getEnvAsBool("ARRESTLOG_PRECLEAN", e.Preclean)
	e.Anchor = getEnv("ARRESTLOG_ANCHOR", e.Anchor)
	e.LocationHint = getEnv("ARRESTLOG_LOCATION_HINT", e.LocationHint)
	e.Codes = getEnvAsStrings("ARRESTLOG_CODES", e.Codes)

	s := &c.Source
	s.Dir = getEnv("ARRESTLOG_SOURCE_DIR", s.Dir)
	s.Extensions = getEnvAsStrings("ARRESTLOG_EXTENSIONS", s.Extensions)
	s.Bucket.Endpoint = getEnv("MINIO_ENDPOINT", s.Bucket.Endpoint)
	s.Bucket.AccessKey = getEnv("MINIO_ACCESS_KEY", s.Bucket.AccessKey)
	s.Bucket.SecretKey = getEnv("MINIO_SECRET_KEY", s.Bucket.SecretKey)
	s.Bucket.Region = getEnv("MINIO_REGION", s.Bucket.Region)
	s.Bucket.Name = getEnv("MINIO_BUCKET", s.Bucket.Name)
	s.Bucket.Prefix = getEnv("MINIO_PREFIX", s.Bucket.Prefix)
	s.Bucket.Secure = getEnvAsBool("MINIO_SECURE", s.Bucket.Secure)

	d := &c.Database
	d.Driver = getEnv("DB_DRIVER", d.Driver)
	d.DSN = getEnv("DB_URL", d.DSN)
	d.AutoMigrate = getEnvAsBool("DB_AUTO_MIGRATE", d.AutoMigrate)
	d.MaxConns = getEnvAsInt32("DB_MAX_CONNS", d.MaxConns)
	d.MinConns = getEnvAsInt32("DB_MIN_CONNS", d.MinConns)
	d.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", d.MaxConnLifetime)
	d.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", d.MaxConnIdleTime)
	d.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", d.DialTimeout)
	d.StatementTimeout = getEnvAsDuration("DB_STATEMENT_TIMEOUT", d.StatementTimeout)

	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.Persist = getEnvAsBool("GRPC_PERSIST", c.Server.Persist)
	c.Server.MaxDocuments = getEnvAsInt("GRPC_MAX_DOCUMENTS", c.Server.MaxDocuments)

	o := &c.OCR
	o.Pdftotext = getEnv("PDFTOTEXT_BIN", o.Pdftotext)
	o.Pdftoppm = getEnv("PDFTOPPM_BIN", o.Pdftoppm)
	o.Tesseract = getEnv("TESSERACT_BIN", o.Tesseract)
	o.TessdataDir = getEnv("TESSDATA_PREFIX", o.TessdataDir)
	o.Lang = getEnv("OCR_LANG", o.Lang)
	o.DPI = getEnvAsInt("OCR_DPI", o.DPI)
	o.MaxPages = getEnvAsInt("OCR_MAX_PAGES", o.MaxPages)
	o.PSM = getEnvAsInt("OCR_PSM", o.PSM)
	o.TSVConfidence = getEnvAsBool("OCR_TSV_CONFIDENCE", o.TSVConfidence)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// comma separated, blanks dropped
func getEnvAsStrings(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// SlogLevel maps Log.Level to a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("extract.strategy", c.Extract.Strategy, Required, OneOf(constants.StrategyBlocks, constants.StrategyFields))
	v.Field("extract.workers", c.Extract.Workers, AtLeast(1))
	v.Field("extract.anchor", c.Extract.Anchor, Required)
	v.Field("extract.date_marker", c.Extract.DateMarker, Required)
	v.Field("extract.location_marker", c.Extract.LocationMarker, Required)
	for i, f := range c.Extract.Fields {
		prefix := fmt.Sprintf("extract.fields[%d]", i)
		v.Field(prefix+".name", f.Name, Required, CanonicalField)
		v.Field(prefix+".label", f.Label, Required)
		v.Field(prefix+".locator", f.Locator, OneOf("same_line", "next_line"))
	}
	v.Field("log.level", strings.ToLower(c.Log.Level), OneOf("debug", "info", "warn", "warning", "error"))
	v.Field("log.format", c.Log.Format, OneOf("json", "text"))
	if c.Database.DSN != "" {
		v.Field("database.driver", c.Database.Driver, OneOf("postgres", "sqlite"))
	}
	if c.Source.Bucket.Name != "" {
		v.Field("source.bucket.endpoint", c.Source.Bucket.Endpoint, Required)
	}
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
