package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Record source kinds selectable through DATA_SOURCE.
const (
	SourceSheet    = "sheet"
	SourceBlob     = "blob"
	SourcePostgres = "postgres"
	SourceSQLite   = "sqlite"
)

const (
	BlobDriverFile = "file"
	BlobDriverS3   = "s3"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	AuthMode       string        `mapstructure:"AUTH_MODE"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	TLSEnabled     bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile    string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile     string        `mapstructure:"TLS_KEY_FILE"`

	DataSource       string        `mapstructure:"DATA_SOURCE"`
	SheetID          string        `mapstructure:"SHEET_ID"`
	SheetName        string        `mapstructure:"SHEET_NAME"`
	SheetBaseURL     string        `mapstructure:"SHEET_BASE_URL"`
	SourceCacheTTL   time.Duration `mapstructure:"SOURCE_CACHE_TTL"`
	SourceMaxRetries uint          `mapstructure:"SOURCE_MAX_RETRIES"`
	SourceTimeout    time.Duration `mapstructure:"SOURCE_TIMEOUT"`
	DateLayouts      []string      `mapstructure:"DATE_LAYOUTS"`
	TaxonomyFile     string        `mapstructure:"TAXONOMY_FILE"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	SQLitePath  string `mapstructure:"SQLITE_PATH"`

	BlobDriver  string `mapstructure:"BLOB_DRIVER"`
	BlobDir     string `mapstructure:"BLOB_DIR"`
	BlobKey     string `mapstructure:"BLOB_KEY"`
	S3Bucket    string `mapstructure:"S3_BUCKET"`
	S3Region    string `mapstructure:"S3_REGION"`
	S3Endpoint  string `mapstructure:"S3_ENDPOINT"`
	S3PathStyle bool   `mapstructure:"S3_PATH_STYLE"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "AUTH_MODE", "AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
	"DATA_SOURCE", "SHEET_ID", "SHEET_NAME", "SHEET_BASE_URL",
	"SOURCE_CACHE_TTL", "SOURCE_MAX_RETRIES", "SOURCE_TIMEOUT", "DATE_LAYOUTS", "TAXONOMY_FILE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "SQLITE_PATH",
	"BLOB_DRIVER", "BLOB_DIR", "BLOB_KEY", "S3_BUCKET", "S3_REGION", "S3_ENDPOINT", "S3_PATH_STYLE",
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AUTH_MODE", "") // inferred from ENV
	v.SetDefault("AUTH_ISSUER", "physio")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("DATA_SOURCE", SourceSheet)
	v.SetDefault("SHEET_NAME", "Resultados")
	v.SetDefault("SHEET_BASE_URL", "https://docs.google.com")
	v.SetDefault("SOURCE_CACHE_TTL", "10m")
	v.SetDefault("SOURCE_MAX_RETRIES", 3)
	v.SetDefault("SOURCE_TIMEOUT", "20s")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("SQLITE_PATH", "data/evolution.db")
	v.SetDefault("BLOB_DRIVER", BlobDriverFile)
	v.SetDefault("BLOB_DIR", "data/blobs")
	v.SetDefault("BLOB_KEY", "exports/resultados.csv")
	v.SetDefault("S3_REGION", "us-east-1")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.DateLayouts = splitList(cfg.DateLayouts, v.GetString("DATE_LAYOUTS"))
	cfg.DataSource = strings.ToLower(strings.TrimSpace(cfg.DataSource))
	cfg.BlobDriver = strings.ToLower(strings.TrimSpace(cfg.BlobDriver))

	return cfg, nil
}

// splitList normalizes comma separated list settings. Date layouts contain
// spaces, so entries are only trimmed at the edges.
func splitList(decoded []string, raw string) []string {
	if len(decoded) == 1 && strings.Contains(decoded[0], ",") {
		raw, decoded = decoded[0], nil
	}
	if decoded == nil && raw != "" {
		decoded = strings.Split(raw, ",")
	}
	var out []string
	for _, s := range decoded {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set, otherwise "development" for
// ENV=development and "jwt" for everything else.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// Level returns the configured zerolog level, defaulting to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate checks that the configuration is complete for the selected auth
// mode and record source.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.LogLevel)
	}

	switch mode := c.ResolvedAuthMode(); mode {
	case "development":
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE=development is not allowed in production")
		}
	case "jwt":
		if c.AuthSigningKey == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY must be set when AUTH_MODE is \"jwt\" (current ENV=%q)", c.Env)
		}
		if c.IsProduction() && len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes in production, got %d", len(c.AuthSigningKey))
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.SourceCacheTTL < 0 {
		return fmt.Errorf("SOURCE_CACHE_TTL must not be negative")
	}

	if err := c.validateSource(); err != nil {
		return err
	}

	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}
	return nil
}

func (c *Config) validateSource() error {
	switch c.DataSource {
	case SourceSheet:
		if c.SheetID == "" {
			return fmt.Errorf("SHEET_ID is required when DATA_SOURCE is %q", SourceSheet)
		}
	case SourceBlob:
		return c.ValidateBlob()
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATA_SOURCE is %q", SourcePostgres)
		}
	case SourceSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when DATA_SOURCE is %q", SourceSQLite)
		}
	default:
		return fmt.Errorf("DATA_SOURCE must be one of sheet, blob, postgres, sqlite, got %q", c.DataSource)
	}
	return nil
}

// ValidateBlob checks the blob store settings, which the snapshot command
// needs regardless of DATA_SOURCE.
func (c *Config) ValidateBlob() error {
	if c.BlobKey == "" {
		return fmt.Errorf("BLOB_KEY is required")
	}
	switch c.BlobDriver {
	case BlobDriverFile:
		if c.BlobDir == "" {
			return fmt.Errorf("BLOB_DIR is required when BLOB_DRIVER is %q", BlobDriverFile)
		}
	case BlobDriverS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when BLOB_DRIVER is %q", BlobDriverS3)
		}
	default:
		return fmt.Errorf("BLOB_DRIVER must be \"file\" or \"s3\", got %q", c.BlobDriver)
	}
	return nil
}
