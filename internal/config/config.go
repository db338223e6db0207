package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string `yaml:"host"`
	Port               string `yaml:"port"`
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	Name               string `yaml:"name"`
	SSLMode            string `yaml:"sslmode"`
	MaxOpenConns       int    `yaml:"max_open_conns"`
	MaxIdleConns       int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSec int    `yaml:"conn_max_lifetime_sec"`
}

// MinIOConfig holds object storage settings for MinIO.
// Bucket is the process-wide default bucket; it is read once at startup.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// TimeoutConfig bounds every call the coordinator makes to an external store.
// A zero value disables the bound for that store.
type TimeoutConfig struct {
	ObjectStore  time.Duration `yaml:"object_store"`
	Metadata     time.Duration `yaml:"metadata"`
	Audit        time.Duration `yaml:"audit"`
	Compensation time.Duration `yaml:"compensation"`
}

// AuthConfig configures bearer token verification at the HTTP boundary.
// When JWKSURL is set it takes precedence over JWTSecret.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	JWKSURL   string `yaml:"jwks_url"`
	Issuer    string `yaml:"issuer"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// PaginationConfig holds default and maximum page sizes.
type PaginationConfig struct {
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
}

// UploadConfig limits accepted content. MaxSize is a human size such as "100MB".
type UploadConfig struct {
	MaxSize string `yaml:"max_size"`
}

// MaxSizeBytes parses MaxSize. It returns 0 when MaxSize is empty or invalid.
func (u UploadConfig) MaxSizeBytes() int64 {
	if u.MaxSize == "" {
		return 0
	}
	n, err := units.FromHumanSize(u.MaxSize)
	if err != nil {
		return 0
	}
	return n
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from an optional YAML file and environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost    string           `yaml:"app_host"`
	Port       string           `yaml:"port"`
	TimeZone   string           `yaml:"time_zone"`
	Database   DatabaseConfig   `yaml:"database"`
	MinIO      MinIOConfig      `yaml:"minio"`
	Timeouts   TimeoutConfig    `yaml:"timeouts"`
	Auth       AuthConfig       `yaml:"auth"`
	Log        LogConfig        `yaml:"log"`
	Pagination PaginationConfig `yaml:"pagination"`
	Upload     UploadConfig     `yaml:"upload"`
}

// Location resolves TimeZone, falling back to UTC.
func (c *AppConfig) Location() *time.Location {
	if c.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate checks values that cannot be defaulted.
func (c *AppConfig) Validate() error {
	if c.Pagination.DefaultPageSize < 1 || c.Pagination.MaxPageSize < 1 {
		return fmt.Errorf("page sizes must be positive")
	}
	if c.Pagination.DefaultPageSize > c.Pagination.MaxPageSize {
		return fmt.Errorf("default page size cannot exceed max page size")
	}
	if _, err := units.FromHumanSize(c.Upload.MaxSize); err != nil {
		return fmt.Errorf("invalid upload max size: %w", err)
	}
	if c.Upload.MaxSizeBytes() <= 0 {
		return fmt.Errorf("upload max size must be positive")
	}
	return nil
}

func defaults() *AppConfig {
	return &AppConfig{
		AppHost:  "localhost:8080",
		Port:     "8080",
		TimeZone: "UTC",
		Database: DatabaseConfig{
			Port:               "5432",
			SSLMode:            "disable",
			MaxOpenConns:       10,
			MaxIdleConns:       5,
			ConnMaxLifetimeSec: 300,
		},
		MinIO: MinIOConfig{
			Bucket: "dropstack-docs",
		},
		Timeouts: TimeoutConfig{
			ObjectStore:  60 * time.Second,
			Metadata:     5 * time.Second,
			Audit:        2 * time.Second,
			Compensation: 10 * time.Second,
		},
		Log:        LogConfig{Level: "info"},
		Pagination: PaginationConfig{DefaultPageSize: 20, MaxPageSize: 100},
		Upload:     UploadConfig{MaxSize: "100MB"},
	}
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	cfg := defaults()
	applyEnv(cfg)
	return cfg
}

// LoadFile decodes a YAML file over the defaults, then applies environment overrides.
func LoadFile(path string) (*AppConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := defaults()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(c *AppConfig) {
	c.AppHost = getEnv("APP_HOST", c.AppHost)
	c.Port = getEnv("PORT", c.Port)
	c.TimeZone = getEnv("APP_TIMEZONE", c.TimeZone)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)
	c.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetimeSec = getEnvInt("DB_CONN_MAX_LIFETIME_SEC", c.Database.ConnMaxLifetimeSec)

	c.MinIO.Endpoint = getEnv("MINIO_ENDPOINT", c.MinIO.Endpoint)
	c.MinIO.AccessKey = getEnv("MINIO_ACCESS_KEY", c.MinIO.AccessKey)
	c.MinIO.SecretKey = getEnv("MINIO_SECRET_KEY", c.MinIO.SecretKey)
	c.MinIO.Bucket = getEnv("MINIO_BUCKET", c.MinIO.Bucket)
	c.MinIO.Region = getEnv("MINIO_REGION", c.MinIO.Region)
	c.MinIO.UseSSL = getEnvBool("MINIO_USE_SSL", c.MinIO.UseSSL)

	c.Timeouts.ObjectStore = getEnvDuration("TIMEOUT_OBJECT_STORE", c.Timeouts.ObjectStore)
	c.Timeouts.Metadata = getEnvDuration("TIMEOUT_METADATA", c.Timeouts.Metadata)
	c.Timeouts.Audit = getEnvDuration("TIMEOUT_AUDIT", c.Timeouts.Audit)
	c.Timeouts.Compensation = getEnvDuration("TIMEOUT_COMPENSATION", c.Timeouts.Compensation)

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWKSURL = getEnv("JWT_JWKS_URL", c.Auth.JWKSURL)
	c.Auth.Issuer = getEnv("JWT_ISSUER", c.Auth.Issuer)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	c.Pagination.DefaultPageSize = getEnvInt("PAGINATION_DEFAULT_PAGE_SIZE", c.Pagination.DefaultPageSize)
	c.Pagination.MaxPageSize = getEnvInt("PAGINATION_MAX_PAGE_SIZE", c.Pagination.MaxPageSize)

	c.Upload.MaxSize = getEnv("UPLOAD_MAX_SIZE", c.Upload.MaxSize)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}
