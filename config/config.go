package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aura-marketing/etl/internal/warehouse"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Warehouse WarehouseConfig
	Pipeline  PipelineConfig
	Transform TransformConfig
	Redis     RedisConfig
	AWS       AWSConfig
	Server    ServerConfig
}

// WarehouseConfig holds staging warehouse credentials. Every field except SSLMode is required.
type WarehouseConfig struct {
	User     string
	Password string
	Account  string // host[:port]
	Database string
	Name     string // warehouse / compute target
	Schema   string
	SSLMode  string
}

// PipelineConfig holds extract-and-load settings.
type PipelineConfig struct {
	BatchSize  int
	Table      string // schema.table
	Schedule   string // cron spec or asynq descriptor such as @daily
	MaxRetries int
	RetryDelay time.Duration
	RunTimeout time.Duration
}

// TransformConfig holds the downstream model runner settings.
type TransformConfig struct {
	Command string // e.g. "dbt run"
	Dir     string // project directory the command runs in
}

// RedisConfig holds Redis connection settings (asynq broker and run history).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AWSConfig holds credentials and the raw archive bucket. An empty RawBucket disables archiving.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	RawBucket       string
	RawPrefix       string
}

// ServerConfig holds ops HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// Connection returns the warehouse ConnectionConfig. It is not validated here.
func (c WarehouseConfig) Connection() warehouse.ConnectionConfig {
	return warehouse.ConnectionConfig{
		User:      c.User,
		Password:  c.Password,
		Account:   c.Account,
		Database:  c.Database,
		Warehouse: c.Name,
		Schema:    c.Schema,
		SSLMode:   c.SSLMode,
	}
}

// TransformArgs splits the transform command into argv.
func (c TransformConfig) TransformArgs() []string {
	return strings.Fields(c.Command)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env

	cfg := &Config{
		Warehouse: loadWarehouse(),
		Pipeline: PipelineConfig{
			BatchSize:  getEnvInt("PIPELINE_BATCH_SIZE", 10),
			Table:      getEnv("PIPELINE_TABLE", "source.raw_google_ads"),
			Schedule:   getEnv("PIPELINE_SCHEDULE", "@daily"),
			MaxRetries: getEnvInt("PIPELINE_MAX_RETRIES", 3),
			RetryDelay: getEnvDuration("PIPELINE_RETRY_DELAY", 5*time.Minute),
			RunTimeout: getEnvDuration("PIPELINE_RUN_TIMEOUT", 10*time.Minute),
		},
		Transform: TransformConfig{
			Command: getEnv("TRANSFORM_COMMAND", "dbt run"),
			Dir:     getEnv("TRANSFORM_DIR", "./dbt_project"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			RawBucket:       getEnv("AWS_S3_RAW_BUCKET", ""),
			RawPrefix:       getEnv("AWS_S3_RAW_PREFIX", "raw"),
		},
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout: getEnvInt("WRITE_TIMEOUT_SEC", 30),
		},
	}
	return cfg, nil
}

// Warehouse credentials have no defaults: a missing value must surface as a configuration error.
func loadWarehouse() WarehouseConfig {
	return WarehouseConfig{
		User:     os.Getenv("WAREHOUSE_USER"),
		Password: os.Getenv("WAREHOUSE_PASSWORD"),
		Account:  os.Getenv("WAREHOUSE_ACCOUNT"),
		Database: os.Getenv("WAREHOUSE_DATABASE"),
		Name:     os.Getenv("WAREHOUSE_NAME"),
		Schema:   os.Getenv("WAREHOUSE_SCHEMA"),
		SSLMode:  getEnv("WAREHOUSE_SSLMODE", warehouse.DefaultSSLMode),
	}
}

// EnvProvider resolves the warehouse ConnectionConfig from the environment on every call,
// so rotated credentials are picked up by the next scheduled run.
type EnvProvider struct {
	// Files are optional dotenv files read before the environment; existing variables win.
	Files []string
}

// ConnectionConfig implements the pipeline config provider.
func (p EnvProvider) ConnectionConfig() (warehouse.ConnectionConfig, error) {
	if len(p.Files) > 0 {
		_ = godotenv.Load(p.Files...)
	}
	return loadWarehouse().Connection(), nil
}

// StaticProvider returns a fixed ConnectionConfig.
type StaticProvider warehouse.ConnectionConfig

// ConnectionConfig implements the pipeline config provider.
func (p StaticProvider) ConnectionConfig() (warehouse.ConnectionConfig, error) {
	return warehouse.ConnectionConfig(p), nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
