// Package config reads process settings from the environment, optionally
// seeded from a .env file in the working directory.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

const defaultSigningKey = "defaultsecretkey"

// DBConfig selects the driver and pool. Postgres uses the host fields,
// sqlite only Path.
type DBConfig struct {
	Driver          string
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	Path            string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// GetDSN renders the libpq keyword/value connection string
func (c *DBConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type ServerConfig struct {
	Port string
	Env  string
	// BaseDomain is stripped from the Host header to find a tenant subdomain
	BaseDomain string
	BodyLimit  string
}

type JWTConfig struct {
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type LogConfig struct {
	Level string
}

// RedisConfig holds the cache and token deny-list connection
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// Enabled reports whether a Redis address was configured
func (c *RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// CMSConfig points at the Strapi content service
type CMSConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type MailConfig struct {
	SendGridKey string
	Host        string
	FromEmail   string
	FromName    string
}

type TracingConfig struct {
	Endpoint string
}

type EnrollmentConfig struct {
	AccessPeriod time.Duration
}

// WorkerConfig holds the cron specs of the worker process
type WorkerConfig struct {
	ExpirySchedule  string
	CleanupSchedule string
}

type Config struct {
	ServiceName string
	DB          DBConfig
	Server      ServerConfig
	JWT         JWTConfig
	Log         LogConfig
	Redis       RedisConfig
	CMS         CMSConfig
	Mail        MailConfig
	Tracing     TracingConfig
	Enrollment  EnrollmentConfig
	Worker      WorkerConfig
	SeedDemo    bool
}

// Load builds the configuration for serviceName. Unset or unparsable
// variables take their defaults. Production refuses the built-in signing key.
func Load(serviceName string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: .env file not found, using environment variables\n")
	}

	cfg := &Config{
		ServiceName: serviceName,
		DB: DBConfig{
			Driver:          env("DB_DRIVER", "postgres"),
			Host:            env("DB_HOST", "localhost"),
			Port:            env("DB_PORT", "5432"),
			User:            env("DB_USER", "postgres"),
			Password:        env("DB_PASSWORD", "password"),
			DBName:          env("DB_NAME", "lms"),
			SSLMode:         env("DB_SSL_MODE", "disable"),
			Path:            env("DB_PATH", "lms.db"),
			MaxIdleConns:    parsed("DB_MAX_IDLE_CONNS", 10, strconv.Atoi),
			MaxOpenConns:    parsed("DB_MAX_OPEN_CONNS", 100, strconv.Atoi),
			ConnMaxLifetime: parsed("DB_CONN_MAX_LIFETIME", time.Hour, time.ParseDuration),
			LogLevel:        parsed("DB_LOG_LEVEL", logger.Warn, parseGormLevel),
		},
		Server: ServerConfig{
			Port:       env("SERVER_PORT", "8080"),
			Env:        env("APP_ENV", "development"),
			BaseDomain: env("TENANT_BASE_DOMAIN", "lms.local"),
			BodyLimit:  env("SERVER_BODY_LIMIT", "2M"),
		},
		JWT: JWTConfig{
			SigningKey: env("JWT_SIGNING_KEY", defaultSigningKey),
			AccessTTL:  parsed("JWT_ACCESS_TTL", time.Hour, time.ParseDuration),
			RefreshTTL: parsed("JWT_REFRESH_TTL", 14*24*time.Hour, time.ParseDuration),
		},
		Log: LogConfig{Level: env("LOG_LEVEL", "info")},
		Redis: RedisConfig{
			Addr:     env("REDIS_ADDR", ""),
			Password: env("REDIS_PASSWORD", ""),
			DB:       parsed("REDIS_DB", 0, strconv.Atoi),
			CacheTTL: parsed("CACHE_TTL", 5*time.Minute, time.ParseDuration),
		},
		CMS: CMSConfig{
			BaseURL: env("STRAPI_URL", ""),
			Token:   env("STRAPI_TOKEN", ""),
			Timeout: parsed("STRAPI_TIMEOUT", 10*time.Second, time.ParseDuration),
		},
		Mail: MailConfig{
			SendGridKey: env("SENDGRID_API_KEY", ""),
			Host:        env("SENDGRID_HOST", "https://api.sendgrid.com"),
			FromEmail:   env("MAIL_FROM_ADDRESS", "no-reply@lms.local"),
			FromName:    env("MAIL_FROM_NAME", "LMS"),
		},
		Tracing: TracingConfig{Endpoint: env("OTEL_EXPORTER_OTLP_ENDPOINT", "")},
		Enrollment: EnrollmentConfig{
			// six months
			AccessPeriod: parsed("ENROLLMENT_ACCESS_PERIOD", 4380*time.Hour, time.ParseDuration),
		},
		Worker: WorkerConfig{
			ExpirySchedule:  env("WORKER_EXPIRY_SCHEDULE", "*/15 * * * *"),
			CleanupSchedule: env("WORKER_CLEANUP_SCHEDULE", "0 3 * * *"),
		},
		SeedDemo: parsed("SEED_DEMO_DATA", false, strconv.ParseBool),
	}

	if cfg.Server.Env == "production" && cfg.JWT.SigningKey == defaultSigningKey {
		return nil, fmt.Errorf("JWT_SIGNING_KEY must be set in production")
	}
	return cfg, nil
}

// LogConfig lists the non-secret settings worth printing at startup
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("service", c.ServiceName),
		zap.String("environment", c.Server.Env),
		zap.String("db_driver", c.DB.Driver),
		zap.String("db_host", c.DB.Host),
		zap.String("db_name", c.DB.DBName),
		zap.String("server_port", c.Server.Port),
		zap.String("tenant_base_domain", c.Server.BaseDomain),
		zap.Bool("redis_enabled", c.Redis.Enabled()),
		zap.Bool("cms_enabled", c.CMS.BaseURL != ""),
		zap.Bool("mail_enabled", c.Mail.SendGridKey != ""),
		zap.Duration("jwt_access_ttl", c.JWT.AccessTTL),
	}
}

func env(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func parsed[T any](key string, fallback T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := parse(raw)
	if err != nil {
		return fallback
	}
	return v
}

var gormLevels = map[string]logger.LogLevel{
	"silent": logger.Silent,
	"error":  logger.Error,
	"warn":   logger.Warn,
	"info":   logger.Info,
}

func parseGormLevel(raw string) (logger.LogLevel, error) {
	if lvl, ok := gormLevels[raw]; ok {
		return lvl, nil
	}
	return 0, fmt.Errorf("unknown log level %q", raw)
}
