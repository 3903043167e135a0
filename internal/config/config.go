package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	svcErr "github.com/oggyb/tindecisos/internal/errors"
)

type Config struct {
	App struct {
		ENV string
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	DB struct {
		Driver   string
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	GRPC struct {
		Host string
		Port string
	}

	HTTP struct {
		Port string
	}

	Trace struct {
		Endpoint string
		Service  string
	}

	Auth struct {
		AllowedEmails []string
		AdminEmails   []string
	}

	Client struct {
		Addr       string
		SwipeDelay time.Duration
	}
}

func New() *Config {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.App.ENV = getEnvDefault("APP_ENV", "production")

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Database
	cfg.DB.Driver = strings.ToLower(getEnvDefault("DB_DRIVER", "mysql"))
	cfg.DB.DSN = os.Getenv("DB_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "tindecisos")

		switch cfg.DB.Driver {
		case "postgres":
			cfg.DB.Port = getEnvDefault("DB_PORT", "5432")
			cfg.DB.DSN = fmt.Sprintf(
				"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
				cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name,
			)
		case "sqlite":
			cfg.DB.DSN = cfg.DB.Name + ".db"
		default:
			cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
			cfg.DB.DSN = fmt.Sprintf(
				"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
				cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
			)
		}
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	if dbStr := getEnvDefault("REDIS_DB", "0"); dbStr != "" {
		if dbInt, err := strconv.Atoi(dbStr); err == nil {
			cfg.Redis.DB = dbInt
		}
	}

	// gRPC
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	// HTTP health endpoints
	cfg.HTTP.Port = getEnvDefault("HTTP_PORT", "8081")

	// Tracing is off unless an endpoint is given
	cfg.Trace.Endpoint = os.Getenv("JAEGER_ENDPOINT")
	cfg.Trace.Service = getEnvDefault("TRACE_SERVICE", "tindecisos")

	// Authorization lists
	cfg.Auth.AllowedEmails = splitList(os.Getenv("ALLOWED_EMAILS"))
	cfg.Auth.AdminEmails = splitList(os.Getenv("ADMIN_EMAILS"))

	// Client
	cfg.Client.Addr = getEnvDefault("TINDECISOS_ADDR", cfg.GRPC.Host+":"+cfg.GRPC.Port)
	cfg.Client.SwipeDelay = 400 * time.Millisecond
	if v := os.Getenv("SWIPE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Client.SwipeDelay = d
		}
	}

	return cfg
}

// Validate reports settings a binary cannot start without.
// The returned error wraps errors.ErrConfigMissing.
func (c *Config) Validate() error {
	switch {
	case c.DB.DSN == "":
		return fmt.Errorf("%w: database dsn", svcErr.ErrConfigMissing)
	case c.GRPC.Host == "" || c.GRPC.Port == "":
		return fmt.Errorf("%w: grpc listen address", svcErr.ErrConfigMissing)
	}
	switch c.DB.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("%w: unsupported DB_DRIVER %q", svcErr.ErrConfigMissing, c.DB.Driver)
	}
	return nil
}

// ValidateClient is Validate for the terminal client, which only needs the store address.
func (c *Config) ValidateClient() error {
	if strings.TrimSpace(c.Client.Addr) == "" {
		return fmt.Errorf("%w: store address (TINDECISOS_ADDR)", svcErr.ErrConfigMissing)
	}
	return nil
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
