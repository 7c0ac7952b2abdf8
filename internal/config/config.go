// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Supported values of DB_DRIVER.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Supported values of TOKEN_DELIVERY.
const (
	DeliveryCookie = "cookie"
	DeliveryBody   = "body"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable; nested structs group optional infrastructure.
type Config struct {
	Env  string `env:"APP_ENV" envDefault:"development"` // development | test | production
	Port string `env:"APP_PORT" envDefault:"3001"`       // HTTP port to listen on

	DBDriver string `env:"DB_DRIVER" envDefault:"mysql"` // mysql | postgres | sqlite
	DBDSN    string `env:"DATABASE_DSN"`                 // full DSN, overrides the parts below
	DBUser   string `env:"DB_USER"`
	DBPass   string `env:"DB_PASS"` // empty allowed
	DBHost   string `env:"DB_HOST" envDefault:"localhost"`
	DBPort   string `env:"DB_PORT"`
	DBName   string `env:"DB_NAME" envDefault:"accounts"`
	DBSSL    bool   `env:"DB_SSL" envDefault:"false"` // postgres only
	DBPath   string `env:"DB_PATH" envDefault:"accounts.db"`

	JWTSecret        string   `env:"JWT_SECRET,required,notEmpty"`
	JWTRefreshSecret string   `env:"JWT_REFRESH_SECRET"` // falls back to JWT_SECRET
	AccessTTL        Lifetime `env:"JWT_EXPIRES_IN" envDefault:"1h"`
	RefreshTTL       Lifetime `env:"JWT_REFRESH_EXPIRES_IN" envDefault:"7d"`
	BcryptCost       int      `env:"BCRYPT_COST" envDefault:"10"`

	// StrictRefreshPersist decides what a failed refresh-token write does to
	// a login: true rejects the login, false logs and still returns tokens.
	StrictRefreshPersist bool     `env:"REFRESH_PERSIST_STRICT" envDefault:"true"`
	TokenDelivery        string   `env:"TOKEN_DELIVERY" envDefault:"cookie"` // cookie | body
	AllowedOrigins       []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	Redis RedisConfig
	Cache CacheConfig
	Queue QueueConfig
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c Config) Validate() error {
	switch c.DBDriver {
	case DriverMySQL, DriverPostgres:
		if c.DBDSN == "" && c.DBUser == "" {
			return errors.New("config: DB_USER or DATABASE_DSN is required")
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.TokenDelivery {
	case DeliveryCookie, DeliveryBody:
	default:
		return fmt.Errorf("config: unsupported TOKEN_DELIVERY %q", c.TokenDelivery)
	}
	if c.AccessTTL.Duration() <= 0 || c.RefreshTTL.Duration() <= 0 {
		return errors.New("config: token lifetimes must be positive")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("config: BCRYPT_COST %d out of range", c.BcryptCost)
	}
	return nil
}

// IsProduction reports whether cookies must be Secure and cross-site.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// RefreshSecret returns the key refresh tokens are signed with.
func (c Config) RefreshSecret() string {
	if c.JWTRefreshSecret != "" {
		return c.JWTRefreshSecret
	}
	return c.JWTSecret
}

// DSN returns the data source name for the configured driver.
func (c Config) DSN() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	switch c.DBDriver {
	case DriverPostgres:
		port := c.DBPort
		if port == "" {
			port = "5432"
		}
		sslmode := "disable"
		if c.DBSSL {
			sslmode = "require"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.DBUser, c.DBPass),
			Host:     c.DBHost + ":" + port,
			Path:     "/" + c.DBName,
			RawQuery: "sslmode=" + sslmode,
		}
		if c.DBPass == "" {
			u.User = url.User(c.DBUser)
		}
		return u.String()
	case DriverSQLite:
		return c.DBPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	default:
		port := c.DBPort
		if port == "" {
			port = "3306"
		}
		auth := c.DBUser
		if c.DBPass != "" {
			auth = fmt.Sprintf("%s:%s", c.DBUser, c.DBPass)
		}
		// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
		return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
			auth, c.DBHost, port, c.DBName)
	}
}
