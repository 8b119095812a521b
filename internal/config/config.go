package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Port   string
	AppEnv string

	DB    DB
	Cache Cache
	Rate  RateLimit
	Admin Admin
	Pay   PayPal
	Media Media

	SessionSecret string
	Currency      string
	APIURL        string
	// TrustProxy takes the client address from X-Forwarded-For/X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool
}

type DB struct {
	Driver          string
	DSN             string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdle     time.Duration
	ConnMaxLifetime time.Duration
}

type Cache struct {
	Enabled   bool
	RedisURL  string
	TTL       time.Duration
	OpTimeout time.Duration
}

type RateLimit struct {
	Max    int
	Window time.Duration
}

type Admin struct {
	Email        string
	Password     string
	PasswordHash string
	EnforceRole  bool
}

type PayPal struct {
	ClientID     string
	ClientSecret string
	Mode         string
}

// Media carries the asset-upload settings handed to the admin UI. Uploads
// happen client side; the server only persists metadata.
type Media struct {
	CloudName    string
	UploadPreset string
}

// IsDevelopment reports whether dev-only behaviour (request logging,
// console logs) is on.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("DB_DRIVER", "sqlite3")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "shell_stories")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("DB_CONN_MAX_IDLE", 5*time.Minute)
	v.SetDefault("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	v.SetDefault("SQLITE_PATH", "data/shellstories.db")
	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_TTL", 60*time.Second)
	v.SetDefault("CACHE_OP_TIMEOUT", 300*time.Millisecond)
	v.SetDefault("RATE_LIMIT_MAX", 30)
	v.SetDefault("RATE_LIMIT_WINDOW", 60*time.Second)
	v.SetDefault("ENFORCE_ADMIN_ROLE", true)
	v.SetDefault("PAYPAL_MODE", "sandbox")
	v.SetDefault("CURRENCY", "USD")
	v.SetDefault("STUDIO_API_URL", "http://localhost:8080")
	v.SetDefault("TRUST_PROXY", false)
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:   strings.TrimSpace(v.GetString("PORT")),
		AppEnv: strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV"))),
		DB: DB{
			Driver:          strings.ToLower(strings.TrimSpace(v.GetString("DB_DRIVER"))),
			DSN:             strings.TrimSpace(v.GetString("DATABASE_URL")),
			SQLitePath:      strings.TrimSpace(v.GetString("SQLITE_PATH")),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxIdle:     v.GetDuration("DB_CONN_MAX_IDLE"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Cache: Cache{
			Enabled:   v.GetBool("CACHE_ENABLED"),
			RedisURL:  strings.TrimSpace(v.GetString("REDIS_URL")),
			TTL:       v.GetDuration("CACHE_TTL"),
			OpTimeout: v.GetDuration("CACHE_OP_TIMEOUT"),
		},
		Rate: RateLimit{
			Max:    v.GetInt("RATE_LIMIT_MAX"),
			Window: v.GetDuration("RATE_LIMIT_WINDOW"),
		},
		Admin: Admin{
			Email:        strings.ToLower(strings.TrimSpace(v.GetString("ADMIN_EMAIL"))),
			Password:     v.GetString("ADMIN_PASSWORD"),
			PasswordHash: strings.TrimSpace(v.GetString("ADMIN_PASSWORD_HASH")),
			EnforceRole:  v.GetBool("ENFORCE_ADMIN_ROLE"),
		},
		Pay: PayPal{
			ClientID:     strings.TrimSpace(v.GetString("PAYPAL_CLIENT_ID")),
			ClientSecret: strings.TrimSpace(v.GetString("PAYPAL_CLIENT_SECRET")),
			Mode:         strings.ToLower(strings.TrimSpace(v.GetString("PAYPAL_MODE"))),
		},
		Media: Media{
			CloudName:    strings.TrimSpace(v.GetString("CLOUDINARY_CLOUD_NAME")),
			UploadPreset: strings.TrimSpace(v.GetString("CLOUDINARY_UPLOAD_PRESET")),
		},
		SessionSecret: v.GetString("SESSION_SECRET"),
		Currency:      strings.ToUpper(strings.TrimSpace(v.GetString("CURRENCY"))),
		APIURL:        strings.TrimRight(strings.TrimSpace(v.GetString("STUDIO_API_URL")), "/"),
		TrustProxy:    v.GetBool("TRUST_PROXY"),
	}

	if cfg.DB.Driver == "pgx" && cfg.DB.DSN == "" {
		host := strings.TrimSpace(v.GetString("DB_HOST"))
		if host == "" {
			return nil, errors.New("DB_DRIVER=pgx requires DATABASE_URL or DB_HOST")
		}
		cfg.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			v.GetString("DB_USER"), v.GetString("DB_PASSWORD"), host,
			v.GetString("DB_PORT"), v.GetString("DB_NAME"), v.GetString("DB_SSLMODE"))
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "sqlite3", "pgx":
	default:
		return errors.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.Rate.Max < 1 {
		return errors.New("RATE_LIMIT_MAX must be positive")
	}
	if c.Rate.Window <= 0 {
		return errors.New("RATE_LIMIT_WINDOW must be positive")
	}
	if c.Cache.TTL <= 0 {
		return errors.New("CACHE_TTL must be positive")
	}
	if c.Pay.Mode != "sandbox" && c.Pay.Mode != "live" {
		return errors.Errorf("unsupported PAYPAL_MODE %q", c.Pay.Mode)
	}
	if !c.IsDevelopment() && len(c.SessionSecret) < 32 {
		return errors.New("SESSION_SECRET must be at least 32 bytes outside development")
	}
	return nil
}
