package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env     string `yaml:"env" env:"APP_ENV" env-default:"dev"`
	Port    int    `yaml:"port" env:"PORT" env-default:"8080"`
	Storage string `yaml:"storage" env:"STORAGE" env-default:"postgres"`

	DB       DB       `yaml:"db"`
	Session  Session  `yaml:"session"`
	Autosave Autosave `yaml:"autosave"`
	Verify   Verify   `yaml:"verification"`
	Redis    Redis    `yaml:"redis"`
	Limits   Limits   `yaml:"rate_limit"`
	Mail     Mail     `yaml:"mail"`
	Sweeper  Sweeper  `yaml:"sweeper"`

	CORSOrigins  []string `yaml:"cors_origins" env:"CORS_ORIGINS" env-separator:"," env-default:"http://localhost:5173"`
	OTELEndpoint string   `yaml:"otel_endpoint" env:"OTEL_ENDPOINT"`
	MaxBodyBytes int64    `yaml:"max_body_bytes" env:"MAX_BODY_BYTES" env-default:"2097152"`

	// Dev convenience account, created at startup when both are set.
	SeedEmail    string `yaml:"seed_email" env:"SEED_EMAIL"`
	SeedPassword string `yaml:"seed_password" env:"SEED_PASSWORD"`

	// DBURL is assembled from DB after loading.
	DBURL string `yaml:"-" env:"-"`
}

type DB struct {
	Host     string `yaml:"host" env:"DB_HOST" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"DB_USER" env-default:"scribe"`
	Password string `yaml:"password" env:"DB_PASSWORD" env-default:"scribe"`
	Name     string `yaml:"name" env:"DB_NAME" env-default:"scribe"`
	SSLMode  string `yaml:"sslmode" env:"DB_SSLMODE" env-default:"disable"`
	MaxConns int32  `yaml:"max_conns" env:"DB_MAX_CONNS" env-default:"10"`
}

type Session struct {
	Secret string        `yaml:"secret" env:"JWT_SECRET"`
	TTL    time.Duration `yaml:"ttl" env:"SESSION_TTL" env-default:"1h"`
	Cookie string        `yaml:"cookie" env:"SESSION_COOKIE" env-default:"token"`
}

type Autosave struct {
	Window      time.Duration `yaml:"window" env:"AUTOSAVE_WINDOW" env-default:"2s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"AUTOSAVE_IDLE_TIMEOUT" env-default:"30m"`
}

type Verify struct {
	TTL time.Duration `yaml:"ttl" env:"VERIFICATION_TTL" env-default:"10m"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Limits struct {
	AuthPerMinute    int `yaml:"auth_per_minute" env:"RATE_LIMIT_AUTH_PER_MINUTE" env-default:"20"`
	PrivatePerMinute int `yaml:"private_per_minute" env:"RATE_LIMIT_PRIVATE_PER_MINUTE" env-default:"600"`
	CodesPerMinute   int `yaml:"codes_per_minute" env:"RATE_LIMIT_CODES_PER_MINUTE" env-default:"3"`
}

type Mail struct {
	Host     string `yaml:"smtp_host" env:"SMTP_HOST"`
	Port     int    `yaml:"smtp_port" env:"SMTP_PORT" env-default:"2525"`
	Username string `yaml:"smtp_username" env:"SMTP_USERNAME"`
	Password string `yaml:"smtp_password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"MAIL_FROM" env-default:"Scribe <no-reply@scribe.local>"`
}

type Sweeper struct {
	Interval  time.Duration `yaml:"interval" env:"SWEEP_INTERVAL" env-default:"5m"`
	Retention time.Duration `yaml:"retention" env:"SWEEP_RETENTION" env-default:"24h"`
	Port      int           `yaml:"port" env:"SWEEPER_PORT" env-default:"8081"`
}

var ErrMissingSecret = errors.New("JWT_SECRET must be set outside dev")

// Load reads .env (if present), then an optional YAML file named by
// CONFIG_PATH, then the environment. Environment values win.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	var err error

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if cfg.Session.Secret == "" {
		if cfg.Env != "dev" && cfg.Env != "test" {
			return Config{}, ErrMissingSecret
		}
		cfg.Session.Secret = "dev-only-secret"
	}

	cfg.DBURL = buildDBURL(cfg.DB)

	return cfg, nil
}

// MustLoad is Load for main packages.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func buildDBURL(db DB) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(db.User, db.Password),
		Host:     db.Host + ":" + db.Port,
		Path:     "/" + db.Name,
		RawQuery: "sslmode=" + url.QueryEscape(db.SSLMode),
	}
	return u.String()
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}
