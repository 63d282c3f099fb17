package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AppEnv        string `envconfig:"APP_ENV" default:"production"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`

	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	ReportCacheTTL time.Duration `envconfig:"REPORT_CACHE_TTL" default:"60s"`

	AuthSecret     string        `envconfig:"AUTH_SECRET"`
	AccessTokenTTL time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"8h"`
	ManagerPIN     string        `envconfig:"MANAGER_PIN"`
	LoginRateLimit int           `envconfig:"LOGIN_RATE_LIMIT" default:"10"`
	PINRateLimit   int           `envconfig:"PIN_RATE_LIMIT" default:"8"`

	TaxPolicy          string        `envconfig:"TAX_POLICY" default:"flat8"`
	FlatTaxRatePercent float64       `envconfig:"FLAT_TAX_RATE_PERCENT" default:"8"`
	TaxCountry         string        `envconfig:"TAX_COUNTRY" default:"USA"`
	EstimationValidity time.Duration `envconfig:"ESTIMATION_VALIDITY" default:"168h"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.ManagerPIN = strings.TrimSpace(cfg.ManagerPIN)
	cfg.TaxCountry = strings.ToUpper(strings.TrimSpace(cfg.TaxCountry))

	if cfg.ReportCacheTTL < time.Second {
		cfg.ReportCacheTTL = 60 * time.Second
	}
	if cfg.AccessTokenTTL < time.Minute {
		cfg.AccessTokenTTL = 8 * time.Hour
	}
	if cfg.EstimationValidity <= 0 {
		cfg.EstimationValidity = 7 * 24 * time.Hour
	}
	if cfg.LoginRateLimit < 1 {
		cfg.LoginRateLimit = 10
	}
	if cfg.PINRateLimit < 1 {
		cfg.PINRateLimit = 8
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}
