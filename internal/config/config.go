// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. PIZZABOT_TELEGRAM_TOKEN.
const EnvPrefix = "PIZZABOT"

type RuntimeConfig struct {
	Dev bool
}

type TelegramConfig struct {
	Enabled bool          `yaml:"enabled"`
	Token   string        `yaml:"token" envconfig:"TELEGRAM_TOKEN" validate:"required_if=Enabled true"`
	Mode    string        `yaml:"mode" validate:"omitempty,oneof=polling"`
	Workers int           `yaml:"workers" validate:"gte=0"`
	Timeout int           `yaml:"timeout"` // long polling timeout, seconds
	RateMax int           `yaml:"rate_max"`
	RateWin time.Duration `yaml:"rate_window"`
}

type FacebookConfig struct {
	Enabled     bool   `yaml:"enabled"`
	PageToken   string `yaml:"page_token" envconfig:"FACEBOOK_PAGE_TOKEN" validate:"required_if=Enabled true"`
	VerifyToken string `yaml:"verify_token" envconfig:"FACEBOOK_VERIFY_TOKEN" validate:"required_if=Enabled true"`
	GraphURL    string `yaml:"graph_url" validate:"omitempty,url"`
	Workers     int    `yaml:"workers" validate:"gte=0"`
	// FrontPageCategory is shown first when the user opens the menu.
	FrontPageCategory string `yaml:"front_page_category"`
}

type LogConfig struct {
	Level    string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format   string `yaml:"format" validate:"omitempty,oneof=json console"`
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port         int           `yaml:"port" envconfig:"HTTP_PORT" validate:"gte=0,lte=65535"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type AdminConfig struct {
	JWTSecret string `yaml:"jwt_secret" envconfig:"ADMIN_JWT_SECRET"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url" envconfig:"DATABASE_URL"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url" envconfig:"REDIS_URL"`
	Password string        `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type CommerceConfig struct {
	BaseURL      string `yaml:"base_url" validate:"required,url"`
	ClientID     string `yaml:"client_id" envconfig:"COMMERCE_CLIENT_ID" validate:"required"`
	ClientSecret string `yaml:"client_secret" envconfig:"COMMERCE_CLIENT_SECRET"`
	Currency     string `yaml:"currency"`
}

type GeocoderConfig struct {
	URL    string `yaml:"url" validate:"omitempty,url"`
	APIKey string `yaml:"api_key" envconfig:"GEOCODER_API_KEY" validate:"required"`
}

type PaymentConfig struct {
	ProviderToken string `yaml:"provider_token" envconfig:"PAYMENT_PROVIDER_TOKEN"`
	Currency      string `yaml:"currency" validate:"omitempty,len=3"`
	// InvoiceTTL is how long an unpaid invoice stays pending.
	InvoiceTTL time.Duration `yaml:"invoice_ttl"`
}

type ConversationConfig struct {
	SessionTTL      time.Duration `yaml:"session_ttl"`
	LockTTL         time.Duration `yaml:"lock_ttl"`
	LockWait        time.Duration `yaml:"lock_wait"`
	DedupTTL        time.Duration `yaml:"dedup_ttl"`
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
	FollowUpDelay   time.Duration `yaml:"followup_delay"`
	ProductsPerPage int           `yaml:"products_per_page" validate:"gte=0,lte=10"`
}

type I18nConfig struct {
	Lang string `yaml:"lang"`
}

type Config struct {
	Telegram     TelegramConfig     `yaml:"telegram"`
	Facebook     FacebookConfig     `yaml:"facebook"`
	Log          LogConfig          `yaml:"log"`
	HTTP         HTTPConfig         `yaml:"http"`
	Admin        AdminConfig        `yaml:"admin"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Commerce     CommerceConfig     `yaml:"commerce"`
	Geocoder     GeocoderConfig     `yaml:"geocoder"`
	Payment      PaymentConfig      `yaml:"payment"`
	Conversation ConversationConfig `yaml:"conversation"`
	I18n         I18nConfig         `yaml:"i18n"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file, overlays PIZZABOT_* environment variables
// (a .env file in the working directory is loaded first when present),
// applies defaults and validates the result.
func LoadConfig(path string, dev bool) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse builds a Config from YAML bytes plus the environment.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays only the variables that are actually set so YAML values survive.
func applyEnv(cfg *Config) error {
	targets := []any{
		&cfg.Telegram, &cfg.Facebook, &cfg.HTTP, &cfg.Admin, &cfg.Database,
		&cfg.Redis, &cfg.Commerce, &cfg.Geocoder, &cfg.Payment,
	}
	for _, t := range targets {
		if err := envconfig.Process(EnvPrefix, t); err != nil {
			return fmt.Errorf("env config: %w", err)
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Telegram.Workers <= 0 {
		cfg.Telegram.Workers = 8
	}
	if cfg.Telegram.Mode == "" {
		cfg.Telegram.Mode = "polling"
	}
	if cfg.Telegram.Timeout <= 0 {
		cfg.Telegram.Timeout = 60
	}
	if cfg.Telegram.RateMax <= 0 {
		cfg.Telegram.RateMax = 20
	}
	if cfg.Telegram.RateWin <= 0 {
		cfg.Telegram.RateWin = 10 * time.Second
	}
	if cfg.Facebook.Workers <= 0 {
		cfg.Facebook.Workers = 8
	}
	if cfg.Facebook.GraphURL == "" {
		cfg.Facebook.GraphURL = "https://graph.facebook.com/v2.6"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.ReadTimeout <= 0 {
		cfg.HTTP.ReadTimeout = 10 * time.Second
	}
	if cfg.HTTP.WriteTimeout <= 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.CacheTTL = normalizeTTL(cfg.Redis.CacheTTL, 10*time.Minute)
	if cfg.Commerce.Currency == "" {
		cfg.Commerce.Currency = "RUB"
	}
	if cfg.Geocoder.URL == "" {
		cfg.Geocoder.URL = "https://geocode-maps.yandex.ru/1.x"
	}
	if cfg.Payment.Currency == "" {
		cfg.Payment.Currency = cfg.Commerce.Currency
	}
	cfg.Payment.InvoiceTTL = normalizeTTL(cfg.Payment.InvoiceTTL, 24*time.Hour)

	c := &cfg.Conversation
	c.SessionTTL = normalizeTTL(c.SessionTTL, 30*24*time.Hour)
	c.LockTTL = normalizeTTL(c.LockTTL, 30*time.Second)
	c.LockWait = normalizeTTL(c.LockWait, 10*time.Second)
	c.DedupTTL = normalizeTTL(c.DedupTTL, 10*time.Minute)
	c.UpstreamTimeout = normalizeTTL(c.UpstreamTimeout, 5*time.Second)
	c.FollowUpDelay = normalizeTTL(c.FollowUpDelay, time.Hour)
	if c.ProductsPerPage <= 0 {
		c.ProductsPerPage = 9
	}
	if cfg.I18n.Lang == "" {
		cfg.I18n.Lang = "ru"
	}
}

var validate = validator.New()

// Validate checks struct tags plus the cross-field rules tags can't express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if !cfg.Telegram.Enabled && !cfg.Facebook.Enabled {
		return errors.New("invalid config: enable at least one of telegram, facebook")
	}
	if cfg.Conversation.LockTTL <= cfg.Conversation.UpstreamTimeout {
		return errors.New("invalid config: conversation.lock_ttl must exceed conversation.upstream_timeout")
	}
	if cfg.Redis.URL == "" && !cfg.Runtime.Dev {
		return errors.New("invalid config: redis.url is required outside dev mode")
	}
	return nil
}

func normalizeTTL(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
