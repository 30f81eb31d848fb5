// Package config loads the server configuration.
//
// Two sources are supported and both are optional:
//  1. A YAML file, named by CONFIG_PATH or the --config flag.
//  2. Environment variables, which always win over the file.
//
// Every external integration (webhooks, the Notion database, tracing) is off
// when its settings are empty, so a bare `go run ./cmd/server` starts a fully
// working site that simulates submissions.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/sakif/bookdigest/internal/model"
)

// Config is the root configuration structure.
type Config struct {
	// Env controls the log format: "dev" prints text at debug level,
	// everything else prints JSON at info level.
	Env string `yaml:"env" env:"ENV" env-default:"dev"`

	HTTP    HTTP    `yaml:"http"`
	Site    Site    `yaml:"site"`
	Webhook Webhook `yaml:"webhook"`
	Notion  Notion  `yaml:"notion"`
	Submit  Submit  `yaml:"submit"`

	// VisitorSecret signs the anonymous visitor cookie. Empty disables it.
	VisitorSecret string `yaml:"visitor_secret" env:"VISITOR_SECRET"`

	// LogHashKey keys the pseudonyms written to logs in place of e-mail
	// addresses. Empty uses a random key per process.
	LogHashKey string `yaml:"log_hash_key" env:"LOG_HASH_KEY"`

	Telemetry Telemetry `yaml:"telemetry"`
}

type HTTP struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"30s"`
	// TrustedProxies lists the addresses or CIDR prefixes allowed to set
	// X-Forwarded-For and X-Real-IP. Empty trusts no one.
	TrustedProxies []string `yaml:"trusted_proxies" env:"TRUSTED_PROXIES" env-separator:","`
}

type Site struct {
	// URL is the public origin used for canonical links and the sitemap.
	URL  string `yaml:"url" env:"SITE_URL" env-default:"https://bookdigest.club"`
	Name string `yaml:"name" env:"SITE_NAME" env-default:"Book Digest"`
}

// Webhook holds the per-location form processor endpoints.
type Webhook struct {
	EndpointTW string        `yaml:"endpoint_tw" env:"WEBHOOK_ENDPOINT_TW"`
	EndpointNL string        `yaml:"endpoint_nl" env:"WEBHOOK_ENDPOINT_NL"`
	Timeout    time.Duration `yaml:"timeout" env:"WEBHOOK_TIMEOUT" env-default:"10s"`
}

// Endpoint returns the configured URL for loc, or "".
func (w Webhook) Endpoint(loc model.Location) string {
	switch loc {
	case model.LocationTW:
		return w.EndpointTW
	case model.LocationNL:
		return w.EndpointNL
	}
	return ""
}

type Notion struct {
	Token      string        `yaml:"token" env:"NOTION_TOKEN"`
	DatabaseID string        `yaml:"database_id" env:"NOTION_DB_ID"`
	BaseURL    string        `yaml:"base_url" env:"NOTION_BASE_URL" env-default:"https://api.notion.com/v1"`
	Version    string        `yaml:"version" env:"NOTION_VERSION" env-default:"2022-06-28"`
	Timeout    time.Duration `yaml:"timeout" env:"NOTION_TIMEOUT" env-default:"10s"`
}

// Configured reports whether both the token and database id are set.
func (n Notion) Configured() bool {
	return n.Token != "" && n.DatabaseID != ""
}

type Submit struct {
	// SaveToNotion mirrors SUBMIT_SAVE_TO_NOTION=1.
	SaveToNotion  bool          `yaml:"save_to_notion" env:"SUBMIT_SAVE_TO_NOTION" env-default:"false"`
	SimulateDelay time.Duration `yaml:"simulate_delay" env:"SUBMIT_SIMULATE_DELAY" env-default:"300ms"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" env:"SUBMIT_MAX_BODY_BYTES" env-default:"65536"`
	// RatePerMinute <= 0 disables the limiter.
	RatePerMinute int `yaml:"rate_per_minute" env:"SUBMIT_RATE_PER_MINUTE" env-default:"10"`
	RateBurst     int `yaml:"rate_burst" env:"SUBMIT_RATE_BURST" env-default:"5"`
}

type Telemetry struct {
	// OTLPEndpoint enables tracing when set, e.g. "http://localhost:4318".
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `yaml:"service_name" env:"OTEL_SERVICE_NAME" env-default:"bookdigest"`
	Insecure     bool   `yaml:"insecure" env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"false"`
}

// Load reads the configuration. args are the command-line arguments
// without the program name.
func Load(args []string) (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		fs := flag.NewFlagSet("bookdigest", flag.ContinueOnError)
		flagPath := fs.String("config", "", "Path to an optional YAML configuration file")
		if err := fs.Parse(args); err != nil {
			return nil, fmt.Errorf("parsing flags: %w", err)
		}
		path = *flagPath
	}

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		// ReadConfig also applies env overrides after the file.
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Submit.MaxBodyBytes <= 0 {
		return fmt.Errorf("SUBMIT_MAX_BODY_BYTES must be positive, got %d", c.Submit.MaxBodyBytes)
	}
	if c.Submit.SimulateDelay < 0 {
		return fmt.Errorf("SUBMIT_SIMULATE_DELAY must not be negative, got %s", c.Submit.SimulateDelay)
	}
	return nil
}

// IsDev reports whether the server runs in the dev environment.
func (c *Config) IsDev() bool {
	return c.Env == "dev" || c.Env == "local"
}

// NewLogger builds the process logger for this environment.
func (c *Config) NewLogger() *slog.Logger {
	if c.IsDev() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
