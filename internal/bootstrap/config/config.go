package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"hookfeed/internal/bootstrap/logging"
	"hookfeed/internal/errs"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Query    QueryConfig    `mapstructure:"query"`
	NATS     NATSConfig     `mapstructure:"nats"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	// BaseURL is the externally visible address shown to clients; it is never
	// used to route requests.
	BaseURL string `mapstructure:"base_url"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// ReadTimeout bounds reading the whole request including the body.
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver"`
	DSN          string        `mapstructure:"dsn"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
}

type IngestConfig struct {
	Dedupe bool `mapstructure:"dedupe"`
}

type QueryConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// WebhookURL is the delivery address to paste into the GitHub webhook settings.
func (c AppConfig) WebhookURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/api/webhook"
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HOOKFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			// Keep default and env-backed config when no file is provided.
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("base_url", cfg.App.BaseURL),
		slog.String("database_driver", cfg.Database.Driver),
		slog.Bool("dedupe", cfg.Ingest.Dedupe),
		slog.Bool("nats_enabled", cfg.NATS.URL != ""),
	)

	return cfg, nil
}

func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case "sqlite", "sqlite3", "postgres", "redis":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	if c.Database.Timeout <= 0 {
		return errors.New("database.timeout must be positive")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.IdleTimeout < 0 {
		return errors.New("server timeouts must not be negative")
	}
	if c.Query.DefaultLimit <= 0 {
		return errors.New("query.default_limit must be positive")
	}
	if c.Query.MaxLimit < c.Query.DefaultLimit {
		return errors.New("query.max_limit must not be lower than query.default_limit")
	}
	if _, err := url.ParseRequestURI(c.App.BaseURL); err != nil {
		return errs.Wrap(err, "parse app.base_url")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "hookfeed")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.base_url", "http://localhost:8080")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".hookfeed/events.sqlite")
	v.SetDefault("database.timeout", 5*time.Second)
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("ingest.dedupe", false)
	v.SetDefault("query.default_limit", 50)
	v.SetDefault("query.max_limit", 500)
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "hookfeed.events")
}
