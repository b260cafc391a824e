package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/nlstn/go-sprest"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the spcli configuration, read from spcli.yaml and SPCLI_*
// environment variables (SPCLI_SITE_URL, SPCLI_AUTH_TOKEN, ...).
type Config struct {
	Site      SiteConfig        `mapstructure:"site"`
	Auth      AuthConfig        `mapstructure:"auth"`
	UserAgent string            `mapstructure:"user_agent"`
	Timeout   time.Duration     `mapstructure:"timeout"`
	Lists     map[string]string `mapstructure:"lists"`
	Groups    map[string]string `mapstructure:"groups"`
	Log       LogConfig         `mapstructure:"log"`
	Mirror    MirrorConfig      `mapstructure:"mirror"`
}

type SiteConfig struct {
	URL               string `mapstructure:"url"`
	ServerRelativeURL string `mapstructure:"server_relative_url"`
}

type AuthConfig struct {
	Token   string `mapstructure:"token"`
	FedAuth string `mapstructure:"fedauth"`
	RtFa    string `mapstructure:"rtfa"`
	Digest  string `mapstructure:"digest"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Format is one of tint, text, json.
	Format string `mapstructure:"format"`
}

type MirrorConfig struct {
	// Driver is sqlite or postgres.
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// defaults registers every key so that environment variables are picked up
// by Unmarshal even without a config file.
var defaults = map[string]any{
	"site.url":                 "",
	"site.server_relative_url": "",
	"auth.token":               "",
	"auth.fedauth":             "",
	"auth.rtfa":                "",
	"auth.digest":              "",
	"user_agent":               "spcli",
	"timeout":                  30 * time.Second,
	"log.level":                "info",
	"log.format":               "tint",
	"mirror.driver":            "sqlite",
	"mirror.dsn":               "spcli-mirror.db",
}

// loadConfig reads the config file at path, or spcli.yaml from the working
// directory and $HOME/.config/spcli when path is empty. A missing default
// file is not an error, a missing explicit file is.
func loadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("spcli")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "spcli"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("SPCLI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range map[string]string{
			"site.url":   "site",
			"log.level":  "log-level",
			"log.format": "log-format",
		} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// newLogger builds the slog logger described by cfg.
func newLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "tint":
		handler = tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.Kitchen})
	case "text":
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		return nil, fmt.Errorf("invalid log format: %s", cfg.Format)
	}
	return slog.New(handler), nil
}

// clientConfig maps cfg onto the library configuration.
func (cfg *Config) clientConfig() (sprest.Config, error) {
	if cfg.Site.URL == "" {
		return sprest.Config{}, errors.New("site url is required (--site, site.url or SPCLI_SITE_URL)")
	}

	var auth sprest.Authorizer
	switch {
	case cfg.Auth.Token != "":
		auth = sprest.BearerToken(cfg.Auth.Token)
	case cfg.Auth.FedAuth != "":
		auth = sprest.CookieAuth{FedAuth: cfg.Auth.FedAuth, RtFa: cfg.Auth.RtFa}
	}

	return sprest.Config{
		SiteURL:           cfg.Site.URL,
		ServerRelativeURL: cfg.Site.ServerRelativeURL,
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		Authorizer:        auth,
		RequestDigest:     cfg.Auth.Digest,
		UserAgent:         cfg.UserAgent,
		Lists:             cfg.Lists,
		Groups:            cfg.Groups,
	}, nil
}
