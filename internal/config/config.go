// Package config loads estatebot settings from a YAML file with ESTATEBOT_* environment
// overrides on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/denisok6893-rgb/estatebot/internal/bots"
	"github.com/denisok6893-rgb/estatebot/internal/filestore"
	"github.com/denisok6893-rgb/estatebot/internal/flow"
	"github.com/denisok6893-rgb/estatebot/internal/logging"
	"github.com/denisok6893-rgb/estatebot/internal/matching"
	"github.com/denisok6893-rgb/estatebot/internal/telegram"
)

const envPrefix = "ESTATEBOT_"

type HTTPConfig struct {
	Address         string        `koanf:"address" yaml:"address"`
	ReadTimeout     time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `koanf:"allowed_origins" yaml:"allowed_origins,omitempty"`
}

type DatabaseConfig struct {
	Path string `koanf:"path" yaml:"path"`
}

type Config struct {
	HTTP      HTTPConfig       `koanf:"http" yaml:"http"`
	Database  DatabaseConfig   `koanf:"database" yaml:"database"`
	Matching  matching.Config  `koanf:"matching" yaml:"matching"`
	Flow      flow.Config      `koanf:"flow" yaml:"flow"`
	Telegram  telegram.Config  `koanf:"telegram" yaml:"telegram"`
	FileStore filestore.Config `koanf:"filestore" yaml:"filestore"`
	Log       logging.Config   `koanf:"log" yaml:"log"`
	// Strings overrides the built-in texts per language; empty entries keep the default.
	Strings bots.Catalog `koanf:"strings" yaml:"strings,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:         ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  20 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database:  DatabaseConfig{Path: "./data/estatebot.db"},
		Matching:  matching.DefaultConfig(),
		Flow:      flow.DefaultConfig(),
		Telegram:  telegram.DefaultConfig(),
		FileStore: filestore.DefaultConfig(),
		Log:       logging.DefaultConfig(),
	}
}

// envKey maps ESTATEBOT_HTTP_ADDRESS to http.address. The first underscore ends the
// section name; a double underscore marks one more level, as in
// ESTATEBOT_FILESTORE_BREAKER__MAX_FAILURES.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, rest, ok := strings.Cut(s, "_")
	if !ok {
		return section
	}
	return section + "." + strings.ReplaceAll(rest, "__", ".")
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (ESTATEBOT_*). A missing file means defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.Strings = cfg.Strings.WithDefaults(bots.DefaultCatalog())
	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validLogFormats = map[string]bool{"text": true, "json": true}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTP.Address) == "" {
		errs = append(errs, errors.New("http.address is required"))
	}
	if c.HTTP.ReadTimeout < 0 || c.HTTP.WriteTimeout < 0 || c.HTTP.RequestTimeout < 0 || c.HTTP.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("http timeouts must be non-negative"))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if err := c.Matching.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Flow.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Telegram.PollTimeout < 0 {
		errs = append(errs, errors.New("telegram.poll_timeout must be non-negative"))
	}
	if c.FileStore.Breaker.MaxFailures <= 0 || c.FileStore.Breaker.ResetTimeout <= 0 {
		errs = append(errs, errors.New("filestore.breaker needs max_failures > 0 and reset_timeout > 0"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, fmt.Errorf("invalid log.format %q: must be text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}
