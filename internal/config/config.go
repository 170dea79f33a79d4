package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Config represents the global ~/.twchat/config.toml.
type Config struct {
	DefaultSession string  `toml:"default_session"`
	Gateway        Gateway `toml:"gateway"`
	Display        Display `toml:"display"`
}

// Gateway holds the platform endpoints for the session.
type Gateway struct {
	HTTPURL string `toml:"http_url" validate:"required,url"`
	WSURL   string `toml:"ws_url" validate:"required,url"`
}

// Display holds rendering preferences.
type Display struct {
	// Timezone is an IANA zone name used for date dividers and
	// message timestamps. Empty means the system local zone.
	Timezone string `toml:"timezone" validate:"omitempty,timezone"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns a config pointing at the production gateway.
func Default() *Config {
	return &Config{
		Gateway: Gateway{
			HTTPURL: "https://gateway.tradewell.app/graphql",
			WSURL:   "wss://gateway.tradewell.app/graphql",
		},
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
