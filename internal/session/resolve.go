package session

import (
	"os"

	"github.com/tradewell/twchat/internal/config"
)

const DefaultSessionName = "default"

// EnvSession overrides the configured session without touching the flag,
// handy for scripted runs against a second Tradewell account.
const EnvSession = "TWCHAT_SESSION"

// Resolve determines the active session name. Precedence, highest first:
// the --session flag, the TWCHAT_SESSION environment variable, the
// default_session key in config.toml, then "default".
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if env := os.Getenv(EnvSession); env != "" {
		return env
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}
