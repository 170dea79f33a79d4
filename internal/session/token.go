package session

import (
	"os"
	"strings"
)

// ReadToken loads the stored gateway token for a session.
// The token file is written by `twchat login` and read at startup.
func ReadToken(name string) (string, error) {
	data, err := os.ReadFile(TokenPath(name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteToken stores the gateway token with owner-only permissions.
func WriteToken(name, token string) error {
	if err := EnsureDir(name); err != nil {
		return err
	}
	return os.WriteFile(TokenPath(name), []byte(token+"\n"), 0600)
}
