package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

const tokenKey = "server.api_token"

// GetAPIToken returns the bearer token protecting the management API.
// QUILL_API_TOKEN wins when set; otherwise the token is read from the
// config backend, generated on first use, and persisted there.
func GetAPIToken(b ConfigBackend) (string, error) {
	if env := os.Getenv("QUILL_API_TOKEN"); env != "" {
		return env, nil
	}

	token, ok, err := b.GetString(tokenKey)
	if err != nil {
		return "", fmt.Errorf("reading API token: %w", err)
	}
	if ok && token != "" {
		return token, nil
	}

	token = uuid.New().String()
	if err := b.SetString(tokenKey, token); err != nil {
		return "", fmt.Errorf("persisting API token: %w", err)
	}
	return token, nil
}

// NewBackend exposes the file backend for callers outside the package
// (token retrieval in the CLI).
func NewBackend() ConfigBackend {
	return newFileBackend()
}
