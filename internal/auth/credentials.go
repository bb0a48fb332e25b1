// ABOUTME: Client-side bearer token lookup
// ABOUTME: Resolves the token from config, COVEN_PLANNER_TOKEN, or a token file under the XDG config dir

package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvToken names the environment variable holding the client token.
const EnvToken = "COVEN_PLANNER_TOKEN"

// TokenSource lists where a client token may come from, in priority order.
type TokenSource struct {
	Token     string // literal token, usually from config
	TokenFile string // explicit token file; must exist when set
}

// ResolveToken returns the first token found in: src.Token, the
// COVEN_PLANNER_TOKEN environment variable, src.TokenFile, and
// $XDG_CONFIG_HOME/coven-planner/token. An empty result with a nil error
// means no token is configured.
func ResolveToken(src TokenSource) (string, error) {
	if src.Token != "" {
		return src.Token, nil
	}
	if token := os.Getenv(EnvToken); token != "" {
		return token, nil
	}

	if src.TokenFile != "" {
		token, err := readTokenFile(src.TokenFile)
		if err != nil {
			return "", err
		}
		return token, nil
	}

	path := DefaultTokenPath()
	if path == "" {
		return "", nil
	}
	token, err := readTokenFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	return token, err
}

// DefaultTokenPath returns $XDG_CONFIG_HOME/coven-planner/token, falling
// back to ~/.config.
func DefaultTokenPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "coven-planner", "token")
}

func readTokenFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
