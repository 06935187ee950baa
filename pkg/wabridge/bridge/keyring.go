// Package bridge – keyring.go stores the backend API key in the operating
// system keyring.
//
// Resolution order for the API key:
//  1. OS keyring
//  2. WABRIDGE_API_KEY (environment or .env)
//  3. config.yaml value
package bridge

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	keyringService = "wabridge"
	keyringAPIKey  = "api_key"
)

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring returns a secret from the OS keyring, or "" when absent.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable reports whether the OS keyring accepts writes.
func KeyringAvailable() bool {
	const probe = "__wabridge_test__"
	if err := keyring.Set(keyringService, probe, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, probe)
	return true
}

// StoreAPIKey saves the API key in the keyring.
func StoreAPIKey(value string) error {
	if err := StoreKeyring(keyringAPIKey, value); err != nil {
		return fmt.Errorf("storing in keyring: %w", err)
	}
	return nil
}

// ResolveAPIKey fills cfg.API.APIKey from the keyring, keeping the config
// or environment value when the keyring has none.
func ResolveAPIKey(cfg *Config, logger *slog.Logger) {
	if val := GetKeyring(keyringAPIKey); val != "" {
		cfg.API.APIKey = val
		logger.Debug("API key loaded from OS keyring")
		return
	}
	if cfg.API.APIKey != "" && !IsEnvReference(cfg.API.APIKey) {
		logger.Debug("API key loaded from config/env")
		return
	}
	cfg.API.APIKey = ""
	logger.Warn("no API key found. Set one with: wabridge config set-key")
}

// ReadPassword prompts and reads a line without echo. Piped input falls
// back to a plain read.
func ReadPassword(prompt string) (string, error) {
	fmt.Print(prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return strings.TrimRight(string(b), "\r\n"), nil
	}

	var buf [1024]byte
	n, err := os.Stdin.Read(buf[:])
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(string(buf[:n]), "\r\n"), nil
}
