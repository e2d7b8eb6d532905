// Package credential stores the daemon's secrets (IMAP password, LLM
// API key, Telegram bot token) in the system keyring, with environment
// variables as a fallback for headless deployments.
package credential

import (
	"fmt"
	"os"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "maildigest"

// Well-known credential keys.
const (
	KeyIMAPPassword  = "imap-password"
	KeyLLMAPIKey     = "llm-api-key"
	KeyTelegramToken = "telegram-bot-token"
)

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/maildigest/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("maildigest-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// envVarName maps a credential key to its environment override, as in
// MAILDIGEST_IMAP_PASSWORD for imap-password.
func envVarName(key string) string {
	return "MAILDIGEST_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// Get retrieves a credential value by key. The environment override
// wins over the keyring, so containerized runs need no keyring at all.
func Get(key string) (string, error) {
	if v := os.Getenv(envVarName(key)); v != "" {
		return v, nil
	}

	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}
