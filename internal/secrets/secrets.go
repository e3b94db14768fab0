// Package secrets resolves credentials from the environment, then the OS keychain.
package secrets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService groups the tool's secrets in the OS keychain.
	KeyringService = "referrals"

	// GeminiAccount holds the reasoning service API key.
	GeminiAccount = "gemini:api-key"
)

// ErrNotFound is returned when neither the environment nor the keychain has a value.
var ErrNotFound = errors.New("secret not found")

// LinkedInAccount is the keychain account for the sign-in password of email.
func LinkedInAccount(email string) string {
	return "linkedin:" + strings.ToLower(strings.TrimSpace(email))
}

// Lookup returns the value of envVar if set, else the keychain entry for account.
func Lookup(getenv func(string) string, envVar, account string) (string, error) {
	if envVar != "" {
		if v := strings.TrimSpace(getenv(envVar)); v != "" {
			return v, nil
		}
	}
	if strings.TrimSpace(account) != "" {
		v, err := keyring.Get(KeyringService, account)
		if err == nil && strings.TrimSpace(v) != "" {
			return v, nil
		}
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("keychain %s: %w", account, err)
		}
	}
	return "", fmt.Errorf("%w: set %s or store it in the keychain", ErrNotFound, envVar)
}

// Set stores value in the keychain under account.
func Set(account, value string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(value) == "" {
		return errors.New("secret is empty")
	}
	return keyring.Set(KeyringService, account, value)
}

// Delete removes account from the keychain.
func Delete(account string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	return keyring.Delete(KeyringService, account)
}
