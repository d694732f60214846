package keyring

import (
	"errors"
	"fmt"
	"os"

	zkr "github.com/zalando/go-keyring"
)

const serviceName = "maxagent"

// GetAPIKey retrieves the stored API key for a provider from the OS keychain.
func GetAPIKey(provider string) (string, error) {
	key, err := zkr.Get(serviceName, provider)
	if err != nil {
		return "", fmt.Errorf("keychain get %s: %w", provider, err)
	}
	return key, nil
}

// SetAPIKey stores an API key for a provider in the OS keychain.
func SetAPIKey(provider, key string) error {
	return zkr.Set(serviceName, provider, key)
}

// DeleteAPIKey removes a provider's API key from the OS keychain.
func DeleteAPIKey(provider string) error {
	return zkr.Delete(serviceName, provider)
}

// IsNotFound reports whether the error means no key is stored for the provider.
func IsNotFound(err error) bool {
	return errors.Is(err, zkr.ErrNotFound)
}

// Available returns true if the OS keychain is functional.
// Returns false if MAXAGENT_KEYRING_DISABLED=1 is set (opt-in for headless/CI/Docker).
// Otherwise probes the keychain with a test write/delete cycle.
func Available() bool {
	if os.Getenv("MAXAGENT_KEYRING_DISABLED") == "1" {
		return false
	}
	testService := "maxagent-keyring-probe"
	testAccount := "probe"
	if err := zkr.Set(testService, testAccount, "ok"); err != nil {
		return false
	}
	_ = zkr.Delete(testService, testAccount)
	return true
}
