// Package secrets abstracts credential storage. The rest of the tool only
// sees Get/Set/Delete; how secrets reach durable storage is opaque to it.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/TarunvirBains/ao-no-out7ook/internal/faults"
	"github.com/TarunvirBains/ao-no-out7ook/internal/models"
)

const service = "ao-no-out7ook"

// KeyTrackerPAT is the credential key for the tracker/timer PAT.
const KeyTrackerPAT = "tracker-pat"

// Store is the secret-store collaborator contract.
type Store interface {
	Get(key string) (string, error)
	Set(key, secret string) error
	Delete(key string) error
}

// Keyring stores secrets in the system keyring. An environment variable of
// the form AO_<KEY> (dashes to underscores, upper-cased) takes precedence
// on Get, which keeps CI and scripted use out of the keyring entirely.
type Keyring struct{}

// New returns the default keyring-backed store.
func New() *Keyring { return &Keyring{} }

func envName(key string) string {
	return "AO_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

func (k *Keyring) Get(key string) (string, error) {
	if v := os.Getenv(envName(key)); v != "" {
		return v, nil
	}
	secret, err := keyring.Get(service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", &faults.AuthError{
				Source: models.SourceTracker,
				Err:    fmt.Errorf("credential %q not set; run 'ao auth set' or export %s", key, envName(key)),
			}
		}
		return "", fmt.Errorf("keyring get %s: %w", key, err)
	}
	return secret, nil
}

func (k *Keyring) Set(key, secret string) error {
	if err := keyring.Set(service, key, secret); err != nil {
		return fmt.Errorf("keyring set %s: %w", key, err)
	}
	return nil
}

func (k *Keyring) Delete(key string) error {
	if err := keyring.Delete(service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete %s: %w", key, err)
	}
	return nil
}
