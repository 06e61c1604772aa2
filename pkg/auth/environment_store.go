package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements CredentialStore using environment variables.
// Read-only; intended for CI and headless hosts without a keychain.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve gets the session cookie from the environment
func (e *EnvironmentStore) Retrieve(gallery string) (*Account, error) {
	cookie := os.Getenv("GALLERYGRAB_SESSION_COOKIE")
	if cookie == "" {
		return nil, ErrCredentialsNotFound
	}

	if gallery == "" {
		gallery = "default"
	}

	return &Account{
		Gallery:       gallery,
		SessionCookie: cookie,
		LastModified:  time.Now(),
	}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(gallery string) error {
	return ErrStoreUnavailable
}

// Exists checks if the environment holds a session cookie
func (e *EnvironmentStore) Exists(gallery string) bool {
	return os.Getenv("GALLERYGRAB_SESSION_COOKIE") != ""
}
