// Package auth stores the gallery session credential used by the viewport
// adapter to open an authenticated browser session. Encryption is delegated
// to the operating system keychain; an environment-variable store serves as
// the non-interactive fallback.
package auth

import (
	"errors"
	"time"
)

var (
	// ErrCredentialsNotFound is returned when no credentials exist
	ErrCredentialsNotFound = errors.New("credentials not found")
	// ErrInvalidCredentials is returned when credentials are malformed
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrStoreUnavailable is returned when a store cannot be used
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// Account holds the session credential for one gallery
type Account struct {
	Gallery       string    `json:"gallery"`
	SessionCookie string    `json:"session_cookie"`
	LastModified  time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves credentials for a gallery
	Store(account *Account) error

	// Retrieve gets credentials for a gallery
	Retrieve(gallery string) (*Account, error)

	// Delete removes credentials for a gallery
	Delete(gallery string) error

	// Exists checks if credentials exist for a gallery
	Exists(gallery string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager: system keychain first, then the
// environment store as a read-only fallback.
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a manager over explicit stores. Used by tests.
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves credentials using the first store that accepts them
func (m *Manager) Store(account *Account) error {
	if account == nil || account.Gallery == "" {
		return ErrInvalidCredentials
	}
	if account.SessionCookie == "" {
		return errors.New("session cookie is required")
	}

	account.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(account); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = ErrStoreUnavailable
	}
	return lastErr
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(gallery string) (*Account, error) {
	for _, store := range m.stores {
		if account, err := store.Retrieve(gallery); err == nil {
			return account, nil
		}
	}
	return nil, ErrCredentialsNotFound
}

// Delete removes credentials from every store that holds them
func (m *Manager) Delete(gallery string) error {
	deleted := false
	for _, store := range m.stores {
		if store.Exists(gallery) {
			if err := store.Delete(gallery); err == nil {
				deleted = true
			}
		}
	}
	if !deleted {
		return ErrCredentialsNotFound
	}
	return nil
}

// Exists checks whether any store holds credentials for the gallery
func (m *Manager) Exists(gallery string) bool {
	for _, store := range m.stores {
		if store.Exists(gallery) {
			return true
		}
	}
	return false
}
