package auth

import (
	"encoding/json"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "gallerygrab"
	keyringPrefix  = "gallery_"
)

// KeyringStore implements CredentialStore using the system keychain
type KeyringStore struct{}

// NewKeyringStore creates a new keyring-based credential store
func NewKeyringStore() (*KeyringStore, error) {
	// Test if keyring is available
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

// Store saves credentials to the system keychain
func (k *KeyringStore) Store(account *Account) error {
	if account == nil || account.Gallery == "" {
		return ErrInvalidCredentials
	}

	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	key := keyringPrefix + account.Gallery
	if err := keyring.Set(keyringService, key, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}

	return nil
}

// Retrieve gets credentials from the system keychain
func (k *KeyringStore) Retrieve(gallery string) (*Account, error) {
	key := keyringPrefix + gallery
	data, err := keyring.Get(keyringService, key)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}

	var account Account
	if err := json.Unmarshal([]byte(data), &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	return &account, nil
}

// Delete removes credentials from the system keychain
func (k *KeyringStore) Delete(gallery string) error {
	key := keyringPrefix + gallery
	if err := keyring.Delete(keyringService, key); err != nil {
		if err == keyring.ErrNotFound {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}

// Exists checks if credentials exist in the keychain
func (k *KeyringStore) Exists(gallery string) bool {
	_, err := keyring.Get(keyringService, keyringPrefix+gallery)
	return err == nil
}
