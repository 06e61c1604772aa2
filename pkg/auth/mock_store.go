package auth

import "sync"

// MockStore is an in-memory CredentialStore for tests
type MockStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	failWith error
}

// NewMockStore creates a new in-memory credential store
func NewMockStore() *MockStore {
	return &MockStore{accounts: make(map[string]*Account)}
}

// FailWith makes every operation return err. Pass nil to clear.
func (m *MockStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *MockStore) Store(account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if account == nil || account.Gallery == "" {
		return ErrInvalidCredentials
	}
	copy := *account
	m.accounts[account.Gallery] = &copy
	return nil
}

func (m *MockStore) Retrieve(gallery string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	account, ok := m.accounts[gallery]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	copy := *account
	return &copy, nil
}

func (m *MockStore) Delete(gallery string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.accounts[gallery]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.accounts, gallery)
	return nil
}

func (m *MockStore) Exists(gallery string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.accounts[gallery]
	return ok
}
