package auth

import (
	"testing"
)

func TestManagerStoreAndRetrieve(t *testing.T) {
	store := NewMockStore()
	mgr := NewManagerWithStores(store)

	account := &Account{Gallery: "studio", SessionCookie: "abc123"}
	if err := mgr.Store(account); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := mgr.Retrieve("studio")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got.SessionCookie != "abc123" {
		t.Errorf("SessionCookie = %q", got.SessionCookie)
	}
	if got.LastModified.IsZero() {
		t.Error("LastModified should be set on store")
	}
}

func TestManagerValidation(t *testing.T) {
	mgr := NewManagerWithStores(NewMockStore())

	if err := mgr.Store(nil); err == nil {
		t.Error("nil account should be rejected")
	}
	if err := mgr.Store(&Account{SessionCookie: "x"}); err == nil {
		t.Error("missing gallery should be rejected")
	}
	if err := mgr.Store(&Account{Gallery: "g"}); err == nil {
		t.Error("missing session cookie should be rejected")
	}
}

func TestManagerFallback(t *testing.T) {
	broken := NewMockStore()
	broken.FailWith(ErrStoreUnavailable)
	working := NewMockStore()
	mgr := NewManagerWithStores(broken, working)

	account := &Account{Gallery: "studio", SessionCookie: "abc"}
	if err := mgr.Store(account); err != nil {
		t.Fatalf("Store should fall back to the second store: %v", err)
	}
	if !working.Exists("studio") {
		t.Error("fallback store should hold the account")
	}

	if _, err := mgr.Retrieve("studio"); err != nil {
		t.Errorf("Retrieve via fallback: %v", err)
	}
}

func TestManagerDelete(t *testing.T) {
	store := NewMockStore()
	mgr := NewManagerWithStores(store)

	mgr.Store(&Account{Gallery: "studio", SessionCookie: "abc"})
	if err := mgr.Delete("studio"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if mgr.Exists("studio") {
		t.Error("account should be gone")
	}
	if err := mgr.Delete("studio"); err == nil {
		t.Error("deleting a missing account should error")
	}
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv("GALLERYGRAB_SESSION_COOKIE", "envcookie")

	store := NewEnvironmentStore()
	account, err := store.Retrieve("studio")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if account.SessionCookie != "envcookie" {
		t.Errorf("SessionCookie = %q", account.SessionCookie)
	}

	if err := store.Store(account); err != ErrStoreUnavailable {
		t.Errorf("Store should be unsupported, got %v", err)
	}
}
