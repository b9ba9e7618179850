package store

import (
	"bytes"
	"testing"
)

func TestCredentialSetGet(t *testing.T) {
	cs := NewCredentialStore(setupTestDB(t))

	if err := cs.Set(CredAuthToken, []byte("sealed-token")); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := cs.Get(CredAuthToken)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte("sealed-token")) {
		t.Errorf("value = %q, want %q", got, "sealed-token")
	}
}

func TestCredentialOverwrite(t *testing.T) {
	cs := NewCredentialStore(setupTestDB(t))

	cs.Set(CredAuthToken, []byte("first"))
	if err := cs.Set(CredAuthToken, []byte("second")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, _ := cs.Get(CredAuthToken)
	if !bytes.Equal(got, []byte("second")) {
		t.Errorf("value = %q, want %q", got, "second")
	}
}

func TestCredentialGetMissing(t *testing.T) {
	cs := NewCredentialStore(setupTestDB(t))

	got, err := cs.Get("nonexistent")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing key, got %q", got)
	}
}

func TestCredentialDelete(t *testing.T) {
	cs := NewCredentialStore(setupTestDB(t))

	cs.Set(CredUserJSON, []byte(`{"id":9}`))
	if err := cs.Delete(CredUserJSON); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, _ := cs.Get(CredUserJSON)
	if got != nil {
		t.Error("expected nil after delete")
	}

	// Deleting again should not fail
	if err := cs.Delete(CredUserJSON); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}
