package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Credential keys used by the relay.
const (
	CredAuthToken = "auth_token"
	CredUserJSON  = "user_json"
	CredDeviceID  = "device_id"
)

// CredentialStore holds small encrypted blobs (auth token, cached user JSON)
// keyed by name. Values are sealed by the auth package before they get here.
type CredentialStore struct {
	db *sql.DB
}

func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Set upserts a credential value.
func (s *CredentialStore) Set(key string, value []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set credential %q: %w", key, err)
	}
	return nil
}

// Get returns the stored value, or nil when the key is absent.
func (s *CredentialStore) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM credentials WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %q: %w", key, err)
	}
	return value, nil
}

// Delete removes a credential. No error when the key is absent.
func (s *CredentialStore) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM credentials WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete credential %q: %w", key, err)
	}
	return nil
}
