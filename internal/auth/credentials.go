package auth

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/store"
)

// ErrNoToken is returned when no auth token is stored.
var ErrNoToken = errors.New("no auth token stored")

// Credentials manages the locally persisted auth token and cached user JSON.
// Values are encrypted at rest with a machine-scoped passphrase.
type Credentials struct {
	mu         sync.RWMutex
	store      *store.CredentialStore
	passphrase string
}

func NewCredentials(cs *store.CredentialStore, passphrase string) *Credentials {
	return &Credentials{store: cs, passphrase: passphrase}
}

// SaveToken seals and persists the auth token.
func (c *Credentials) SaveToken(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sealed, err := Seal([]byte(token), c.passphrase)
	if err != nil {
		return fmt.Errorf("seal token: %w", err)
	}
	return c.store.Set(store.CredAuthToken, sealed)
}

// Token returns the stored auth token, or ErrNoToken when absent.
func (c *Credentials) Token() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sealed, err := c.store.Get(store.CredAuthToken)
	if err != nil {
		return "", err
	}
	if sealed == nil {
		return "", ErrNoToken
	}

	token, err := Open(sealed, c.passphrase)
	if err != nil {
		return "", fmt.Errorf("open token: %w", err)
	}
	return string(token), nil
}

// SaveUser seals and persists the cached user JSON.
func (c *Credentials) SaveUser(userJSON []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sealed, err := Seal(userJSON, c.passphrase)
	if err != nil {
		return fmt.Errorf("seal user: %w", err)
	}
	return c.store.Set(store.CredUserJSON, sealed)
}

// User returns the cached user JSON, or nil when absent.
func (c *Credentials) User() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sealed, err := c.store.Get(store.CredUserJSON)
	if err != nil {
		return nil, err
	}
	if sealed == nil {
		return nil, nil
	}
	return Open(sealed, c.passphrase)
}

// Clear removes the stored token and user.
func (c *Credentials) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Delete(store.CredAuthToken); err != nil {
		return err
	}
	return c.store.Delete(store.CredUserJSON)
}

// UserID decodes the stored token and returns the user id it carries.
// Push registration and the bridge register event always use this id,
// never the raw token string.
func (c *Credentials) UserID() (int64, error) {
	token, err := c.Token()
	if err != nil {
		return 0, err
	}
	return TokenUserID(token)
}

// Expired reports whether the stored token is past its expiry. A missing or
// undecodable token counts as expired.
func (c *Credentials) Expired() bool {
	token, err := c.Token()
	if err != nil {
		return true
	}
	return TokenExpired(token)
}

// TokenUserID extracts the user id from a SHOPNET JWT without verifying the
// signature. The client holds no signing secret; the backend re-validates
// every token it receives.
func TokenUserID(token string) (int64, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, fmt.Errorf("decode token: %w", err)
	}

	for _, key := range []string{"id", "userId", "user_id"} {
		if v, ok := claims[key]; ok {
			switch id := v.(type) {
			case float64:
				return int64(id), nil
			case string:
				if n, err := strconv.ParseInt(id, 10, 64); err == nil {
					return n, nil
				}
			}
		}
	}

	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		if n, err := strconv.ParseInt(sub, 10, 64); err == nil {
			return n, nil
		}
	}

	return 0, fmt.Errorf("token carries no user id")
}

// TokenExpired reports whether a JWT's exp claim has passed. A token without
// an exp claim never expires; an undecodable token is treated as expired.
func TokenExpired(token string) bool {
	return TokenExpiresWithin(token, 0)
}

// TokenExpiresWithin reports whether a JWT's exp claim falls inside the next
// window. A token without an exp claim never expires; an undecodable token
// is treated as expired.
func TokenExpiresWithin(token string, window time.Duration) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now().Add(window))
}
