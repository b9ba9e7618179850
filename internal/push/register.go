package push

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/api"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/store"
)

// Registration states reported by Status.
const (
	RegStateUnregistered = "unregistered"
	RegStateUnsupported  = "unsupported"
	RegStateDenied       = "denied"
	RegStateRegistered   = "registered"
	RegStateFailed       = "failed"
)

// RegistrarConfig controls push registration.
type RegistrarConfig struct {
	// Enabled gates registration entirely, the permission analog.
	Enabled bool
	// PhysicalDevice is false on headless/CI hosts that cannot receive push.
	PhysicalDevice bool
	// ProjectID scopes the device token to a backend project.
	ProjectID string
}

// RegStatus is the observable outcome of the last registration attempt.
type RegStatus struct {
	State       string    `json:"state"`
	Token       string    `json:"token,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastAttempt time.Time `json:"last_attempt,omitzero"`
}

// Registrar obtains a device push token and uploads it to the backend.
// Registration is best-effort: Register never returns an error, it records
// the outcome in Status instead.
type Registrar struct {
	cfg     RegistrarConfig
	client  *api.Client
	creds   *store.CredentialStore
	logger  *slog.Logger
	backoff time.Duration

	mu     sync.Mutex
	status RegStatus
}

func NewRegistrar(cfg RegistrarConfig, client *api.Client, creds *store.CredentialStore, logger *slog.Logger) *Registrar {
	return &Registrar{
		cfg:     cfg,
		client:  client,
		creds:   creds,
		logger:  logger,
		backoff: time.Second,
		status:  RegStatus{State: RegStateUnregistered},
	}
}

// Register obtains the device token and uploads it for the given user. On
// hosts that cannot receive push, or when registration is disabled, it
// returns nil immediately. Upload failures are retried a bounded number of
// times, then logged; they are never surfaced to the caller.
func (r *Registrar) Register(ctx context.Context, userID int64) error {
	if !r.cfg.PhysicalDevice {
		r.setStatus(RegStatus{State: RegStateUnsupported, LastAttempt: time.Now()})
		r.logger.Debug("push registration skipped: not a physical device")
		return nil
	}
	if !r.cfg.Enabled {
		r.setStatus(RegStatus{State: RegStateDenied, LastAttempt: time.Now()})
		r.logger.Info("push registration skipped: disabled")
		return nil
	}

	token, err := r.deviceToken()
	if err != nil {
		r.setStatus(RegStatus{State: RegStateFailed, LastError: err.Error(), LastAttempt: time.Now()})
		r.logger.Error("obtain device token", "error", err)
		return nil
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(r.backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := r.client.SavePushToken(ctx, userID, token); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		r.setStatus(RegStatus{State: RegStateFailed, Token: token, LastError: err.Error(), LastAttempt: time.Now()})
		r.logger.Error("upload push token", "user_id", userID, "error", err)
		return nil
	}

	r.setStatus(RegStatus{State: RegStateRegistered, Token: token, LastAttempt: time.Now()})
	r.logger.Info("push token registered", "user_id", userID)
	return nil
}

// deviceToken returns the stable token for this install, generating and
// persisting one on first use.
func (r *Registrar) deviceToken() (string, error) {
	id, err := r.creds.Get(store.CredDeviceID)
	if err != nil {
		return "", fmt.Errorf("loading device id: %w", err)
	}
	if id == nil {
		fresh := uuid.NewString()
		if err := r.creds.Set(store.CredDeviceID, []byte(fresh)); err != nil {
			return "", fmt.Errorf("saving device id: %w", err)
		}
		id = []byte(fresh)
	}
	return fmt.Sprintf("%s:%s", r.cfg.ProjectID, id), nil
}

// Status returns the outcome of the most recent registration attempt.
func (r *Registrar) Status() RegStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Registrar) setStatus(s RegStatus) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}
