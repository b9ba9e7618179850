package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RefreshFunc exchanges a near-expiry token for a fresh one.
type RefreshFunc func(ctx context.Context, token string) (string, error)

// Refresher periodically checks the stored token and refreshes it before it
// expires. Failures are logged only; the next tick retries.
type Refresher struct {
	mu       sync.Mutex
	creds    *Credentials
	refresh  RefreshFunc
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewRefresher(creds *Credentials, refresh RefreshFunc, interval time.Duration, logger *slog.Logger) *Refresher {
	if interval == 0 {
		interval = 5 * time.Minute
	}
	return &Refresher{
		creds:    creds,
		refresh:  refresh,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the refresh loop.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.tick(ctx)
			}
		}
	}()
}

// Stop halts the refresh loop.
func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (r *Refresher) tick(ctx context.Context) {
	token, err := r.creds.Token()
	if err != nil {
		// No token stored: nothing to refresh until the next login.
		return
	}

	// Renew ahead of expiry: an already-expired token stops the bridge from
	// connecting and may be rejected by the backend outright. Two intervals
	// of headroom guarantees at least one tick lands inside the window.
	if !TokenExpiresWithin(token, 2*r.interval) {
		return
	}

	fresh, err := r.refresh(ctx, token)
	if err != nil {
		r.logger.Warn("token refresh failed", "error", err)
		return
	}

	if err := r.creds.SaveToken(fresh); err != nil {
		r.logger.Error("save refreshed token", "error", err)
		return
	}
	r.logger.Info("auth token refreshed")
}
