package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/auth"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/model"
)

// Wire event names shared with the backend.
const (
	eventRegister           = "register"
	eventGlobalNotification = "globalNotification"
)

// envelope is the JSON frame exchanged on the socket.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// State represents the bridge connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Status holds the current bridge status.
type Status struct {
	State       State     `json:"state"`
	Error       string    `json:"error,omitempty"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
}

// StatusCallback is called whenever the bridge state changes.
type StatusCallback func(Status)

// Subscriber receives every relayed notification. Delivery is synchronous and
// in subscription order; a slow subscriber delays the ones after it.
type Subscriber interface {
	Notify(n model.Notification)
}

// Alerter is invoked exactly once per delivered event, before subscribers.
// The default implementation plays a sound; failures are its own concern.
type Alerter interface {
	Alert(n model.Notification)
}

// Config holds bridge configuration.
type Config struct {
	URL          string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Bridge owns the single shared realtime channel to the backend and fans
// received notifications out to subscribers. Consumers hold a reference via
// Acquire/Release; the socket closes only when the last reference is gone.
type Bridge struct {
	mu       sync.Mutex
	cfg      Config
	creds    *auth.Credentials
	alerter  Alerter
	logger   *slog.Logger
	callback StatusCallback

	subscribers []Subscriber
	refs        int
	status      Status

	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config, creds *auth.Credentials, alerter Alerter, cb StatusCallback, logger *slog.Logger) *Bridge {
	if cfg.ReconnectMin == 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax == 0 {
		cfg.ReconnectMax = 60 * time.Second
	}
	return &Bridge{
		cfg:      cfg,
		creds:    creds,
		alerter:  alerter,
		callback: cb,
		logger:   logger,
		status:   Status{State: StateDisconnected},
	}
}

// Acquire registers a consumer reference and ensures the channel is up.
// Returns nil without opening a socket when no usable token is stored;
// call Connect again after login.
func (b *Bridge) Acquire(ctx context.Context) error {
	b.mu.Lock()
	b.refs++
	b.mu.Unlock()
	return b.Connect(ctx)
}

// Release drops a consumer reference. The socket is torn down only when the
// last consumer releases, so one closing screen never kills the channel for
// another.
func (b *Bridge) Release() {
	b.mu.Lock()
	if b.refs > 0 {
		b.refs--
	}
	last := b.refs == 0
	cancel := b.cancel
	done := b.done
	b.mu.Unlock()

	if !last || cancel == nil {
		return
	}

	cancel()
	if done != nil {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			b.logger.Warn("bridge shutdown timed out")
		}
	}
}

// Connect starts the connection loop. Idempotent: a second call while the
// loop is running is a no-op. With no stored token (or an expired one that
// cannot be used) it returns nil without creating a socket.
func (b *Bridge) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		return nil // already running
	}

	token, err := b.creds.Token()
	if err != nil || token == "" {
		b.logger.Debug("no auth token, skipping socket connect")
		return nil
	}
	if auth.TokenExpired(token) {
		b.logger.Debug("stored token expired, skipping socket connect")
		return nil
	}

	childCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	b.setStatusLocked(Status{State: StateConnecting})

	go b.run(childCtx)
	return nil
}

// Subscribe adds a subscriber. Adding the same subscriber twice is a no-op,
// so a given event reaches each subscriber once.
func (b *Bridge) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.subscribers {
		if existing == s {
			return
		}
	}
	b.subscribers = append(b.subscribers, s)
}

// Unsubscribe removes a subscriber. Unknown subscribers are ignored.
func (b *Bridge) Unsubscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.subscribers {
		if existing == s {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns the number of registered subscribers.
func (b *Bridge) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Status returns the current bridge status.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Bridge) setStatusLocked(s Status) {
	b.status = s
	if b.callback != nil {
		go b.callback(s)
	}
}

func (b *Bridge) setStatus(s Status) {
	b.mu.Lock()
	b.setStatusLocked(s)
	b.mu.Unlock()
}

func (b *Bridge) run(ctx context.Context) {
	defer func() {
		b.mu.Lock()
		close(b.done)
		b.cancel = nil
		b.done = nil
		b.conn = nil
		b.setStatusLocked(Status{State: StateDisconnected})
		b.mu.Unlock()
	}()

	backoff := b.cfg.ReconnectMin

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		err := b.runOnce(ctx)

		select {
		case <-ctx.Done():
			return
		default:
		}

		// A connection that lived a while earns a fresh backoff.
		if time.Since(start) > b.cfg.ReconnectMax {
			backoff = b.cfg.ReconnectMin
		}

		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		b.setStatus(Status{State: StateReconnecting, Error: errMsg})
		b.logger.Warn("socket dropped, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > b.cfg.ReconnectMax {
			backoff = b.cfg.ReconnectMax
		}
	}
}

func (b *Bridge) runOnce(ctx context.Context) error {
	token, err := b.creds.Token()
	if err != nil || token == "" {
		return fmt.Errorf("no auth token")
	}

	conn, _, err := websocket.Dial(ctx, b.cfg.URL, &websocket.DialOptions{
		HTTPHeader: map[string][]string{
			"Authorization": {"Bearer " + token},
		},
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	b.mu.Lock()
	b.conn = conn
	b.setStatusLocked(Status{State: StateConnected, ConnectedAt: time.Now()})
	b.mu.Unlock()

	if err := b.register(ctx, conn); err != nil {
		return err
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		b.handleFrame(data)
	}
}

// register announces the current user on the fresh connection.
func (b *Bridge) register(ctx context.Context, conn *websocket.Conn) error {
	userID, err := b.creds.UserID()
	if err != nil {
		return fmt.Errorf("decode user id: %w", err)
	}

	data, err := json.Marshal(map[string]int64{"userId": userID})
	if err != nil {
		return fmt.Errorf("marshal register: %w", err)
	}
	frame, err := json.Marshal(envelope{Event: eventRegister, Data: data})
	if err != nil {
		return fmt.Errorf("marshal register frame: %w", err)
	}

	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("send register: %w", err)
	}
	return nil
}

// handleFrame decodes one wire frame and dispatches it. Unknown events and
// unparseable frames are logged and dropped.
func (b *Bridge) handleFrame(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.logger.Warn("drop malformed frame", "error", err)
		return
	}

	switch env.Event {
	case eventGlobalNotification:
		n, coercions, err := model.Parse(env.Data)
		if err != nil {
			b.logger.Warn("drop unparseable notification", "error", err)
			return
		}
		if len(coercions) > 0 {
			b.logger.Debug("coerced notification fields", "id", n.ID, "coercions", coercions)
		}
		b.deliver(n)
	default:
		b.logger.Debug("ignore event", "event", env.Event)
	}
}

// deliver alerts once, then fans out to subscribers in subscription order.
// With no subscribers the event is dropped, never queued.
func (b *Bridge) deliver(n model.Notification) {
	if b.alerter != nil {
		b.alerter.Alert(n)
	}

	b.mu.Lock()
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, s := range subs {
		s.Notify(n)
	}
}
