// Package inbox maintains the merged notification list a consumer sees:
// fetched history overlaid with locally persisted read state, kept current
// by live events from the bridge.
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/api"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/bridge"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/model"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/store"
)

// Inbox merges server-fetched notifications with the local read-state store
// and receives live events as a bridge subscriber. All methods are safe for
// concurrent use.
type Inbox struct {
	client *api.Client
	reads  *store.ReadStateStore
	bridge *bridge.Bridge
	logger *slog.Logger

	mu            sync.Mutex
	notifications []model.Notification
	loaded        bool
	attached      bool
}

func New(client *api.Client, reads *store.ReadStateStore, b *bridge.Bridge, logger *slog.Logger) *Inbox {
	return &Inbox{
		client: client,
		reads:  reads,
		bridge: b,
		logger: logger,
	}
}

// Open loads the notification history, overlays local read state, and
// attaches the inbox to the bridge for live updates. A fetch failure leaves
// the inbox empty but still attached, so live events are not lost while the
// backend is unreachable.
func (in *Inbox) Open(ctx context.Context) error {
	var fetchErr error
	items, err := in.client.FetchNotifications(ctx)
	if err != nil {
		in.logger.Warn("notification fetch failed", "error", err)
		items = nil
		fetchErr = err
	}

	readIDs, err := in.reads.ReadIDs()
	if err != nil {
		return fmt.Errorf("loading read state: %w", err)
	}
	for i := range items {
		if _, ok := readIDs[items[i].ID]; ok {
			items[i].Read = true
		}
	}
	sortByDateDesc(items)

	in.mu.Lock()
	in.notifications = items
	in.loaded = true
	attach := !in.attached
	in.attached = true
	in.mu.Unlock()

	if attach {
		in.bridge.Subscribe(in)
		if err := in.bridge.Acquire(ctx); err != nil {
			return fmt.Errorf("acquiring event channel: %w", err)
		}
	}
	return fetchErr
}

// Notify implements bridge.Subscriber. Live notifications arrive unread and
// are inserted in date order.
func (in *Inbox) Notify(n model.Notification) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.loaded {
		return
	}
	in.notifications = append(in.notifications, n)
	sortByDateDesc(in.notifications)
}

// Notifications returns a snapshot of the current list, newest first.
func (in *Inbox) Notifications() []model.Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]model.Notification, len(in.notifications))
	copy(out, in.notifications)
	return out
}

// UnreadCount reports how many loaded notifications are unread.
func (in *Inbox) UnreadCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	count := 0
	for _, n := range in.notifications {
		if !n.Read {
			count++
		}
	}
	return count
}

// MarkRead persists the read mark and updates the in-memory item. Marking an
// id that is not currently loaded still persists, so the state survives the
// next fetch.
func (in *Inbox) MarkRead(id string) error {
	if err := in.reads.MarkRead(id); err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	for i := range in.notifications {
		if in.notifications[i].ID == id {
			in.notifications[i].Read = true
			break
		}
	}
	return nil
}

// MarkAllRead marks every currently loaded notification as read. Ids that
// are only in the store but not loaded are left untouched.
func (in *Inbox) MarkAllRead() error {
	in.mu.Lock()
	ids := make([]string, 0, len(in.notifications))
	for _, n := range in.notifications {
		ids = append(ids, n.ID)
	}
	in.mu.Unlock()

	if err := in.reads.MarkAllRead(ids); err != nil {
		return fmt.Errorf("marking all read: %w", err)
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	for i := range in.notifications {
		in.notifications[i].Read = true
	}
	return nil
}

// Close detaches the inbox from the bridge and releases its hold on the
// event channel. Closing an inbox that was never opened is a no-op.
func (in *Inbox) Close() {
	in.mu.Lock()
	attached := in.attached
	in.attached = false
	in.mu.Unlock()

	if attached {
		in.bridge.Unsubscribe(in)
		in.bridge.Release()
	}
}

func sortByDateDesc(items []model.Notification) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Date.After(items[j].Date)
	})
}
