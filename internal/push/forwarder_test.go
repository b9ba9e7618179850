package push

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/database"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/model"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/store"
)

// subscriptionKeys generates a valid P-256 key pair and auth secret the way
// a browser push subscription would.
func subscriptionKeys(t *testing.T) (p256dh, auth string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate subscription key: %v", err)
	}
	pub := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("generate auth secret: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(pub), base64.RawURLEncoding.EncodeToString(secret)
}

func newTestForwarder(t *testing.T, status int, delivered *atomic.Int64) (*Forwarder, *store.PushStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(endpoint.Close)

	subs := store.NewPushStore(db)
	p256dh, auth := subscriptionKeys(t)
	if _, err := subs.CreateSubscription(endpoint.URL, p256dh, auth, "test-browser"); err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}
	return NewForwarder(NewService(pub, priv), subs, slog.Default()), subs
}

func TestForwarderDelivers(t *testing.T) {
	var delivered atomic.Int64
	f, subs := newTestForwarder(t, http.StatusCreated, &delivered)

	f.Notify(model.Notification{ID: "1", Title: "Promo", Body: "-20%"})

	if got := delivered.Load(); got != 1 {
		t.Errorf("deliveries = %d, want 1", got)
	}
	remaining, err := subs.List()
	if err != nil || len(remaining) != 1 {
		t.Errorf("subscriptions = %d, %v, want 1 kept", len(remaining), err)
	}
}

func TestForwarderDropsExpiredSubscription(t *testing.T) {
	var delivered atomic.Int64
	f, subs := newTestForwarder(t, http.StatusGone, &delivered)

	f.Notify(model.Notification{ID: "1", Title: "Promo"})

	remaining, err := subs.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("subscriptions = %d, want expired subscription dropped", len(remaining))
	}
}
