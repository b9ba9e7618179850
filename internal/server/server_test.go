package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/config"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/database"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/logging"
)

func newTestServer(t *testing.T, payload string) *Server {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/notifications" {
			fmt.Fprint(w, payload)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(backend.Close)

	cfg := config.Load()
	cfg.APIURL = backend.URL
	cfg.WSURL = "ws://127.0.0.1:0"
	cfg.PhysicalDevice = false

	s := New(cfg, db, logging.Setup("error"))
	s.Start(context.Background())
	t.Cleanup(s.Stop)
	return s
}

func do(t *testing.T, router http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, nil)
	r.RemoteAddr = "127.0.0.1:54321"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, `[]`)
	w := do(t, s.Router(), http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestNotificationEndpoints(t *testing.T) {
	s := newTestServer(t, `{"success":true,"notifications":[
		{"id":1,"titre":"A","date_notification":"2025-01-01T10:00:00Z"},
		{"id":2,"titre":"B","date_notification":"2025-01-02T10:00:00Z"}
	]}`)
	router := s.Router()

	w := do(t, router, http.MethodGet, "/api/notifications")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var body struct {
		Notifications []json.RawMessage `json:"notifications"`
		Unread        int               `json:"unread"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Notifications) != 2 || body.Unread != 2 {
		t.Errorf("notifications = %d, unread = %d", len(body.Notifications), body.Unread)
	}

	if w := do(t, router, http.MethodPost, "/api/notifications/1/read"); w.Code != http.StatusNoContent {
		t.Fatalf("mark read status = %d", w.Code)
	}
	if got := s.Inbox().UnreadCount(); got != 1 {
		t.Errorf("unread after mark = %d, want 1", got)
	}

	if w := do(t, router, http.MethodPost, "/api/notifications/read-all"); w.Code != http.StatusNoContent {
		t.Fatalf("read-all status = %d", w.Code)
	}
	if got := s.Inbox().UnreadCount(); got != 0 {
		t.Errorf("unread after read-all = %d, want 0", got)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t, `[]`)

	w := do(t, s.Router(), http.MethodGet, "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	data, _ := io.ReadAll(w.Body)
	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"bridge", "push", "backup"} {
		if _, ok := body[key]; !ok {
			t.Errorf("missing %q in status payload", key)
		}
	}
}

func TestBackupHistoryEmpty(t *testing.T) {
	s := newTestServer(t, `[]`)

	w := do(t, s.Router(), http.MethodGet, "/api/backups")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Backups []json.RawMessage `json:"backups"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Backups == nil {
		t.Error("backups should be an empty array, not null")
	}
	if len(body.Backups) != 0 {
		t.Errorf("expected no backups, got %d", len(body.Backups))
	}
}

func TestNonLoopbackRejected(t *testing.T) {
	s := newTestServer(t, `[]`)

	r := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	r.RemoteAddr = "203.0.113.9:1234"
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestPushRoutesAbsentWithoutVAPID(t *testing.T) {
	s := newTestServer(t, `[]`)

	w := do(t, s.Router(), http.MethodGet, "/api/push/vapid-key")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 without VAPID config", w.Code)
	}
}
