package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/api"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/database"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/store"
)

type noTokens struct{}

func (noTokens) Token() (string, error) { return "", nil }

func newTestRegistrar(t *testing.T, cfg RegistrarConfig, handler http.HandlerFunc) *Registrar {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := api.NewClient(api.Config{BaseURL: server.URL}, noTokens{}, slog.Default())
	return NewRegistrar(cfg, client, store.NewCredentialStore(db), slog.Default())
}

func TestRegisterNonPhysicalDevice(t *testing.T) {
	var calls atomic.Int64
	r := newTestRegistrar(t, RegistrarConfig{Enabled: true, PhysicalDevice: false}, func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
	})

	if err := r.Register(context.Background(), 7); err != nil {
		t.Fatalf("register: %v", err)
	}
	if calls.Load() != 0 {
		t.Error("expected no backend call on non-physical device")
	}
	if got := r.Status().State; got != RegStateUnsupported {
		t.Errorf("state = %q, want %q", got, RegStateUnsupported)
	}
}

func TestRegisterDisabled(t *testing.T) {
	r := newTestRegistrar(t, RegistrarConfig{Enabled: false, PhysicalDevice: true}, func(w http.ResponseWriter, req *http.Request) {
		t.Error("unexpected backend call")
	})

	if err := r.Register(context.Background(), 7); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := r.Status().State; got != RegStateDenied {
		t.Errorf("state = %q, want %q", got, RegStateDenied)
	}
}

func TestRegisterUploadsToken(t *testing.T) {
	var body map[string]any
	r := newTestRegistrar(t, RegistrarConfig{Enabled: true, PhysicalDevice: true, ProjectID: "shopnet-relay"}, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/api/save-expo-token" {
			t.Errorf("path = %q", req.URL.Path)
		}
		json.NewDecoder(req.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	if err := r.Register(context.Background(), 42); err != nil {
		t.Fatalf("register: %v", err)
	}

	if got, _ := body["userId"].(float64); got != 42 {
		t.Errorf("userId = %v, want 42", body["userId"])
	}
	token, _ := body["expoPushToken"].(string)
	if !strings.HasPrefix(token, "shopnet-relay:") {
		t.Errorf("token = %q, want project-scoped token", token)
	}

	status := r.Status()
	if status.State != RegStateRegistered {
		t.Errorf("state = %q, want %q", status.State, RegStateRegistered)
	}
	if status.Token != token {
		t.Errorf("status token = %q, want %q", status.Token, token)
	}
}

func TestRegisterTokenStableAcrossCalls(t *testing.T) {
	var tokens []string
	r := newTestRegistrar(t, RegistrarConfig{Enabled: true, PhysicalDevice: true, ProjectID: "p"}, func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		json.NewDecoder(req.Body).Decode(&body)
		token, _ := body["expoPushToken"].(string)
		tokens = append(tokens, token)
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	r.Register(context.Background(), 1)
	r.Register(context.Background(), 1)

	if len(tokens) != 2 || tokens[0] != tokens[1] {
		t.Errorf("tokens = %v, want the same device token twice", tokens)
	}
}

func TestRegisterUploadFailureNeverSurfaces(t *testing.T) {
	var calls atomic.Int64
	r := newTestRegistrar(t, RegistrarConfig{Enabled: true, PhysicalDevice: true}, func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	r.backoff = time.Millisecond

	if err := r.Register(context.Background(), 7); err != nil {
		t.Fatalf("register must not surface upload errors, got %v", err)
	}

	// Initial attempt plus bounded retries
	if got := calls.Load(); got != 4 {
		t.Errorf("attempts = %d, want 4", got)
	}
	status := r.Status()
	if status.State != RegStateFailed {
		t.Errorf("state = %q, want %q", status.State, RegStateFailed)
	}
	if status.LastError == "" {
		t.Error("expected last error recorded")
	}
}
