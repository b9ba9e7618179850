package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoopbackOnly(t *testing.T) {
	handler := LoopbackOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		remote string
		want   int
	}{
		{"127.0.0.1:54321", http.StatusNoContent},
		{"[::1]:54321", http.StatusNoContent},
		{"192.168.1.50:54321", http.StatusForbidden},
		{"10.0.0.1:80", http.StatusForbidden},
		{"not-an-address", http.StatusForbidden},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
		r.RemoteAddr = tt.remote
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != tt.want {
			t.Errorf("remote %s: status = %d, want %d", tt.remote, w.Code, tt.want)
		}
	}
}
