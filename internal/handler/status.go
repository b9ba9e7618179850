package handler

import (
	"net/http"

	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/backup"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/bridge"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/model"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/push"
)

type StatusHandler struct {
	bridge    *bridge.Bridge
	registrar *push.Registrar
	backups   *backup.Manager
}

func NewStatusHandler(b *bridge.Bridge, r *push.Registrar, m *backup.Manager) *StatusHandler {
	return &StatusHandler{bridge: b, registrar: r, backups: m}
}

// Status handles GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"bridge": h.bridge.Status(),
		"push":   h.registrar.Status(),
		"backup": h.backups.Status(),
	})
}

// ListBackups handles GET /api/backups
func (h *StatusHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	records, err := h.backups.History(20)
	if err != nil {
		http.Error(w, "failed to list backups", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.Backup{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"backups": records})
}

// Health handles GET /health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
