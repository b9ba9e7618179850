// Package handler implements the daemon's localhost HTTP API.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/inbox"
)

type NotificationHandler struct {
	inbox  *inbox.Inbox
	logger *slog.Logger
}

func NewNotificationHandler(in *inbox.Inbox, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{inbox: in, logger: logger}
}

// List handles GET /api/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	items := h.inbox.Notifications()
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": items,
		"unread":        h.inbox.UnreadCount(),
	})
}

// MarkRead handles POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
		return
	}

	if err := h.inbox.MarkRead(id); err != nil {
		h.logger.Error("mark notification read", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to mark read"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.inbox.MarkAllRead(); err != nil {
		h.logger.Error("mark all notifications read", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to mark all read"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
