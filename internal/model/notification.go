package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Priority constants used by the backend. Unknown values are tolerated and
// fall through to default rendering on the consumer side.
const (
	PriorityLow    = "basse"
	PriorityNormal = "normale"
	PriorityHigh   = "haute"
)

// Notification is the canonical client-side record. Field names follow the
// backend wire format (French), with read computed locally and never sent.
type Notification struct {
	ID       string    `json:"id"`
	Title    string    `json:"titre"`
	Body     string    `json:"contenu"`
	Date     time.Time `json:"date_notification"`
	Type     string    `json:"type,omitempty"`
	Priority string    `json:"priorite,omitempty"`
	Link     string    `json:"lien,omitempty"`
	Read     bool      `json:"read"`
}

// Coercion names a default that Parse applied to a malformed or missing field.
type Coercion string

const (
	CoercedID   Coercion = "id_generated"
	CoercedDate Coercion = "date_defaulted"
)

// wireNotification mirrors the loosely-typed backend payload.
type wireNotification struct {
	ID       json.RawMessage `json:"id"`
	Title    string          `json:"titre"`
	Body     string          `json:"contenu"`
	Date     string          `json:"date_notification"`
	Type     string          `json:"type"`
	Priority string          `json:"priorite"`
	Link     *string         `json:"lien"`
}

// dateLayouts are tried in order when parsing date_notification.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Parse normalizes a raw backend payload into a canonical Notification.
// Malformed fields are defaulted, never rejected; each applied default is
// reported as a Coercion so callers can log what the backend actually sent.
// Only a payload that is not a JSON object fails.
func Parse(data []byte) (Notification, []Coercion, error) {
	return ParseAt(data, time.Now())
}

// ParseAt is Parse with an explicit clock, used for deterministic tests and
// batch loads that should share one "now".
func ParseAt(data []byte, now time.Time) (Notification, []Coercion, error) {
	var w wireNotification
	if err := json.Unmarshal(data, &w); err != nil {
		return Notification{}, nil, fmt.Errorf("parse notification: %w", err)
	}

	var coercions []Coercion

	n := Notification{
		Title:    w.Title,
		Body:     w.Body,
		Type:     w.Type,
		Priority: w.Priority,
	}

	n.ID = parseID(w.ID)
	if n.ID == "" {
		// No id on the wire: fall back to a generated millisecond timestamp.
		// Unique enough within a session, not across them.
		n.ID = strconv.FormatInt(now.UnixMilli(), 10)
		coercions = append(coercions, CoercedID)
	}

	if d, ok := parseDate(w.Date); ok {
		n.Date = d
	} else {
		n.Date = now
		coercions = append(coercions, CoercedDate)
	}

	if w.Link != nil {
		n.Link = *w.Link
	}

	return n, coercions, nil
}

// parseID accepts integer or string ids and returns the canonical string
// form. Returns "" when the field is absent, null, or an unusable type.
func parseID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var asInt int64
	if err := json.Unmarshal(raw, &asInt); err == nil {
		return strconv.FormatInt(asInt, 10)
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strings.TrimSpace(asString)
	}
	return ""
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
