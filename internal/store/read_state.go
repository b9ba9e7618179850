package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ReadStateStore persists the set of notification ids the user has opened.
// Only read-state is persisted; the notification list itself never is.
type ReadStateStore struct {
	db *sql.DB
}

func NewReadStateStore(db *sql.DB) *ReadStateStore {
	return &ReadStateStore{db: db}
}

// MarkRead records a notification id as read. Idempotent.
func (s *ReadStateStore) MarkRead(id string) error {
	_, err := s.db.Exec(
		`INSERT INTO read_notifications (notification_id, marked_at) VALUES (?, ?)
		 ON CONFLICT(notification_id) DO NOTHING`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark read %q: %w", id, err)
	}
	return nil
}

// MarkAllRead records every given id in one transaction.
func (s *ReadStateStore) MarkAllRead(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("mark all read: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, id := range ids {
		if _, err := tx.Exec(
			`INSERT INTO read_notifications (notification_id, marked_at) VALUES (?, ?)
			 ON CONFLICT(notification_id) DO NOTHING`,
			id, now,
		); err != nil {
			return fmt.Errorf("mark all read %q: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mark all read: commit: %w", err)
	}
	return nil
}

// ReadIDs returns the full persisted read set.
func (s *ReadStateStore) ReadIDs() (map[string]struct{}, error) {
	rows, err := s.db.Query(`SELECT notification_id FROM read_notifications`)
	if err != nil {
		return nil, fmt.Errorf("read ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan read id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// IsRead reports whether an id is in the persisted read set.
func (s *ReadStateStore) IsRead(id string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM read_notifications WHERE notification_id = ?`, id,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("is read %q: %w", id, err)
	}
	return count > 0, nil
}

// Prune deletes read-state entries marked before the given time and returns
// how many were removed. Keeps the set bounded across the device's lifetime.
func (s *ReadStateStore) Prune(before time.Time) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM read_notifications WHERE marked_at < ?`, before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune read state: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// Count returns the size of the persisted read set.
func (s *ReadStateStore) Count() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM read_notifications`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count read state: %w", err)
	}
	return n, nil
}
