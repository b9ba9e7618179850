package store

import "testing"

func TestPushCreateSubscription(t *testing.T) {
	ps := NewPushStore(setupTestDB(t))

	sub, err := ps.CreateSubscription("https://push.example.com/ep1", "p256dh-key", "auth-key", "bureau")
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if sub == nil {
		t.Fatal("expected subscription, got nil")
	}
	if sub.ID == 0 {
		t.Error("expected non-zero id")
	}
	if sub.Endpoint != "https://push.example.com/ep1" {
		t.Errorf("endpoint = %q", sub.Endpoint)
	}
}

func TestPushUpsertByEndpoint(t *testing.T) {
	ps := NewPushStore(setupTestDB(t))

	first, _ := ps.CreateSubscription("https://push.example.com/ep1", "old-key", "old-auth", "bureau")
	second, err := ps.CreateSubscription("https://push.example.com/ep1", "new-key", "new-auth", "portable")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("upsert created new row: %d != %d", second.ID, first.ID)
	}
	if second.P256dhKey != "new-key" {
		t.Errorf("p256dh = %q, want new-key", second.P256dhKey)
	}

	subs, _ := ps.List()
	if len(subs) != 1 {
		t.Errorf("expected 1 subscription, got %d", len(subs))
	}
}

func TestPushResubscribeReturnsOwnRow(t *testing.T) {
	ps := NewPushStore(setupTestDB(t))

	first, err := ps.CreateSubscription("https://push.example.com/ep1", "key-1", "auth-1", "bureau")
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	if _, err := ps.CreateSubscription("https://push.example.com/ep2", "key-2", "auth-2", "portable"); err != nil {
		t.Fatalf("create second: %v", err)
	}

	// Re-subscribing the first endpoint must return its own row, not the
	// most recently inserted one.
	again, err := ps.CreateSubscription("https://push.example.com/ep1", "key-1b", "auth-1b", "bureau")
	if err != nil {
		t.Fatalf("re-subscribe: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("id = %d, want %d", again.ID, first.ID)
	}
	if again.Endpoint != "https://push.example.com/ep1" {
		t.Errorf("endpoint = %q, want ep1", again.Endpoint)
	}
	if again.P256dhKey != "key-1b" {
		t.Errorf("p256dh = %q, want key-1b", again.P256dhKey)
	}
}

func TestPushDeleteByEndpoint(t *testing.T) {
	ps := NewPushStore(setupTestDB(t))

	ps.CreateSubscription("https://push.example.com/ep1", "k", "a", "")
	if err := ps.DeleteByEndpoint("https://push.example.com/ep1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	sub, err := ps.GetByEndpoint("https://push.example.com/ep1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sub != nil {
		t.Error("expected nil after delete")
	}
}

func TestBackupRecords(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))

	if _, err := bs.Create("relay/backup-1.db.enc", 1024); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := bs.Create("relay/backup-2.db.enc", 2048); err != nil {
		t.Fatalf("create: %v", err)
	}

	latest, err := bs.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.ObjectKey != "relay/backup-2.db.enc" {
		t.Errorf("latest = %+v, want backup-2", latest)
	}

	list, err := bs.List(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 records, got %d", len(list))
	}
}

func TestBackupLatestEmpty(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))
	latest, err := bs.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest != nil {
		t.Errorf("expected nil, got %+v", latest)
	}
}
