package adapter

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"wamda.app/notifier/internal/backend"
	"wamda.app/notifier/internal/engine"
	"wamda.app/notifier/internal/entity"
	"wamda.app/notifier/internal/session"
)

type stubStore struct {
	mu      sync.Mutex
	fetched []int64
}

func (s *stubStore) RecentNotifications(_ context.Context, recipientID int64, _ int) ([]entity.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = append(s.fetched, recipientID)
	return nil, nil
}

func (s *stubStore) NotificationsPage(ctx context.Context, recipientID int64, limit, _ int) ([]entity.Notification, error) {
	return s.RecentNotifications(ctx, recipientID, limit)
}

func (s *stubStore) MarkRead(context.Context, int64, []int64) error { return nil }
func (s *stubStore) MarkAllRead(context.Context, int64) error       { return nil }
func (s *stubStore) CountUnread(context.Context, int64) (int64, error) {
	return 0, nil
}
func (s *stubStore) ActorProfile(context.Context, int64) (*entity.ActorProfile, error) {
	return nil, nil
}
func (s *stubStore) CreateNotification(context.Context, *entity.Notification) error { return nil }

func (s *stubStore) fetchedIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.fetched))
	copy(out, s.fetched)
	return out
}

type stubSubscription struct {
	mu     sync.Mutex
	closes int
}

func (s *stubSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *stubSubscription) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes > 0
}

type stubRealtime struct {
	mu   sync.Mutex
	subs []*stubSubscription
}

func (r *stubRealtime) SubscribeInserts(context.Context, int64, backend.InsertHandler, backend.StatusHandler) (backend.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub := &stubSubscription{}
	r.subs = append(r.subs, sub)
	return sub, nil
}

func (r *stubRealtime) lastSub() *stubSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.subs) == 0 {
		return nil
	}
	return r.subs[len(r.subs)-1]
}

func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestBinderForwardsIdentityChanges(t *testing.T) {
	store := &stubStore{}
	realtime := &stubRealtime{}
	eng := engine.New(store, realtime, zap.NewNop(), nil)

	sess := session.NewStore()
	t.Cleanup(sess.Close)

	b := New(t.Context(), eng, sess.Watch())
	t.Cleanup(b.Close)

	sess.Set(42)
	waitUntil(t, func() bool {
		ids := store.fetchedIDs()
		return len(ids) == 1 && ids[0] == 42
	}, "binder never bound identity 42")
	waitUntil(t, func() bool { return realtime.lastSub() != nil }, "no subscription opened")

	sub := realtime.lastSub()
	sess.Clear()
	waitUntil(t, sub.closed, "sign-out never tore down the subscription")

	snap := eng.Snapshot()
	if len(snap.Notifications) != 0 || snap.UnreadCount != 0 || snap.IsLoading || snap.Error != "" {
		t.Errorf("expected reset state after sign-out, got %+v", snap)
	}
}

func TestBinderCloseTearsDownEngine(t *testing.T) {
	store := &stubStore{}
	realtime := &stubRealtime{}
	eng := engine.New(store, realtime, zap.NewNop(), nil)

	sess := session.NewStore()
	t.Cleanup(sess.Close)

	b := New(t.Context(), eng, sess.Watch())
	sess.Set(7)
	waitUntil(t, func() bool { return realtime.lastSub() != nil }, "no subscription opened")

	sub := realtime.lastSub()
	b.Close()
	b.Close() // idempotent

	if !sub.closed() {
		t.Error("Close should tear down the subscription")
	}
	if got := eng.Snapshot(); len(got.Notifications) != 0 || got.IsLoading {
		t.Errorf("expected engine reset on Close, got %+v", got)
	}

	// Identity changes after Close must not reach the engine.
	before := len(store.fetchedIDs())
	sess.Set(8)
	time.Sleep(20 * time.Millisecond)
	if got := len(store.fetchedIDs()); got != before {
		t.Errorf("binder forwarded identity after Close: %d fetches, want %d", got, before)
	}
}
