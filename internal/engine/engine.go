package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"wamda.app/notifier/internal/backend"
	"wamda.app/notifier/internal/entity"
	"wamda.app/notifier/pkg/apperror"
)

const (
	// DefaultFetchLimit is the page size of the initial fetch.
	DefaultFetchLimit = 15
	// DefaultBufferLimit bounds the in-memory list across realtime inserts.
	DefaultBufferLimit = 50
)

// Engine owns the canonical in-memory notification list for one bound
// recipient: initial fetch, realtime insert merging, the actor-profile cache,
// derived unread count, and the optimistic mark-as-read flow.
//
// All mutations are serialized through one mutex, so consumers observe
// single-threaded semantics. Every mutation emits a frozen Snapshot through
// the OnChange callback.
type Engine struct {
	store    backend.Store
	realtime backend.Realtime
	log      *zap.Logger
	onChange OnChange

	fetchLimit  int
	bufferLimit int

	mu          sync.Mutex
	recipientID *int64
	// generation fences async work: a fetch or event issued for an older
	// binding must not touch state after a rebind.
	generation    uint64
	sub           backend.Subscription
	notifications []entity.Notification
	isLoading     bool
	lastErr       string

	// Session-scoped, never evicted. An engine never outlives one recipient
	// session, so staleness ends with the socket.
	actorCache map[int64]entity.ActorProfile
}

// New builds an engine with the default fetch and buffer limits.
func New(store backend.Store, realtime backend.Realtime, log *zap.Logger, onChange OnChange) *Engine {
	return &Engine{
		store:       store,
		realtime:    realtime,
		log:         log,
		onChange:    onChange,
		fetchLimit:  DefaultFetchLimit,
		bufferLimit: DefaultBufferLimit,
		actorCache:  make(map[int64]entity.ActorProfile),
	}
}

// SetLimits overrides the fetch page size and list bound. Call before Bind.
func (e *Engine) SetLimits(fetchLimit, bufferLimit int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fetchLimit > 0 {
		e.fetchLimit = fetchLimit
	}
	if bufferLimit > 0 {
		e.bufferLimit = bufferLimit
	}
}

// Bind switches the engine to a recipient. Binding the already-bound
// recipient is a no-op. Otherwise the previous subscription is torn down
// before the initial fetch and a fresh subscription start.
func (e *Engine) Bind(ctx context.Context, recipientID int64) {
	e.mu.Lock()
	if e.recipientID != nil && *e.recipientID == recipientID {
		e.mu.Unlock()
		e.log.Debug("recipient unchanged, skipping rebind", zap.Int64("recipient_id", recipientID))
		return
	}

	e.generation++
	gen := e.generation
	id := recipientID
	e.recipientID = &id
	stale := e.sub
	e.sub = nil
	e.notifications = nil
	e.isLoading = true
	e.lastErr = ""
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.closeSubscription(stale)
	e.emit(snap)

	e.log.Info("binding notification engine", zap.Int64("recipient_id", recipientID))
	go e.fetchInitial(ctx, recipientID, gen)
	go e.subscribe(ctx, recipientID, gen)
}

// Unbind clears the bound recipient, tears down the subscription and resets
// state to empty. Safe to call when already unbound.
func (e *Engine) Unbind() {
	e.mu.Lock()
	if e.recipientID == nil {
		e.mu.Unlock()
		return
	}
	id := *e.recipientID
	e.generation++
	e.recipientID = nil
	stale := e.sub
	e.sub = nil
	e.notifications = nil
	e.isLoading = false
	e.lastErr = ""
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.closeSubscription(stale)
	e.emit(snap)
	e.log.Info("notification engine unbound", zap.Int64("recipient_id", id))
}

// Teardown removes the active subscription without touching the list.
// Idempotent; callers wanting a full reset use Unbind instead.
func (e *Engine) Teardown() {
	e.mu.Lock()
	stale := e.sub
	e.sub = nil
	e.mu.Unlock()
	e.closeSubscription(stale)
}

// MarkAllUnreadAsRead optimistically flips every unread notification, emits
// the zero-unread snapshot immediately, then persists. On persistence
// failure the pre-optimistic list is restored and the error surfaced.
func (e *Engine) MarkAllUnreadAsRead(ctx context.Context) {
	e.mu.Lock()
	if e.recipientID == nil {
		e.mu.Unlock()
		return
	}
	recipientID := *e.recipientID
	gen := e.generation

	var unreadIDs []int64
	for _, n := range e.notifications {
		if !n.IsRead {
			unreadIDs = append(unreadIDs, n.ID)
		}
	}
	if len(unreadIDs) == 0 {
		e.mu.Unlock()
		return
	}

	previous := make([]entity.Notification, len(e.notifications))
	for i, n := range e.notifications {
		previous[i] = n.Clone()
	}
	for i := range e.notifications {
		e.notifications[i].IsRead = true
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emit(snap)

	go func() {
		err := e.store.MarkRead(ctx, recipientID, unreadIDs)
		if err == nil {
			e.log.Debug("notifications marked as read",
				zap.Int64("recipient_id", recipientID),
				zap.Int("count", len(unreadIDs)))
			return
		}

		e.log.Error("mark-as-read persistence failed",
			zap.Int64("recipient_id", recipientID),
			zap.Error(err))

		e.mu.Lock()
		if gen != e.generation {
			e.mu.Unlock()
			return
		}
		e.notifications = previous
		e.lastErr = apperror.ErrPersistFailed.Error()
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.emit(snap)
	}()
}

// Snapshot returns a frozen copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) fetchInitial(ctx context.Context, recipientID int64, gen uint64) {
	rows, err := e.store.RecentNotifications(ctx, recipientID, e.fetchLimit)

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		e.log.Debug("discarding stale fetch result", zap.Int64("recipient_id", recipientID))
		return
	}

	if err != nil {
		e.log.Error("initial notification fetch failed",
			zap.Int64("recipient_id", recipientID),
			zap.Error(err))
		e.notifications = nil
		e.lastErr = apperror.ErrFetchFailed.Error()
	} else {
		// A realtime insert may have landed before the fetch resolved; keep
		// those entries ahead of the fetched page and de-dup by id.
		e.notifications = mergeByID(e.notifications, rows, e.bufferLimit)
	}
	e.isLoading = false
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emit(snap)
}

func (e *Engine) subscribe(ctx context.Context, recipientID int64, gen uint64) {
	sub, err := e.realtime.SubscribeInserts(ctx, recipientID,
		func(n entity.Notification) { e.handleInsert(ctx, n, gen) },
		func(status backend.ChannelStatus, cause error) { e.handleStatus(recipientID, status, cause, gen) },
	)
	if err != nil {
		status := backend.StatusError
		if errors.Is(err, context.DeadlineExceeded) {
			status = backend.StatusTimedOut
		}
		e.handleStatus(recipientID, status, err, gen)
		return
	}

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		// Lost the race with a rebind; the new binding owns its own channel.
		e.closeSubscription(sub)
		return
	}
	e.sub = sub
	e.mu.Unlock()
}

// handleInsert merges one realtime insert: de-dup by id, resolve the actor
// cache-first, prepend, truncate to the buffer limit.
func (e *Engine) handleInsert(ctx context.Context, n entity.Notification, gen uint64) {
	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return
	}
	if containsID(e.notifications, n.ID) {
		e.mu.Unlock()
		e.log.Debug("ignoring duplicate realtime insert", zap.Int64("notification_id", n.ID))
		return
	}
	var actor *entity.ActorProfile
	needLookup := false
	if n.ActorID != nil {
		if cached, ok := e.actorCache[*n.ActorID]; ok {
			clone := cached.Clone()
			actor = &clone
		} else {
			needLookup = true
		}
	}
	e.mu.Unlock()

	if needLookup {
		// Lookup runs outside the lock; the subscription goroutine still
		// delivers events one at a time.
		profile, err := e.store.ActorProfile(ctx, *n.ActorID)
		if err != nil {
			// Degrade gracefully: show the notification without an actor.
			e.log.Warn("actor profile lookup failed",
				zap.Int64("actor_id", *n.ActorID),
				zap.Error(err))
		} else if profile != nil {
			e.mu.Lock()
			if _, ok := e.actorCache[*n.ActorID]; !ok {
				e.actorCache[*n.ActorID] = profile.Clone()
			}
			clone := e.actorCache[*n.ActorID].Clone()
			actor = &clone
			e.mu.Unlock()
		}
	}
	n.Actor = actor

	e.mu.Lock()
	if gen != e.generation || containsID(e.notifications, n.ID) {
		e.mu.Unlock()
		return
	}
	e.notifications = append([]entity.Notification{n}, e.notifications...)
	if len(e.notifications) > e.bufferLimit {
		e.notifications = e.notifications[:e.bufferLimit]
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emit(snap)
}

// handleStatus surfaces channel failures as a non-fatal error while keeping
// already-fetched data: historical entries stay valid without live updates.
func (e *Engine) handleStatus(recipientID int64, status backend.ChannelStatus, cause error, gen uint64) {
	switch status {
	case backend.StatusSubscribed:
		e.log.Info("subscribed to notification channel", zap.Int64("recipient_id", recipientID))
		return
	case backend.StatusClosed:
		e.log.Debug("notification channel closed", zap.Int64("recipient_id", recipientID))
		return
	}

	e.log.Error("notification channel error",
		zap.Int64("recipient_id", recipientID),
		zap.String("status", string(status)),
		zap.Error(cause))

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return
	}
	e.lastErr = fmt.Sprintf("%s: %s", apperror.ErrSubscriptionFailed.Error(), status)
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emit(snap)
}

func (e *Engine) snapshotLocked() Snapshot {
	list := make([]entity.Notification, len(e.notifications))
	unread := 0
	for i, n := range e.notifications {
		list[i] = n.Clone()
		if !n.IsRead {
			unread++
		}
	}
	return Snapshot{
		Notifications: list,
		UnreadCount:   unread,
		IsLoading:     e.isLoading,
		Error:         e.lastErr,
	}
}

func (e *Engine) emit(s Snapshot) {
	if e.onChange != nil {
		e.onChange(s)
	}
}

func (e *Engine) closeSubscription(sub backend.Subscription) {
	if sub == nil {
		return
	}
	if err := sub.Close(); err != nil {
		e.log.Warn("failed to remove realtime subscription", zap.Error(err))
	}
}

func containsID(list []entity.Notification, id int64) bool {
	for _, n := range list {
		if n.ID == id {
			return true
		}
	}
	return false
}

// mergeByID keeps existing entries (realtime arrivals) ahead of the fetched
// page, dropping fetched rows whose id is already present.
func mergeByID(existing, fetched []entity.Notification, limit int) []entity.Notification {
	seen := make(map[int64]struct{}, len(existing))
	for _, n := range existing {
		seen[n.ID] = struct{}{}
	}
	out := make([]entity.Notification, 0, len(existing)+len(fetched))
	out = append(out, existing...)
	for _, n := range fetched {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		out = append(out, n)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
