// Package session holds the current recipient identity for one consumer and
// fans changes out to watchers. It is the process-local stand-in for the
// external auth store; only the binding adapter consumes it.
package session

import (
	"sync"
)

// Store publishes the current recipient id. A nil value means signed out.
type Store struct {
	mu       sync.Mutex
	current  *int64
	watchers []chan *int64
	closed   bool
}

func NewStore() *Store {
	return &Store{}
}

// Set publishes a signed-in recipient.
func (s *Store) Set(recipientID int64) {
	id := recipientID
	s.publish(&id)
}

// Clear publishes the signed-out state.
func (s *Store) Clear() {
	s.publish(nil)
}

// Current returns the latest published identity.
func (s *Store) Current() *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	id := *s.current
	return &id
}

// Watch returns a channel that receives the current identity immediately and
// every change after that. Watchers only ever see the latest value; an
// unconsumed older value is replaced, not queued.
func (s *Store) Watch() <-chan *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan *int64, 1)
	if s.closed {
		close(ch)
		return ch
	}
	if s.current != nil {
		id := *s.current
		ch <- &id
	}
	s.watchers = append(s.watchers, ch)
	return ch
}

// Close ends every watcher channel. The store cannot be reused afterwards.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, ch := range s.watchers {
		close(ch)
	}
	s.watchers = nil
}

func (s *Store) publish(id *int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.current = id
	for _, ch := range s.watchers {
		// Latest-wins: drop a pending value the watcher never read.
		select {
		case <-ch:
		default:
		}
		ch <- id
	}
}
