// Package adapter bridges an identity feed to a notification engine: it owns
// exactly one engine per consumer lifetime, forwards identity changes into
// Bind/Unbind, and tears the engine down when the consumer goes away.
package adapter

import (
	"context"
	"sync"

	"wamda.app/notifier/internal/engine"
)

type Binder struct {
	engine    *engine.Engine
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New starts forwarding identities to the engine. A nil identity maps to
// Unbind, any other value to Bind. The feed closing stops the binder but the
// engine is only torn down by Close.
func New(ctx context.Context, eng *engine.Engine, identities <-chan *int64) *Binder {
	ctx, cancel := context.WithCancel(ctx)
	b := &Binder{
		engine: eng,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go b.run(ctx, identities)
	return b
}

func (b *Binder) run(ctx context.Context, identities <-chan *int64) {
	defer close(b.done)
	for {
		select {
		case id, ok := <-identities:
			if !ok {
				return
			}
			if id == nil {
				b.engine.Unbind()
			} else {
				b.engine.Bind(ctx, *id)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close stops forwarding, unbinds and tears the engine down. Idempotent.
func (b *Binder) Close() {
	b.closeOnce.Do(func() {
		b.cancel()
		<-b.done
		b.engine.Unbind()
		b.engine.Teardown()
	})
}
