// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/codegod100/sqlworker/wire"
)

// Listener is the notify capability a subscriber hands to the hub.
type Listener interface {
	NotifyNewData(ctx context.Context, entry *wire.Entry) error
}

// RefCounted is implemented by listeners whose lifetime is managed through
// explicit ownership. The hub acquires its own reference on registration,
// independent of the caller's handle, and releases it exactly once on
// unsubscription or eviction.
type RefCounted interface {
	Acquire()
	Release()
}

// Hub keeps the set of registered listeners and fans new-entry events out
// to all of them.
type Hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]*Subscription
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		subs:   make(map[string]*Subscription),
	}
}

// Subscription correlates one registered listener with its removal.
// Unsubscribe is safe to call any number of times; deregistration and the
// reference release happen exactly once.
type Subscription struct {
	hub      *Hub
	id       string
	listener Listener
	once     sync.Once
}

// ID returns the registration's correlation id.
func (s *Subscription) ID() string { return s.id }

// Unsubscribe deregisters the listener and releases the hub's reference.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()

		if rc, ok := s.listener.(RefCounted); ok {
			rc.Release()
		}
	})
}

// Register adds a listener and hands back its subscription handle. The hub
// acquires an owned reference when the listener supports explicit
// ownership, otherwise it retains the raw reference.
func (h *Hub) Register(listener Listener) (*Subscription, error) {
	if listener == nil {
		return nil, wire.NewValidationError("listener", "must expose a notify operation")
	}
	if rc, ok := listener.(RefCounted); ok {
		rc.Acquire()
	}

	sub := &Subscription{
		hub:      h,
		id:       uuid.NewString(),
		listener: listener,
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()

	return sub, nil
}

// Len returns the number of registered listeners.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// NotifyAll delivers entry to every registered listener concurrently and
// returns once every delivery has been attempted. A failed delivery evicts
// that listener (unsubscribe + release, no retry) and is logged; it never
// blocks the other deliveries and never reaches the caller.
func (h *Hub) NotifyAll(ctx context.Context, entry *wire.Entry) {
	h.mu.Lock()
	snapshot := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		snapshot = append(snapshot, sub)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, sub := range snapshot {
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()
			if err := sub.listener.NotifyNewData(ctx, entry); err != nil {
				h.logger.Warn("listener delivery failed, evicting",
					"subscription_id", sub.id,
					"entry_id", entry.ID,
					"error", err)
				sub.Unsubscribe()
			}
		}(sub)
	}
	wg.Wait()
}
