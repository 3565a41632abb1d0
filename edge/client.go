// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

// Package edge implements the client half of the sync node: the SQLite
// mirror, the subscription client that keeps one live session against the
// remote store, and the reconciler that merges the remote set into the
// mirror transactionally.
package edge

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/codegod100/sqlworker/noteid"
	"github.com/codegod100/sqlworker/wire"
)

// DefaultReconnectBackoff is the fixed delay before a reconnect attempt.
const DefaultReconnectBackoff = 10 * time.Second

// State is the subscription client's connection state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribed
	AwaitingReconnect
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	case AwaitingReconnect:
		return "awaiting_reconnect"
	default:
		return "unknown"
	}
}

// UpdateHandler observes remote entries after they are recorded in the
// pending set. Optional.
type UpdateHandler interface {
	HandleRemoteEntry(entry *wire.Entry)
}

// Releaser is implemented by update handlers holding an owned capability;
// the client releases it when a session is torn down.
type Releaser interface {
	Release()
}

// Config configures a Client.
type Config struct {
	Endpoint string
	Backoff  time.Duration // 0 selects DefaultReconnectBackoff
	Handler  UpdateHandler
	Logger   *slog.Logger
}

// Client owns at most one live RPC session and drives the
// connect/subscribe/reconnect state machine. All transitions run under one
// mutex; the session generation counter invalidates callbacks from
// sessions that have since been torn down.
type Client struct {
	store   *LocalStore
	dialer  Dialer
	logger  *slog.Logger
	backoff time.Duration
	ids     *noteid.Generator

	mu             sync.Mutex
	state          State
	endpoint       string
	link           Link
	subID          string
	handler        UpdateHandler
	reconnectTimer *time.Timer
	pending        map[string]*wire.Entry
	gen            uint64
}

// NewClient builds a client over an opened local store. Dial happens on
// the first Connect, not here.
func NewClient(store *LocalStore, dialer Dialer, cfg Config) (*Client, error) {
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultReconnectBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ids, err := noteid.NewGenerator()
	if err != nil {
		return nil, err
	}
	return &Client{
		store:    store,
		dialer:   dialer,
		logger:   cfg.Logger,
		backoff:  cfg.Backoff,
		ids:      ids,
		endpoint: cfg.Endpoint,
		handler:  cfg.Handler,
		pending:  make(map[string]*wire.Entry),
	}, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PendingCount returns the number of pushed-but-unmerged remote entries.
func (c *Client) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Store exposes the local mirror.
func (c *Client) Store() *LocalStore { return c.store }

// Connect establishes the session and subscription. Re-entrant: a live or
// in-flight session makes it a no-op. Transport failures are never
// surfaced; they schedule a reconnect and are logged.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.state == Subscribed || c.state == Connecting {
		c.mu.Unlock()
		return
	}
	// a manual connect during the backoff window must not leave a second
	// attempt pending
	c.cancelReconnectLocked()
	c.state = Connecting
	c.gen++
	gen := c.gen
	endpoint := c.endpoint
	c.mu.Unlock()

	link, err := c.dialer.Dial(ctx, endpoint)
	if err != nil {
		c.logger.Warn("session establishment failed", "endpoint", endpoint, "error", err)
		c.scheduleReconnect(gen)
		return
	}

	var sub wire.SubscribeResult
	if err := link.Call(ctx, wire.MethodSubscribe, struct{}{}, &sub); err != nil {
		c.logger.Warn("subscribe failed", "endpoint", endpoint, "error", err)
		_ = link.Close()
		c.scheduleReconnect(gen)
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.state != Connecting {
		// superseded by Close or an endpoint change mid-handshake
		c.mu.Unlock()
		_ = link.Close()
		return
	}
	c.link = link
	c.subID = sub.SubscriptionID
	c.state = Subscribed
	c.mu.Unlock()

	c.logger.Info("subscribed to remote updates",
		"endpoint", endpoint, "subscription_id", sub.SubscriptionID)
	go c.consumePushes(link, gen)
}

// Close tears the session down for good; no reconnect is scheduled.
func (c *Client) Close() {
	link, subID := c.teardown(Disconnected)
	if link != nil {
		c.unsubscribeBestEffort(link, subID)
		_ = link.Close()
	}
}

// SetEndpoint switches the remote endpoint: the current session is torn
// down (buffered pending updates survive) and a connection to the new
// endpoint is attempted immediately.
func (c *Client) SetEndpoint(ctx context.Context, endpoint string) {
	c.mu.Lock()
	c.endpoint = endpoint
	c.mu.Unlock()

	link, subID := c.teardown(Disconnected)
	if link != nil {
		c.unsubscribeBestEffort(link, subID)
		_ = link.Close()
	}
	c.Connect(ctx)
}

// teardown invalidates the current session generation, cancels any pending
// reconnect, releases the handler capability and moves to next. It returns
// the old link for the caller to dispose of.
func (c *Client) teardown(next State) (Link, string) {
	c.mu.Lock()
	c.gen++
	c.cancelReconnectLocked()
	link := c.link
	subID := c.subID
	c.link = nil
	c.subID = ""
	hadSession := link != nil
	c.state = next
	handler := c.handler
	c.mu.Unlock()

	if hadSession {
		if r, ok := handler.(Releaser); ok {
			r.Release()
		}
	}
	return link, subID
}

// cancelReconnectLocked stops the pending reconnect timer, if any.
// Synchronous and idempotent; a callback that already fired bails out on
// the state check.
func (c *Client) cancelReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// scheduleReconnect moves to AwaitingReconnect and arms the single backoff
// timer. The state machine guarantees at most one pending timer and at
// most one attempt in flight.
func (c *Client) scheduleReconnect(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return // superseded while we were failing
	}
	c.state = AwaitingReconnect
	if c.reconnectTimer != nil {
		return
	}
	c.reconnectTimer = time.AfterFunc(c.backoff, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		stale := c.gen != gen || c.state != AwaitingReconnect
		c.mu.Unlock()
		if stale {
			return
		}
		c.Connect(context.Background())
	})
}

// failSession handles a dead link discovered by an RPC call or the push
// stream: best-effort unsubscribe, release, clear handles, then back off.
func (c *Client) failSession(link Link, gen uint64, cause error) {
	c.mu.Lock()
	if c.gen != gen || c.link != link {
		c.mu.Unlock()
		return // stale session, already handled
	}
	c.link = nil
	subID := c.subID
	c.subID = ""
	handler := c.handler
	c.mu.Unlock()

	c.logger.Warn("session lost", "error", cause)
	c.unsubscribeBestEffort(link, subID)
	_ = link.Close()
	if r, ok := handler.(Releaser); ok {
		r.Release()
	}
	c.scheduleReconnect(gen)
}

// unsubscribeBestEffort tells the remote to drop the registration. The
// link is usually already dead; errors are logged and ignored.
func (c *Client) unsubscribeBestEffort(link Link, subID string) {
	if subID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := link.Call(ctx, wire.MethodUnsubscribe, &wire.UnsubscribeParams{SubscriptionID: subID}, nil)
	if err != nil {
		c.logger.Debug("best-effort unsubscribe failed", "subscription_id", subID, "error", err)
	}
}

// consumePushes drains the link's push stream into the pending set until
// the link dies. Pushes without a usable entry id are rejected and logged
// without touching state.
func (c *Client) consumePushes(link Link, gen uint64) {
	for frame := range link.Pushes() {
		if frame.Method != wire.MethodNotifyNew {
			c.logger.Debug("ignoring unexpected push", "method", frame.Method)
			continue
		}
		var params wire.NotifyParams
		if err := json.Unmarshal(frame.Params, &params); err != nil ||
			params.Entry == nil || strings.TrimSpace(params.Entry.ID) == "" {
			c.logger.Warn("rejected push without entry id")
			continue
		}

		c.mu.Lock()
		if c.gen != gen {
			// stale notification from a torn-down session
			c.mu.Unlock()
			return
		}
		c.pending[params.Entry.ID] = params.Entry
		handler := c.handler
		c.mu.Unlock()

		if handler != nil {
			handler.HandleRemoteEntry(params.Entry)
		}
	}
	c.failSession(link, gen, wire.TransportErrorf("push stream closed"))
}

// CreateEntry creates an entry locally and best-effort forwards it to the
// remote store. The remote being unreachable is not an error; the entry
// stays local until a later sync converges.
func (c *Client) CreateEntry(ctx context.Context, title, content string) (*wire.Entry, error) {
	entry := &wire.Entry{
		Title:     title,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := entry.ValidateFields(); err != nil {
		return nil, err
	}
	id, err := c.ids.Generate()
	if err != nil {
		return nil, err
	}
	entry.ID = id

	if err := c.store.Insert(ctx, entry); err != nil {
		return nil, err
	}

	link, gen := c.currentSession()
	if link == nil {
		return entry, nil
	}
	params := &wire.SendEntryParams{
		ID:        entry.ID,
		Title:     entry.Title,
		Content:   entry.Content,
		CreatedAt: entry.CreatedAt.Format(time.RFC3339Nano),
	}
	if err := link.Call(ctx, wire.MethodSendEntry, params, nil); err != nil {
		if wire.IsValidation(err) {
			c.logger.Warn("remote rejected entry", "entry_id", entry.ID, "error", err)
		} else {
			c.failSession(link, gen, err)
		}
	}
	return entry, nil
}

// currentSession returns the live link, or nil when not subscribed.
func (c *Client) currentSession() (Link, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Subscribed || c.link == nil {
		return nil, 0
	}
	return c.link, c.gen
}
