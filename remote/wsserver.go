// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codegod100/sqlworker/internal/auth"
	"github.com/codegod100/sqlworker/wire"
)

const (
	writeTimeout = 10 * time.Second
	// pushBuffer bounds undelivered pushes per connection. A connection
	// that cannot drain this many frames counts as a failed delivery and
	// is evicted by the hub.
	pushBuffer = 64
)

// WSServer terminates websocket RPC sessions against the authoritative
// service. One connection carries call/reply frames and server pushes.
type WSServer struct {
	svc      *Service
	auth     *auth.JWTAuth // nil disables authentication
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewWSServer builds the RPC endpoint. Passing a nil authenticator
// disables the bearer-token check (tests, local development).
func NewWSServer(svc *Service, authenticator *auth.JWTAuth, logger *slog.Logger) *WSServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSServer{
		svc:    svc,
		auth:   authenticator,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP upgrades the request and runs the session until the link dies.
func (s *WSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sourceID := "anonymous"
	if s.auth != nil {
		sid, err := s.auth.SourceIDFromRequest(r)
		if err != nil {
			s.logger.Warn("rejected unauthenticated session", "error", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		sourceID = sid
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess := &session{
		svc:      s.svc,
		conn:     conn,
		sourceID: sourceID,
		logger:   s.logger.With("source_id", sourceID),
		out:      make(chan *wire.Frame, pushBuffer),
		subs:     make(map[string]*Subscription),
	}
	sess.run(auth.WithSourceID(r.Context(), sourceID))
}

// session is one live edge connection. All writes to the websocket go
// through the out channel; gorilla permits a single writer only.
type session struct {
	svc      *Service
	conn     *websocket.Conn
	sourceID string
	logger   *slog.Logger

	out    chan *wire.Frame
	closed atomic.Bool

	mu   sync.Mutex
	subs map[string]*Subscription
}

func (s *session) run(ctx context.Context) {
	defer s.teardown()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for frame := range s.out {
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(frame); err != nil {
				s.logger.Debug("session write failed", "error", err)
				s.closed.Store(true)
				return
			}
		}
	}()

	for {
		var frame wire.Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("session read failed", "error", err)
			}
			break
		}
		s.dispatch(ctx, &frame)
	}

	close(s.out)
	<-writerDone
}

// teardown drops every hub registration this session owns and closes the
// socket. Each Unsubscribe releases exactly once regardless of whether
// the hub already evicted the listener.
func (s *session) teardown() {
	s.closed.Store(true)

	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[string]*Subscription)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	_ = s.conn.Close()
}

func (s *session) reply(frame *wire.Frame) {
	defer func() {
		// the out channel may already be closed by the reader loop
		_ = recover()
	}()
	select {
	case s.out <- frame:
	default:
		s.logger.Warn("session outbound buffer full, dropping reply", "id", frame.ID)
	}
}

func (s *session) dispatch(ctx context.Context, frame *wire.Frame) {
	switch frame.Method {
	case wire.MethodSendEntry:
		var params wire.SendEntryParams
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			s.reply(wire.NewError(frame.ID, wire.CodeValidation, "malformed sendEntry params"))
			return
		}
		entry, err := s.svc.SendEntry(ctx, &params)
		if err != nil {
			s.replyError(frame.ID, err)
			return
		}
		s.replyResult(frame.ID, entry)

	case wire.MethodFetchEntries:
		entries, err := s.svc.FetchEntries(ctx)
		if err != nil {
			s.replyError(frame.ID, err)
			return
		}
		s.replyResult(frame.ID, &wire.FetchEntriesResult{Entries: entries})

	case wire.MethodDeleteEntry:
		var params wire.DeleteEntryParams
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			s.reply(wire.NewError(frame.ID, wire.CodeValidation, "malformed deleteEntry params"))
			return
		}
		deleted, err := s.svc.DeleteEntry(ctx, params.ID)
		if err != nil {
			s.replyError(frame.ID, err)
			return
		}
		s.replyResult(frame.ID, &wire.DeleteEntryResult{Deleted: deleted})

	case wire.MethodSubscribe:
		listener := newConnListener(s)
		sub, err := s.svc.SubscribeUpdates(listener)
		if err != nil {
			s.replyError(frame.ID, err)
			return
		}
		s.mu.Lock()
		s.subs[sub.ID()] = sub
		s.mu.Unlock()
		s.logger.Debug("edge subscribed", "subscription_id", sub.ID())
		s.replyResult(frame.ID, &wire.SubscribeResult{Subscribed: true, SubscriptionID: sub.ID()})

	case wire.MethodUnsubscribe:
		var params wire.UnsubscribeParams
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			s.reply(wire.NewError(frame.ID, wire.CodeValidation, "malformed unsubscribe params"))
			return
		}
		s.mu.Lock()
		sub := s.subs[params.SubscriptionID]
		delete(s.subs, params.SubscriptionID)
		s.mu.Unlock()
		if sub != nil {
			sub.Unsubscribe()
		}
		s.replyResult(frame.ID, map[string]bool{"unsubscribed": true})

	default:
		s.reply(wire.NewError(frame.ID, wire.CodeValidation, "unknown method: "+frame.Method))
	}
}

func (s *session) replyResult(id uint64, result any) {
	frame, err := wire.NewResult(id, result)
	if err != nil {
		s.logger.Error("failed to encode reply", "id", id, "error", err)
		s.reply(wire.NewError(id, wire.CodeInternal, "encode failure"))
		return
	}
	s.reply(frame)
}

func (s *session) replyError(id uint64, err error) {
	if wire.IsValidation(err) {
		s.reply(wire.NewError(id, wire.CodeValidation, err.Error()))
		return
	}
	s.logger.Error("rpc call failed", "id", id, "error", err)
	s.reply(wire.NewError(id, wire.CodeInternal, "internal error"))
}

// connListener is the capability handed to the hub for one session. Its
// reference count tracks hub ownership; delivery fails once the session
// is closed or its outbound buffer stays full, which makes the hub evict
// the listener.
type connListener struct {
	sess *session
	refs atomic.Int64
}

func newConnListener(sess *session) *connListener {
	return &connListener{sess: sess}
}

func (l *connListener) Acquire() { l.refs.Add(1) }

func (l *connListener) Release() { l.refs.Add(-1) }

func (l *connListener) NotifyNewData(ctx context.Context, entry *wire.Entry) (err error) {
	if l.sess.closed.Load() {
		return wire.ErrListenerDelivery
	}
	frame, perr := wire.NewPush(wire.MethodNotifyNew, &wire.NotifyParams{Entry: entry})
	if perr != nil {
		return errors.Join(wire.ErrListenerDelivery, perr)
	}

	defer func() {
		// the session may close the out channel concurrently
		if recover() != nil {
			err = wire.ErrListenerDelivery
		}
	}()
	select {
	case l.sess.out <- frame:
		return nil
	case <-ctx.Done():
		return errors.Join(wire.ErrListenerDelivery, ctx.Err())
	case <-time.After(writeTimeout):
		return wire.ErrListenerDelivery
	}
}
