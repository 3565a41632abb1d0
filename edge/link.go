// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

package edge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codegod100/sqlworker/wire"
)

// Link is one live RPC session against the remote store: sequential
// call/reply plus a push stream. Pushes is closed when the link dies for
// any reason, which is how the client learns about a dead session.
type Link interface {
	Call(ctx context.Context, method string, params any, result any) error
	Pushes() <-chan *wire.Frame
	Close() error
}

// Dialer establishes links. Injected so tests can run the state machine
// against a fake transport.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Link, error)
}

// WSDialer dials websocket links, attaching a bearer token when set.
type WSDialer struct {
	Token       string
	DialTimeout time.Duration
}

func (d *WSDialer) Dial(ctx context.Context, endpoint string) (Link, error) {
	timeout := d.DialTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var header http.Header
	if d.Token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + d.Token}}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, endpoint, header)
	if err != nil {
		return nil, wire.TransportErrorf("dial %s: %v", endpoint, err)
	}

	link := &wsLink{
		conn:    conn,
		pushes:  make(chan *wire.Frame, 64),
		pending: make(map[uint64]chan *wire.Frame),
	}
	go link.readLoop()
	return link, nil
}

// wsLink multiplexes calls and pushes over one websocket. Reply frames are
// routed to the waiting caller by id; frames without an id go to the push
// channel.
type wsLink struct {
	conn   *websocket.Conn
	pushes chan *wire.Frame
	nextID atomic.Uint64

	writeMu sync.Mutex // gorilla allows one concurrent writer

	mu      sync.Mutex
	pending map[uint64]chan *wire.Frame
	dead    bool
}

func (l *wsLink) Pushes() <-chan *wire.Frame { return l.pushes }

func (l *wsLink) Call(ctx context.Context, method string, params any, result any) error {
	id := l.nextID.Add(1)
	frame, err := wire.NewCall(id, method, params)
	if err != nil {
		return fmt.Errorf("encode %s call: %w", method, err)
	}

	replyCh := make(chan *wire.Frame, 1)
	l.mu.Lock()
	if l.dead {
		l.mu.Unlock()
		return wire.TransportErrorf("%s: link closed", method)
	}
	l.pending[id] = replyCh
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.pending, id)
		l.mu.Unlock()
	}()

	l.writeMu.Lock()
	l.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	err = l.conn.WriteJSON(frame)
	l.writeMu.Unlock()
	if err != nil {
		return wire.TransportErrorf("%s: write: %v", method, err)
	}

	select {
	case <-ctx.Done():
		return wire.TransportErrorf("%s: %v", method, ctx.Err())
	case reply, ok := <-replyCh:
		if !ok {
			return wire.TransportErrorf("%s: link closed", method)
		}
		if reply.Error != nil {
			if reply.Error.Code == wire.CodeValidation {
				return wire.NewValidationError("request", reply.Error.Message)
			}
			return fmt.Errorf("%s: %w", method, reply.Error)
		}
		if result != nil && len(reply.Result) > 0 {
			if err := json.Unmarshal(reply.Result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	}
}

func (l *wsLink) readLoop() {
	defer l.fail()
	for {
		var frame wire.Frame
		if err := l.conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.IsPush() {
			select {
			case l.pushes <- &frame:
			default:
				// push buffer overrun; drop rather than stall the reader
			}
			continue
		}
		l.mu.Lock()
		replyCh := l.pending[frame.ID]
		l.mu.Unlock()
		if replyCh != nil {
			replyCh <- &frame
		}
	}
}

// fail marks the link dead, wakes all outstanding callers and closes the
// push channel.
func (l *wsLink) fail() {
	l.mu.Lock()
	if l.dead {
		l.mu.Unlock()
		return
	}
	l.dead = true
	for id, ch := range l.pending {
		close(ch)
		delete(l.pending, id)
	}
	l.mu.Unlock()

	close(l.pushes)
	_ = l.conn.Close()
}

func (l *wsLink) Close() error {
	err := l.conn.Close()
	// the read loop notices the closed socket and runs fail()
	return err
}
