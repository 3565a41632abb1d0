// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
)

// JSON frame models for the websocket RPC link. A frame with a non-zero ID
// is a call or its reply; a frame with no ID is a server push.

// Method names on the RPC surface.
const (
	MethodSendEntry    = "sendEntry"
	MethodFetchEntries = "fetchEntries"
	MethodDeleteEntry  = "deleteEntry"
	MethodSubscribe    = "subscribeUpdates"
	MethodUnsubscribe  = "unsubscribeUpdates"
	MethodNotifyNew    = "notifyNewData"
)

// Error codes carried in reply frames.
const (
	CodeValidation = "validation_error"
	CodeInternal   = "internal_error"
	CodeNotFound   = "not_found"
)

// Frame is the single on-wire message shape. Exactly one of Params,
// Result or Error is populated depending on direction.
type Frame struct {
	ID     uint64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *FrameError     `json:"error,omitempty"`
}

// FrameError is the error half of a reply frame.
type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *FrameError) Error() string { return e.Code + ": " + e.Message }

// IsPush reports whether the frame is a server-initiated notification
// rather than a reply to an outstanding call.
func (f *Frame) IsPush() bool { return f.ID == 0 && f.Method != "" }

// SendEntryParams carries a client-created entry. ID and CreatedAt are
// optional; the server assigns both when absent.
type SendEntryParams struct {
	ID        string `json:"id,omitempty"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at,omitempty"` // RFC 3339
}

// DeleteEntryParams identifies the entry to remove.
type DeleteEntryParams struct {
	ID string `json:"id"`
}

// DeleteEntryResult echoes the removed id.
type DeleteEntryResult struct {
	Deleted string `json:"deleted"`
}

// SubscribeResult correlates the registration with later unsubscription.
type SubscribeResult struct {
	Subscribed     bool   `json:"subscribed"`
	SubscriptionID string `json:"subscription_id"`
}

// UnsubscribeParams names the registration to tear down.
type UnsubscribeParams struct {
	SubscriptionID string `json:"subscription_id"`
}

// FetchEntriesResult is the full authoritative set, newest first.
type FetchEntriesResult struct {
	Entries []*Entry `json:"entries"`
}

// NotifyParams is the push payload for a newly stored entry.
type NotifyParams struct {
	Entry *Entry `json:"entry"`
}

// NewCall builds a call frame, marshalling params.
func NewCall(id uint64, method string, params any) (*Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &Frame{ID: id, Method: method, Params: raw}, nil
}

// NewResult builds a success reply for call id.
func NewResult(id uint64, result any) (*Frame, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Frame{ID: id, Result: raw}, nil
}

// NewError builds an error reply for call id.
func NewError(id uint64, code, message string) *Frame {
	return &Frame{ID: id, Error: &FrameError{Code: code, Message: message}}
}

// NewPush builds a server push frame.
func NewPush(method string, params any) (*Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &Frame{Method: method, Params: raw}, nil
}
