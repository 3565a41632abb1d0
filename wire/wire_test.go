// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateFields(t *testing.T) {
	cases := []struct {
		name  string
		entry Entry
		ok    bool
	}{
		{"valid", Entry{Title: "t", Content: "c"}, true},
		{"max length", Entry{Title: strings.Repeat("a", MaxFieldLen), Content: strings.Repeat("b", MaxFieldLen)}, true},
		{"empty title", Entry{Title: "", Content: "c"}, false},
		{"empty content", Entry{Title: "t", Content: ""}, false},
		{"title too long", Entry{Title: strings.Repeat("a", MaxFieldLen+1), Content: "c"}, false},
		{"content too long", Entry{Title: "t", Content: strings.Repeat("b", MaxFieldLen+1)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.entry.ValidateFields()
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				require.True(t, IsValidation(err))
			}
		})
	}
}

func TestValidateID(t *testing.T) {
	require.NoError(t, ValidateID("01J5ZX3E8PQ4N3Y3S3H4T7WXYZ"))
	require.Error(t, ValidateID(""))
	require.Error(t, ValidateID("   "))
	require.Error(t, ValidateID(strings.Repeat("x", 129)))
}

func TestValidationErrorWrapping(t *testing.T) {
	err := NewValidationError("title", "must be a non-empty string")
	wrapped := errors.Join(errors.New("outer"), err)
	require.True(t, IsValidation(wrapped))
	require.False(t, IsValidation(errors.New("plain")))
}

func TestReconciliationErrorUnwraps(t *testing.T) {
	cause := errors.New("commit failed")
	err := &ReconciliationError{Cause: cause}
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "reconciliation failed")
}

func TestTransportErrorf(t *testing.T) {
	err := TransportErrorf("dial %s: %v", "ws://x", "refused")
	require.ErrorIs(t, err, ErrTransport)
}

func TestFrameIsPush(t *testing.T) {
	call, err := NewCall(1, MethodSendEntry, &SendEntryParams{Title: "t", Content: "c"})
	require.NoError(t, err)
	require.False(t, call.IsPush())

	push, err := NewPush(MethodNotifyNew, &NotifyParams{Entry: &Entry{ID: "a"}})
	require.NoError(t, err)
	require.True(t, push.IsPush())

	reply, err := NewResult(1, map[string]bool{"ok": true})
	require.NoError(t, err)
	require.False(t, reply.IsPush())
}

func TestFrameRoundTrip(t *testing.T) {
	frame, err := NewCall(7, MethodDeleteEntry, &DeleteEntryParams{ID: "abc"})
	require.NoError(t, err)

	raw, err := json.Marshal(frame)
	require.NoError(t, err)

	var decoded Frame
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, uint64(7), decoded.ID)
	require.Equal(t, MethodDeleteEntry, decoded.Method)

	var params DeleteEntryParams
	require.NoError(t, json.Unmarshal(decoded.Params, &params))
	require.Equal(t, "abc", params.ID)
}

func TestErrorFrame(t *testing.T) {
	frame := NewError(3, CodeValidation, "title must be a non-empty string")
	require.NotNil(t, frame.Error)
	require.Equal(t, CodeValidation, frame.Error.Code)
	require.Contains(t, frame.Error.Error(), "title")
}
