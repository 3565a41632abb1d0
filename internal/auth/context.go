// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
)

type contextKey string

const sourceIDKey contextKey = "source_id"

// WithSourceID attaches the authenticated edge identity to ctx.
func WithSourceID(ctx context.Context, sourceID string) context.Context {
	return context.WithValue(ctx, sourceIDKey, sourceID)
}

// SourceID retrieves the authenticated edge identity from ctx.
func SourceID(ctx context.Context) (string, bool) {
	sourceID, ok := ctx.Value(sourceIDKey).(string)
	return sourceID, ok
}
