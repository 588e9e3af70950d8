package engine

import "github.com/google/uuid"

// TokenGenerator generates correlation tokens for query requests. Every
// public Find/Count/Exists call draws one token and stamps it on all of
// its log lines, so the key, load, and count statements of one request
// can be tied together in aggregated logs.
//
// Implemented by UUIDv7Generator (production) and the fixed generator in
// testutil (deterministic tests).
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 tokens.
//
// UUIDv7 embeds a timestamp in the most significant bits, so tokens sort
// by request time, which is helpful when scanning logs.
//
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
