package publish

import (
	"context"
	"time"
)

// Provider stores a published snapshot under a key.
type Provider interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// NoopProvider discards every snapshot.
type NoopProvider struct{}

// Set discards the value and returns nil.
func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error { return nil }

// Close is a no-op.
func (NoopProvider) Close() error { return nil }
