package queue

import "context"

// NoopProvider discards every payload; the default when no event bus is
// configured.
type NoopProvider struct{}

// Publish always succeeds without doing anything.
func (NoopProvider) Publish(context.Context, []byte) error { return nil }

// Close is a no-op.
func (NoopProvider) Close() error { return nil }
