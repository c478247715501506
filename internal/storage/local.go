package storage

import "context"

// LocalProvider is the default mirror: it does nothing, since the
// scheduler already wrote the file to local disk.
type LocalProvider struct{}

// Upload is a no-op.
func (LocalProvider) Upload(context.Context, string, string) error { return nil }

// Close is a no-op.
func (LocalProvider) Close() error { return nil }
