// Package storage mirrors completed downloads to an optional cloud
// storage backend, independent of the local on-disk copy the scheduler
// already wrote.
package storage

import "context"

// Provider uploads a completed local file to a durable backing store,
// keyed by an object name the caller supplies (the scheduler passes the
// document id).
type Provider interface {
	Upload(ctx context.Context, localPath, key string) error
	Close() error
}
