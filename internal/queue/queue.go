// Package queue publishes progress events to an external event bus so
// other systems can observe a run without polling the status server.
package queue

import "context"

// Provider publishes opaque payloads to a topic and is closed once at
// shutdown. Implementations must be safe for concurrent use.
type Provider interface {
	Publish(ctx context.Context, payload []byte) error
	Close() error
}
