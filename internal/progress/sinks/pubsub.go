package sinks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segin2005/efgrabber/internal/progress"
	"github.com/segin2005/efgrabber/internal/queue"
)

// QueueSink publishes each event as a JSON message through a
// queue.Provider, letting external systems observe a run without
// polling the status server.
type QueueSink struct {
	provider queue.Provider
}

// NewQueueSink wires a queue.Provider to the Sink interface.
func NewQueueSink(provider queue.Provider) *QueueSink {
	return &QueueSink{provider: provider}
}

// Consume publishes every event in batch individually.
func (s *QueueSink) Consume(ctx context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		data, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal progress event: %w", err)
		}
		if err := s.provider.Publish(ctx, data); err != nil {
			return fmt.Errorf("publish progress event: %w", err)
		}
	}
	return nil
}

// Close releases the underlying provider.
func (s *QueueSink) Close(context.Context) error {
	return s.provider.Close()
}
