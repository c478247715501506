// Package sinks provides concrete progress.Sink implementations: a
// structured-log sink for local debugging, a Prometheus exporter, and a
// Pub/Sub publisher for downstream consumers.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/segin2005/efgrabber/internal/progress"
)

// LogSink emits structured logs for every event in a batch, useful during
// development or when no durable event bus is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the Sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Info("progress event",
			zap.String("stage", string(evt.Stage)),
			zap.Int("collection_id", evt.CollectionID),
			zap.String("document_id", evt.DocumentID),
			zap.String("status", string(evt.Status)),
			zap.Int64("bytes", evt.Bytes),
			zap.Int("page_index", evt.PageIndex),
			zap.Int("pdf_count", evt.PDFCount),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; a log sink holds no resources.
func (s *LogSink) Close(context.Context) error {
	return nil
}
