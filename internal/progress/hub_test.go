package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/segin2005/efgrabber/internal/model"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *recordingSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *recordingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func testEvent(stage Stage) Event {
	return Event{
		RunID:      UUIDToBytes(uuid.New()),
		TS:         time.Now(),
		Stage:      stage,
		DocumentID: "EFTA00000001",
		Status:     model.StatusCompleted,
	}
}

func TestHubFlushesOnBatchWait(t *testing.T) {
	sink := &recordingSink{}
	h := NewHub(Config{MaxBatchEvents: 100, MaxBatchWait: 20 * time.Millisecond}, sink)
	h.Emit(testEvent(StageDocumentDone))

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.count() != 1 {
		t.Fatalf("count = %d, want 1", sink.count())
	}

	if err := h.Close(t.Context()); err != nil {
		t.Fatal(err)
	}
	if !sink.closed {
		t.Error("expected sink to be closed")
	}
}

func TestHubFlushesOnBatchSize(t *testing.T) {
	sink := &recordingSink{}
	h := NewHub(Config{MaxBatchEvents: 3, MaxBatchWait: time.Hour}, sink)
	for i := 0; i < 3; i++ {
		h.Emit(testEvent(StageDocumentDone))
	}

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.count() != 3 {
		t.Fatalf("count = %d, want 3", sink.count())
	}
	h.Close(t.Context())
}

func TestHubDiscardsInvalidEvent(t *testing.T) {
	sink := &recordingSink{}
	h := NewHub(Config{MaxBatchEvents: 10, MaxBatchWait: 10 * time.Millisecond}, sink)
	h.Emit(Event{}) // missing RunID/TS
	time.Sleep(50 * time.Millisecond)
	if sink.count() != 0 {
		t.Errorf("count = %d, want 0 for invalid event", sink.count())
	}
	h.Close(t.Context())
}

func TestHubFlushesRemainingEventsOnClose(t *testing.T) {
	sink := &recordingSink{}
	h := NewHub(Config{MaxBatchEvents: 100, MaxBatchWait: time.Hour}, sink)
	h.Emit(testEvent(StageRunStart))
	h.Emit(testEvent(StageRunDone))

	if err := h.Close(t.Context()); err != nil {
		t.Fatal(err)
	}
	if sink.count() != 2 {
		t.Fatalf("count = %d, want 2", sink.count())
	}
}
