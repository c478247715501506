package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/segin2005/efgrabber/internal/fetcher"
	"github.com/segin2005/efgrabber/internal/model"
)

type fakeStore struct {
	mu       sync.Mutex
	pending  []model.Document
	byRow    map[int64]*model.Document
	nextRow  int64
	statuses []model.Status
}

func newFakeStore(docs ...model.Document) *fakeStore {
	s := &fakeStore{byRow: make(map[int64]*model.Document)}
	for _, d := range docs {
		s.nextRow++
		d.RowID = s.nextRow
		d.Status = model.StatusPending
		copyDoc := d
		s.byRow[d.RowID] = &copyDoc
		s.pending = append(s.pending, d)
	}
	return s
}

func (s *fakeStore) ClaimPending(collectionID, limit int) ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.pending) {
		limit = len(s.pending)
	}
	out := s.pending[:limit]
	s.pending = s.pending[limit:]
	return out, nil
}

func (s *fakeStore) ListFailedReady(collectionID, maxRetries, limit int) ([]model.Document, error) {
	return nil, nil
}

func (s *fakeStore) UpdateStatus(rowID int64, status model.Status, errMsg string, byteSize int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.byRow[rowID]; ok {
		d.Status = status
		d.LastError = errMsg
		d.ByteSize = byteSize
	}
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeStore) IncrementRetry(rowID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.byRow[rowID]; ok {
		d.RetryCount++
	}
	return nil
}

func (s *fakeStore) GetStats(collectionID int) (model.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := model.Stats{CollectionID: collectionID}
	for _, d := range s.byRow {
		switch d.Status {
		case model.StatusPending:
			stats.Pending++
		case model.StatusInProgress:
			stats.InProgress++
		case model.StatusCompleted:
			stats.Completed++
		case model.StatusFailed:
			stats.Failed++
		case model.StatusNotFound:
			stats.NotFound++
		case model.StatusSkipped:
			stats.Skipped++
		}
	}
	return stats, nil
}

func TestSchedulerCompletesDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("document body"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	doc := model.Document{CollectionID: 1, DocumentID: "EFTA00000001", RemoteURL: srv.URL, LocalPath: filepath.Join(dir, "doc.pdf")}
	store := newFakeStore(doc)

	f := fetcher.New(fetcher.Options{})
	sch := New(store, f, Config{CollectionID: 1, MaxRetryAttempts: 3, FileTimeout: 5 * time.Second}, func() string { return "" }, zap.NewNop())
	sch.SetMaxConcurrent(4)

	if err := sch.Run(t.Context()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	final := store.byRow[1]
	if final.Status != model.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", final.Status)
	}
	if _, err := os.Stat(doc.LocalPath); err != nil {
		t.Errorf("expected file at %s: %v", doc.LocalPath, err)
	}
}

func TestSchedulerNotFoundOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	doc := model.Document{CollectionID: 1, DocumentID: "EFTA00000002", RemoteURL: srv.URL, LocalPath: filepath.Join(dir, "doc.pdf")}
	store := newFakeStore(doc)

	f := fetcher.New(fetcher.Options{})
	sch := New(store, f, Config{CollectionID: 1, MaxRetryAttempts: 3, FileTimeout: 5 * time.Second}, func() string { return "" }, zap.NewNop())
	sch.SetMaxConcurrent(4)

	if err := sch.Run(t.Context()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.byRow[1].Status != model.StatusNotFound {
		t.Errorf("status = %s, want NOT_FOUND", store.byRow[1].Status)
	}
}

func TestSchedulerBlockedIncrementsRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	dir := t.TempDir()
	doc := model.Document{CollectionID: 1, DocumentID: "EFTA00000003", RemoteURL: srv.URL, LocalPath: filepath.Join(dir, "doc.pdf")}
	store := newFakeStore(doc)

	f := fetcher.New(fetcher.Options{})
	sch := New(store, f, Config{CollectionID: 1, MaxRetryAttempts: 3, FileTimeout: 5 * time.Second}, func() string { return "" }, zap.NewNop())
	sch.SetMaxConcurrent(4)

	if err := sch.Run(t.Context()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	final := store.byRow[1]
	if final.Status != model.StatusFailed || final.RetryCount != 1 {
		t.Errorf("status = %s retry = %d, want FAILED/1", final.Status, final.RetryCount)
	}
}

func TestSchedulerServerErrorIsFailedNotCompleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	doc := model.Document{CollectionID: 1, DocumentID: "EFTA00000005", RemoteURL: srv.URL, LocalPath: filepath.Join(dir, "doc.pdf")}
	store := newFakeStore(doc)

	f := fetcher.New(fetcher.Options{})
	sch := New(store, f, Config{CollectionID: 1, MaxRetryAttempts: 3, FileTimeout: 5 * time.Second}, func() string { return "" }, zap.NewNop())
	sch.SetMaxConcurrent(4)

	if err := sch.Run(t.Context()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	final := store.byRow[1]
	if final.Status != model.StatusFailed || final.RetryCount != 1 {
		t.Errorf("status = %s retry = %d, want FAILED/1", final.Status, final.RetryCount)
	}
	if final.LastError != "HTTP error: 500" {
		t.Errorf("last_error = %q, want %q", final.LastError, "HTTP error: 500")
	}
	if _, err := os.Stat(doc.LocalPath); !os.IsNotExist(err) {
		t.Error("expected no file left behind for a 500 response")
	}
}

func TestSchedulerTimeoutFailsInsteadOfStallingForever(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()

	dir := t.TempDir()
	doc := model.Document{CollectionID: 1, DocumentID: "EFTA00000006", RemoteURL: srv.URL, LocalPath: filepath.Join(dir, "doc.pdf")}
	store := newFakeStore(doc)

	f := fetcher.New(fetcher.Options{})
	sch := New(store, f, Config{CollectionID: 1, MaxRetryAttempts: 3, FileTimeout: 50 * time.Millisecond}, func() string { return "" }, zap.NewNop())
	sch.SetMaxConcurrent(4)

	done := make(chan error, 1)
	go func() { done <- sch.Run(t.Context()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not terminate after a stalled download timed out")
	}

	final := store.byRow[1]
	if final.Status != model.StatusFailed || final.RetryCount != 1 {
		t.Errorf("status = %s retry = %d, want FAILED/1", final.Status, final.RetryCount)
	}
}

func TestSchedulerSkipsExistingFileWithoutOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	if err := os.WriteFile(path, []byte("already here"), 0o644); err != nil {
		t.Fatal(err)
	}

	doc := model.Document{CollectionID: 1, DocumentID: "EFTA00000004", RemoteURL: "http://unused.invalid", LocalPath: path}
	store := newFakeStore(doc)

	f := fetcher.New(fetcher.Options{})
	sch := New(store, f, Config{CollectionID: 1, MaxRetryAttempts: 3, FileTimeout: 5 * time.Second}, func() string { return "" }, zap.NewNop())
	sch.SetMaxConcurrent(4)
	sch.SetOverwriteExisting(false)

	if err := sch.Run(t.Context()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.byRow[1].Status != model.StatusSkipped {
		t.Errorf("status = %s, want SKIPPED", store.byRow[1].Status)
	}
}

func TestSchedulerStopsCleanlyOnEmptyQueue(t *testing.T) {
	store := newFakeStore()
	f := fetcher.New(fetcher.Options{})
	sch := New(store, f, Config{CollectionID: 1, MaxRetryAttempts: 3, FileTimeout: 5 * time.Second}, func() string { return "" }, zap.NewNop())
	sch.SetMaxConcurrent(4)

	done := make(chan error, 1)
	go func() { done <- sch.Run(t.Context()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not terminate on empty queue")
	}
}

func TestSchedulerWaitsForExternalScraping(t *testing.T) {
	store := newFakeStore()
	f := fetcher.New(fetcher.Options{})
	sch := New(store, f, Config{CollectionID: 1, MaxRetryAttempts: 3, FileTimeout: 5 * time.Second}, func() string { return "" }, zap.NewNop())
	sch.SetMaxConcurrent(4)
	sch.SetExternalScrapingActive(true)

	ctx, cancel := context.WithTimeout(t.Context(), 300*time.Millisecond)
	defer cancel()

	err := sch.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}
