package store

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/segin2005/efgrabber/internal/clock"
	"github.com/segin2005/efgrabber/internal/model"
)

func newTestStore(t *testing.T) (*Store, *clock.Frozen) {
	t.Helper()
	c := clock.NewFrozen(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s, err := Open(":memory:", c, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, c
}

func TestInsertOrIgnoreIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	rec := model.Document{CollectionID: 11, DocumentID: "EFTA02205655", RemoteURL: "https://example/1.pdf", LocalPath: "/tmp/1.pdf"}

	if err := s.InsertOrIgnore(rec); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := s.InsertOrIgnore(rec); err != nil {
		t.Fatalf("duplicate insert should be silently absorbed: %v", err)
	}

	stats, err := s.GetStats(11)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Pending != 1 {
		t.Errorf("Pending = %d, want 1 after two idempotent inserts", stats.Pending)
	}
}

func TestBulkInsertOrIgnoreIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	recs := []model.Document{
		{CollectionID: 11, DocumentID: "EFTA02205655", RemoteURL: "u1", LocalPath: "p1"},
		{CollectionID: 11, DocumentID: "EFTA02205656", RemoteURL: "u2", LocalPath: "p2"},
	}
	if err := s.BulkInsertOrIgnore(recs); err != nil {
		t.Fatalf("first bulk insert: %v", err)
	}
	if err := s.BulkInsertOrIgnore(recs); err != nil {
		t.Fatalf("second bulk insert: %v", err)
	}
	stats, err := s.GetStats(11)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Pending != 2 {
		t.Errorf("Pending = %d, want 2", stats.Pending)
	}
}

func TestClaimPendingDoesNotTransition(t *testing.T) {
	s, _ := newTestStore(t)
	rec := model.Document{CollectionID: 11, DocumentID: "EFTA02205655", RemoteURL: "u", LocalPath: "p"}
	if err := s.InsertOrIgnore(rec); err != nil {
		t.Fatal(err)
	}

	claimed, err := s.ClaimPending(11, 10)
	if err != nil {
		t.Fatalf("ClaimPending: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("claimed %d rows, want 1", len(claimed))
	}
	if claimed[0].Status != model.StatusPending {
		t.Errorf("status = %s, want PENDING (claim must not transition)", claimed[0].Status)
	}
}

func TestListFailedReadyRespectsBackoff(t *testing.T) {
	s, c := newTestStore(t)
	rec := model.Document{CollectionID: 11, DocumentID: "EFTA02205655", RemoteURL: "u", LocalPath: "p"}
	if err := s.InsertOrIgnore(rec); err != nil {
		t.Fatal(err)
	}
	claimed, err := s.ClaimPending(11, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("ClaimPending: %v, %d", err, len(claimed))
	}
	row := claimed[0]
	if err := s.UpdateStatus(row.RowID, model.StatusFailed, "boom", 0); err != nil {
		t.Fatal(err)
	}
	if err := s.IncrementRetry(row.RowID); err != nil {
		t.Fatal(err)
	}

	ready, err := s.ListFailedReady(11, 3, 10)
	if err != nil {
		t.Fatalf("ListFailedReady: %v", err)
	}
	if len(ready) != 0 {
		t.Fatalf("expected 0 ready rows immediately after failure, got %d", len(ready))
	}

	c.Advance(20 * time.Second)
	ready, err = s.ListFailedReady(11, 3, 10)
	if err != nil {
		t.Fatalf("ListFailedReady: %v", err)
	}
	if len(ready) != 1 {
		t.Errorf("expected 1 ready row after backoff window, got %d", len(ready))
	}
}

func TestListFailedReadyExcludesExhaustedRetries(t *testing.T) {
	s, c := newTestStore(t)
	rec := model.Document{CollectionID: 11, DocumentID: "EFTA02205655", RemoteURL: "u", LocalPath: "p"}
	if err := s.InsertOrIgnore(rec); err != nil {
		t.Fatal(err)
	}
	claimed, _ := s.ClaimPending(11, 1)
	row := claimed[0]

	for i := 0; i < 3; i++ {
		if err := s.UpdateStatus(row.RowID, model.StatusFailed, "boom", 0); err != nil {
			t.Fatal(err)
		}
		if err := s.IncrementRetry(row.RowID); err != nil {
			t.Fatal(err)
		}
	}
	c.Advance(20 * time.Minute)

	ready, err := s.ListFailedReady(11, 3, 10)
	if err != nil {
		t.Fatalf("ListFailedReady: %v", err)
	}
	if len(ready) != 0 {
		t.Errorf("expected exhausted row to be excluded, got %d ready", len(ready))
	}
}

func TestResetInProgressRecoversOrphanedWork(t *testing.T) {
	s, _ := newTestStore(t)
	rec := model.Document{CollectionID: 11, DocumentID: "EFTA02205655", RemoteURL: "u", LocalPath: "p"}
	if err := s.InsertOrIgnore(rec); err != nil {
		t.Fatal(err)
	}
	claimed, _ := s.ClaimPending(11, 1)
	if err := s.UpdateStatus(claimed[0].RowID, model.StatusInProgress, "", 0); err != nil {
		t.Fatal(err)
	}

	if err := s.ResetInProgress(11); err != nil {
		t.Fatalf("ResetInProgress: %v", err)
	}
	stats, err := s.GetStats(11)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pending != 1 || stats.InProgress != 0 {
		t.Errorf("stats = %+v, want 1 pending 0 in-progress", stats)
	}
}

func TestClearCollectionDeletesEverything(t *testing.T) {
	s, _ := newTestStore(t)
	rec := model.Document{CollectionID: 11, DocumentID: "EFTA02205655", RemoteURL: "u", LocalPath: "p"}
	if err := s.InsertOrIgnore(rec); err != nil {
		t.Fatal(err)
	}
	if err := s.PageUpsert(11, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.SetBruteForceCursor(11, 42); err != nil {
		t.Fatal(err)
	}

	if err := s.ClearCollection(11); err != nil {
		t.Fatalf("ClearCollection: %v", err)
	}

	stats, err := s.GetStats(11)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pending+stats.Completed+stats.Failed+stats.InProgress+stats.NotFound+stats.Skipped != 0 {
		t.Errorf("expected no documents after clear, got %+v", stats)
	}
	if _, err := s.GetBruteForceCursor(11); err != model.ErrNotFound {
		t.Errorf("expected ErrNotFound after clear, got %v", err)
	}
}

func TestPageLifecycle(t *testing.T) {
	s, _ := newTestStore(t)
	for i := 0; i < 3; i++ {
		if err := s.PageUpsert(11, i); err != nil {
			t.Fatal(err)
		}
	}
	unscraped, err := s.ListUnscrapedPages(11, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(unscraped) != 3 {
		t.Fatalf("unscraped = %d, want 3", len(unscraped))
	}

	if err := s.MarkPageScraped(11, 1, 25); err != nil {
		t.Fatal(err)
	}
	unscraped, err = s.ListUnscrapedPages(11, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(unscraped) != 2 {
		t.Fatalf("unscraped after marking = %d, want 2", len(unscraped))
	}
}

func TestBruteForceCursorRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.GetBruteForceCursor(11); err != model.ErrNotFound {
		t.Fatalf("expected ErrNotFound before any cursor set, got %v", err)
	}
	if err := s.SetBruteForceCursor(11, 2205700); err != nil {
		t.Fatal(err)
	}
	cursor, err := s.GetBruteForceCursor(11)
	if err != nil {
		t.Fatal(err)
	}
	if cursor != 2205700 {
		t.Errorf("cursor = %d, want 2205700", cursor)
	}
}
