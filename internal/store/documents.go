package store

import (
	"database/sql"
	"fmt"

	"github.com/segin2005/efgrabber/internal/backoff"
	"github.com/segin2005/efgrabber/internal/model"
)

// InsertOrIgnore inserts rec as PENDING, silently absorbing a duplicate
// (collection_id, document_id).
func (s *Store) InsertOrIgnore(rec model.Document) error {
	now := s.clock.Now().UTC().Format(timeLayout)
	_, err := s.db.Exec(`
		INSERT INTO documents (collection_id, document_id, remote_url, local_path, status, byte_size, retry_count, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, '', ?, ?)
		ON CONFLICT(collection_id, document_id) DO NOTHING`,
		rec.CollectionID, rec.DocumentID, rec.RemoteURL, rec.LocalPath, model.StatusPending, now, now,
	)
	if err != nil {
		return classify("insert_or_ignore", err)
	}
	return nil
}

// BulkInsertOrIgnore inserts every record in one atomic transaction,
// absorbing duplicates the same way InsertOrIgnore does.
func (s *Store) BulkInsertOrIgnore(records []model.Document) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return classify("bulk_insert_or_ignore", err)
	}
	defer tx.Rollback()

	now := s.clock.Now().UTC().Format(timeLayout)
	stmt, err := tx.Prepare(`
		INSERT INTO documents (collection_id, document_id, remote_url, local_path, status, byte_size, retry_count, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, '', ?, ?)
		ON CONFLICT(collection_id, document_id) DO NOTHING`)
	if err != nil {
		return classify("bulk_insert_or_ignore", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(rec.CollectionID, rec.DocumentID, rec.RemoteURL, rec.LocalPath, model.StatusPending, now, now); err != nil {
			return classify("bulk_insert_or_ignore", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify("bulk_insert_or_ignore", err)
	}
	return nil
}

// UpdateStatus transitions rowID to status, overwriting last_error with
// errMsg (an empty errMsg clears it) and byte_size with byteSize.
func (s *Store) UpdateStatus(rowID int64, status model.Status, errMsg string, byteSize int64) error {
	now := s.clock.Now().UTC().Format(timeLayout)
	_, err := s.db.Exec(`
		UPDATE documents SET status = ?, last_error = ?, byte_size = ?, updated_at = ? WHERE row_id = ?`,
		status, errMsg, byteSize, now, rowID,
	)
	if err != nil {
		return classify("update_status", err)
	}
	return nil
}

// UpdateStatusByDocumentID is UpdateStatus keyed by the natural key
// instead of the opaque row handle.
func (s *Store) UpdateStatusByDocumentID(collectionID int, documentID string, status model.Status, errMsg string, byteSize int64) error {
	now := s.clock.Now().UTC().Format(timeLayout)
	_, err := s.db.Exec(`
		UPDATE documents SET status = ?, last_error = ?, byte_size = ?, updated_at = ?
		WHERE collection_id = ? AND document_id = ?`,
		status, errMsg, byteSize, now, collectionID, documentID,
	)
	if err != nil {
		return classify("update_status_by_document_id", err)
	}
	return nil
}

// IncrementRetry bumps rowID's retry_count by one and refreshes updated_at,
// so backoff eligibility is measured from the most recent failure.
func (s *Store) IncrementRetry(rowID int64) error {
	now := s.clock.Now().UTC().Format(timeLayout)
	_, err := s.db.Exec(`UPDATE documents SET retry_count = retry_count + 1, updated_at = ? WHERE row_id = ?`, now, rowID)
	if err != nil {
		return classify("increment_retry", err)
	}
	return nil
}

// ClaimPending returns up to limit PENDING rows for collectionID. It does
// not itself transition them; the scheduler updates each to IN_PROGRESS
// before dispatch.
func (s *Store) ClaimPending(collectionID int, limit int) ([]model.Document, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(`
		SELECT row_id, collection_id, document_id, remote_url, local_path, status, byte_size, retry_count, last_error, created_at, updated_at
		FROM documents WHERE collection_id = ? AND status = ? ORDER BY row_id ASC LIMIT ?`,
		collectionID, model.StatusPending, limit,
	)
	if err != nil {
		return nil, classify("claim_pending", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// ListFailedReady returns FAILED rows for collectionID with retry_count <
// maxRetries whose backoff window (backoff.Delay) has elapsed, up to limit.
func (s *Store) ListFailedReady(collectionID int, maxRetries int, limit int) ([]model.Document, error) {
	if limit <= 0 {
		return nil, nil
	}
	// Backoff involves e^x, which SQLite has no builtin for; filter the
	// candidate set in Go instead of pushing the curve into SQL.
	rows, err := s.db.Query(`
		SELECT row_id, collection_id, document_id, remote_url, local_path, status, byte_size, retry_count, last_error, created_at, updated_at
		FROM documents WHERE collection_id = ? AND status = ? AND retry_count < ? ORDER BY updated_at ASC`,
		collectionID, model.StatusFailed, maxRetries,
	)
	if err != nil {
		return nil, classify("list_failed_ready", err)
	}
	defer rows.Close()
	candidates, err := scanDocuments(rows)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	ready := make([]model.Document, 0, limit)
	for _, d := range candidates {
		if now.Before(d.UpdatedAt.Add(backoff.Delay(d.RetryCount))) {
			continue
		}
		ready = append(ready, d)
		if len(ready) >= limit {
			break
		}
	}
	return ready, nil
}

// ResetInProgress moves every IN_PROGRESS row for collectionID back to
// PENDING, the crash-recovery operation for work orphaned by a killed run.
func (s *Store) ResetInProgress(collectionID int) error {
	return s.bulkTransition(collectionID, model.StatusInProgress, model.StatusPending, "reset_in_progress")
}

// ResetFailed moves every FAILED row back to PENDING, forcing an
// immediate retry regardless of backoff or retry_count.
func (s *Store) ResetFailed(collectionID int) error {
	return s.bulkTransition(collectionID, model.StatusFailed, model.StatusPending, "reset_failed")
}

// ResetAll moves every row not already PENDING (IN_PROGRESS included)
// back to PENDING and clears its retry_count and last_error, forcing a
// full redownload of the collection.
func (s *Store) ResetAll(collectionID int) error {
	now := s.clock.Now().UTC().Format(timeLayout)
	_, err := s.db.Exec(`
		UPDATE documents SET status = ?, retry_count = 0, last_error = '', updated_at = ?
		WHERE collection_id = ? AND status != ?`,
		model.StatusPending, now, collectionID, model.StatusPending,
	)
	if err != nil {
		return classify("reset_all", err)
	}
	return nil
}

// ClearCollection deletes every document, page, and progress row for
// collectionID. The only way rows are destroyed, per an explicit
// user-initiated wipe.
func (s *Store) ClearCollection(collectionID int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return classify("clear_collection", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM documents WHERE collection_id = ?`, collectionID); err != nil {
		return classify("clear_collection", err)
	}
	if _, err := tx.Exec(`DELETE FROM pages WHERE collection_id = ?`, collectionID); err != nil {
		return classify("clear_collection", err)
	}
	if _, err := tx.Exec(`DELETE FROM collection_progress WHERE collection_id = ?`, collectionID); err != nil {
		return classify("clear_collection", err)
	}
	if err := tx.Commit(); err != nil {
		return classify("clear_collection", err)
	}
	return nil
}

func (s *Store) bulkTransition(collectionID int, from, to model.Status, op string) error {
	now := s.clock.Now().UTC().Format(timeLayout)
	_, err := s.db.Exec(`UPDATE documents SET status = ?, updated_at = ? WHERE collection_id = ? AND status = ?`,
		to, now, collectionID, from)
	if err != nil {
		return classify(op, err)
	}
	return nil
}

// GetStats aggregates per-status counts for collectionID.
func (s *Store) GetStats(collectionID int) (model.Stats, error) {
	stats := model.Stats{CollectionID: collectionID}
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM documents WHERE collection_id = ? GROUP BY status`, collectionID)
	if err != nil {
		return stats, classify("get_stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return stats, classify("get_stats", err)
		}
		switch model.Status(status) {
		case model.StatusPending:
			stats.Pending = count
		case model.StatusInProgress:
			stats.InProgress = count
		case model.StatusCompleted:
			stats.Completed = count
		case model.StatusFailed:
			stats.Failed = count
		case model.StatusNotFound:
			stats.NotFound = count
		case model.StatusSkipped:
			stats.Skipped = count
		}
	}
	if err := rows.Err(); err != nil {
		return stats, classify("get_stats", err)
	}

	cursor, err := s.GetBruteForceCursor(collectionID)
	if err != nil && err != model.ErrNotFound {
		return stats, err
	}
	stats.BruteForceCursor = cursor

	var pagesScraped, totalPages int64
	if err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(CASE WHEN scraped THEN 1 ELSE 0 END), 0) FROM pages WHERE collection_id = ?`,
		collectionID).Scan(&totalPages, &pagesScraped); err != nil {
		return stats, classify("get_stats", err)
	}
	stats.TotalPagesKnown = totalPages
	stats.PagesScraped = pagesScraped

	return stats, nil
}

// Exists reports whether a (collectionID, documentID) row already exists,
// used by the brute-force enumerator to skip re-enqueueing known IDs.
func (s *Store) Exists(collectionID int, documentID string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM documents WHERE collection_id = ? AND document_id = ?`, collectionID, documentID).Scan(&count)
	if err != nil {
		return false, classify("exists", err)
	}
	return count > 0, nil
}

func scanDocuments(rows *sql.Rows) ([]model.Document, error) {
	var out []model.Document
	for rows.Next() {
		var d model.Document
		var status, createdAt, updatedAt string
		if err := rows.Scan(&d.RowID, &d.CollectionID, &d.DocumentID, &d.RemoteURL, &d.LocalPath, &status, &d.ByteSize, &d.RetryCount, &d.LastError, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		d.Status = model.Status(status)
		var err error
		if d.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
