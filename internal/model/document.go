// Package model holds the record types shared by the store, fetcher,
// discovery producers, and scheduler.
package model

import "time"

// Status is the lifecycle state of a Document row.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusNotFound   Status = "NOT_FOUND"
	StatusSkipped    Status = "SKIPPED"
)

// Terminal reports whether s is one of the terminal states a row settles
// into after a fetch attempt.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusNotFound, StatusSkipped:
		return true
	default:
		return false
	}
}

// Document is one row of the persistent store, keyed by
// (CollectionID, DocumentID).
type Document struct {
	RowID        int64
	CollectionID int
	DocumentID   string
	RemoteURL    string
	LocalPath    string
	Status       Status
	ByteSize     int64
	RetryCount   int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Page is a discovered index page, keyed by (CollectionID, PageIndex).
type Page struct {
	RowID        int64
	CollectionID int
	PageIndex    int
	Scraped      bool
	PDFCount     int
	ScrapedAt    time.Time
}

// Stats is a point-in-time snapshot of a collection's progress, published
// roughly once a second by the supervisor.
type Stats struct {
	CollectionID       int
	Pending            int64
	InProgress         int64
	Completed          int64
	Failed             int64
	NotFound           int64
	Skipped            int64
	TotalPagesKnown    int64
	PagesScraped       int64
	BruteForceCursor   uint64
	InFlight           int
	WorkersActive      int
	WorkersIdle        int
	BytesThisSession   int64
	CurrentSpeedBPS    float64
	WireSpeedBPS       float64
	FirstActive        time.Time
	LastActive         time.Time
	ElapsedWall        time.Duration
}
