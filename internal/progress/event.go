// Package progress defines the events a run publishes and the Hub that
// batches them out to the configured sinks.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/segin2005/efgrabber/internal/model"
)

// Stage denotes which milestone an Event reports.
type Stage string

const (
	StageRunStart      Stage = "RUN_START"
	StageRunDone       Stage = "RUN_DONE"
	StageStatsSnapshot Stage = "STATS_SNAPSHOT"
	StageDocumentStart Stage = "DOCUMENT_START"
	StageDocumentDone  Stage = "DOCUMENT_DONE"
	StagePageScraped   Stage = "PAGE_SCRAPED"
)

// Event captures one component of a run's progress.
type Event struct {
	RunID        [16]byte
	TS           time.Time
	Stage        Stage
	CollectionID int
	DocumentID   string
	Status       model.Status
	Bytes        int64
	PageIndex    int
	PDFCount     int
	Dur          time.Duration
	Note         string
	Stats        model.Stats
}

// Validate performs coarse validation on Event payloads before they enter
// the Hub's buffer.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageStatsSnapshot:
	case StageDocumentStart:
		if e.DocumentID == "" {
			return errors.New("document start requires document id")
		}
	case StageDocumentDone:
		if e.DocumentID == "" {
			return errors.New("document done requires document id")
		}
		if e.Status == "" {
			return errors.New("document done requires status")
		}
	case StagePageScraped:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run id to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event's fixed-size form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
