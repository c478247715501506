package discovery

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/segin2005/efgrabber/internal/model"
)

// DocumentStore is the subset of the persistent store the brute-force
// enumerator needs; satisfied by *store.Store.
type DocumentStore interface {
	Exists(collectionID int, documentID string) (bool, error)
	BulkInsertOrIgnore(records []model.Document) error
	SetBruteForceCursor(collectionID int, cursor uint64) error
	GetBruteForceCursor(collectionID int) (uint64, error)
}

const bruteForceBatchSize = 1000

// BruteForceEnumerator iterates a known numeric ID range, staging PENDING
// rows without ever fetching a document itself. The scheduler discovers
// what's actually downloadable via the Fetcher's response codes.
type BruteForceEnumerator struct {
	store        DocumentStore
	collectionID int
	fileURLBase  string
	prefix       string
	root         string
	logger       *zap.Logger
}

// NewBruteForceEnumerator builds an enumerator for one collection.
func NewBruteForceEnumerator(s DocumentStore, collectionID int, fileURLBase, prefix, root string, logger *zap.Logger) *BruteForceEnumerator {
	return &BruteForceEnumerator{store: s, collectionID: collectionID, fileURLBase: fileURLBase, prefix: prefix, root: root, logger: logger}
}

// Run iterates first..=last, resuming from the persisted cursor when one
// exists and is inside the range, flushing a batch to the store every
// 1000 records and persisting the cursor after each flush.
func (b *BruteForceEnumerator) Run(ctx context.Context, first, last uint64) error {
	start := first
	if cursor, err := b.store.GetBruteForceCursor(b.collectionID); err == nil && cursor >= first && cursor < last {
		start = cursor + 1
	}

	batch := make([]model.Document, 0, bruteForceBatchSize)
	var lastInspected uint64

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := b.store.BulkInsertOrIgnore(batch); err != nil {
			return fmt.Errorf("flushing brute-force batch: %w", err)
		}
		if err := b.store.SetBruteForceCursor(b.collectionID, lastInspected); err != nil {
			return fmt.Errorf("persisting brute-force cursor: %w", err)
		}
		b.logger.Info("brute force batch flushed", zap.Int("count", len(batch)), zap.Uint64("cursor", lastInspected))
		batch = batch[:0]
		return nil
	}

	for n := start; n <= last; n++ {
		select {
		case <-ctx.Done():
			return flush()
		default:
		}

		docID := DocumentID(b.prefix, n)
		exists, err := b.store.Exists(b.collectionID, docID)
		if err != nil {
			return fmt.Errorf("checking existing document %s: %w", docID, err)
		}
		lastInspected = n
		if exists {
			continue
		}

		localPath, err := BuildLocalPath(b.root, b.collectionID, docID, b.prefix)
		if err != nil {
			return err
		}
		batch = append(batch, model.Document{
			CollectionID: b.collectionID,
			DocumentID:   docID,
			RemoteURL:    BuildDocumentURL(b.fileURLBase, docID),
			LocalPath:    localPath,
		})

		if len(batch) >= bruteForceBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	return flush()
}
