package store

// PageUpsert registers pageIndex as known for collectionID (scraped=false
// if new), so it shows up in ListUnscrapedPages before it's fetched.
func (s *Store) PageUpsert(collectionID int, pageIndex int) error {
	_, err := s.db.Exec(`
		INSERT INTO pages (collection_id, page_index, scraped, pdf_count)
		VALUES (?, ?, 0, 0)
		ON CONFLICT(collection_id, page_index) DO NOTHING`,
		collectionID, pageIndex,
	)
	if err != nil {
		return classify("page_upsert", err)
	}
	return nil
}

// MarkPageScraped records that pageIndex has been scraped and found
// pdfCount matching anchors.
func (s *Store) MarkPageScraped(collectionID int, pageIndex int, pdfCount int) error {
	now := s.clock.Now().UTC().Format(timeLayout)
	_, err := s.db.Exec(`
		INSERT INTO pages (collection_id, page_index, scraped, pdf_count, scraped_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(collection_id, page_index) DO UPDATE SET scraped = 1, pdf_count = excluded.pdf_count, scraped_at = excluded.scraped_at`,
		collectionID, pageIndex, pdfCount, now,
	)
	if err != nil {
		return classify("mark_page_scraped", err)
	}
	return nil
}

// ListUnscrapedPages returns up to limit known-but-unscraped page indexes
// for collectionID, in ascending order, so a restart can resume scraping
// without re-fetching finished pages.
func (s *Store) ListUnscrapedPages(collectionID int, limit int) ([]int, error) {
	rows, err := s.db.Query(`
		SELECT page_index FROM pages WHERE collection_id = ? AND scraped = 0 ORDER BY page_index ASC LIMIT ?`,
		collectionID, limit,
	)
	if err != nil {
		return nil, classify("list_unscraped_pages", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, classify("list_unscraped_pages", err)
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

// SetBruteForceCursor persists the highest numeric ID already enqueued
// for collectionID, so a restart continues from there.
func (s *Store) SetBruteForceCursor(collectionID int, cursor uint64) error {
	_, err := s.db.Exec(`
		INSERT INTO collection_progress (collection_id, brute_force_cursor) VALUES (?, ?)
		ON CONFLICT(collection_id) DO UPDATE SET brute_force_cursor = excluded.brute_force_cursor`,
		collectionID, cursor,
	)
	if err != nil {
		return classify("set_brute_force_cursor", err)
	}
	return nil
}

// GetBruteForceCursor returns the persisted cursor for collectionID, or
// model.ErrNotFound if the collection has never been enumerated.
func (s *Store) GetBruteForceCursor(collectionID int) (uint64, error) {
	var cursor uint64
	err := s.db.QueryRow(`SELECT brute_force_cursor FROM collection_progress WHERE collection_id = ?`, collectionID).Scan(&cursor)
	if err != nil {
		return 0, classify("get_brute_force_cursor", err)
	}
	return cursor, nil
}
