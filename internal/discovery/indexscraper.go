package discovery

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/segin2005/efgrabber/internal/fetcher"
	"github.com/segin2005/efgrabber/internal/model"
)

// PageStore is the subset of the persistent store the index scraper
// needs; satisfied by *store.Store.
type PageStore interface {
	DocumentStore
	PageUpsert(collectionID int, pageIndex int) error
	MarkPageScraped(collectionID int, pageIndex int, pdfCount int) error
	ListUnscrapedPages(collectionID int, limit int) ([]int, error)
}

// IndexScraperConfig names the collection-specific values the scraper
// needs to build URLs and canonicalize hrefs.
type IndexScraperConfig struct {
	CollectionID int
	BaseURL      string
	FileURLBase  string
	Prefix       string
	Root         string
	MaxParallel  int
	PageTimeout  time.Duration
}

// IndexScraper parses paginated index pages listing a collection's
// documents, using colly for the bounded-parallel page pool and goquery
// directly for parsing the pagination widget and anchor hrefs, the same
// combination other scrapers in this shop use for index/pagination work.
type IndexScraper struct {
	cfg       IndexScraperConfig
	store     PageStore
	fetcher   *fetcher.Fetcher
	detector  *ChallengeDetector
	cookie    func() string
	userAgent string
	logger    *zap.Logger
}

// NewIndexScraper builds a scraper for one collection.
func NewIndexScraper(cfg IndexScraperConfig, s PageStore, f *fetcher.Fetcher, detector *ChallengeDetector, cookie func() string, userAgent string, logger *zap.Logger) *IndexScraper {
	return &IndexScraper{cfg: cfg, store: s, fetcher: f, detector: detector, cookie: cookie, userAgent: userAgent, logger: logger}
}

// Run performs max-page detection and then scrapes every unscraped page,
// falling back to sequential scraping without a known upper bound if the
// site serves a bot challenge instead of the pagination widget.
func (s *IndexScraper) Run(ctx context.Context) error {
	n, known, err := s.detectMaxPage(ctx)
	if err != nil {
		return fmt.Errorf("max-page detection: %w", err)
	}

	if known {
		for p := 0; p <= n; p++ {
			if err := s.store.PageUpsert(s.cfg.CollectionID, p); err != nil {
				return err
			}
		}
		return s.scrapeKnownRange(ctx)
	}

	s.logger.Warn("max-page detection inconclusive, falling back to sequential scrape", zap.Int("collection_id", s.cfg.CollectionID))
	return s.scrapeSequentialUntilNoNext(ctx)
}

// detectMaxPage fetches the base URL with an absurdly high page index and
// parses the returned pagination widget; if the response looks like a bot
// challenge, it falls back to verifying page 0 loads normally.
func (s *IndexScraper) detectMaxPage(ctx context.Context) (int, bool, error) {
	const probePage = 99999
	probeURL := BuildIndexURL(s.cfg.BaseURL, probePage)

	body, _, err := s.fetcher.FetchToMemory(ctx, probeURL, s.cookie(), s.cfg.PageTimeout)
	if err != nil {
		return 0, false, err
	}

	if challenge := s.detector.Check(probeURL, body); challenge != nil {
		page0URL := BuildIndexURL(s.cfg.BaseURL, 0)
		body0, _, err := s.fetcher.FetchToMemory(ctx, page0URL, s.cookie(), s.cfg.PageTimeout)
		if err != nil {
			return 0, false, err
		}
		if challenge0 := s.detector.Check(page0URL, body0); challenge0 != nil {
			return 0, false, challenge0
		}
		return 0, false, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0, false, fmt.Errorf("parsing pagination page: %w", err)
	}
	n, ok := maxPageFromPager(doc)
	return n, ok, nil
}

// maxPageFromPager scans every anchor for a "page" query parameter or a
// bare numeric label, returning the highest value found (the pagination
// widget's current-page marker when requested with a page index beyond
// the real range).
func maxPageFromPager(doc *goquery.Document) (int, bool) {
	max := -1
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if u, err := url.Parse(href); err == nil {
			if p := u.Query().Get("page"); p != "" {
				if n, err := strconv.Atoi(p); err == nil && n > max {
					max = n
				}
			}
		}
		if n, err := strconv.Atoi(strings.TrimSpace(sel.Text())); err == nil && n > max {
			max = n
		}
	})
	return max, max >= 0
}

// scrapeKnownRange dispatches a bounded colly pool over every page not
// yet marked scraped.
func (s *IndexScraper) scrapeKnownRange(ctx context.Context) error {
	pages, err := s.store.ListUnscrapedPages(s.cfg.CollectionID, 1<<30)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return nil
	}

	c := s.newCollector(ctx)
	var mu sync.Mutex
	var firstErr error
	var completed int64

	c.OnResponse(func(r *colly.Response) {
		pageIndex := pageIndexFromRequest(r.Request)
		if err := s.handlePageResponse(pageIndex, r.Body); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
		}
		atomic.AddInt64(&completed, 1)
	})
	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = fmt.Errorf("fetching page %d: %w", pageIndexFromRequest(r.Request), err)
		}
		mu.Unlock()
	})

	for _, p := range pages {
		reqCtx := colly.NewContext()
		reqCtx.Put("page_index", strconv.Itoa(p))
		if err := c.Request("GET", BuildIndexURL(s.cfg.BaseURL, p), nil, reqCtx, nil); err != nil {
			return fmt.Errorf("scheduling page %d: %w", p, err)
		}
	}
	c.Wait()

	if firstErr != nil {
		return firstErr
	}
	return nil
}

// scrapeSequentialUntilNoNext scrapes page 0, 1, ... one at a time,
// stopping when a page has no anchor pointing at the next page.
func (s *IndexScraper) scrapeSequentialUntilNoNext(ctx context.Context) error {
	for page := 0; ; page++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := s.store.PageUpsert(s.cfg.CollectionID, page); err != nil {
			return err
		}
		pageURL := BuildIndexURL(s.cfg.BaseURL, page)
		body, _, err := s.fetcher.FetchToMemory(ctx, pageURL, s.cookie(), s.cfg.PageTimeout)
		if err != nil {
			return fmt.Errorf("fetching page %d: %w", page, err)
		}
		if challenge := s.detector.Check(pageURL, body); challenge != nil {
			return challenge
		}

		if err := s.handlePageResponse(page, body); err != nil {
			return err
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("parsing page %d: %w", page, err)
		}
		if !hasNextPageLink(doc, page) {
			return nil
		}
	}
}

func hasNextPageLink(doc *goquery.Document, currentPage int) bool {
	found := false
	nextMarker := strconv.Itoa(currentPage + 1)
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		text := strings.ToLower(strings.TrimSpace(sel.Text()))
		if strings.Contains(href, "page="+nextMarker) || strings.Contains(text, "next") {
			found = true
			return false
		}
		return true
	})
	return found
}

// handlePageResponse parses body for document anchors, batches an
// insert, and marks the page scraped.
func (s *IndexScraper) handlePageResponse(pageIndex int, body []byte) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parsing page %d: %w", pageIndex, err)
	}
	seen := make(map[string]struct{})
	var batch []model.Document

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		docID, ok := ParseDocumentIDFromHref(href, s.cfg.Prefix)
		if !ok {
			return
		}
		if _, dup := seen[docID]; dup {
			return
		}
		seen[docID] = struct{}{}

		localPath, err := BuildLocalPath(s.cfg.Root, s.cfg.CollectionID, docID, s.cfg.Prefix)
		if err != nil {
			s.logger.Warn("skipping document with unparseable id", zap.String("document_id", docID), zap.Error(err))
			return
		}
		remoteURL := BuildDocumentURL(s.cfg.FileURLBase, docID)
		batch = append(batch, model.Document{
			CollectionID: s.cfg.CollectionID,
			DocumentID:   docID,
			RemoteURL:    remoteURL,
			LocalPath:    localPath,
		})
	})

	if len(batch) > 0 {
		if err := s.store.BulkInsertOrIgnore(batch); err != nil {
			return fmt.Errorf("inserting page %d documents: %w", pageIndex, err)
		}
	}
	if err := s.store.MarkPageScraped(s.cfg.CollectionID, pageIndex, len(batch)); err != nil {
		return fmt.Errorf("marking page %d scraped: %w", pageIndex, err)
	}
	return nil
}

func (s *IndexScraper) newCollector(ctx context.Context) *colly.Collector {
	c := colly.NewCollector(colly.Async(true))
	c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: s.cfg.MaxParallel})

	c.OnRequest(func(r *colly.Request) {
		select {
		case <-ctx.Done():
			r.Abort()
			return
		default:
		}
		r.Headers.Set("User-Agent", s.userAgent)
		if cookie := s.cookie(); cookie != "" {
			r.Headers.Set("Cookie", cookie)
		}
	})
	return c
}

func pageIndexFromRequest(r *colly.Request) int {
	p, _ := strconv.Atoi(r.Ctx.Get("page_index"))
	return p
}
