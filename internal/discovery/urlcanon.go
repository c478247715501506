// Package discovery populates the store with documents to attempt,
// either by scraping paginated index pages or by brute-force enumeration
// of a known numeric ID range.
package discovery

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var digitsRun = regexp.MustCompile(`(\d+)\.pdf$`)

// DocumentID formats a numeric suffix as the canonical
// <prefix><8-digit-zero-padded-number> identifier.
func DocumentID(prefix string, numericSuffix uint64) string {
	return fmt.Sprintf("%s%08d", prefix, numericSuffix)
}

// ParseDocumentIDFromHref extracts a canonical document identifier from
// an anchor href such as …/DataSet<space-or-%20><id>/<prefix><digits>.pdf.
// It accepts any href that contains "DataSet" and ends in <digits>.pdf,
// returning ok=false otherwise; the collection id and the filename prefix
// inside the href are not checked, and the identifier is always built
// from the given prefix.
func ParseDocumentIDFromHref(href, prefix string) (string, bool) {
	unescaped, err := url.QueryUnescape(href)
	if err != nil {
		unescaped = href
	}
	if !strings.Contains(unescaped, "DataSet") {
		return "", false
	}
	m := digitsRun.FindStringSubmatch(unescaped)
	if m == nil {
		return "", false
	}
	n, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return "", false
	}
	return DocumentID(prefix, n), true
}

// NumericSuffix extracts the numeric suffix from a canonical document
// identifier (the part after the prefix).
func NumericSuffix(documentID, prefix string) (uint64, error) {
	trimmed := strings.TrimPrefix(documentID, prefix)
	return strconv.ParseUint(trimmed, 10, 64)
}

// ResolveURL resolves href (absolute, root-relative, or path-relative)
// against base, preserving percent-encoded spaces the way the site's
// "DataSet%2011" paths require.
func ResolveURL(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parsing href %q: %w", href, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// BuildDocumentURL joins the collection's file URL base with a document
// identifier: <fileURLBase><documentID>.pdf.
func BuildDocumentURL(fileURLBase, documentID string) string {
	return strings.TrimSuffix(fileURLBase, "/") + "/" + documentID + ".pdf"
}

// BuildLocalPath lays out the download tree:
// <root>/DataSet<collectionID>/<NNN>/<documentID>.pdf, where NNN is the
// first three digits of the document's numeric suffix, keeping any one
// directory under roughly 10^4 entries.
func BuildLocalPath(root string, collectionID int, documentID, prefix string) (string, error) {
	suffix, err := NumericSuffix(documentID, prefix)
	if err != nil {
		return "", fmt.Errorf("deriving partition for %q: %w", documentID, err)
	}
	partition := fmt.Sprintf("%03d", suffix/100000)
	return fmt.Sprintf("%s/DataSet%d/%s/%s.pdf", root, collectionID, partition, documentID), nil
}

// BuildIndexURL constructs the index page URL for a given page number.
// Page 0 has no query string; page N>=1 appends ?page=N.
func BuildIndexURL(baseURL string, page int) string {
	if page <= 0 {
		return baseURL
	}
	return fmt.Sprintf("%s?page=%d", baseURL, page)
}
