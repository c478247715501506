// Package cookieharvester drives a headless browser through the site's
// age-verification interstitial and extracts the resulting cookies so
// the fetcher can attach them to plain HTTP requests, avoiding a full
// browser render per document.
package cookieharvester

import (
	"context"
	"errors"
	"time"

	"github.com/segin2005/efgrabber/internal/cookiejar"
)

// ErrHarvesterDisabled is returned by NoopHarvester, the default when
// headless harvesting is turned off in configuration.
var ErrHarvesterDisabled = errors.New("cookie harvester disabled")

// Harvester navigates siteURL with a browser and returns the cookies it
// accumulated in the process.
type Harvester interface {
	Run(ctx context.Context, siteURL string) ([]cookiejar.Cookie, error)
}

// NoopHarvester always fails with ErrHarvesterDisabled; callers fall back
// to a literal cookie string or a Netscape cookie file.
type NoopHarvester struct{}

// Run always returns ErrHarvesterDisabled.
func (NoopHarvester) Run(context.Context, string) ([]cookiejar.Cookie, error) {
	return nil, ErrHarvesterDisabled
}

// Config controls the headless browser's navigation behavior.
type Config struct {
	UserAgent      string
	NavTimeout     time.Duration
	RequiredCookie string
}
