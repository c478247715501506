package cookieharvester

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/segin2005/efgrabber/internal/cookiejar"
)

// ChromedpHarvester drives headless Chrome through the site's
// age-verification interstitial, sets the cookie that gates document
// access, and returns every cookie the browser ends up holding for the
// site's domain.
type ChromedpHarvester struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New builds a harvester with its own dedicated browser allocator.
func New(cfg Config) *ChromedpHarvester {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 60 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &ChromedpHarvester{cfg: cfg, allocator: allocCtx, allocCancel: allocCancel}
}

// Close cancels the browser allocator; the harvester must not be used
// after this call.
func (h *ChromedpHarvester) Close() {
	h.allocCancel()
}

// Run navigates to siteURL, sets the required age-verification cookie via
// the DevTools protocol, and reads back every cookie chromedp now holds
// for the site.
func (h *ChromedpHarvester) Run(ctx context.Context, siteURL string) ([]cookiejar.Cookie, error) {
	taskCtx, taskCancel := chromedp.NewContext(h.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, h.cfg.NavTimeout)
	defer cancel()

	var cookies []*network.Cookie
	actions := []chromedp.Action{
		chromedp.Navigate(siteURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		h.setRequiredCookieAction(siteURL),
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetAllCookies().Do(ctx)
			return err
		}),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}

	return toJarCookies(cookies), nil
}

func (h *ChromedpHarvester) setRequiredCookieAction(siteURL string) chromedp.Action {
	name, value := splitRequiredCookie(h.cfg.RequiredCookie)
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if name == "" {
			return nil
		}
		domain := hostOf(siteURL)
		err := network.SetCookie(name, value).
			WithDomain(domain).
			WithPath("/").
			Do(ctx)
		if err != nil {
			return fmt.Errorf("setting required cookie: %w", err)
		}
		return nil
	})
}

func splitRequiredCookie(raw string) (name, value string) {
	parts := strings.SplitN(raw, "=", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func toJarCookies(cookies []*network.Cookie) []cookiejar.Cookie {
	out := make([]cookiejar.Cookie, 0, len(cookies))
	for _, c := range cookies {
		jc := cookiejar.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain}
		if c.Expires > 0 {
			jc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, jc)
	}
	return out
}
