package antibot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mendrake/siteforge/browser"
)

// ErrBypassTimeout is returned when the challenge never cleared within
// the bounded wait.
var ErrBypassTimeout = errors.New("antibot: bypass wait elapsed without the challenge clearing")

// BypassConfig bounds the interactive bypass flow.
type BypassConfig struct {
	// PollInterval between verdict re-checks. Default: 3s.
	PollInterval time.Duration
	// MaxWait bounds the whole flow. Default: 120s.
	MaxWait time.Duration
	Logger  *slog.Logger
}

func (c *BypassConfig) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 120 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Solved carries everything worth keeping from a solved session: the
// cookies that mark it as trusted and a one-shot snapshot of the page
// the challenge was guarding.
type Solved struct {
	Cookies  []browser.Cookie
	Snapshot string
	FinalURL string
}

// Bypass opens a visible session on the blocked URL and polls until a
// human solves the challenge, then captures cookies and a page
// snapshot. The driver must be a headed one; the page is closed on
// every exit path.
func Bypass(ctx context.Context, drv browser.Driver, pageURL string, cfg BypassConfig) (*Solved, error) {
	cfg.defaults()
	log := cfg.Logger

	page, err := drv.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("antibot: open bypass page: %w", err)
	}
	defer page.Close()

	if err := page.Navigate(ctx, pageURL, browser.WaitLoad, cfg.MaxWait); err != nil {
		return nil, fmt.Errorf("antibot: bypass navigate: %w", err)
	}

	log.Info("antibot: waiting for interactive solve", "url", pageURL, "max_wait", cfg.MaxWait)

	deadline := time.Now().Add(cfg.MaxWait)
	for {
		pageHTML, err := page.HTML(ctx)
		if err != nil {
			return nil, fmt.Errorf("antibot: bypass snapshot: %w", err)
		}
		title, _ := page.Title(ctx)

		if v := Detect(pageHTML, title); !v.Blocked {
			cookies, err := page.Cookies(ctx)
			if err != nil {
				return nil, fmt.Errorf("antibot: capture cookies: %w", err)
			}
			log.Info("antibot: challenge cleared", "cookies", len(cookies))
			return &Solved{
				Cookies:  cookies,
				Snapshot: pageHTML,
				FinalURL: page.URL(),
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrBypassTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.PollInterval):
		}
	}
}
