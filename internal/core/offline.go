package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/seckatie/pocketsync/internal/core/db"
)

// CaptureOptions controls how a saved item's page is loaded.
//
// Pages are rendered in a real Chrome/Chromium browser over the DevTools
// protocol so JS-heavy pages settle before the HTML is snapshotted.
type CaptureOptions struct {
	// ChromePath overrides the browser executable. Empty lets chromedp search.
	ChromePath string
	// Headless runs Chrome without a window. Set to false to debug a capture.
	Headless bool
	// Timeout bounds navigation, rendering and capture. Zero means DefaultCaptureTimeout.
	Timeout time.Duration
	// WaitSelector optionally waits for a CSS selector to become visible.
	WaitSelector string
}

// CapturedPage is the rendered output of one page load.
type CapturedPage struct {
	FinalURL string
	Title    string
	HTML     string
}

// Browser renders a URL and returns the final document.
type Browser interface {
	Capture(ctx context.Context, url string) (CapturedPage, error)
}

// ChromeBrowser is a Browser backed by chromedp. Each capture starts its own
// browser process.
type ChromeBrowser struct {
	Options CaptureOptions
	Logger  *slog.Logger
}

func (b ChromeBrowser) Capture(ctx context.Context, url string) (CapturedPage, error) {
	opts := b.Options
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultCaptureTimeout
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("capturing page", "url", url, "headless", opts.Headless)

	allocatorOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocatorOpts = append(allocatorOpts,
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.UserAgent(UserAgent),
	)
	if opts.ChromePath != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(opts.ChromePath))
	}
	if opts.Headless {
		allocatorOpts = append(allocatorOpts, chromedp.Headless)
	} else {
		allocatorOpts = append(allocatorOpts, chromedp.Flag("headless", false))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, opts.Timeout)
	defer cancelRun()

	var captured CapturedPage

	navigateAndSettle := func(ctx context.Context) error {
		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return err
		}

		idle := make(chan struct{}, 1)
		chromedp.ListenTarget(ctx, func(ev any) {
			if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
				select {
				case idle <- struct{}{}:
				default:
				}
			}
		})

		if err := chromedp.Navigate(url).Do(ctx); err != nil {
			return err
		}

		select {
		case <-idle:
			logger.Debug("network idle", "url", url)
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}

	actions := []chromedp.Action{
		chromedp.ActionFunc(navigateAndSettle),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if strings.TrimSpace(opts.WaitSelector) != "" {
		actions = append(actions, chromedp.WaitVisible(opts.WaitSelector, chromedp.ByQuery))
	}
	actions = append(actions,
		chromedp.Sleep(DefaultNetworkIdleDelay),
		chromedp.Location(&captured.FinalURL),
		chromedp.Title(&captured.Title),
		chromedp.OuterHTML("html", &captured.HTML, chromedp.ByQuery),
	)

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return CapturedPage{}, err
	}

	if strings.TrimSpace(captured.Title) == "" {
		captured.Title = titleFromHTML(captured.HTML)
	}
	return captured, nil
}

// titleFromHTML returns the first <title> element's text.
func titleFromHTML(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// Capturer captures saved items and stores the results.
type Capturer struct {
	DB      *db.DB
	Browser Browser
	// Inline configures resource inlining. Nil keeps the captured HTML as is.
	Inline *InlineOptions
	Logger *slog.Logger
	Now    func() time.Time
}

func (c *Capturer) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Capturer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// CaptureAndPersist captures the saved item's URL and stores the outcome.
//
// A failed capture is still recorded with status "error" so it is not picked
// up again as never captured. When the item has no title the captured one
// fills it in.
func (c *Capturer) CaptureAndPersist(ctx context.Context, s db.SavedItem) error {
	logger := c.logger().With("remote_id", s.RemoteID, "url", s.URL)
	attemptedAt := c.now()

	captured, err := c.Browser.Capture(ctx, s.URL)
	if err != nil {
		saveErr := c.DB.SaveOfflineCapture(ctx, s.RemoteID, db.CaptureResult{
			AttemptedAt: attemptedAt,
			Status:      db.CaptureStatusError,
			Error:       err.Error(),
		})
		if saveErr != nil {
			return fmt.Errorf("capture failed (%w) and saving failure failed (%v)", err, saveErr)
		}
		return err
	}

	html := captured.HTML
	if c.Inline != nil {
		opts := *c.Inline
		opts.BaseURL = captured.FinalURL
		if opts.Logger == nil {
			opts.Logger = logger
		}
		inlined, err := InlineResources(ctx, html, opts)
		if err != nil {
			logger.Warn("failed to inline resources, keeping original HTML", "error", err)
		} else {
			html = inlined
		}
	}

	capturedAt := c.now()
	if err := c.DB.SaveOfflineCapture(ctx, s.RemoteID, db.CaptureResult{
		AttemptedAt:  attemptedAt,
		CapturedAt:   &capturedAt,
		Status:       db.CaptureStatusOK,
		CapturedURL:  captured.FinalURL,
		CapturedHTML: html,
	}); err != nil {
		return err
	}

	title := captured.Title
	if title == "" {
		title = titleFromHTML(captured.HTML)
	}
	if s.Item == nil || s.Item.Title == "" {
		if _, err := c.DB.BackfillItemTitle(ctx, s.RemoteID, title); err != nil {
			logger.Warn("failed to backfill title", "error", err)
		}
	}

	logger.Info("captured saved item", "final_url", captured.FinalURL)
	return nil
}

// CaptureRunOptions selects what a capture run processes: one saved item by
// remote ID, or a batch of items.
type CaptureRunOptions struct {
	RemoteID string
	// Limit bounds a batch. Zero or less means every candidate.
	Limit int
	// RetryFailed captures items whose last attempt failed instead of items
	// never captured.
	RetryFailed bool
}

type CaptureRunResult struct {
	Attempted int
	Succeeded int
	Failed    int
}

// Run captures the saved items selected by opts, one at a time. It returns
// an error if any capture failed.
func (c *Capturer) Run(ctx context.Context, opts CaptureRunOptions) (CaptureRunResult, error) {
	logger := c.logger()

	if opts.RemoteID != "" {
		s, err := c.DB.GetSavedItem(ctx, opts.RemoteID)
		if err != nil {
			return CaptureRunResult{}, err
		}
		if err := c.CaptureAndPersist(ctx, s); err != nil {
			return CaptureRunResult{Attempted: 1, Failed: 1}, err
		}
		return CaptureRunResult{Attempted: 1, Succeeded: 1}, nil
	}

	var (
		items []db.SavedItem
		err   error
	)
	if opts.RetryFailed {
		items, err = c.DB.ListSavedItemsByCaptureStatus(ctx, db.CaptureStatusError, opts.Limit)
	} else {
		items, err = c.DB.ListSavedItemsWithoutCapture(ctx, opts.Limit)
	}
	if err != nil {
		return CaptureRunResult{}, err
	}
	if len(items) == 0 {
		logger.Info("no saved items to capture")
		return CaptureRunResult{}, nil
	}

	logger.Info("capturing saved items", "count", len(items))
	var res CaptureRunResult
	for _, s := range items {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Attempted++
		if err := c.CaptureAndPersist(ctx, s); err != nil {
			res.Failed++
			logger.Error("capture failed", "remote_id", s.RemoteID, "url", s.URL, "error", err)
			continue
		}
		res.Succeeded++
	}

	if res.Failed > 0 {
		return res, fmt.Errorf("capture finished with %d failure(s)", res.Failed)
	}
	return res, nil
}
