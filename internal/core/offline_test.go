package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seckatie/pocketsync/internal/core/db"
)

type fakeBrowser struct {
	mu    sync.Mutex
	pages map[string]CapturedPage
	err   error
	calls []string
}

func (b *fakeBrowser) Capture(ctx context.Context, url string) (CapturedPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, url)
	if b.err != nil {
		return CapturedPage{}, b.err
	}
	p, ok := b.pages[url]
	if !ok {
		return CapturedPage{}, errors.New("navigation failed")
	}
	return p, nil
}

func (b *fakeBrowser) setErr(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

func newCoreTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := database.Close(); err != nil {
			t.Errorf("failed to close database: %v", err)
		}
	})
	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return database
}

func seedSavedItem(t *testing.T, database *db.DB, remoteID, url, title string) db.SavedItem {
	t.Helper()
	var saved db.SavedItem
	err := database.WithTx(context.Background(), func(tx *db.Tx) error {
		res, err := tx.ApplySavedItem(db.SavedItemInput{
			RemoteID:  remoteID,
			URL:       url,
			CreatedAt: 1700000000,
			Item:      &db.Item{GivenURL: url, Title: title},
		})
		saved = res.SavedItem
		return err
	})
	if err != nil {
		t.Fatalf("failed to seed saved item: %v", err)
	}
	return saved
}

var captureTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCapturer(database *db.DB, browser Browser) *Capturer {
	return &Capturer{
		DB:      database,
		Browser: browser,
		Now:     func() time.Time { return captureTime },
	}
}

func TestCaptureAndPersist(t *testing.T) {
	ctx := context.Background()

	t.Run("success inlines resources and backfills title", func(t *testing.T) {
		database := newCoreTestDB(t)
		ts := newResourceServer(t)
		saved := seedSavedItem(t, database, "1", "https://example.com/a", "")

		browser := &fakeBrowser{pages: map[string]CapturedPage{
			"https://example.com/a": {
				FinalURL: ts.URL + "/a",
				Title:    "Captured Title",
				HTML:     `<html><head><link rel="stylesheet" href="/style.css"></head><body>hi</body></html>`,
			},
		}}
		c := newTestCapturer(database, browser)
		inline := localInlineOptions("")
		c.Inline = &inline

		if err := c.CaptureAndPersist(ctx, saved); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		capture, err := database.GetOfflineCapture(ctx, "1")
		if err != nil {
			t.Fatalf("failed to get capture: %v", err)
		}
		if capture.Status != db.CaptureStatusOK {
			t.Errorf("Status = %q, want ok", capture.Status)
		}
		if capture.CapturedURL != ts.URL+"/a" {
			t.Errorf("CapturedURL = %q", capture.CapturedURL)
		}
		if !strings.Contains(capture.CapturedHTML, "<style>body { color: red; }</style>") {
			t.Errorf("stylesheet should be inlined, got %q", capture.CapturedHTML)
		}
		if capture.AttemptedAt != captureTime.Format(time.RFC3339) {
			t.Errorf("AttemptedAt = %q", capture.AttemptedAt)
		}

		got, err := database.GetSavedItem(ctx, "1")
		if err != nil {
			t.Fatalf("failed to get saved item: %v", err)
		}
		if got.Item == nil || got.Item.Title != "Captured Title" {
			t.Errorf("item title should be backfilled, got %+v", got.Item)
		}
	})

	t.Run("title falls back to title element", func(t *testing.T) {
		database := newCoreTestDB(t)
		saved := seedSavedItem(t, database, "1", "https://example.com/a", "")
		browser := &fakeBrowser{pages: map[string]CapturedPage{
			"https://example.com/a": {
				FinalURL: "https://example.com/a",
				HTML:     `<html><head><title> From HTML </title></head><body></body></html>`,
			},
		}}

		if err := newTestCapturer(database, browser).CaptureAndPersist(ctx, saved); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, _ := database.GetSavedItem(ctx, "1")
		if got.Item == nil || got.Item.Title != "From HTML" {
			t.Errorf("item title = %+v, want From HTML", got.Item)
		}
	})

	t.Run("existing title is kept", func(t *testing.T) {
		database := newCoreTestDB(t)
		saved := seedSavedItem(t, database, "1", "https://example.com/a", "Server Title")
		browser := &fakeBrowser{pages: map[string]CapturedPage{
			"https://example.com/a": {FinalURL: "https://example.com/a", Title: "Page Title", HTML: "<html></html>"},
		}}

		if err := newTestCapturer(database, browser).CaptureAndPersist(ctx, saved); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, _ := database.GetSavedItem(ctx, "1")
		if got.Item.Title != "Server Title" {
			t.Errorf("item title = %q, want Server Title", got.Item.Title)
		}
	})

	t.Run("failure is recorded", func(t *testing.T) {
		database := newCoreTestDB(t)
		saved := seedSavedItem(t, database, "1", "https://example.com/a", "")
		browser := &fakeBrowser{err: errors.New("net::ERR_NAME_NOT_RESOLVED")}

		err := newTestCapturer(database, browser).CaptureAndPersist(ctx, saved)
		if err == nil {
			t.Fatal("expected capture error")
		}

		capture, err := database.GetOfflineCapture(ctx, "1")
		if err != nil {
			t.Fatalf("failed to get capture: %v", err)
		}
		if capture.Status != db.CaptureStatusError {
			t.Errorf("Status = %q, want error", capture.Status)
		}
		if !strings.Contains(capture.Error, "ERR_NAME_NOT_RESOLVED") {
			t.Errorf("Error = %q", capture.Error)
		}
		if capture.CapturedAt != "" {
			t.Errorf("CapturedAt = %q, want empty", capture.CapturedAt)
		}
	})
}

func TestCapturerRun(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown remote ID", func(t *testing.T) {
		database := newCoreTestDB(t)
		_, err := newTestCapturer(database, &fakeBrowser{}).Run(ctx, CaptureRunOptions{RemoteID: "missing"})
		if !errors.Is(err, db.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("single item", func(t *testing.T) {
		database := newCoreTestDB(t)
		seedSavedItem(t, database, "1", "https://example.com/a", "")
		browser := &fakeBrowser{pages: map[string]CapturedPage{
			"https://example.com/a": {FinalURL: "https://example.com/a", HTML: "<html></html>"},
		}}

		res, err := newTestCapturer(database, browser).Run(ctx, CaptureRunOptions{RemoteID: "1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res != (CaptureRunResult{Attempted: 1, Succeeded: 1}) {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("batch then retry failed", func(t *testing.T) {
		database := newCoreTestDB(t)
		seedSavedItem(t, database, "1", "https://example.com/a", "")
		seedSavedItem(t, database, "2", "https://example.com/b", "")
		browser := &fakeBrowser{pages: map[string]CapturedPage{
			"https://example.com/a": {FinalURL: "https://example.com/a", HTML: "<html></html>"},
		}}
		c := newTestCapturer(database, browser)

		res, err := c.Run(ctx, CaptureRunOptions{})
		if err == nil {
			t.Error("expected error for failed capture")
		}
		if res != (CaptureRunResult{Attempted: 2, Succeeded: 1, Failed: 1}) {
			t.Errorf("result = %+v", res)
		}

		res, err = c.Run(ctx, CaptureRunOptions{})
		if err != nil || res.Attempted != 0 {
			t.Errorf("second run should find nothing, got %+v, %v", res, err)
		}

		browser.mu.Lock()
		browser.pages["https://example.com/b"] = CapturedPage{FinalURL: "https://example.com/b", HTML: "<html></html>"}
		browser.mu.Unlock()

		res, err = c.Run(ctx, CaptureRunOptions{RetryFailed: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res != (CaptureRunResult{Attempted: 1, Succeeded: 1}) {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("limit", func(t *testing.T) {
		database := newCoreTestDB(t)
		seedSavedItem(t, database, "1", "https://example.com/a", "")
		seedSavedItem(t, database, "2", "https://example.com/b", "")
		browser := &fakeBrowser{err: errors.New("offline")}

		res, _ := newTestCapturer(database, browser).Run(ctx, CaptureRunOptions{Limit: 1})
		if res.Attempted != 1 {
			t.Errorf("Attempted = %d, want 1", res.Attempted)
		}
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCapturePool(t *testing.T) {
	database := newCoreTestDB(t)
	seedSavedItem(t, database, "existing", "https://example.com/existing", "")

	browser := &fakeBrowser{pages: map[string]CapturedPage{
		"https://example.com/existing": {FinalURL: "https://example.com/existing", HTML: "<html></html>"},
		"https://example.com/new":      {FinalURL: "https://example.com/new", HTML: "<html></html>"},
	}}
	pool := NewCapturePool(newTestCapturer(database, browser), 2)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Listen(ctx, database)

	queued, err := pool.QueueMissing(ctx, database)
	if err != nil {
		t.Fatalf("QueueMissing failed: %v", err)
	}
	if queued != 1 {
		t.Errorf("queued = %d, want 1", queued)
	}

	pool.Start(ctx)
	seedSavedItem(t, database, "new", "https://example.com/new", "")

	captured := func(remoteID string) func() bool {
		return func() bool {
			c, err := database.GetOfflineCapture(context.Background(), remoteID)
			return err == nil && c.Status == db.CaptureStatusOK
		}
	}
	waitFor(t, "existing capture", captured("existing"))
	waitFor(t, "new capture", captured("new"))
	waitFor(t, "pool drained", func() bool { return pool.Pending() == 0 })

	if err := database.ClearOfflineCapture(context.Background(), "new"); err != nil {
		t.Fatalf("ClearOfflineCapture failed: %v", err)
	}
	waitFor(t, "recapture", captured("new"))

	cancel()
	pool.Wait()
}

func TestCapturePoolDrainsOverflow(t *testing.T) {
	database := newCoreTestDB(t)
	browser := &fakeBrowser{pages: map[string]CapturedPage{}}
	var inputs []db.SavedItemInput
	for i := 0; i < 50; i++ {
		url := fmt.Sprintf("https://example.com/%d", i)
		browser.pages[url] = CapturedPage{FinalURL: url, HTML: "<html></html>"}
		inputs = append(inputs, db.SavedItemInput{RemoteID: fmt.Sprint(i), URL: url, CreatedAt: int64(i + 1)})
	}
	pool := NewCapturePool(newTestCapturer(database, browser), 1)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Listen(ctx, database)
	pool.Start(ctx)

	err := database.WithTx(ctx, func(tx *db.Tx) error {
		for _, in := range inputs {
			if _, err := tx.ApplySavedItem(in); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to apply saved items: %v", err)
	}

	waitFor(t, "every item captured", func() bool {
		missing, err := database.ListSavedItemsWithoutCapture(context.Background(), 0)
		return err == nil && len(missing) == 0 && pool.Pending() == 0
	})

	cancel()
	pool.Wait()
}

func TestCapturePoolEnqueue(t *testing.T) {
	pool := NewCapturePool(&Capturer{}, 1)

	for i := 0; i < 10; i++ {
		if err := pool.Enqueue(db.SavedItem{RemoteID: string(rune('a' + i))}); err != nil {
			t.Fatalf("enqueue %d failed: %v", i, err)
		}
	}
	if err := pool.Enqueue(db.SavedItem{RemoteID: "a"}); err != nil {
		t.Errorf("duplicate enqueue should be ignored, got %v", err)
	}
	if err := pool.Enqueue(db.SavedItem{RemoteID: "overflow"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	if pool.Pending() != 10 {
		t.Errorf("Pending = %d, want 10", pool.Pending())
	}
}

func TestTitleFromHTML(t *testing.T) {
	tests := []struct {
		html string
		want string
	}{
		{"", ""},
		{"<html><head><title>Hello</title></head></html>", "Hello"},
		{"<html><head><title>First</title><title>Second</title></head></html>", "First"},
		{"<html><body>no title</body></html>", ""},
	}
	for _, tt := range tests {
		if got := titleFromHTML(tt.html); got != tt.want {
			t.Errorf("titleFromHTML(%q) = %q, want %q", tt.html, got, tt.want)
		}
	}
}

// TestChromeBrowserCapture needs a local Chrome and network access.
func TestChromeBrowserCapture(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	page, err := ChromeBrowser{Options: CaptureOptions{Headless: true, Timeout: 20 * time.Second}}.
		Capture(ctx, "https://example.com")
	if err != nil {
		t.Skipf("Chrome not available or failed: %v", err)
	}
	if page.FinalURL == "" || page.HTML == "" {
		t.Errorf("expected final URL and HTML, got %+v", page)
	}
}
