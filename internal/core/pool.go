package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/seckatie/pocketsync/internal/core/db"
)

// ErrQueueFull is returned by Enqueue when the buffer is full.
var ErrQueueFull = errors.New("capture queue full")

// CapturePool runs captures on a fixed set of workers. A saved item is queued
// at most once until its capture finishes. Items that do not fit in the
// buffer are picked up from the store once the queue drains.
type CapturePool struct {
	capturer *Capturer
	workers  int
	queue    chan db.SavedItem
	logger   *slog.Logger

	mu       sync.Mutex
	pending  map[string]struct{}
	database *db.DB
	backlog  bool

	wg sync.WaitGroup
}

// NewCapturePool creates a pool with the given number of workers and a
// buffer of ten items per worker.
func NewCapturePool(capturer *Capturer, workers int) *CapturePool {
	if workers < 1 {
		workers = 1
	}
	return &CapturePool{
		capturer: capturer,
		workers:  workers,
		queue:    make(chan db.SavedItem, workers*10),
		logger:   capturer.logger().With("component", "offline"),
		pending:  make(map[string]struct{}),
	}
}

// Enqueue queues a capture without blocking. Items already queued or in
// progress are accepted and ignored.
func (p *CapturePool) Enqueue(s db.SavedItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pending[s.RemoteID]; ok {
		return nil
	}
	select {
	case p.queue <- s:
		p.pending[s.RemoteID] = struct{}{}
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending reports how many items are queued or being captured.
func (p *CapturePool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *CapturePool) done(remoteID string) {
	p.mu.Lock()
	delete(p.pending, remoteID)
	p.mu.Unlock()
}

func (p *CapturePool) deferred() {
	p.mu.Lock()
	p.backlog = true
	p.mu.Unlock()
}

// refill queues uncaptured items from the store after an overflow, once the
// buffer is empty.
func (p *CapturePool) refill(ctx context.Context) {
	p.mu.Lock()
	if !p.backlog || p.database == nil || len(p.queue) > 0 {
		p.mu.Unlock()
		return
	}
	p.backlog = false
	database := p.database
	p.mu.Unlock()

	queued, err := p.QueueMissing(ctx, database)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("failed to queue deferred captures", "error", err)
		}
		p.deferred()
		return
	}
	if queued > 0 {
		p.logger.Debug("queued deferred captures", "queued", queued)
	}
}

// Start launches the workers. They stop when ctx is done; Wait blocks until
// they have.
func (p *CapturePool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		workerID := i
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.logger.Debug("capture worker started", "worker", workerID)
			for {
				select {
				case <-ctx.Done():
					p.logger.Debug("capture worker stopped", "worker", workerID)
					return
				case s := <-p.queue:
					if err := p.capturer.CaptureAndPersist(ctx, s); err != nil {
						p.logger.Warn("capture failed", "worker", workerID, "remote_id", s.RemoteID, "error", err)
					}
					p.done(s.RemoteID)
					p.refill(ctx)
				}
			}
		}()
	}
}

func (p *CapturePool) Wait() {
	p.wg.Wait()
}

// Listen queues captures for newly created saved items and for items whose
// capture was cleared.
func (p *CapturePool) Listen(ctx context.Context, database *db.DB) {
	p.mu.Lock()
	p.database = database
	p.mu.Unlock()

	database.RegisterEventListener(db.OnSavedItemCreatedEvent, func(event db.Event) error {
		ev := event.(db.SavedItemCreatedEvent)
		if err := p.Enqueue(ev.SavedItem); err != nil {
			p.logger.Debug("saved item deferred", "remote_id", ev.SavedItem.RemoteID, "error", err)
			p.deferred()
		}
		return nil
	})

	database.RegisterEventListener(db.OnOfflineCaptureClearedEvent, func(event db.Event) error {
		ev := event.(db.OfflineCaptureClearedEvent)
		s, err := database.GetSavedItem(ctx, ev.SavedItemRemoteID)
		if err != nil {
			return err
		}
		return p.Enqueue(s)
	})
}

// QueueMissing queues every saved item that has never been captured. It
// stops at the first full buffer and returns how many were queued; the rest
// follow when the workers drain the buffer.
func (p *CapturePool) QueueMissing(ctx context.Context, database *db.DB) (int, error) {
	items, err := database.ListSavedItemsWithoutCapture(ctx, 0)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, s := range items {
		if err := p.Enqueue(s); err != nil {
			p.logger.Info("capture queue full, remaining items deferred", "queued", queued, "remaining", len(items)-queued)
			p.deferred()
			return queued, nil
		}
		queued++
	}
	return queued, nil
}
