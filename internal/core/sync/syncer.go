package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seckatie/pocketsync/internal/core/db"
	"github.com/seckatie/pocketsync/internal/core/graph"
)

// Client is the subset of the GraphQL client the syncer uses.
type Client interface {
	FetchSavedItems(ctx context.Context, q graph.SavedItemsQuery) (graph.SavedItemsPage, error)
	FetchTags(ctx context.Context, q graph.TagsQuery) (graph.TagsPage, error)
	Mutate(ctx context.Context, m graph.Mutation) error
}

type Config struct {
	PageSize int
	// MaxItems caps saves and archive fetches. Zero or less means no cap.
	MaxItems int
	// MaxRetries bounds retries per operation. Zero uses DefaultMaxRetries
	// and a negative value disables retries.
	MaxRetries int
}

// Syncer owns the sync operations for one account.
type Syncer struct {
	client      Client
	db          *db.DB
	lastRefresh LastRefresh
	queue       *Queue
	events      *Events
	logger      *slog.Logger
	cfg         Config
	now         func() time.Time
}

type Option func(*Syncer)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithEvents(events *Events) Option {
	return func(s *Syncer) {
		if events != nil {
			s.events = events
		}
	}
}

func WithLastRefresh(lr LastRefresh) Option {
	return func(s *Syncer) {
		if lr != nil {
			s.lastRefresh = lr
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Syncer) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a Syncer. Retriable failures wait on signal; a nil signal
// turns every Retry into a Failure.
func New(client Client, store *db.DB, signal RetrySignal, cfg Config, opts ...Option) *Syncer {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	s := &Syncer{
		client:      client,
		db:          store,
		lastRefresh: StoreLastRefresh{DB: store},
		events:      NewEvents(),
		logger:      slog.Default(),
		cfg:         cfg,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queue = NewQueue(signal, cfg.MaxRetries, s.events, s.logger)
	return s
}

func (s *Syncer) Events() *Events { return s.events }

// Operation returns the fetch operation for collection c.
func (s *Syncer) Operation(c Collection) (Operation, error) {
	switch c {
	case CollectionSaves, CollectionArchive:
		return &ListOperation{
			Collection:  c,
			Client:      s.client,
			DB:          s.db,
			LastRefresh: s.lastRefresh,
			Events:      s.events,
			Logger:      s.logger,
			PageSize:    s.cfg.PageSize,
			MaxItems:    s.cfg.MaxItems,
			Now:         s.now,
		}, nil
	case CollectionTags:
		return &TagsOperation{
			Client:      s.client,
			DB:          s.db,
			LastRefresh: s.lastRefresh,
			Events:      s.events,
			Logger:      s.logger,
			PageSize:    s.cfg.PageSize,
			Now:         s.now,
		}, nil
	default:
		return nil, fmt.Errorf("collection %q is not synced", c)
	}
}

// Sync runs the given collections concurrently, each through the queue.
// With no arguments it syncs saves, archive and tags. A failing collection
// does not stop the others; all failures are joined.
func (s *Syncer) Sync(ctx context.Context, collections ...Collection) error {
	if len(collections) == 0 {
		collections = []Collection{CollectionSaves, CollectionArchive, CollectionTags}
	}

	var (
		g    errgroup.Group
		mu   gosync.Mutex
		errs []error
	)
	for _, c := range collections {
		op, err := s.Operation(c)
		if err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			res := s.queue.Run(ctx, string(c), op)
			if err := ResultError(res); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("sync %s: %w", c, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Reset clears every synced entity and forgets every last-refresh
// timestamp so the next sync is a full one.
func (s *Syncer) Reset(ctx context.Context) error {
	if err := s.db.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	if err := s.lastRefresh.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset last refresh: %w", err)
	}
	PendingTasks.Set(0)
	s.logger.Info("store reset", "category", "sync")
	return nil
}
