package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/seckatie/pocketsync/internal/core/db"
	"github.com/seckatie/pocketsync/internal/core/graph"
)

// ListOperation fetches the saves or archive collection page by page and
// merges every page into the store.
type ListOperation struct {
	Collection  Collection
	Client      Client
	DB          *db.DB
	LastRefresh LastRefresh
	Events      *Events
	Logger      *slog.Logger
	PageSize    int
	// MaxItems caps the number of items fetched. Zero or less means no cap.
	MaxItems int
	Now      func() time.Time
}

func (o *ListOperation) Execute(ctx context.Context) Result {
	logger := loggerOrDefault(o.Logger).With(
		"category", "sync",
		"operation", string(o.Collection),
		"op_id", uuid.NewString(),
	)
	if o.Collection != CollectionSaves && o.Collection != CollectionArchive {
		return classified(logger, o.Events, string(o.Collection),
			fmt.Errorf("collection %s is not a saved item list", o.Collection))
	}

	startedAt := nowOrDefault(o.Now)()

	since, ok, err := o.LastRefresh.Get(ctx, o.Collection)
	if err != nil {
		return classified(logger, o.Events, string(o.Collection), err)
	}
	var updatedSince *int64
	if ok {
		updatedSince = &since
	}
	initial := o.Collection == CollectionSaves && updatedSince == nil

	logger.Info("sync started", "incremental", updatedSince != nil, "updated_since", since)
	if initial {
		o.Events.Send(InitialDownloadStarted{})
	}

	pg := newPager(o.PageSize, o.MaxItems)
	total := 0
	for page := 1; ; page++ {
		q := graph.SavedItemsQuery{Pagination: pg.input()}
		if o.Collection == CollectionArchive {
			q.Filter = archiveFilter(updatedSince)
			q.Sort = archiveSort()
		} else {
			q.Filter = savesFilter(updatedSince)
		}

		logger.Debug("fetching page", "page", page, "first", q.Pagination.First)
		result, err := o.Client.FetchSavedItems(ctx, q)
		if err != nil {
			return classified(logger, o.Events, string(o.Collection), err)
		}
		if initial && page == 1 {
			o.Events.Send(InitialDownloadPaginating{TotalCount: result.TotalCount})
		}

		if err := o.applyPage(ctx, logger, result); err != nil {
			return classified(logger, o.Events, string(o.Collection), err)
		}
		total += len(result.Edges)

		next, more := pg.next(result.PageInfo, len(result.Edges))
		if !more {
			break
		}
		pg = next
	}

	if err := o.LastRefresh.Refreshed(ctx, o.Collection, startedAt); err != nil {
		return classified(logger, o.Events, string(o.Collection), err)
	}
	if initial {
		o.Events.Send(InitialDownloadCompleted{})
	}
	logger.Info("sync finished", "items", total)
	return Success()
}

// applyPage writes one page in a single transaction.
func (o *ListOperation) applyPage(ctx context.Context, logger *slog.Logger, page graph.SavedItemsPage) error {
	var created, updated, deleted, skipped int
	err := o.DB.WithTx(ctx, func(tx *db.Tx) error {
		created, updated, deleted, skipped = 0, 0, 0, 0
		if err := tx.SetPremiumStatus(page.IsPremium); err != nil {
			return err
		}
		for i, edge := range page.Edges {
			in, err := savedItemInput(edge.Node)
			if err != nil {
				logger.Warn("skipping malformed edge", "index", i, "cursor", edge.Cursor, "error", err)
				skipped++
				continue
			}
			res, err := tx.ApplySavedItem(in)
			if err != nil {
				return fmt.Errorf("apply saved item %s: %w", in.RemoteID, err)
			}
			switch {
			case res.Deleted:
				deleted++
			case res.Created:
				created++
			default:
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	RecordApplied(o.Collection, "created", created)
	RecordApplied(o.Collection, "updated", updated)
	RecordApplied(o.Collection, "deleted", deleted)
	RecordApplied(o.Collection, "skipped", skipped)
	logger.Debug("page applied",
		"created", created,
		"updated", updated,
		"deleted", deleted,
		"skipped", skipped)
	return nil
}

// savedItemInput converts a server node into store input.
func savedItemInput(node *graph.SavedItemSummary) (db.SavedItemInput, error) {
	if node == nil {
		return db.SavedItemInput{}, errors.New("edge has no node")
	}
	if node.RemoteID == "" {
		return db.SavedItemInput{}, errors.New("node has no remote ID")
	}
	if node.DeletedAt != nil {
		return db.SavedItemInput{RemoteID: node.RemoteID, URL: node.URL, DeletedAt: node.DeletedAt}, nil
	}
	if err := db.ValidateSavedItemURL(node.URL); err != nil {
		return db.SavedItemInput{}, err
	}

	in := db.SavedItemInput{
		RemoteID:   node.RemoteID,
		URL:        node.URL,
		IsArchived: node.IsArchived,
		IsFavorite: node.IsFavorite,
		CreatedAt:  node.CreatedAt,
		ArchivedAt: node.ArchivedAt,
		DeletedAt:  node.DeletedAt,
	}
	for _, t := range node.Tags {
		in.Tags = append(in.Tags, t.Name)
	}
	if it := node.Item; it != nil && it.GivenURL != "" {
		in.Item = &db.Item{
			RemoteID:      it.RemoteID,
			GivenURL:      it.GivenURL,
			ResolvedURL:   deref(it.ResolvedURL),
			Title:         deref(it.Title),
			Domain:        deref(it.Domain),
			Language:      deref(it.Language),
			Excerpt:       deref(it.Excerpt),
			TopImageURL:   deref(it.TopImageURL),
			WordCount:     deref(it.WordCount),
			TimeToRead:    deref(it.TimeToRead),
			IsArticle:     deref(it.IsArticle),
			DatePublished: deref(it.DatePublished),
		}
	}
	return in, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

func nowOrDefault(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
