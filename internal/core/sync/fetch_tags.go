package sync

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seckatie/pocketsync/internal/core/db"
	"github.com/seckatie/pocketsync/internal/core/graph"
)

// TagsOperation fetches every tag and upserts it by name. Tags missing
// from the server are left alone.
type TagsOperation struct {
	Client      Client
	DB          *db.DB
	LastRefresh LastRefresh
	Events      *Events
	Logger      *slog.Logger
	PageSize    int
	Now         func() time.Time
}

func (o *TagsOperation) Execute(ctx context.Context) Result {
	logger := loggerOrDefault(o.Logger).With(
		"category", "sync",
		"operation", string(CollectionTags),
		"op_id", uuid.NewString(),
	)
	startedAt := nowOrDefault(o.Now)()
	logger.Info("sync started")

	pg := newPager(o.PageSize, 0)
	total := 0
	for {
		page, err := o.Client.FetchTags(ctx, graph.TagsQuery{Pagination: pg.input()})
		if err != nil {
			return classified(logger, o.Events, string(CollectionTags), err)
		}

		saved := 0
		err = o.DB.WithTx(ctx, func(tx *db.Tx) error {
			saved = 0
			for i, edge := range page.Edges {
				if edge.Node == nil || strings.TrimSpace(edge.Node.Name) == "" {
					logger.Warn("skipping malformed tag edge", "index", i, "cursor", edge.Cursor)
					continue
				}
				if _, err := tx.UpsertTag(edge.Node.Name, edge.Node.ID); err != nil {
					return err
				}
				saved++
			}
			return nil
		})
		if err != nil {
			return classified(logger, o.Events, string(CollectionTags), err)
		}
		RecordApplied(CollectionTags, "upserted", saved)
		total += saved

		next, more := pg.next(page.PageInfo, len(page.Edges))
		if !more {
			break
		}
		pg = next
	}

	if err := o.LastRefresh.Refreshed(ctx, CollectionTags, startedAt); err != nil {
		return classified(logger, o.Events, string(CollectionTags), err)
	}
	logger.Info("sync finished", "tags", total)
	return Success()
}
