package sync

import (
	"context"
	"time"

	"github.com/seckatie/pocketsync/internal/core/db"
)

// Collection names a logical synced collection.
type Collection string

const (
	CollectionSaves   Collection = "saves"
	CollectionArchive Collection = "archive"
	CollectionTags    Collection = "tags"
	CollectionHome    Collection = "home"
)

// LastRefresh tracks when each collection last synced successfully.
type LastRefresh interface {
	// Get returns the Unix timestamp, or false when the collection has
	// never been refreshed.
	Get(ctx context.Context, c Collection) (int64, bool, error)
	Refreshed(ctx context.Context, c Collection, at time.Time) error
	Reset(ctx context.Context) error
}

// StoreLastRefresh keeps timestamps in the local store.
type StoreLastRefresh struct {
	DB *db.DB
}

func (s StoreLastRefresh) Get(ctx context.Context, c Collection) (int64, bool, error) {
	return s.DB.LastRefresh(ctx, string(c))
}

func (s StoreLastRefresh) Refreshed(ctx context.Context, c Collection, at time.Time) error {
	return s.DB.SetLastRefresh(ctx, string(c), at.Unix())
}

func (s StoreLastRefresh) Reset(ctx context.Context) error {
	return s.DB.ResetLastRefresh(ctx)
}
