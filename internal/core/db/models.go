package db

import "time"

// SavedItem is a user's saved URL as stored locally.
type SavedItem struct {
	ID         int64
	RemoteID   string
	URL        string
	IsArchived bool
	IsFavorite bool
	// CreatedAt, ArchivedAt and DeletedAt are Unix seconds.
	CreatedAt  int64
	ArchivedAt *int64
	DeletedAt  *int64
	Tags       []string
	Item       *Item
}

// Item is parsed-article metadata keyed by its given URL. Items outlive the
// saved items that point at them.
type Item struct {
	ID            int64
	RemoteID      string
	GivenURL      string
	ResolvedURL   string
	Title         string
	Domain        string
	Language      string
	Excerpt       string
	TopImageURL   string
	WordCount     int
	TimeToRead    int
	IsArticle     bool
	DatePublished string
}

type Tag struct {
	ID       int64
	Name     string
	RemoteID string
}

// SavedItemInput is the full server representation applied by ApplySavedItem.
type SavedItemInput struct {
	RemoteID   string
	URL        string
	IsArchived bool
	IsFavorite bool
	CreatedAt  int64
	ArchivedAt *int64
	DeletedAt  *int64
	Tags       []string
	Item       *Item
}

// ApplyResult reports what ApplySavedItem did with a server node.
type ApplyResult struct {
	SavedItem SavedItem
	Created   bool
	Deleted   bool
}

// SyncTask is a pending mutation waiting to be sent to the server.
type SyncTask struct {
	ID        string
	Kind      string
	Payload   []byte
	Attempts  int
	CreatedAt time.Time
}

type OfflineCapture struct {
	SavedItemRemoteID string
	CapturedURL       string
	CapturedHTML      string
	// Timestamps are stored in the DB as RFC3339 text.
	AttemptedAt string
	CapturedAt  string
	Status      string
	Error       string
}
