package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidURL is returned when a saved item URL fails validation.
var ErrInvalidURL = errors.New("invalid URL")

// ValidateSavedItemURL validates that a URL is acceptable for a saved item.
// It requires the URL to have http or https scheme and a non-empty host.
func ValidateSavedItemURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("%w: empty URL", ErrInvalidURL)
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidURL, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	return nil
}

// ListFilter selects which saved items a query returns.
type ListFilter int

const (
	// FilterSaves returns unarchived, non-deleted items, newest saved first.
	FilterSaves ListFilter = iota
	// FilterArchive returns archived, non-deleted items, newest archived first.
	FilterArchive
	// FilterAll returns every non-deleted item, newest saved first.
	FilterAll
)

func (f ListFilter) String() string {
	switch f {
	case FilterSaves:
		return "saves"
	case FilterArchive:
		return "archive"
	case FilterAll:
		return "all"
	default:
		return "unknown"
	}
}

// SavedItemQuery is the typed replacement for a predicate fetch request.
type SavedItemQuery struct {
	Filter    ListFilter
	Favorites bool
	// Tag restricts results to items carrying this tag name.
	Tag string
	// Search matches the URL or item title. For premium users an exact tag
	// name match is accepted as well.
	Search string
	// Limit caps the number of rows. Zero means no limit.
	Limit int
}

const savedItemColumns = `
	s.id, s.remote_id, s.url, s.is_archived, s.is_favorite, s.created_at, s.archived_at, s.deleted_at,
	i.id, i.remote_id, i.given_url, i.resolved_url, i.title, i.domain, i.language, i.excerpt,
	i.top_image_url, i.word_count, i.time_to_read, i.is_article, i.date_published`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSavedItem(row rowScanner) (SavedItem, error) {
	var (
		s          SavedItem
		archivedAt sql.NullInt64
		deletedAt  sql.NullInt64

		itemID        sql.NullInt64
		itemRemoteID  sql.NullString
		givenURL      sql.NullString
		resolvedURL   sql.NullString
		title         sql.NullString
		domain        sql.NullString
		language      sql.NullString
		excerpt       sql.NullString
		topImageURL   sql.NullString
		wordCount     sql.NullInt64
		timeToRead    sql.NullInt64
		isArticle     sql.NullBool
		datePublished sql.NullString
	)
	err := row.Scan(
		&s.ID, &s.RemoteID, &s.URL, &s.IsArchived, &s.IsFavorite, &s.CreatedAt, &archivedAt, &deletedAt,
		&itemID, &itemRemoteID, &givenURL, &resolvedURL, &title, &domain, &language, &excerpt,
		&topImageURL, &wordCount, &timeToRead, &isArticle, &datePublished,
	)
	if err != nil {
		return SavedItem{}, err
	}
	if archivedAt.Valid {
		s.ArchivedAt = &archivedAt.Int64
	}
	if deletedAt.Valid {
		s.DeletedAt = &deletedAt.Int64
	}
	if itemID.Valid {
		s.Item = &Item{
			ID:            itemID.Int64,
			RemoteID:      itemRemoteID.String,
			GivenURL:      givenURL.String,
			ResolvedURL:   resolvedURL.String,
			Title:         title.String,
			Domain:        domain.String,
			Language:      language.String,
			Excerpt:       excerpt.String,
			TopImageURL:   topImageURL.String,
			WordCount:     int(wordCount.Int64),
			TimeToRead:    int(timeToRead.Int64),
			IsArticle:     isArticle.Bool,
			DatePublished: datePublished.String,
		}
	}
	return s, nil
}

func getSavedItem(ctx context.Context, q queryer, remoteID string) (SavedItem, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+savedItemColumns+`
		FROM saved_items s
		LEFT JOIN items i ON i.id = s.item_id
		WHERE s.remote_id = ?
	`, remoteID)
	s, err := scanSavedItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SavedItem{}, fmt.Errorf("saved item %s: %w", remoteID, ErrNotFound)
		}
		return SavedItem{}, fmt.Errorf("failed to get saved item: %w", err)
	}
	items := []SavedItem{s}
	if err := loadTags(ctx, q, items); err != nil {
		return SavedItem{}, err
	}
	return items[0], nil
}

// loadTags fills Tags for each item. Rows are fully read before returning so
// no statement stays open on the single connection.
func loadTags(ctx context.Context, q queryer, items []SavedItem) error {
	if len(items) == 0 {
		return nil
	}
	byID := make(map[int64]int, len(items))
	args := make([]any, 0, len(items))
	for i, s := range items {
		byID[s.ID] = i
		args = append(args, s.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(items)), ",")
	rows, err := q.QueryContext(ctx, `
		SELECT st.saved_item_id, t.name
		FROM saved_item_tags st
		JOIN tags t ON t.id = st.tag_id
		WHERE st.saved_item_id IN (`+placeholders+`)
		ORDER BY t.name
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to load tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return fmt.Errorf("failed to scan tag: %w", err)
		}
		idx := byID[id]
		items[idx].Tags = append(items[idx].Tags, name)
	}
	return rows.Err()
}

// GetSavedItem returns the saved item with the given remote ID or ErrNotFound.
func (db *DB) GetSavedItem(ctx context.Context, remoteID string) (SavedItem, error) {
	return getSavedItem(ctx, db.db, remoteID)
}

func (db *DB) buildSavedItemQuery(ctx context.Context, selectClause string, q SavedItemQuery) (string, []any, error) {
	var (
		where []string
		args  []any
	)
	switch q.Filter {
	case FilterSaves:
		where = append(where, "s.is_archived = 0", "s.deleted_at IS NULL")
	case FilterArchive:
		where = append(where, "s.is_archived = 1", "s.deleted_at IS NULL")
	case FilterAll:
		where = append(where, "s.deleted_at IS NULL")
	default:
		return "", nil, fmt.Errorf("unknown list filter %d", q.Filter)
	}
	if q.Favorites {
		where = append(where, "s.is_favorite = 1")
	}
	if q.Tag != "" {
		where = append(where, `EXISTS (
			SELECT 1 FROM saved_item_tags st JOIN tags t ON t.id = st.tag_id
			WHERE st.saved_item_id = s.id AND t.name = ?)`)
		args = append(args, q.Tag)
	}
	if q.Search != "" {
		premium, err := db.PremiumStatus(ctx)
		if err != nil {
			return "", nil, err
		}
		like := "%" + q.Search + "%"
		clause := "s.url LIKE ? OR i.title LIKE ?"
		args = append(args, like, like)
		if premium {
			clause += ` OR EXISTS (
				SELECT 1 FROM saved_item_tags st JOIN tags t ON t.id = st.tag_id
				WHERE st.saved_item_id = s.id AND t.name = ?)`
			args = append(args, q.Search)
		}
		where = append(where, "("+clause+")")
	}

	query := selectClause + `
		FROM saved_items s
		LEFT JOIN items i ON i.id = s.item_id
		WHERE ` + strings.Join(where, " AND ")
	return query, args, nil
}

// ListSavedItems returns saved items matching q.
func (db *DB) ListSavedItems(ctx context.Context, q SavedItemQuery) ([]SavedItem, error) {
	query, args, err := db.buildSavedItemQuery(ctx, "SELECT "+savedItemColumns, q)
	if err != nil {
		return nil, err
	}
	if q.Filter == FilterArchive {
		query += " ORDER BY s.archived_at DESC, i.title ASC"
	} else {
		query += " ORDER BY s.created_at DESC, i.title ASC"
	}
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved items: %w", err)
	}
	var out []SavedItem
	for rows.Next() {
		s, err := scanSavedItem(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan saved item: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to list saved items: %w", err)
	}
	if err := rows.Close(); err != nil {
		db.logger.Warn("failed to close rows", "error", err)
	}

	if err := loadTags(ctx, db.db, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountSavedItems returns the number of saved items matching q. Limit is ignored.
func (db *DB) CountSavedItems(ctx context.Context, q SavedItemQuery) (int, error) {
	query, args, err := db.buildSavedItemQuery(ctx, "SELECT COUNT(*)", q)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count saved items: %w", err)
	}
	return n, nil
}

// ------------------------------
// Transaction methods
// ------------------------------

func (tx *Tx) savedItemID(remoteID string) (int64, bool, error) {
	var id int64
	err := tx.tx.QueryRowContext(tx.ctx, "SELECT id FROM saved_items WHERE remote_id = ?", remoteID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to fetch saved item: %w", err)
	}
	return id, true, nil
}

// GetSavedItem reads a saved item inside the transaction.
func (tx *Tx) GetSavedItem(remoteID string) (SavedItem, error) {
	return getSavedItem(tx.ctx, tx.tx, remoteID)
}

// ApplySavedItem upserts the server representation of a saved item, keyed by
// remote ID. All scalar fields, the linked item and the tag set are replaced.
// When the input carries a tombstone the row is deleted by remote ID without
// looking at the other fields, and only a deleted event is recorded.
func (tx *Tx) ApplySavedItem(in SavedItemInput) (ApplyResult, error) {
	if in.RemoteID == "" {
		return ApplyResult{}, errors.New("saved item has no remote ID")
	}
	if in.DeletedAt != nil {
		if _, err := tx.DeleteSavedItem(in.RemoteID); err != nil {
			return ApplyResult{}, fmt.Errorf("failed to delete tombstoned saved item %s: %w", in.RemoteID, err)
		}
		return ApplyResult{
			Deleted:   true,
			SavedItem: SavedItem{RemoteID: in.RemoteID, URL: in.URL, DeletedAt: in.DeletedAt},
		}, nil
	}
	if err := ValidateSavedItemURL(in.URL); err != nil {
		return ApplyResult{}, err
	}

	var itemID any
	if in.Item != nil && in.Item.GivenURL != "" {
		id, err := tx.upsertItem(*in.Item)
		if err != nil {
			return ApplyResult{}, err
		}
		itemID = id
	}

	id, exists, err := tx.savedItemID(in.RemoteID)
	if err != nil {
		return ApplyResult{}, err
	}

	result := ApplyResult{Created: !exists}
	if exists {
		_, err = tx.tx.ExecContext(tx.ctx, `
			UPDATE saved_items
			SET url = ?, is_archived = ?, is_favorite = ?, created_at = ?,
				archived_at = ?, deleted_at = ?, item_id = ?
			WHERE id = ?
		`, in.URL, in.IsArchived, in.IsFavorite, in.CreatedAt, in.ArchivedAt, in.DeletedAt, itemID, id)
		if err != nil {
			return ApplyResult{}, fmt.Errorf("failed to update saved item %s: %w", in.RemoteID, err)
		}
	} else {
		res, err := tx.tx.ExecContext(tx.ctx, `
			INSERT INTO saved_items (remote_id, url, is_archived, is_favorite, created_at, archived_at, deleted_at, item_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, in.RemoteID, in.URL, in.IsArchived, in.IsFavorite, in.CreatedAt, in.ArchivedAt, in.DeletedAt, itemID)
		if err != nil {
			return ApplyResult{}, fmt.Errorf("failed to insert saved item %s: %w", in.RemoteID, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return ApplyResult{}, fmt.Errorf("failed to get last insert ID: %w", err)
		}
	}

	if err := tx.replaceTags(id, in.Tags); err != nil {
		return ApplyResult{}, err
	}

	saved, err := tx.GetSavedItem(in.RemoteID)
	if err != nil {
		return ApplyResult{}, err
	}
	result.SavedItem = saved
	if result.Created {
		tx.record(SavedItemCreatedEvent{SavedItem: saved})
	} else {
		tx.record(SavedItemUpdatedEvent{SavedItem: saved})
	}
	return result, nil
}

// DeleteSavedItem removes a saved item. It reports whether a row existed.
func (tx *Tx) DeleteSavedItem(remoteID string) (bool, error) {
	res, err := tx.tx.ExecContext(tx.ctx, "DELETE FROM saved_items WHERE remote_id = ?", remoteID)
	if err != nil {
		return false, fmt.Errorf("failed to delete saved item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	tx.record(SavedItemDeletedEvent{RemoteID: remoteID})
	return true, nil
}

func (tx *Tx) updateSavedItem(remoteID, query string, args ...any) error {
	res, err := tx.tx.ExecContext(tx.ctx, query, append(args, remoteID)...)
	if err != nil {
		return fmt.Errorf("failed to update saved item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("saved item %s: %w", remoteID, ErrNotFound)
	}
	saved, err := tx.GetSavedItem(remoteID)
	if err != nil {
		return err
	}
	tx.record(SavedItemUpdatedEvent{SavedItem: saved})
	return nil
}

// SetArchived moves a saved item into or out of the archive.
func (tx *Tx) SetArchived(remoteID string, archived bool, at time.Time) error {
	var archivedAt any
	if archived {
		archivedAt = at.Unix()
	}
	return tx.updateSavedItem(remoteID,
		"UPDATE saved_items SET is_archived = ?, archived_at = ? WHERE remote_id = ?",
		archived, archivedAt)
}

func (tx *Tx) SetFavorite(remoteID string, favorite bool) error {
	return tx.updateSavedItem(remoteID,
		"UPDATE saved_items SET is_favorite = ? WHERE remote_id = ?",
		favorite)
}

// ReplaceTags sets the saved item's tag set to exactly names.
func (tx *Tx) ReplaceTags(remoteID string, names []string) error {
	id, exists, err := tx.savedItemID(remoteID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("saved item %s: %w", remoteID, ErrNotFound)
	}
	if err := tx.replaceTags(id, names); err != nil {
		return err
	}
	saved, err := tx.GetSavedItem(remoteID)
	if err != nil {
		return err
	}
	tx.record(SavedItemUpdatedEvent{SavedItem: saved})
	return nil
}
