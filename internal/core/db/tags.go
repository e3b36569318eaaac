package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// TagScope selects which tags ListTags returns.
type TagScope int

const (
	TagScopeAll TagScope = iota
	// TagScopeSaves returns tags attached to at least one unarchived saved item.
	TagScopeSaves
	// TagScopeArchive returns tags attached to at least one archived saved item.
	TagScopeArchive
	// TagScopeUnused returns tags with no saved items.
	TagScopeUnused
)

type TagQuery struct {
	Scope TagScope
}

func scanTag(row rowScanner) (Tag, error) {
	var t Tag
	var remoteID sql.NullString
	if err := row.Scan(&t.ID, &t.Name, &remoteID); err != nil {
		return Tag{}, err
	}
	t.RemoteID = remoteID.String
	return t, nil
}

// ListTags returns tags ordered by name.
func (db *DB) ListTags(ctx context.Context, q TagQuery) ([]Tag, error) {
	query := "SELECT t.id, t.name, t.remote_id FROM tags t"
	switch q.Scope {
	case TagScopeAll:
	case TagScopeSaves, TagScopeArchive:
		archived := 0
		if q.Scope == TagScopeArchive {
			archived = 1
		}
		query += fmt.Sprintf(` WHERE EXISTS (
			SELECT 1 FROM saved_item_tags st JOIN saved_items s ON s.id = st.saved_item_id
			WHERE st.tag_id = t.id AND s.is_archived = %d AND s.deleted_at IS NULL)`, archived)
	case TagScopeUnused:
		query += " WHERE NOT EXISTS (SELECT 1 FROM saved_item_tags st WHERE st.tag_id = t.id)"
	default:
		return nil, fmt.Errorf("unknown tag scope %d", q.Scope)
	}
	query += " ORDER BY t.name ASC"

	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

// GetTag returns the tag with the given name or ErrNotFound.
func (db *DB) GetTag(ctx context.Context, name string) (Tag, error) {
	t, err := scanTag(db.db.QueryRowContext(ctx, "SELECT id, name, remote_id FROM tags WHERE name = ?", name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tag{}, fmt.Errorf("tag %q: %w", name, ErrNotFound)
		}
		return Tag{}, fmt.Errorf("failed to get tag: %w", err)
	}
	return t, nil
}

// FetchOrCreateTag returns the tag named name, creating it when missing.
func (tx *Tx) FetchOrCreateTag(name string) (Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Tag{}, errors.New("tag name is empty")
	}
	t, err := scanTag(tx.tx.QueryRowContext(tx.ctx, "SELECT id, name, remote_id FROM tags WHERE name = ?", name))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Tag{}, fmt.Errorf("failed to fetch tag: %w", err)
	}

	res, err := tx.tx.ExecContext(tx.ctx, "INSERT INTO tags (name) VALUES (?)", name)
	if err != nil {
		return Tag{}, fmt.Errorf("failed to create tag %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Tag{}, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	t = Tag{ID: id, Name: name}
	tx.record(TagSavedEvent{Tag: t, Created: true})
	return t, nil
}

// UpsertTag fetches or creates the tag by name and stores its remote ID.
// An event is recorded only when the row is new or the remote ID changed.
func (tx *Tx) UpsertTag(name, remoteID string) (Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Tag{}, errors.New("tag name is empty")
	}
	t, err := scanTag(tx.tx.QueryRowContext(tx.ctx, "SELECT id, name, remote_id FROM tags WHERE name = ?", name))
	switch {
	case err == nil:
		if t.RemoteID == remoteID {
			return t, nil
		}
		if _, err := tx.tx.ExecContext(tx.ctx, "UPDATE tags SET remote_id = ? WHERE id = ?", nullString(remoteID), t.ID); err != nil {
			return Tag{}, fmt.Errorf("failed to update tag %q: %w", name, err)
		}
		t.RemoteID = remoteID
		tx.record(TagSavedEvent{Tag: t})
		return t, nil
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.tx.ExecContext(tx.ctx, "INSERT INTO tags (name, remote_id) VALUES (?, ?)", name, nullString(remoteID))
		if err != nil {
			return Tag{}, fmt.Errorf("failed to create tag %q: %w", name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return Tag{}, fmt.Errorf("failed to get last insert ID: %w", err)
		}
		t = Tag{ID: id, Name: name, RemoteID: remoteID}
		tx.record(TagSavedEvent{Tag: t, Created: true})
		return t, nil
	default:
		return Tag{}, fmt.Errorf("failed to fetch tag: %w", err)
	}
}

// replaceTags sets the saved item's tag links to exactly names. Tags that
// lose their last saved item are kept.
func (tx *Tx) replaceTags(savedItemID int64, names []string) error {
	if _, err := tx.tx.ExecContext(tx.ctx, "DELETE FROM saved_item_tags WHERE saved_item_id = ?", savedItemID); err != nil {
		return fmt.Errorf("failed to clear tags: %w", err)
	}
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		t, err := tx.FetchOrCreateTag(name)
		if err != nil {
			return err
		}
		if _, err := tx.tx.ExecContext(tx.ctx,
			"INSERT OR IGNORE INTO saved_item_tags (saved_item_id, tag_id) VALUES (?, ?)",
			savedItemID, t.ID); err != nil {
			return fmt.Errorf("failed to link tag %q: %w", name, err)
		}
	}
	return nil
}

// upsertItem stores item metadata keyed by given URL and returns its row ID.
// An empty incoming title never overwrites a stored one.
func (tx *Tx) upsertItem(item Item) (int64, error) {
	var id int64
	err := tx.tx.QueryRowContext(tx.ctx, `
		INSERT INTO items (given_url, remote_id, resolved_url, title, domain, language, excerpt,
			top_image_url, word_count, time_to_read, is_article, date_published)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(given_url) DO UPDATE SET
			remote_id = excluded.remote_id,
			resolved_url = excluded.resolved_url,
			title = COALESCE(NULLIF(excluded.title, ''), items.title),
			domain = excluded.domain,
			language = excluded.language,
			excerpt = excluded.excerpt,
			top_image_url = excluded.top_image_url,
			word_count = excluded.word_count,
			time_to_read = excluded.time_to_read,
			is_article = excluded.is_article,
			date_published = excluded.date_published
		RETURNING id
	`,
		item.GivenURL, nullString(item.RemoteID), nullString(item.ResolvedURL), nullString(item.Title),
		nullString(item.Domain), nullString(item.Language), nullString(item.Excerpt),
		nullString(item.TopImageURL), item.WordCount, item.TimeToRead, item.IsArticle,
		nullString(item.DatePublished),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert item %s: %w", item.GivenURL, err)
	}
	return id, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
