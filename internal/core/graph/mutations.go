package graph

import (
	"context"
	"fmt"
	"time"
)

// MutationKind names a saved item mutation.
type MutationKind string

const (
	MutationArchive     MutationKind = "archive"
	MutationUnarchive   MutationKind = "unarchive"
	MutationFavorite    MutationKind = "favorite"
	MutationUnfavorite  MutationKind = "unfavorite"
	MutationDelete      MutationKind = "delete"
	MutationReplaceTags MutationKind = "replace_tags"
)

// Mutation is one saved item change sent to the server.
type Mutation struct {
	Kind     MutationKind `json:"kind"`
	RemoteID string       `json:"remote_id"`
	Tags     []string     `json:"tags,omitempty"`
	// At is the time the change was made locally. Only tag replacement sends
	// it; the other mutations take the item ID alone.
	At time.Time `json:"at"`
}

var mutationDocuments = map[MutationKind]struct {
	operation string
	document  string
}{
	MutationArchive: {"ArchiveItem",
		`mutation ArchiveItem($itemID: ID!) { updateSavedItemArchive(id: $itemID) { id } }`},
	MutationUnarchive: {"UnarchiveItem",
		`mutation UnarchiveItem($itemID: ID!) { updateSavedItemUnArchive(id: $itemID) { id } }`},
	MutationFavorite: {"FavoriteItem",
		`mutation FavoriteItem($itemID: ID!) { updateSavedItemFavorite(id: $itemID) { id } }`},
	MutationUnfavorite: {"UnfavoriteItem",
		`mutation UnfavoriteItem($itemID: ID!) { updateSavedItemUnFavorite(id: $itemID) { id } }`},
	MutationDelete: {"DeleteItem",
		`mutation DeleteItem($itemID: ID!) { deleteSavedItem(id: $itemID) }`},
	MutationReplaceTags: {"ReplaceSavedItemTags",
		`mutation ReplaceSavedItemTags($input: [SavedItemTagsInput!]!, $timestamp: ISOString!) { replaceSavedItemTags(input: $input, timestamp: $timestamp) { id } }`},
}

// Validate reports whether m can be sent.
func (m Mutation) Validate() error {
	if _, ok := mutationDocuments[m.Kind]; !ok {
		return fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
	if m.RemoteID == "" {
		return fmt.Errorf("%s mutation has no remote ID", m.Kind)
	}
	return nil
}

// Mutate sends m to the server.
func (c *Client) Mutate(ctx context.Context, m Mutation) error {
	if err := m.Validate(); err != nil {
		return err
	}
	doc := mutationDocuments[m.Kind]

	vars := map[string]any{}
	if m.Kind == MutationReplaceTags {
		at := m.At
		if at.IsZero() {
			at = time.Now()
		}
		tags := m.Tags
		if tags == nil {
			tags = []string{}
		}
		vars["input"] = []map[string]any{{"savedItemId": m.RemoteID, "tags": tags}}
		vars["timestamp"] = at.UTC().Format(time.RFC3339)
	} else {
		vars["itemID"] = m.RemoteID
	}

	if err := c.do(ctx, doc.operation, doc.document, vars, nil); err != nil {
		return fmt.Errorf("%s %s: %w", m.Kind, m.RemoteID, err)
	}
	return nil
}
