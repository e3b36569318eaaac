package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seckatie/pocketsync/internal/core/db"
	"github.com/seckatie/pocketsync/internal/core/graph"
)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

type savedItemsResult struct {
	page graph.SavedItemsPage
	err  error
}

type tagsResult struct {
	page graph.TagsPage
	err  error
}

// fakeClient serves scripted responses in order and records every request.
type fakeClient struct {
	mu gosync.Mutex

	saves   []savedItemsResult
	archive []savedItemsResult
	tags    []tagsResult
	mutates []error

	savedQueries []graph.SavedItemsQuery
	tagQueries   []graph.TagsQuery
	mutations    []graph.Mutation
}

func (f *fakeClient) FetchSavedItems(ctx context.Context, q graph.SavedItemsQuery) (graph.SavedItemsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedQueries = append(f.savedQueries, q)

	queue := &f.saves
	if q.Filter != nil && q.Filter.IsArchived != nil && *q.Filter.IsArchived {
		queue = &f.archive
	}
	if len(*queue) == 0 {
		return graph.SavedItemsPage{}, nil
	}
	r := (*queue)[0]
	*queue = (*queue)[1:]
	return r.page, r.err
}

func (f *fakeClient) FetchTags(ctx context.Context, q graph.TagsQuery) (graph.TagsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tagQueries = append(f.tagQueries, q)
	if len(f.tags) == 0 {
		return graph.TagsPage{}, nil
	}
	r := f.tags[0]
	f.tags = f.tags[1:]
	return r.page, r.err
}

func (f *fakeClient) Mutate(ctx context.Context, m graph.Mutation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations = append(f.mutations, m)
	if len(f.mutates) == 0 {
		return nil
	}
	err := f.mutates[0]
	f.mutates = f.mutates[1:]
	return err
}

func (f *fakeClient) queries() []graph.SavedItemsQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]graph.SavedItemsQuery(nil), f.savedQueries...)
}

func (f *fakeClient) sentMutations() []graph.Mutation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]graph.Mutation(nil), f.mutations...)
}

func strPtr(s string) *string { return &s }
func int64Ptr(v int64) *int64 { return &v }

func node(id string) *graph.SavedItemSummary {
	url := fmt.Sprintf("https://example.com/%s", id)
	return &graph.SavedItemSummary{
		URL:       url,
		RemoteID:  id,
		CreatedAt: 100,
		Item: &graph.ItemResult{
			Typename: "Item",
			RemoteID: "item-" + id,
			GivenURL: url,
			Title:    strPtr("Title " + id),
		},
	}
}

func savesPage(hasNext bool, cursor *string, nodes ...*graph.SavedItemSummary) savedItemsResult {
	edges := make([]graph.SavedItemEdge, len(nodes))
	for i, n := range nodes {
		edges[i] = graph.SavedItemEdge{Cursor: fmt.Sprintf("c%d", i), Node: n}
	}
	return savedItemsResult{page: graph.SavedItemsPage{
		TotalCount: len(nodes),
		PageInfo:   graph.PageInfo{HasNextPage: hasNext, EndCursor: cursor},
		Edges:      edges,
	}}
}

// fixedClock returns a constant time.
func fixedClock(ts int64) func() time.Time {
	return func() time.Time { return time.Unix(ts, 0) }
}

// memoryLastRefresh is an in-memory LastRefresh.
type memoryLastRefresh struct {
	mu     gosync.Mutex
	values map[Collection]int64
}

func newMemoryLastRefresh() *memoryLastRefresh {
	return &memoryLastRefresh{values: make(map[Collection]int64)}
}

func (m *memoryLastRefresh) Get(ctx context.Context, c Collection) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[c]
	return v, ok, nil
}

func (m *memoryLastRefresh) Refreshed(ctx context.Context, c Collection, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[c] = at.Unix()
	return nil
}

func (m *memoryLastRefresh) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[Collection]int64)
	return nil
}

// drain collects every event currently buffered on ch.
func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}
