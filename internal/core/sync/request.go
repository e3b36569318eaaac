package sync

import "github.com/seckatie/pocketsync/internal/core/graph"

const DefaultPageSize = 30

// pager tracks the cursor and the remaining item budget.
type pager struct {
	after     *string
	pageSize  int
	remaining int
	capped    bool
}

// newPager starts a walk. maxItems <= 0 means no cap.
func newPager(pageSize, maxItems int) pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return pager{pageSize: pageSize, remaining: maxItems, capped: maxItems > 0}
}

func (p pager) input() graph.PaginationInput {
	first := p.pageSize
	if p.capped && p.remaining < first {
		first = p.remaining
	}
	return graph.PaginationInput{After: p.after, First: first}
}

// next returns the pager for the following page and whether to fetch it.
func (p pager) next(info graph.PageInfo, itemCount int) (pager, bool) {
	if p.capped {
		p.remaining -= itemCount
	}
	p.after = info.EndCursor
	more := info.HasNextPage && info.EndCursor != nil && itemCount > 0
	if p.capped && p.remaining <= 0 {
		more = false
	}
	return p, more
}

// savesFilter selects unread items on a full sync and everything changed
// since the last refresh otherwise.
func savesFilter(updatedSince *int64) *graph.SavedItemsFilter {
	if updatedSince != nil {
		return &graph.SavedItemsFilter{UpdatedSince: updatedSince}
	}
	status := graph.StatusUnread
	return &graph.SavedItemsFilter{Status: &status}
}

func archiveFilter(updatedSince *int64) *graph.SavedItemsFilter {
	archived := true
	return &graph.SavedItemsFilter{IsArchived: &archived, UpdatedSince: updatedSince}
}

func archiveSort() *graph.SavedItemsSort {
	return &graph.SavedItemsSort{SortBy: graph.SortByArchivedAt, SortOrder: graph.SortOrderDesc}
}
