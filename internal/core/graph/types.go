package graph

// PaginationInput is the cursor window requested for one page.
type PaginationInput struct {
	After *string `json:"after,omitempty"`
	First int     `json:"first,omitempty"`
}

// Status values accepted by SavedItemsFilter.
const (
	StatusUnread   = "UNREAD"
	StatusArchived = "ARCHIVED"
)

type SavedItemsFilter struct {
	UpdatedSince *int64  `json:"updatedSince,omitempty"`
	Status       *string `json:"status,omitempty"`
	IsArchived   *bool   `json:"isArchived,omitempty"`
	IsFavorite   *bool   `json:"isFavorite,omitempty"`
}

type SavedItemsSort struct {
	SortBy    string `json:"sortBy"`
	SortOrder string `json:"sortOrder"`
}

// Sort fields and orders accepted by SavedItemsSort.
const (
	SortByCreatedAt  = "CREATED_AT"
	SortByArchivedAt = "ARCHIVED_AT"
	SortOrderDesc    = "DESC"
	SortOrderAsc     = "ASC"
)

// SavedItemsQuery selects one page of the user's saved items.
type SavedItemsQuery struct {
	Pagination PaginationInput
	Filter     *SavedItemsFilter
	Sort       *SavedItemsSort
}

type TagsQuery struct {
	Pagination PaginationInput
}

type PageInfo struct {
	HasNextPage bool    `json:"hasNextPage"`
	EndCursor   *string `json:"endCursor"`
}

// ItemResult is the item union of a saved item: either a parsed Item or a
// PendingItem that the parser has not reached yet.
type ItemResult struct {
	Typename      string  `json:"__typename"`
	RemoteID      string  `json:"remoteID"`
	GivenURL      string  `json:"givenUrl"`
	ResolvedURL   *string `json:"resolvedUrl"`
	Title         *string `json:"title"`
	Language      *string `json:"language"`
	TopImageURL   *string `json:"topImageUrl"`
	TimeToRead    *int    `json:"timeToRead"`
	Domain        *string `json:"domain"`
	DatePublished *string `json:"datePublished"`
	IsArticle     *bool   `json:"isArticle"`
	WordCount     *int    `json:"wordCount"`
	Excerpt       *string `json:"excerpt"`
	Status        *string `json:"status"`
}

// IsPending reports whether the server has not parsed the item yet.
func (i ItemResult) IsPending() bool {
	return i.Typename == "PendingItem"
}

type TagSummary struct {
	Name string `json:"name"`
}

// SavedItemSummary is the server representation of one saved item.
type SavedItemSummary struct {
	URL        string       `json:"url"`
	RemoteID   string       `json:"remoteID"`
	IsArchived bool         `json:"isArchived"`
	IsFavorite bool         `json:"isFavorite"`
	DeletedAt  *int64       `json:"_deletedAt"`
	CreatedAt  int64        `json:"_createdAt"`
	ArchivedAt *int64       `json:"archivedAt"`
	Tags       []TagSummary `json:"tags"`
	Item       *ItemResult  `json:"item"`
}

type SavedItemEdge struct {
	Cursor string            `json:"cursor"`
	Node   *SavedItemSummary `json:"node"`
}

// SavedItemsPage is one page of the saved items connection.
type SavedItemsPage struct {
	IsPremium  bool
	TotalCount int
	PageInfo   PageInfo
	Edges      []SavedItemEdge
}

type TagNode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type TagEdge struct {
	Cursor string   `json:"cursor"`
	Node   *TagNode `json:"node"`
}

type TagsPage struct {
	TotalCount int
	PageInfo   PageInfo
	Edges      []TagEdge
}

type savedItemsData struct {
	User *struct {
		IsPremium  bool `json:"isPremium"`
		SavedItems *struct {
			TotalCount int             `json:"totalCount"`
			PageInfo   PageInfo        `json:"pageInfo"`
			Edges      []SavedItemEdge `json:"edges"`
		} `json:"savedItems"`
	} `json:"user"`
}

type tagsData struct {
	User *struct {
		Tags *struct {
			TotalCount int       `json:"totalCount"`
			PageInfo   PageInfo  `json:"pageInfo"`
			Edges      []TagEdge `json:"edges"`
		} `json:"tags"`
	} `json:"user"`
}
