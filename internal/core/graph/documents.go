package graph

const itemFields = `
	remoteID: itemId
	givenUrl
	resolvedUrl
	title
	language
	topImageUrl
	timeToRead
	domain
	datePublished
	isArticle
	wordCount
	excerpt`

const savedItemSummaryFragment = `
fragment SavedItemSummary on SavedItem {
	url
	remoteID: id
	isArchived
	isFavorite
	_deletedAt
	_createdAt
	archivedAt
	tags {
		name
	}
	item {
		__typename
		... on Item {` + itemFields + `
		}
		... on PendingItem {
			remoteID: itemId
			givenUrl: url
			status
		}
	}
}`

const fetchSavedItemsDocument = `
query FetchSavedItems($pagination: PaginationInput, $filter: SavedItemsFilter, $sort: SavedItemsSort) {
	user {
		isPremium
		savedItems(pagination: $pagination, filter: $filter, sort: $sort) {
			totalCount
			pageInfo {
				hasNextPage
				endCursor
			}
			edges {
				cursor
				node {
					...SavedItemSummary
				}
			}
		}
	}
}` + savedItemSummaryFragment

const fetchTagsDocument = `
query Tags($pagination: PaginationInput) {
	user {
		tags(pagination: $pagination) {
			totalCount
			pageInfo {
				hasNextPage
				endCursor
			}
			edges {
				cursor
				node {
					id
					name
				}
			}
		}
	}
}`

const pingDocument = `query Ping { __typename }`
