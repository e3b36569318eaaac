package graph

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Query         map[string]string
	OperationName string
	Body          request
}

func newTestServer(t *testing.T, status int, body string) (*Client, func() []capturedRequest) {
	t.Helper()
	var (
		mu       sync.Mutex
		captured []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var req request
		assert.NoError(t, json.Unmarshal(raw, &req))
		mu.Lock()
		captured = append(captured, capturedRequest{
			Query: map[string]string{
				"consumer_key": r.URL.Query().Get("consumer_key"),
				"access_token": r.URL.Query().Get("access_token"),
			},
			OperationName: r.Header.Get("X-Apollo-Operation-Name"),
			Body:          req,
		})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{Endpoint: srv.URL, ConsumerKey: "ck", AccessToken: "at"})
	require.NoError(t, err)
	return c, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), captured...)
	}
}

const savedItemsResponse = `{
  "data": {
    "user": {
      "isPremium": true,
      "savedItems": {
        "totalCount": 2,
        "pageInfo": {"hasNextPage": true, "endCursor": "c2"},
        "edges": [
          {"cursor": "c1", "node": {
            "url": "https://example.com/a", "remoteID": "1", "isArchived": false, "isFavorite": true,
            "_deletedAt": null, "_createdAt": 100, "archivedAt": null,
            "tags": [{"name": "go"}],
            "item": {"__typename": "Item", "remoteID": "i1", "givenUrl": "https://example.com/a",
                     "title": "A", "wordCount": 120, "isArticle": true}
          }},
          {"cursor": "c2", "node": {
            "url": "https://example.com/b", "remoteID": "2", "isArchived": false, "isFavorite": false,
            "_deletedAt": 150, "_createdAt": 90, "archivedAt": null, "tags": null,
            "item": {"__typename": "PendingItem", "remoteID": "i2", "givenUrl": "https://example.com/b", "status": "UNRESOLVED"}
          }}
        ]
      }
    }
  }
}`

func TestFetchSavedItems(t *testing.T) {
	c, captured := newTestServer(t, http.StatusOK, savedItemsResponse)

	status := StatusUnread
	page, err := c.FetchSavedItems(context.Background(), SavedItemsQuery{
		Pagination: PaginationInput{First: 30},
		Filter:     &SavedItemsFilter{Status: &status},
	})
	require.NoError(t, err)

	assert.True(t, page.IsPremium)
	assert.Equal(t, 2, page.TotalCount)
	assert.True(t, page.PageInfo.HasNextPage)
	require.NotNil(t, page.PageInfo.EndCursor)
	assert.Equal(t, "c2", *page.PageInfo.EndCursor)
	require.Len(t, page.Edges, 2)

	first := page.Edges[0].Node
	require.NotNil(t, first)
	assert.Equal(t, "1", first.RemoteID)
	assert.True(t, first.IsFavorite)
	assert.Equal(t, int64(100), first.CreatedAt)
	assert.Nil(t, first.DeletedAt)
	assert.Equal(t, []TagSummary{{Name: "go"}}, first.Tags)
	require.NotNil(t, first.Item)
	assert.False(t, first.Item.IsPending())
	assert.Equal(t, "A", *first.Item.Title)

	second := page.Edges[1].Node
	require.NotNil(t, second.DeletedAt)
	assert.Equal(t, int64(150), *second.DeletedAt)
	assert.True(t, second.Item.IsPending())

	require.Len(t, captured(), 1)
	req := captured()[0]
	assert.Equal(t, "ck", req.Query["consumer_key"])
	assert.Equal(t, "at", req.Query["access_token"])
	assert.Equal(t, "FetchSavedItems", req.OperationName)
	assert.Contains(t, req.Body.Query, "savedItems(pagination: $pagination")
	filter, ok := req.Body.Variables["filter"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "UNREAD", filter["status"])
	assert.NotContains(t, filter, "updatedSince")
	pagination, ok := req.Body.Variables["pagination"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(30), pagination["first"])
	assert.NotContains(t, pagination, "after")
}

func TestFetchTags(t *testing.T) {
	c, captured := newTestServer(t, http.StatusOK, `{"data":{"user":{"tags":{
		"totalCount": 1,
		"pageInfo": {"hasNextPage": false, "endCursor": null},
		"edges": [{"cursor": "t", "node": {"id": "tag-1", "name": "go"}}]}}}}`)

	after := "prev"
	page, err := c.FetchTags(context.Background(), TagsQuery{Pagination: PaginationInput{After: &after, First: 50}})
	require.NoError(t, err)
	assert.False(t, page.PageInfo.HasNextPage)
	assert.Nil(t, page.PageInfo.EndCursor)
	require.Len(t, page.Edges, 1)
	assert.Equal(t, "tag-1", page.Edges[0].Node.ID)

	pagination := captured()[0].Body.Variables["pagination"].(map[string]any)
	assert.Equal(t, "prev", pagination["after"])
}

func TestClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{"server error", http.StatusBadGateway, "bad gateway", func(t *testing.T, err error) {
			var rc *ResponseCodeError
			require.ErrorAs(t, err, &rc)
			assert.Equal(t, http.StatusBadGateway, rc.StatusCode)
			assert.True(t, rc.Temporary())
		}},
		{"client error", http.StatusUnauthorized, "nope", func(t *testing.T, err error) {
			var rc *ResponseCodeError
			require.ErrorAs(t, err, &rc)
			assert.False(t, rc.Temporary())
			assert.Equal(t, "nope", rc.Body)
		}},
		{"invalid json", http.StatusOK, "{", func(t *testing.T, err error) {
			var de *DecodeError
			assert.ErrorAs(t, err, &de)
		}},
		{"missing user", http.StatusOK, `{"data":{"user":null}}`, func(t *testing.T, err error) {
			var de *DecodeError
			assert.ErrorAs(t, err, &de)
		}},
		{"graphql errors", http.StatusOK, `{"data":null,"errors":[{"message":"a"},{"message":"b"}]}`, func(t *testing.T, err error) {
			var ge *GraphQLError
			require.ErrorAs(t, err, &ge)
			assert.Equal(t, []string{"a", "b"}, ge.Messages)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestServer(t, tt.status, tt.body)
			_, err := c.FetchSavedItems(context.Background(), SavedItemsQuery{})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	c, err := NewClient(Config{Endpoint: endpoint, Timeout: time.Second})
	require.NoError(t, err)

	err = c.Ping(context.Background())
	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestCanceledContextIsNotTransportError(t *testing.T) {
	c, _ := newTestServer(t, http.StatusOK, `{"data":{}}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Ping(ctx)
	require.Error(t, err)
	var te *TransportError
	assert.False(t, errors.As(err, &te))
}

func TestNewClient(t *testing.T) {
	t.Run("defaults the endpoint", func(t *testing.T) {
		c, err := NewClient(Config{ConsumerKey: "ck"})
		require.NoError(t, err)
		assert.Equal(t, "https://getpocket.com/graphql?consumer_key=ck", c.endpoint.String())
	})

	t.Run("rejects non-http endpoints", func(t *testing.T) {
		_, err := NewClient(Config{Endpoint: "ftp://example.com"})
		assert.Error(t, err)
	})
}

func TestMutate(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("archive", func(t *testing.T) {
		c, captured := newTestServer(t, http.StatusOK, `{"data":{"updateSavedItemArchive":{"id":"1"}}}`)
		require.NoError(t, c.Mutate(context.Background(), Mutation{Kind: MutationArchive, RemoteID: "1", At: at}))

		req := captured()[0]
		assert.Equal(t, "ArchiveItem", req.OperationName)
		assert.Contains(t, req.Body.Query, "updateSavedItemArchive(id: $itemID")
		assert.NotContains(t, req.Body.Query, "timestamp")
		assert.Equal(t, map[string]any{"itemID": "1"}, req.Body.Variables)
	})

	t.Run("replace tags", func(t *testing.T) {
		c, captured := newTestServer(t, http.StatusOK, `{"data":{"replaceSavedItemTags":[{"id":"1"}]}}`)
		require.NoError(t, c.Mutate(context.Background(), Mutation{Kind: MutationReplaceTags, RemoteID: "1", Tags: []string{"a"}, At: at}))

		vars := captured()[0].Body.Variables
		assert.Equal(t, "2024-05-01T12:00:00Z", vars["timestamp"])
		input := vars["input"].([]any)
		require.Len(t, input, 1)
		entry := input[0].(map[string]any)
		assert.Equal(t, "1", entry["savedItemId"])
		assert.Equal(t, []any{"a"}, entry["tags"])
	})

	t.Run("validation", func(t *testing.T) {
		c, captured := newTestServer(t, http.StatusOK, `{}`)
		assert.Error(t, c.Mutate(context.Background(), Mutation{Kind: "bogus", RemoteID: "1"}))
		assert.Error(t, c.Mutate(context.Background(), Mutation{Kind: MutationArchive}))
		assert.Empty(t, captured())
	})

	t.Run("keeps the error type", func(t *testing.T) {
		c, _ := newTestServer(t, http.StatusServiceUnavailable, "")
		err := c.Mutate(context.Background(), Mutation{Kind: MutationDelete, RemoteID: "1"})
		var rc *ResponseCodeError
		require.ErrorAs(t, err, &rc)
		assert.True(t, rc.Temporary())
	})
}
