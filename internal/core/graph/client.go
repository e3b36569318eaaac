// Package graph is a thin GraphQL-over-HTTP client for the Pocket API.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// DefaultEndpoint is used when no API URL is configured.
const DefaultEndpoint = "https://getpocket.com/graphql"

const maxErrorBody = 4 << 10

type Config struct {
	Endpoint    string
	ConsumerKey string
	AccessToken string
	Timeout     time.Duration
	// RequestsPerSecond limits outgoing requests. Zero disables the limit.
	RequestsPerSecond float64
}

type Client struct {
	endpoint   *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a client for cfg. Credentials are sent as the
// consumer_key and access_token query parameters on every request.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid API URL %q: scheme must be http or https", endpoint)
	}
	q := u.Query()
	if cfg.ConsumerKey != "" {
		q.Set("consumer_key", cfg.ConsumerKey)
	}
	if cfg.AccessToken != "" {
		q.Set("access_token", cfg.AccessToken)
	}
	u.RawQuery = q.Encode()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	c := &Client{
		endpoint:   u,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// do posts a GraphQL document and decodes the data member into out.
func (c *Client) do(ctx context.Context, operation, document string, variables map[string]any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(request{Query: document, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Apollo-Operation-Name", operation)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("graphql response",
		"operation", operation,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ResponseCodeError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &TransportError{Err: err}
	}

	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return &DecodeError{Err: err}
	}
	if len(r.Errors) > 0 {
		msgs := make([]string, len(r.Errors))
		for i, e := range r.Errors {
			msgs[i] = e.Message
		}
		return &GraphQLError{Messages: msgs}
	}
	if out == nil {
		return nil
	}
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return &DecodeError{Err: errors.New("response has no data")}
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}

// FetchSavedItems requests one page of saved items.
func (c *Client) FetchSavedItems(ctx context.Context, q SavedItemsQuery) (SavedItemsPage, error) {
	vars := map[string]any{"pagination": q.Pagination}
	if q.Filter != nil {
		vars["filter"] = q.Filter
	}
	if q.Sort != nil {
		vars["sort"] = q.Sort
	}

	var data savedItemsData
	if err := c.do(ctx, "FetchSavedItems", fetchSavedItemsDocument, vars, &data); err != nil {
		return SavedItemsPage{}, err
	}
	if data.User == nil || data.User.SavedItems == nil {
		return SavedItemsPage{}, &DecodeError{Err: errors.New("response has no user.savedItems")}
	}
	return SavedItemsPage{
		IsPremium:  data.User.IsPremium,
		TotalCount: data.User.SavedItems.TotalCount,
		PageInfo:   data.User.SavedItems.PageInfo,
		Edges:      data.User.SavedItems.Edges,
	}, nil
}

// FetchTags requests one page of the user's tags.
func (c *Client) FetchTags(ctx context.Context, q TagsQuery) (TagsPage, error) {
	var data tagsData
	if err := c.do(ctx, "Tags", fetchTagsDocument, map[string]any{"pagination": q.Pagination}, &data); err != nil {
		return TagsPage{}, err
	}
	if data.User == nil || data.User.Tags == nil {
		return TagsPage{}, &DecodeError{Err: errors.New("response has no user.tags")}
	}
	return TagsPage{
		TotalCount: data.User.Tags.TotalCount,
		PageInfo:   data.User.Tags.PageInfo,
		Edges:      data.User.Tags.Edges,
	}, nil
}

// Ping checks that the endpoint answers a trivial query.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "Ping", pingDocument, nil, nil)
}
