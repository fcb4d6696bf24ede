package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aite550659-max/agent-trust-protocol/internal/logger"
)

const (
	// DefaultPageLimit is the mirror's default page size.
	DefaultPageLimit = 100

	// DefaultRequestTimeout bounds each REST call.
	DefaultRequestTimeout = 30 * time.Second

	messagesPathFormat = "/api/v1/topics/%s/messages"
)

// Client fetches historical topic messages from the mirror node REST API.
// It is stateless and safe for concurrent use across topics.
type Client struct {
	baseURL string
	limit   int
	http    *http.Client
	log     *logger.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithPageLimit overrides the per-page message limit.
func WithPageLimit(limit int) ClientOption {
	return func(c *Client) {
		if limit > 0 {
			c.limit = limit
		}
	}
}

// WithRequestTimeout overrides the per-request timeout.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.http.Timeout = timeout
		}
	}
}

// NewClient creates a mirror REST client rooted at baseURL.
func NewClient(baseURL string, log *logger.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		limit:   DefaultPageLimit,
		http:    &http.Client{Timeout: DefaultRequestTimeout},
		log:     log.WithComponent("mirror-client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchMessages fetches one page of messages for the topic, beginning
// strictly after the cursor timestamp when one is supplied. Messages are
// returned in ascending consensus order.
func (c *Client) FetchMessages(ctx context.Context, topicID, cursor string) (*Page, error) {
	query := url.Values{}
	query.Set("limit", fmt.Sprintf("%d", c.limit))
	if cursor != "" {
		query.Set("timestamp", "gt:"+cursor)
	}

	requestURL := c.baseURL + fmt.Sprintf(messagesPathFormat, url.PathEscape(topicID)) + "?" + query.Encode()

	return c.fetchPage(ctx, requestURL)
}

// FetchNext follows a continuation URL returned by a previous page verbatim.
func (c *Client) FetchNext(ctx context.Context, nextURL string) (*Page, error) {
	// Continuation links come back relative to the mirror host.
	if strings.HasPrefix(nextURL, "/") {
		nextURL = c.baseURL + nextURL
	}

	return c.fetchPage(ctx, nextURL)
}

func (c *Client) fetchPage(ctx context.Context, requestURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build mirror request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: requestURL}
	}

	var decoded messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to decode mirror response: %w", err)}
	}

	page := &Page{
		Messages: make([]Message, 0, len(decoded.Messages)),
	}
	for i := range decoded.Messages {
		page.Messages = append(page.Messages, decoded.Messages[i].toMessage())
	}
	if decoded.Links.Next != nil && *decoded.Links.Next != "" {
		page.NextURL = *decoded.Links.Next
	}

	c.log.Debugw("fetched mirror page",
		"url", requestURL,
		"messages", len(page.Messages),
		"has_next", page.HasNext(),
	)

	return page, nil
}
