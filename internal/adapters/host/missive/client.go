// Package missive bridges the gate to the Missive email host: a REST client
// for conversation and message lookups plus the selection event hub.
package missive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/sidebar-gate/internal/core/domain"
	"github.com/tjfontaine/sidebar-gate/internal/core/ports"
)

const (
	defaultBaseURL = "https://public.missiveapp.com/v1"
	defaultTimeout = 10 * time.Second

	// maxConcurrentLookups bounds parallel conversation requests.
	maxConcurrentLookups = 4

	// DefaultMaxResponseBytes bounds one API answer.
	DefaultMaxResponseBytes = 10 << 20
)

// ErrResponseTooLarge is returned when an answer exceeds the response limit.
var ErrResponseTooLarge = errors.New("missive response too large")

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithMaxResponseBytes bounds the size of one API answer.
func WithMaxResponseBytes(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxResponseBytes = n
		}
	}
}

// APIError is a non-2xx answer from the host API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("missive API error (status %d): %s", e.StatusCode, e.Message)
}

// Client calls the Missive public REST API.
type Client struct {
	token            string
	baseURL          string
	httpClient       *http.Client
	maxResponseBytes int64
}

var (
	_ ports.ConversationFetcher = (*Client)(nil)
	_ ports.MessageFetcher      = (*Client)(nil)
)

// NewClient creates a client authenticated with an API token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:            token,
		baseURL:          defaultBaseURL,
		maxResponseBytes: DefaultMaxResponseBytes,
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type conversationsEnvelope struct {
	Conversations []domain.Conversation `json:"conversations"`
}

type messagesEnvelope struct {
	Messages json.RawMessage `json:"messages"`
}

// FetchConversations looks up each conversation. Results keep the order of
// ids; unknown conversations are omitted.
func (c *Client) FetchConversations(ctx context.Context, ids []string) ([]domain.Conversation, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	results := make([][]domain.Conversation, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for i, id := range ids {
		g.Go(func() error {
			var env conversationsEnvelope
			found, err := c.get(ctx, "/conversations/"+url.PathEscape(id), &env)
			if err != nil {
				return fmt.Errorf("fetch conversation %s: %w", id, err)
			}
			if found {
				results[i] = env.Conversations
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []domain.Conversation
	for _, convs := range results {
		out = append(out, convs...)
	}
	return out, nil
}

// FetchMessages looks up messages in one request.
func (c *Client) FetchMessages(ctx context.Context, ids []string) ([]domain.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	escaped := make([]string, len(ids))
	for i, id := range ids {
		escaped[i] = url.PathEscape(id)
	}

	var env messagesEnvelope
	found, err := c.get(ctx, "/messages/"+strings.Join(escaped, ","), &env)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	if !found || len(env.Messages) == 0 {
		return nil, nil
	}

	// A single id answers with an object, several with an array.
	var messages []domain.Message
	if env.Messages[0] == '{' {
		var m domain.Message
		if err := json.Unmarshal(env.Messages, &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		messages = append(messages, m)
	} else if err := json.Unmarshal(env.Messages, &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	return messages, nil
}

// get decodes a JSON answer into out. A 404 reports found=false.
func (c *Client) get(ctx context.Context, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", "sidebar-gate/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return false, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > c.maxResponseBytes {
		return false, fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, c.maxResponseBytes)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		return false, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return true, nil
}

func errorMessage(body []byte) string {
	var env struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		switch v := env.Error.(type) {
		case string:
			return v
		case map[string]any:
			if msg, ok := v["message"].(string); ok {
				return msg
			}
		}
	}
	return strings.TrimSpace(string(body))
}
