package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/koscakluka/ema-realtime/internal/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	WebSearchToolName = "web_search"

	DefaultSearchTimeout = 30 * time.Second
)

type SearchRequest struct {
	Query       string   `json:"query"`
	RecencyDays int      `json:"recency_days,omitempty"`
	Domains     []string `json:"domains,omitempty"`
}

func (r SearchRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Query, validation.Required),
		validation.Field(&r.RecencyDays, validation.Min(0)),
		validation.Field(&r.Domains, validation.Each(validation.Required)),
	)
}

type Citation struct {
	Title  string `json:"title,omitempty"`
	URL    string `json:"url,omitempty"`
	FileID string `json:"file_id,omitempty"`
	Quote  string `json:"quote,omitempty"`
}

type SearchResponse struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// StatusError is returned when the capability endpoint answers with a
// non-success status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search endpoint responded with status %d: %s", e.StatusCode, utils.Truncate(e.Body, 200))
}

type SearchClient interface {
	Search(ctx context.Context, request SearchRequest) (*SearchResponse, error)
}

// WebSearchClient talks to the web search capability over plain HTTP, outside
// of the session transport.
type WebSearchClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

var _ SearchClient = (*WebSearchClient)(nil)

type WebSearchOption func(*WebSearchClient)

func WithAPIKey(apiKey string) WebSearchOption {
	return func(c *WebSearchClient) { c.apiKey = apiKey }
}

func WithHTTPClient(client *http.Client) WebSearchOption {
	return func(c *WebSearchClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewWebSearchClient(url string, timeout time.Duration, opts ...WebSearchOption) *WebSearchClient {
	if timeout <= 0 {
		timeout = DefaultSearchTimeout
	}

	c := &WebSearchClient{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
					return operationName + " " + request.URL.Path
				}),
			),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *WebSearchClient) Search(ctx context.Context, request SearchRequest) (*SearchResponse, error) {
	request.Query = strings.TrimSpace(request.Query)
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var searchResponse SearchResponse
	if err := json.Unmarshal(body, &searchResponse); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if searchResponse.Citations == nil {
		searchResponse.Citations = []Citation{}
	}
	return &searchResponse, nil
}

type webSearchParameters struct {
	Query       string   `json:"query" jsonschema:"description=What to search the web for"`
	RecencyDays int      `json:"recency_days,omitempty" jsonschema:"description=Only consider sources published within this many days,minimum=1"`
	Domains     []string `json:"domains,omitempty" jsonschema:"description=Restrict results to these domains"`
}

// WebSearch exposes client as the web_search tool. defaultRecencyDays is
// used when the agent does not ask for a window; zero means no window.
func WebSearch(client SearchClient, defaultRecencyDays int) Tool {
	return New(WebSearchToolName,
		"Search the web for up to date information and answer with cited sources",
		func(ctx context.Context, params webSearchParameters) (any, error) {
			request := SearchRequest{
				Query:       params.Query,
				RecencyDays: params.RecencyDays,
				Domains:     params.Domains,
			}
			if request.RecencyDays == 0 {
				request.RecencyDays = defaultRecencyDays
			}

			response, err := client.Search(ctx, request)
			if err != nil {
				return nil, fmt.Errorf("web search failed: %w", err)
			}
			logger.DebugContext(ctx, "web search answered", "query", request.Query, "citations", len(response.Citations))
			return response, nil
		})
}
