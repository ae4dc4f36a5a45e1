package logsink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/koscakluka/ema-realtime/internal/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const DefaultTimeout = 10 * time.Second

type Deliverer interface {
	Deliver(ctx context.Context, record LogRecord) error
}

// DeliveryError is returned when the log store answers with a non-success
// status.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("log store responded with status %d: %s", e.StatusCode, utils.Truncate(e.Body, 200))
}

// HTTPDeliverer posts one JSON document per record.
type HTTPDeliverer struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

var _ Deliverer = (*HTTPDeliverer)(nil)

type HTTPOption func(*HTTPDeliverer)

func WithAPIKey(apiKey string) HTTPOption {
	return func(d *HTTPDeliverer) { d.apiKey = apiKey }
}

func WithHTTPClient(client *http.Client) HTTPOption {
	return func(d *HTTPDeliverer) {
		if client != nil {
			d.httpClient = client
		}
	}
}

func NewHTTPDeliverer(url string, timeout time.Duration, opts ...HTTPOption) *HTTPDeliverer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	d := &HTTPDeliverer{
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
		opt(d)
	}
	return d
}

func (d *HTTPDeliverer) Deliver(ctx context.Context, record LogRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &DeliveryError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
