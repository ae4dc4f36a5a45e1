package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ErrNotConnected = errors.New("session not connected")

// Client is the websocket transport to the hosted session. Send is safe for
// concurrent use; Run must be called from a single goroutine.
type Client struct {
	url    string
	apiKey string
	model  string
	dialer *websocket.Dialer

	conn *websocket.Conn
	mu   sync.Mutex
}

type ClientOption func(*Client)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

// WithModel selects the hosted model through the model query parameter.
func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(c *Client) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

func NewClient(sessionURL string, opts ...ClientOption) *Client {
	c := &Client{
		url:    sessionURL,
		dialer: websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Connect(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "connect session")
	defer span.End()

	target, err := url.Parse(c.url)
	if err != nil {
		err = fmt.Errorf("invalid session url: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if c.model != "" {
		query := target.Query()
		query.Set("model", c.model)
		target.RawQuery = query.Encode()
	}

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}

	conn, _, err := c.dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		err = fmt.Errorf("failed to open session socket: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

func (c *Client) Send(ctx context.Context, command Command) error {
	_, span := tracer.Start(ctx, "send session command")
	defer span.End()
	span.SetAttributes(attribute.String("session.command", string(command.Type)))

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		span.RecordError(ErrNotConnected)
		span.SetStatus(codes.Error, ErrNotConnected.Error())
		return ErrNotConnected
	}
	if err := c.conn.WriteJSON(command); err != nil {
		err = fmt.Errorf("failed to send %s: %w", command.Type, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Run reads frames until the connection closes or ctx is done, handing every
// text frame to onFrame. A normal closure returns nil.
func (c *Client) Run(ctx context.Context, onFrame func([]byte)) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("session read failed: %w", err)
		}

		switch msgType {
		case websocket.TextMessage:
			onFrame(msg)
		default:
			logger.DebugContext(ctx, "ignoring non-text session message", "message_type", msgType)
		}
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := c.conn.Close()
	c.conn = nil
	return err
}
