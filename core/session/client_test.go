package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newSessionServer(t *testing.T, handle func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("failed to upgrade: %v", err)
			return
		}
		defer conn.Close()
		handle(conn, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestClientSendsCommandsAndReadsFrames(t *testing.T) {
	received := make(chan Command, 1)
	headers := make(chan http.Header, 1)
	queries := make(chan string, 1)
	server := newSessionServer(t, func(conn *websocket.Conn, r *http.Request) {
		headers <- r.Header
		queries <- r.URL.Query().Get("model")

		var command Command
		if err := conn.ReadJSON(&command); err != nil {
			t.Errorf("failed to read command: %v", err)
			return
		}
		received <- command

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"response.created"}`))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	client := NewClient(wsURL(server), WithAPIKey("secret"), WithModel("realtime-mini"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	if err := client.Send(ctx, CreateResponse()); err != nil {
		t.Fatalf("failed to send: %v", err)
	}

	frames := []string{}
	if err := client.Run(ctx, func(frame []byte) { frames = append(frames, string(frame)) }); err != nil {
		t.Fatalf("expected normal closure, got %v", err)
	}

	if command := <-received; command.Type != CommandResponseCreate {
		t.Fatalf("expected response.create, got %q", command.Type)
	}
	if got := (<-headers).Get("Authorization"); got != "Bearer secret" {
		t.Fatalf("expected bearer authorization, got %q", got)
	}
	if got := <-queries; got != "realtime-mini" {
		t.Fatalf("expected model query parameter, got %q", got)
	}
	if len(frames) != 1 || frames[0] != `{"type":"response.created"}` {
		t.Fatalf("unexpected frames %v", frames)
	}
}

func TestClientSendBeforeConnect(t *testing.T) {
	client := NewClient("ws://127.0.0.1:1")
	if err := client.Send(context.Background(), ClearInput()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := client.Run(context.Background(), func([]byte) {}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestClientRunStopsOnContextCancel(t *testing.T) {
	release := make(chan struct{})
	server := newSessionServer(t, func(conn *websocket.Conn, r *http.Request) {
		<-release
	})
	defer close(release)

	client := NewClient(wsURL(server))
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx, func([]byte) {}) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancellation, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("expected Run to return after cancellation")
	}
}
