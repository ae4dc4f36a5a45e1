package orchestration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-realtime/core/logsink"
	"github.com/koscakluka/ema-realtime/core/session"
	"github.com/koscakluka/ema-realtime/core/tools"
)

type fakeSession struct {
	mu       sync.Mutex
	commands []session.Command
	err      error
}

func (s *fakeSession) Send(_ context.Context, command session.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.commands = append(s.commands, command)
	return nil
}

func (s *fakeSession) sent() []session.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]session.Command(nil), s.commands...)
}

func (s *fakeSession) count(commandType session.CommandType) int {
	count := 0
	for _, command := range s.sent() {
		if command.Type == commandType {
			count++
		}
	}
	return count
}

type recordingDeliverer struct {
	mu      sync.Mutex
	records []logsink.LogRecord
	fail    bool
}

func (d *recordingDeliverer) Deliver(_ context.Context, record logsink.LogRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return fmt.Errorf("log store unreachable")
	}
	d.records = append(d.records, record)
	return nil
}

func (d *recordingDeliverer) setFail(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = fail
}

func (d *recordingDeliverer) delivered() []logsink.LogRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]logsink.LogRecord(nil), d.records...)
}

func (d *recordingDeliverer) withRole(role logsink.Role) []logsink.LogRecord {
	records := []logsink.LogRecord{}
	for _, record := range d.delivered() {
		if record.Role == role {
			records = append(records, record)
		}
	}
	return records
}

type toolResult struct {
	output string
	err    error
}

type fakeTools struct {
	mu      sync.Mutex
	results map[string]toolResult
	calls   map[string]int
	block   chan struct{}
}

func newFakeTools() *fakeTools {
	return &fakeTools{results: map[string]toolResult{}, calls: map[string]int{}}
}

func (f *fakeTools) Execute(_ context.Context, name string, arguments map[string]any) (string, error) {
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	if result, ok := f.results[name]; ok {
		return result.output, result.err
	}
	return fmt.Sprintf(`{"echo":%q}`, fmt.Sprint(arguments["query"])), nil
}

func (f *fakeTools) Tools() []tools.Tool {
	return []tools.Tool{tools.NewRaw("web_search", "Search the web", nil, nil)}
}

func (f *fakeTools) executions(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

type testEngine struct {
	*Engine
	session   *fakeSession
	deliverer *recordingDeliverer
	tools     *fakeTools
}

func newTestEngine(t *testing.T, opts ...EngineOption) *testEngine {
	t.Helper()

	te := &testEngine{
		session:   &fakeSession{},
		deliverer: &recordingDeliverer{},
		tools:     newFakeTools(),
	}
	opts = append([]EngineOption{
		WithSession(te.session),
		WithLogDeliverer(te.deliverer),
		WithTools(te.tools),
	}, opts...)
	te.Engine = New(opts...)

	ctx, cancel := context.WithCancel(context.Background())
	if err := te.Start(ctx); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		te.Close()
	})
	return te
}

// feed hands frames to the engine and waits until it is idle again.
func (te *testEngine) feed(t *testing.T, frames ...string) {
	t.Helper()
	for _, frame := range frames {
		if err := te.Handle([]byte(frame)); err != nil {
			t.Fatalf("failed to handle frame: %v", err)
		}
	}
	te.awaitIdle(t)
}

// awaitIdle waits until no task is queued and no worker is outstanding.
func (te *testEngine) awaitIdle(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		idle := false
		if err := te.runtime.do(context.Background(), "await idle", func(context.Context) {
			idle = len(te.runtime.queue) == 0 && te.runtime.inflight == 0
		}); err != nil {
			t.Fatalf("engine stopped while waiting for idle: %v", err)
		}
		if idle {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for engine to become idle")
}

func transcriptionCompleted(itemID, transcript string) string {
	return fmt.Sprintf(`{"type":"conversation.item.input_audio_transcription.completed","item_id":%q,"transcript":%q}`, itemID, transcript)
}

func responseCreated(responseID string) string {
	return fmt.Sprintf(`{"type":"response.created","response":{"id":%q,"status":"in_progress"}}`, responseID)
}

func textDelta(responseID, delta string) string {
	return fmt.Sprintf(`{"type":"response.text.delta","response_id":%q,"delta":%q}`, responseID, delta)
}

func textDone(responseID, text string) string {
	return fmt.Sprintf(`{"type":"response.text.done","response_id":%q,"text":%q}`, responseID, text)
}

func transcriptDelta(responseID, delta string) string {
	return fmt.Sprintf(`{"type":"response.audio_transcript.delta","response_id":%q,"delta":%q}`, responseID, delta)
}

func transcriptDone(responseID, transcript string) string {
	return fmt.Sprintf(`{"type":"response.audio_transcript.done","response_id":%q,"transcript":%q}`, responseID, transcript)
}

func responseDone(responseID string, output ...string) string {
	return fmt.Sprintf(`{"type":"response.done","response":{"id":%q,"status":"completed","output":[%s]}}`, responseID, strings.Join(output, ","))
}

func responseCompleted(responseID string, output ...string) string {
	return fmt.Sprintf(`{"type":"response.completed","response":{"id":%q,"status":"completed","output":[%s]}}`, responseID, strings.Join(output, ","))
}

func messageOutput(text string) string {
	return fmt.Sprintf(`{"type":"message","role":"assistant","content":[{"type":"output_text","text":%q,"annotations":[{"type":"file_citation","file_id":"file_1","quote":"source"}]}]}`, text)
}

func functionCallOutput(callID, name, arguments string) string {
	return fmt.Sprintf(`{"type":"function_call","call_id":%q,"name":%q,"arguments":%q}`, callID, name, arguments)
}

// observe swaps the engine's observer callbacks on the loop.
func (te *testEngine) observe(t *testing.T, options StartOptions) {
	t.Helper()
	if err := te.runtime.do(context.Background(), "observe", func(context.Context) {
		te.emit = newCallbackEmitter(options)
	}); err != nil {
		t.Fatalf("failed to install callbacks: %v", err)
	}
}

func (s *fakeSession) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
