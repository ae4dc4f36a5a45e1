// Package orchestration reconciles the frame stream of a hosted realtime
// session into complete user and assistant turns, pairs them, executes the
// tool calls the agent requests and logs every turn at most once.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-realtime/core/events"
	"github.com/koscakluka/ema-realtime/core/ledger"
	"github.com/koscakluka/ema-realtime/core/logsink"
	"github.com/koscakluka/ema-realtime/core/session"
	"github.com/koscakluka/ema-realtime/core/tools"
)

var (
	ErrEngineClosed     = errors.New("engine closed")
	ErrEngineNotStarted = errors.New("engine not started")
	ErrEmptyText        = errors.New("empty text")
	ErrUnknownTarget    = errors.New("unknown feedback target")
	ErrInvalidRating    = errors.New("rating outside of scale")
	ErrNotConnected     = session.ErrNotConnected
)

// Engine owns the state of one session. All state lives on a single event
// loop; public methods post work onto it and are safe for concurrent use.
type Engine struct {
	session         Session
	tools           ToolRegistry
	deliverer       logsink.Deliverer
	pendingLogs     logsink.PendingQueue
	identity        logsink.Identity
	sessionConfig   sessionConfig
	bargeInOnSpeech bool
	ratingMin       int
	ratingMax       int
	retryInterval   time.Duration
	ledgerRetention time.Duration
	queueCapacity   int

	runtime     *runtime
	startOnce   sync.Once
	closeOnce   sync.Once
	baseContext context.Context
	cancel      context.CancelFunc
	emit        emitter
	now         func() time.Time

	// Owned by the event loop.
	logged          *ledger.Ledger
	toolCalls       *ledger.Ledger
	responses       *ledger.Ledger
	cancelled       *ledger.Ledger
	sink            *logsink.Sink
	pendingUser     *UserTurn
	assistant       assistantTurnState
	assistantEvents map[string]struct{}
}

func New(opts ...EngineOption) *Engine {
	e := &Engine{
		tools:           tools.NewRegistry(),
		deliverer:       discardDeliverer{},
		ratingMin:       DefaultMinRating,
		ratingMax:       DefaultMaxRating,
		baseContext:     context.Background(),
		cancel:          func() {},
		emit:            noopEmitter,
		now:             time.Now,
		assistantEvents: map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.runtime = newRuntime(e.queueCapacity)
	e.logged = ledger.New(ledger.WithRetention(e.ledgerRetention))
	e.toolCalls = ledger.New(ledger.WithRetention(e.ledgerRetention))
	e.responses = ledger.New(ledger.WithRetention(e.ledgerRetention))
	e.cancelled = ledger.New(ledger.WithRetention(e.ledgerRetention))
	e.sink = logsink.New(e.deliverer, loopDispatcher{engine: e},
		logsink.WithLedger(e.logged),
		logsink.WithQueue(e.pendingLogs),
		logsink.WithIdentity(e.identity),
	)
	return e
}

// Start runs the event loop until ctx is done or Close is called. Records
// left in the pending log queue by an earlier run are replayed right away.
//
// Only the first call has an effect.
func (e *Engine) Start(ctx context.Context, opts ...StartOption) error {
	if e.runtime.isClosed() {
		return ErrEngineClosed
	}

	e.startOnce.Do(func() {
		options := StartOptions{}
		for _, opt := range opts {
			opt(&options)
		}

		e.emit = newCallbackEmitter(options)
		e.baseContext, e.cancel = context.WithCancel(ctx)
		e.runtime.start(e.baseContext)

		go func() {
			select {
			case <-ctx.Done():
				e.Close()
			case <-e.runtime.closeCh:
			}
		}()

		if e.retryInterval > 0 {
			go e.retryPendingLogs(e.retryInterval)
		}

		e.runtime.post("flush pending logs", func(ctx context.Context) { e.sink.Flush(ctx) })
	})
	return nil
}

func (e *Engine) retryPendingLogs(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.runtime.closeCh:
			return
		case <-ticker.C:
			e.runtime.post("retry pending logs", func(ctx context.Context) { e.sink.Flush(ctx) })
		}
	}
}

// Close stops the event loop, waits for in-flight work and clears the
// session's ledgers. Pending records stay in the pending log queue.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.cancel()
		e.runtime.end()

		e.logged.Reset()
		e.toolCalls.Reset()
		e.responses.Reset()
		e.cancelled.Reset()
		e.pendingUser = nil
		e.assistant.reset()
		clear(e.assistantEvents)
	})
}

// Handle decodes and processes one raw session frame. Frames are processed
// in the order Handle is called.
func (e *Engine) Handle(frame []byte) error {
	if !e.runtime.post("handle frame", func(ctx context.Context) {
		decoded, err := events.Decode(frame)
		if err != nil {
			logger.WarnContext(ctx, "dropping undecodable session frame", "error", err)
			return
		}
		e.handleFrame(ctx, decoded)
	}) {
		return ErrEngineClosed
	}
	return nil
}

func (e *Engine) HandleFrame(frame events.Frame) error {
	if !e.runtime.post("handle frame", func(ctx context.Context) { e.handleFrame(ctx, frame) }) {
		return ErrEngineClosed
	}
	return nil
}

// SubmitText sends a typed user message. The message becomes the pending
// user turn before it is sent so that the reply pairs with it. The returned
// id is the user turn's event id.
func (e *Engine) SubmitText(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}

	var (
		eventID string
		sendErr error
	)
	if err := e.runtime.do(ctx, "submit text", func(ctx context.Context) {
		turn := newUserTurn(uuid.NewString(), text, e.now())
		e.setPendingUserTurn(ctx, turn)
		eventID = turn.EventID

		if sendErr = e.send(ctx, session.UserMessage(text)); sendErr != nil {
			return
		}
		sendErr = e.send(ctx, session.CreateResponse())
	}); err != nil {
		return "", err
	}
	return eventID, sendErr
}

// Interrupt barges in on the active assistant response, if any.
func (e *Engine) Interrupt() error {
	if !e.runtime.post("interrupt", func(ctx context.Context) { e.bargeIn(ctx, "interrupted") }) {
		return ErrEngineClosed
	}
	return nil
}

// SetIdentity passes on the identity issued by the auth collaborator.
func (e *Engine) SetIdentity(userID, sessionID string) error {
	identity := logsink.Identity{UserID: userID, SessionID: sessionID}
	if !e.runtime.post("set identity", func(ctx context.Context) { e.sink.SetIdentity(ctx, identity) }) {
		return ErrEngineClosed
	}
	return nil
}

// SetOnline passes on the host's connectivity state.
func (e *Engine) SetOnline(online bool) error {
	if !e.runtime.post("set connectivity", func(ctx context.Context) { e.sink.SetOnline(ctx, online) }) {
		return ErrEngineClosed
	}
	return nil
}

func (e *Engine) FlushLogs() error {
	if !e.runtime.post("flush pending logs", func(ctx context.Context) { e.sink.Flush(ctx) }) {
		return ErrEngineClosed
	}
	return nil
}

// ConfigureSession sends the instructions, voice, turn detection mode and
// tool manifest to the session.
func (e *Engine) ConfigureSession(ctx context.Context) error {
	return e.sendAndWait(ctx, "configure session", func() session.Command {
		return session.UpdateSession(session.NewConfig(
			e.sessionConfig.instructions,
			e.sessionConfig.voice,
			e.sessionConfig.turnDetection,
			e.tools.Tools(),
		))
	})
}

func (e *Engine) CommitInput(ctx context.Context) error {
	return e.sendAndWait(ctx, "commit input", session.CommitInput)
}

func (e *Engine) ClearInput(ctx context.Context) error {
	return e.sendAndWait(ctx, "clear input", session.ClearInput)
}

func (e *Engine) sendAndWait(ctx context.Context, name string, command func() session.Command) error {
	var sendErr error
	if err := e.runtime.do(ctx, name, func(ctx context.Context) {
		sendErr = e.send(ctx, command())
	}); err != nil {
		return err
	}
	return sendErr
}

// Snapshot is a point in time view of the engine state.
type Snapshot struct {
	PendingUserTurn   *UserTurn
	AssistantActive   bool
	ResponseID        string
	PendingLogs       int
	InFlightLogs      int
	LoggedEvents      int
	ExecutedToolCalls int
	Identity          logsink.Identity
	Online            bool
}

func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var snapshot Snapshot
	err := e.runtime.do(ctx, "snapshot", func(ctx context.Context) {
		if e.pendingUser != nil {
			pending := *e.pendingUser
			snapshot.PendingUserTurn = &pending
		}
		snapshot.AssistantActive = e.assistant.active
		snapshot.ResponseID = e.assistant.responseID
		snapshot.PendingLogs = e.sink.Pending()
		snapshot.InFlightLogs = e.sink.InFlight()
		snapshot.LoggedEvents = e.logged.Len()
		snapshot.ExecutedToolCalls = e.toolCalls.Len()
		snapshot.Identity = e.sink.Identity()
		snapshot.Online = e.sink.Online()
	})
	return snapshot, err
}

func (e *Engine) send(ctx context.Context, command session.Command) error {
	if e.session == nil {
		err := fmt.Errorf("failed to send %s: %w", command.Type, ErrNotConnected)
		e.reportError(ctx, err)
		return err
	}
	if err := e.session.Send(ctx, command); err != nil {
		err = fmt.Errorf("failed to send %s: %w", command.Type, err)
		e.reportError(ctx, err)
		return err
	}
	return nil
}

func (e *Engine) reportError(ctx context.Context, err error) {
	logger.ErrorContext(ctx, "engine error", "error", err)
	e.emit(engineFailed{err: err})
}

type loopDispatcher struct {
	engine *Engine
}

func (d loopDispatcher) Dispatch(ctx context.Context, name string, work func(ctx context.Context) func()) {
	d.engine.runtime.dispatch(ctx, name, work, func(err error) { d.engine.reportError(ctx, err) })
}

// discardDeliverer is used when no log store is configured.
type discardDeliverer struct{}

func (discardDeliverer) Deliver(ctx context.Context, record logsink.LogRecord) error {
	logger.DebugContext(ctx, "no log store configured, discarding record", "event_id", record.EventID)
	return nil
}
