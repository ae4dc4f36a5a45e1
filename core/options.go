package orchestration

import (
	"context"
	"time"

	"github.com/koscakluka/ema-realtime/core/logsink"
	"github.com/koscakluka/ema-realtime/core/session"
	"github.com/koscakluka/ema-realtime/core/tools"
)

type EngineOption func(*Engine)

// Session carries outbound commands to the hosted session.
type Session interface {
	Send(ctx context.Context, command session.Command) error
}

func WithSession(s Session) EngineOption {
	return func(e *Engine) { e.session = s }
}

// ToolRegistry executes the capabilities the agent may call and lists them
// for the session's tool manifest.
type ToolRegistry interface {
	Execute(ctx context.Context, name string, arguments map[string]any) (string, error)
	Tools() []tools.Tool
}

func WithTools(registry ToolRegistry) EngineOption {
	return func(e *Engine) {
		if registry != nil {
			e.tools = registry
		}
	}
}

func WithLogDeliverer(deliverer logsink.Deliverer) EngineOption {
	return func(e *Engine) {
		if deliverer != nil {
			e.deliverer = deliverer
		}
	}
}

// WithPendingLogQueue replaces the in-memory replay queue, e.g. with a
// [logsink.Spool] so that undelivered records survive a restart.
func WithPendingLogQueue(queue logsink.PendingQueue) EngineOption {
	return func(e *Engine) { e.pendingLogs = queue }
}

// WithIdentity sets the identity attached to log records from the start.
// Later identities are passed through [Engine.SetIdentity].
func WithIdentity(userID, sessionID string) EngineOption {
	return func(e *Engine) {
		e.identity = logsink.Identity{UserID: userID, SessionID: sessionID}
	}
}

// WithLedgerRetention bounds how long event, call and response ids are
// remembered. Zero remembers them for the engine's lifetime.
func WithLedgerRetention(d time.Duration) EngineOption {
	return func(e *Engine) { e.ledgerRetention = d }
}

// WithLogRetryInterval periodically retries the pending log queue while the
// engine runs.
func WithLogRetryInterval(d time.Duration) EngineOption {
	return func(e *Engine) { e.retryInterval = d }
}

// WithBargeInOnSpeech treats server detected user speech during an active
// assistant response as a barge-in.
func WithBargeInOnSpeech(enabled bool) EngineOption {
	return func(e *Engine) { e.bargeInOnSpeech = enabled }
}

func WithRatingScale(minRating, maxRating int) EngineOption {
	return func(e *Engine) {
		if minRating <= maxRating {
			e.ratingMin, e.ratingMax = minRating, maxRating
		}
	}
}

// WithSessionConfig sets what [Engine.ConfigureSession] sends.
func WithSessionConfig(instructions, voice string, turnDetection session.TurnDetectionMode) EngineOption {
	return func(e *Engine) {
		e.sessionConfig = sessionConfig{
			instructions:  instructions,
			voice:         voice,
			turnDetection: turnDetection,
		}
	}
}

func WithTaskQueueCapacity(capacity int) EngineOption {
	return func(e *Engine) { e.queueCapacity = capacity }
}

type sessionConfig struct {
	instructions  string
	voice         string
	turnDetection session.TurnDetectionMode
}

// StartOptions holds observer callbacks. Callbacks run on the engine's event
// loop: they must return quickly and must not call engine methods that wait
// for a result.
type StartOptions struct {
	onUserTurn       func(turn UserTurn)
	onAssistantTurn  func(turn AssistantTurn)
	onAssistantDelta func(delta string)
	onToolCall       func(call ToolCall)
	onError          func(err error)
}

type StartOption func(*StartOptions)

// WithUserTurnCallback is called whenever the pending user turn is set.
func WithUserTurnCallback(callback func(turn UserTurn)) StartOption {
	return func(o *StartOptions) {
		o.onUserTurn = callback
	}
}

func WithAssistantTurnCallback(callback func(turn AssistantTurn)) StartOption {
	return func(o *StartOptions) {
		o.onAssistantTurn = callback
	}
}

// WithAssistantDeltaCallback receives text and audio transcript deltas of
// the active response as they arrive.
func WithAssistantDeltaCallback(callback func(delta string)) StartOption {
	return func(o *StartOptions) {
		o.onAssistantDelta = callback
	}
}

func WithToolCallCallback(callback func(call ToolCall)) StartOption {
	return func(o *StartOptions) {
		o.onToolCall = callback
	}
}

// WithErrorCallback receives failures that the engine handled on its own,
// such as failed session sends and panicking workers.
func WithErrorCallback(callback func(err error)) StartOption {
	return func(o *StartOptions) {
		o.onError = callback
	}
}
