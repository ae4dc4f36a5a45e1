package orchestration

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-realtime/core/events"
	"github.com/koscakluka/ema-realtime/core/logsink"
	"github.com/koscakluka/ema-realtime/core/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func (e *Engine) handleFrame(ctx context.Context, frame events.Frame) {
	ctx, span := tracer.Start(ctx, "handle frame")
	defer span.End()

	category := frame.Category()
	span.SetAttributes(
		attribute.String("frame.type", string(frame.Type)),
		attribute.String("frame.category", category.String()),
	)

	switch category {
	case events.CategoryTranscriptionCompleted:
		e.onTranscriptionCompleted(ctx, frame)
	case events.CategoryTranscriptionFailed:
		e.onTranscriptionFailed(ctx, frame)
	case events.CategoryTurnCreated:
		e.onTurnCreated(ctx, frame)
	case events.CategoryResponseCreated:
		e.onResponseCreated(ctx, frame)
	case events.CategoryTextDelta:
		if e.acceptAssistantFrame(ctx, frame) {
			e.assistant.appendText(frame.Delta)
			e.emit(assistantDeltaArrived{delta: frame.Delta})
		}
	case events.CategoryTextDone:
		if e.acceptAssistantFrame(ctx, frame) {
			e.assistant.settleText(frame.Text)
		}
	case events.CategoryAudioTranscriptDelta:
		if e.acceptAssistantFrame(ctx, frame) {
			e.assistant.appendTranscript(frame.Delta)
			e.emit(assistantDeltaArrived{delta: frame.Delta})
		}
	case events.CategoryAudioTranscriptDone:
		if e.acceptAssistantFrame(ctx, frame) {
			e.assistant.settleTranscript(frame.Transcript)
		}
	case events.CategoryContentPartAdded:
		logger.DebugContext(ctx, "content part added", "response_id", frame.ResponseID, "item_id", frame.ItemID)
	case events.CategoryContentPartDone:
		e.onContentPartDone(ctx, frame)
	case events.CategoryResponseDone, events.CategoryResponseCompleted:
		e.onCompletion(ctx, frame)
	case events.CategorySpeechStarted:
		if e.bargeInOnSpeech {
			e.bargeIn(ctx, "user started speaking")
		}
	case events.CategorySpeechStopped:
		logger.DebugContext(ctx, "user speech stopped", "item_id", frame.ItemID)
	case events.CategoryError:
		e.onProtocolError(ctx, frame)
		span.SetStatus(codes.Error, frame.Error.String())
	default:
		logger.DebugContext(ctx, "ignoring unrecognized session frame", "type", string(frame.Type))
	}
}

func (e *Engine) onTranscriptionCompleted(ctx context.Context, frame events.Frame) {
	eventID := frame.ItemID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	if e.logged.Has(eventID) {
		logger.DebugContext(ctx, "ignoring transcription of an already logged user turn", "event_id", eventID)
		return
	}

	e.setPendingUserTurn(ctx, newUserTurn(eventID, normalizeTranscript(frame.Transcript), e.now()))
}

func (e *Engine) onTranscriptionFailed(ctx context.Context, frame events.Frame) {
	itemID := frame.ItemID
	if itemID == "" {
		itemID = uuid.NewString()
	}

	logger.WarnContext(ctx, "user speech transcription failed", "item_id", itemID, "error", frame.Error.String())
	e.submitSystemRecord(ctx, "transcription-failed:"+itemID,
		fmt.Sprintf("transcription failed for item %s: %s", itemID, frame.Error.String()))
}

// onTurnCreated synthesizes a user turn from inline transcript fragments,
// unless a transcription already set one.
func (e *Engine) onTurnCreated(ctx context.Context, frame events.Frame) {
	item := frame.Item
	if item == nil || item.Role != events.RoleUser {
		return
	}

	fragments := item.Fragments()
	if fragments == "" {
		return
	}
	if e.pendingUser != nil {
		logger.DebugContext(ctx, "pending user turn already set, ignoring inline transcript", "item_id", item.ID)
		return
	}

	eventID := item.ID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	if e.logged.Has(eventID) {
		return
	}
	e.setPendingUserTurn(ctx, newUserTurn(eventID, fragments, e.now()))
}

// setPendingUserTurn makes turn the pending user turn. A pending turn for a
// different utterance that never got a reply is logged on its own.
func (e *Engine) setPendingUserTurn(ctx context.Context, turn UserTurn) {
	if superseded := e.pendingUser; superseded != nil && superseded.EventID != turn.EventID {
		logger.WarnContext(ctx, "pending user turn superseded before a reply", "event_id", superseded.EventID)
		record := logsink.NewRecord(logsink.RoleUser, superseded.EventID, superseded.Content)
		record.Timestamp = superseded.Timestamp
		e.sink.Submit(ctx, record)
	}

	e.pendingUser = &turn
	e.emit(userTurnSet{turn: turn})
}

func (e *Engine) onResponseCreated(ctx context.Context, frame events.Frame) {
	responseID := frame.CompletedResponseID()
	if responseID == "" {
		responseID = uuid.NewString()
	}

	if e.assistant.active {
		logger.WarnContext(ctx, "discarding stale assistant turn", "response_id", e.assistant.responseID)
		e.responses.TryClaim(e.assistant.responseID)
	}
	e.assistant.start(responseID, e.now())
}

// acceptAssistantFrame reports whether a streaming frame belongs to the
// active response. A frame for an unseen response while idle starts it.
func (e *Engine) acceptAssistantFrame(ctx context.Context, frame events.Frame) bool {
	responseID := frame.CompletedResponseID()
	if e.assistant.accepts(responseID) {
		return true
	}

	switch {
	case e.assistant.active:
		logger.DebugContext(ctx, "ignoring frame for another response", "response_id", responseID, "active_response_id", e.assistant.responseID)
		return false
	case responseID == "" || e.responses.Has(responseID):
		logger.DebugContext(ctx, "ignoring frame for finished response", "response_id", responseID)
		return false
	}

	e.assistant.start(responseID, e.now())
	return true
}

func (e *Engine) onContentPartDone(ctx context.Context, frame events.Frame) {
	if frame.Part == nil || !e.acceptAssistantFrame(ctx, frame) {
		return
	}

	switch frame.Part.Type {
	case "audio", "output_audio":
		e.assistant.settleTranscript(frame.Part.Transcript)
	default:
		e.assistant.settleText(frame.Part.Text)
	}
}

// onCompletion finalizes the assistant turn a completion frame refers to.
// Tool calls are looked for on every completion frame; text finalization
// only happens once per response.
func (e *Engine) onCompletion(ctx context.Context, frame events.Frame) {
	responseID := frame.CompletedResponseID()

	if calls := frame.Response.FunctionCalls(); len(calls) > 0 {
		if e.cancelled.Has(responseID) {
			e.declineToolCalls(ctx, responseID, calls)
			return
		}
		e.executeToolCalls(ctx, calls)
		if e.assistant.accepts(responseID) {
			responseID = e.assistant.responseID
			e.assistant.reset()
		}
		e.responses.TryClaim(responseID)
		return
	}

	switch {
	case e.assistant.accepts(responseID):
	case !e.assistant.active && responseID != "" && !e.responses.Has(responseID):
		e.assistant.start(responseID, e.now())
	default:
		logger.DebugContext(ctx, "ignoring completion for finished response", "response_id", responseID)
		return
	}

	text := e.assistant.resolveText(frame)
	turnID := e.assistant.responseID
	e.assistant.reset()
	e.responses.TryClaim(turnID)

	e.finalizeAssistantTurn(ctx, turnID, text, frame.Response.Citations())
}

// bargeIn discards the active assistant turn locally and asks the session
// to stop, without waiting for an acknowledgement.
func (e *Engine) bargeIn(ctx context.Context, reason string) {
	if !e.assistant.active {
		return
	}

	responseID := e.assistant.responseID
	logger.InfoContext(ctx, "barge-in, cancelling assistant turn", "response_id", responseID, "reason", reason)
	e.assistant.reset()
	e.responses.TryClaim(responseID)
	e.cancelled.TryClaim(responseID)

	_ = e.send(ctx, session.CancelResponse(responseID))
	_ = e.send(ctx, session.ClearOutputAudio())
}

func (e *Engine) onProtocolError(ctx context.Context, frame events.Frame) {
	detail := frame.Error.String()
	logger.ErrorContext(ctx, "session protocol error", "error", detail)

	eventID := frame.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	e.submitSystemRecord(ctx, "error:"+eventID, "session error: "+detail)
}

func (e *Engine) submitSystemRecord(ctx context.Context, eventID, content string) bool {
	return e.sink.Submit(ctx, logsink.NewRecord(logsink.RoleSystem, eventID, content))
}
