package orchestration

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-realtime/core/events"
	"github.com/koscakluka/ema-realtime/core/logsink"
)

// finalizeAssistantTurn logs a finalized reply, paired with the pending user
// turn when there is one. A reply without recoverable text is logged as a
// diagnostic and leaves the pending user turn in place.
func (e *Engine) finalizeAssistantTurn(ctx context.Context, responseID, text string, citations []events.Annotation) {
	if strings.TrimSpace(text) == "" {
		logger.WarnContext(ctx, "assistant turn finished without recoverable text", "response_id", responseID)
		e.submitSystemRecord(ctx, "empty-response:"+responseID,
			"assistant response "+responseID+" finished without recoverable text")
		return
	}

	turn := AssistantTurn{
		Content:   text,
		EventID:   responseID,
		Timestamp: e.now().UnixMilli(),
		Citations: citations,
	}
	assistantRecord := logsink.NewRecord(logsink.RoleAssistant, responseID, text)
	assistantRecord.Timestamp = turn.Timestamp

	if pending := e.pendingUser; pending != nil {
		turn.PairID = uuid.NewString()
		userRecord := logsink.NewRecord(logsink.RoleUser, pending.EventID, pending.Content)
		userRecord.Timestamp = pending.Timestamp
		userRecord.PairID = turn.PairID
		assistantRecord.PairID = turn.PairID
		e.pendingUser = nil

		e.sink.Submit(ctx, userRecord)
	} else {
		logger.WarnContext(ctx, "orphaned assistant turn, no pending user turn", "response_id", responseID)
	}

	if e.sink.Submit(ctx, assistantRecord) {
		e.assistantEvents[responseID] = struct{}{}
	}
	e.emit(assistantTurnLogged{turn: turn})
}
