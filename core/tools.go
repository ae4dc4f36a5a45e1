package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/koscakluka/ema-realtime/core/events"
	"github.com/koscakluka/ema-realtime/core/session"
	"github.com/koscakluka/ema-realtime/core/tools"
	"go.opentelemetry.io/otel/attribute"
)

// ToolCall is a deferred invocation requested by the agent.
type ToolCall struct {
	CallID    string
	Name      string
	Arguments map[string]any
}

// toolBatch tracks the calls of one completion whose results are still
// outstanding. The session is asked to continue once all of them answered.
type toolBatch struct {
	outstanding int
}

// executeToolCalls runs every call not executed before. Each call is logged
// before and after execution and always answered, and a batch with at least
// one new call ends with exactly one response.create.
func (e *Engine) executeToolCalls(ctx context.Context, items []events.Item) {
	ctx, span := tracer.Start(ctx, "execute tool calls")
	defer span.End()

	batch := &toolBatch{}
	for _, item := range items {
		if !e.toolCalls.TryClaim(item.CallID) {
			logger.DebugContext(ctx, "ignoring already executed tool call", "call_id", item.CallID, "tool", item.Name)
			continue
		}

		call := ToolCall{
			CallID:    item.CallID,
			Name:      item.Name,
			Arguments: item.Arguments.Map(),
		}
		batch.outstanding++

		e.submitSystemRecord(ctx, "tool-request:"+call.CallID,
			fmt.Sprintf("tool call %s requested: %s", call.Name, describeArguments(call.Arguments)))
		e.emit(toolCallRequested{call: call})

		e.runtime.dispatch(ctx, "execute tool", func(ctx context.Context) func() {
			output, err := e.tools.Execute(ctx, call.Name, call.Arguments)
			return func() { e.completeToolCall(ctx, batch, call, output, err) }
		}, func(err error) {
			e.reportError(ctx, err)
			e.completeToolCall(ctx, batch, call, "", err)
		})
	}
	span.SetAttributes(attribute.Int("tool_calls.executed", batch.outstanding))
}

func (e *Engine) completeToolCall(ctx context.Context, batch *toolBatch, call ToolCall, output string, err error) {
	if err != nil {
		logger.WarnContext(ctx, "tool call failed", "call_id", call.CallID, "tool", call.Name, "error", err)
		e.submitSystemRecord(ctx, "tool-result:"+call.CallID,
			fmt.Sprintf("tool call %s failed: %s", call.Name, describeToolError(err)))
		output = toolErrorOutput(err)
	} else {
		e.submitSystemRecord(ctx, "tool-result:"+call.CallID,
			fmt.Sprintf("tool call %s succeeded: %d bytes", call.Name, len(output)))
	}

	_ = e.send(ctx, session.FunctionCallOutput(call.CallID, output))

	batch.outstanding--
	if batch.outstanding == 0 {
		_ = e.send(ctx, session.CreateResponse())
	}
}

// cancelledToolOutput answers calls of a response the user barged in on.
const cancelledToolOutput = `{"error":"response cancelled"}`

// declineToolCalls answers every new call of a cancelled response without
// executing it. Generation is not continued.
func (e *Engine) declineToolCalls(ctx context.Context, responseID string, items []events.Item) {
	for _, item := range items {
		if !e.toolCalls.TryClaim(item.CallID) {
			continue
		}

		logger.InfoContext(ctx, "declining tool call of cancelled response", "call_id", item.CallID, "tool", item.Name, "response_id", responseID)
		e.submitSystemRecord(ctx, "tool-result:"+item.CallID,
			fmt.Sprintf("tool call %s skipped: response %s cancelled", item.Name, responseID))
		_ = e.send(ctx, session.FunctionCallOutput(item.CallID, cancelledToolOutput))
	}
}

type toolError struct {
	Error  string `json:"error"`
	Status int    `json:"status,omitempty"`
}

func toolErrorOutput(err error) string {
	payload := toolError{Error: describeToolError(err)}
	var statusErr *tools.StatusError
	if errors.As(err, &statusErr) {
		payload.Status = statusErr.StatusCode
	}

	encoded, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return `{"error":"tool call failed"}`
	}
	return string(encoded)
}
