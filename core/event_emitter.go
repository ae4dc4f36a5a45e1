package orchestration

type notification any

type (
	userTurnSet           struct{ turn UserTurn }
	assistantTurnLogged   struct{ turn AssistantTurn }
	assistantDeltaArrived struct{ delta string }
	toolCallRequested     struct{ call ToolCall }
	engineFailed          struct{ err error }
)

type emitter func(notification)

func noopEmitter(notification) {}

func newCallbackEmitter(opts StartOptions) emitter {
	return func(n notification) {
		switch typed := n.(type) {
		case userTurnSet:
			if opts.onUserTurn != nil {
				opts.onUserTurn(typed.turn)
			}
		case assistantTurnLogged:
			if opts.onAssistantTurn != nil {
				opts.onAssistantTurn(typed.turn)
			}
		case assistantDeltaArrived:
			if opts.onAssistantDelta != nil {
				opts.onAssistantDelta(typed.delta)
			}
		case toolCallRequested:
			if opts.onToolCall != nil {
				opts.onToolCall(typed.call)
			}
		case engineFailed:
			if opts.onError != nil {
				opts.onError(typed.err)
			}
		}
	}
}
