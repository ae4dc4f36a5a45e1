package orchestration

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/koscakluka/ema-realtime/core/events"
)

// InaudibleTranscript replaces transcripts that carried no words.
const InaudibleTranscript = "[inaudible]"

// UserTurn is the pending user utterance waiting for the assistant's reply.
type UserTurn struct {
	Content   string
	EventID   string
	Timestamp int64
}

func newUserTurn(eventID, content string, now time.Time) UserTurn {
	return UserTurn{
		Content:   content,
		EventID:   eventID,
		Timestamp: now.UnixMilli(),
	}
}

func normalizeTranscript(transcript string) string {
	if strings.TrimSpace(transcript) == "" {
		return InaudibleTranscript
	}
	return strings.TrimSpace(transcript)
}

// AssistantTurn is a finalized assistant reply.
type AssistantTurn struct {
	Content   string
	EventID   string
	PairID    string
	Timestamp int64
	Citations []events.Annotation
}

// assistantTurnState accumulates one in-flight assistant response. The zero
// value is the idle state.
type assistantTurnState struct {
	active          bool
	responseID      string
	textBuffer      string
	audioTranscript string
	startTime       time.Time
}

func (s *assistantTurnState) start(responseID string, now time.Time) {
	s.reset()
	s.active = true
	s.responseID = responseID
	s.startTime = now
}

func (s *assistantTurnState) reset() { *s = assistantTurnState{} }

// accepts reports whether a frame for responseID belongs to the active
// response. Frames without a response id are attributed to it.
func (s *assistantTurnState) accepts(responseID string) bool {
	return s.active && (responseID == "" || s.responseID == "" || responseID == s.responseID)
}

func (s *assistantTurnState) appendText(delta string)       { s.textBuffer += delta }
func (s *assistantTurnState) appendTranscript(delta string) { s.audioTranscript += delta }

// settleText replaces the text buffer with a done payload, but only when the
// payload is strictly longer than what the deltas already built.
func (s *assistantTurnState) settleText(done string) {
	s.textBuffer = longer(s.textBuffer, done)
}

func (s *assistantTurnState) settleTranscript(done string) {
	s.audioTranscript = longer(s.audioTranscript, done)
}

func longer(accumulated, done string) string {
	if utf8.RuneCountInString(done) > utf8.RuneCountInString(accumulated) {
		return done
	}
	return accumulated
}

// resolveText picks the final text of a completed response from, in order,
// the text buffer, the audio transcript buffer, the structured output of
// the completion frame and any raw text on the frame itself.
func (s *assistantTurnState) resolveText(completion events.Frame) string {
	candidates := []func() string{
		func() string { return s.textBuffer },
		func() string { return s.audioTranscript },
		func() string { return completion.Response.Text() },
		completion.RawText,
	}
	for _, candidate := range candidates {
		if text := candidate(); strings.TrimSpace(text) != "" {
			return text
		}
	}
	return ""
}
