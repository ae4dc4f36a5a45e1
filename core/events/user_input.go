package events

import "strings"

const (
	// KindTranscriptionCompleted identifies a final transcript of user audio.
	KindTranscriptionCompleted Kind = "conversation.item.input_audio_transcription.completed"
	// KindTranscriptionFailed identifies a failed transcription of user audio.
	KindTranscriptionFailed Kind = "conversation.item.input_audio_transcription.failed"
	// KindTranscriptionDelta identifies an interim transcription segment.
	KindTranscriptionDelta Kind = "conversation.item.input_audio_transcription.delta"
	// KindItemCreated identifies a new conversation item.
	KindItemCreated Kind = "conversation.item.created"
	// KindItemAdded is the newer name of KindItemCreated.
	KindItemAdded Kind = "conversation.item.added"
	// KindSpeechStarted identifies server detected start of user speech.
	KindSpeechStarted Kind = "input_audio_buffer.speech_started"
	// KindSpeechStopped identifies server detected end of user speech.
	KindSpeechStopped Kind = "input_audio_buffer.speech_stopped"
	// KindInputCommitted identifies a committed input audio buffer.
	KindInputCommitted Kind = "input_audio_buffer.committed"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Item is a conversation item, used both for conversation.item.* frames and
// for entries of a completed response's output list.
type Item struct {
	ID      string        `json:"id,omitempty"`
	Type    string        `json:"type,omitempty"`
	Role    string        `json:"role,omitempty"`
	Status  string        `json:"status,omitempty"`
	Content []ContentPart `json:"content,omitempty"`

	CallID    string    `json:"call_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Arguments Arguments `json:"arguments,omitempty"`
}

type ContentPart struct {
	Type        string       `json:"type,omitempty"`
	Text        string       `json:"text,omitempty"`
	Transcript  string       `json:"transcript,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// Annotation is a citation attached to output text by a retrieval backed
// capability.
type Annotation struct {
	Type     string `json:"type,omitempty"`
	FileID   string `json:"file_id,omitempty"`
	Filename string `json:"filename,omitempty"`
	Quote    string `json:"quote,omitempty"`
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
}

// Fragments joins the inline transcript or text of every content part.
func (i Item) Fragments() string {
	fragments := []string{}
	for _, part := range i.Content {
		switch {
		case strings.TrimSpace(part.Transcript) != "":
			fragments = append(fragments, strings.TrimSpace(part.Transcript))
		case strings.TrimSpace(part.Text) != "":
			fragments = append(fragments, strings.TrimSpace(part.Text))
		}
	}
	return strings.Join(fragments, " ")
}
