package events

import "strings"

const (
	// KindResponseCreated identifies the start of a response.
	KindResponseCreated Kind = "response.created"
	// KindTextDelta identifies a streamed text segment.
	KindTextDelta Kind = "response.text.delta"
	// KindOutputTextDelta is the newer name of KindTextDelta.
	KindOutputTextDelta Kind = "response.output_text.delta"
	// KindTextDone identifies the full text of a content part.
	KindTextDone Kind = "response.text.done"
	// KindOutputTextDone is the newer name of KindTextDone.
	KindOutputTextDone Kind = "response.output_text.done"
	// KindAudioTranscriptDelta identifies a streamed spoken reply segment.
	KindAudioTranscriptDelta Kind = "response.audio_transcript.delta"
	// KindOutputAudioTranscriptDelta is the newer name of KindAudioTranscriptDelta.
	KindOutputAudioTranscriptDelta Kind = "response.output_audio_transcript.delta"
	// KindAudioTranscriptDone identifies the full spoken reply transcript.
	KindAudioTranscriptDone Kind = "response.audio_transcript.done"
	// KindOutputAudioTranscriptDone is the newer name of KindAudioTranscriptDone.
	KindOutputAudioTranscriptDone Kind = "response.output_audio_transcript.done"
	// KindContentPartAdded identifies a new content part of a response.
	KindContentPartAdded Kind = "response.content_part.added"
	// KindContentPartDone identifies a finished content part of a response.
	KindContentPartDone Kind = "response.content_part.done"
	// KindResponseDone identifies a finished response.
	KindResponseDone Kind = "response.done"
	// KindResponseCompleted identifies a finished response on servers that
	// use the responses naming. It may follow response.done for the same
	// response.
	KindResponseCompleted Kind = "response.completed"
	// KindError identifies a protocol error.
	KindError Kind = "error"
)

type Response struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
	Output []Item `json:"output,omitempty"`
}

// Text walks the structured output list and joins every nested text or
// audio transcript field of message items.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}

	texts := []string{}
	for _, item := range r.Output {
		if item.Type != "" && item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			switch {
			case strings.TrimSpace(part.Text) != "":
				texts = append(texts, part.Text)
			case strings.TrimSpace(part.Transcript) != "":
				texts = append(texts, part.Transcript)
			}
		}
	}
	return strings.Join(texts, "\n")
}

// Citations returns every annotation attached to message output.
func (r *Response) Citations() []Annotation {
	if r == nil {
		return nil
	}

	var citations []Annotation
	for _, item := range r.Output {
		for _, part := range item.Content {
			citations = append(citations, part.Annotations...)
		}
	}
	return citations
}

// FunctionCalls returns output entries that request a deferred tool
// invocation: anything carrying both a call id and a tool name.
func (r *Response) FunctionCalls() []Item {
	if r == nil {
		return nil
	}

	var calls []Item
	for _, item := range r.Output {
		if item.CallID != "" && item.Name != "" {
			calls = append(calls, item)
		}
	}
	return calls
}
