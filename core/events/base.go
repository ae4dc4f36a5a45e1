package events

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Kind string

// Frame is a decoded inbound session frame. Only fields the engine reads are
// modelled; the original payload is kept in Raw.
type Frame struct {
	Type       Kind   `json:"type"`
	EventID    string `json:"event_id,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	ResponseID string `json:"response_id,omitempty"`

	Delta      string          `json:"delta,omitempty"`
	Text       string          `json:"text,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Content    json.RawMessage `json:"content,omitempty"`

	Item     *Item        `json:"item,omitempty"`
	Part     *ContentPart `json:"part,omitempty"`
	Response *Response    `json:"response,omitempty"`
	Error    *ErrorDetail `json:"error,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Decode parses a single JSON frame. A frame without a type is rejected, any
// other shape is accepted so that new protocol fields never break decoding.
func Decode(data []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Frame{}, fmt.Errorf("failed to decode session frame: %w", err)
	}
	if frame.Type == "" {
		return Frame{}, fmt.Errorf("failed to decode session frame: missing type")
	}

	frame.Raw = append(json.RawMessage(nil), data...)
	return frame, nil
}

func (f Frame) Category() Category { return Classify(f.Type) }

// RawText returns top level text carried by the frame itself: the text or
// transcript field, or content when it is a plain JSON string.
func (f Frame) RawText() string {
	if strings.TrimSpace(f.Text) != "" {
		return f.Text
	}
	if strings.TrimSpace(f.Transcript) != "" {
		return f.Transcript
	}
	if len(f.Content) > 0 {
		var content string
		if err := json.Unmarshal(f.Content, &content); err == nil {
			return content
		}
	}
	return ""
}

// CompletedResponseID returns the id of the response a completion frame
// refers to, if the server sent one.
func (f Frame) CompletedResponseID() string {
	if f.Response != nil && f.Response.ID != "" {
		return f.Response.ID
	}
	return f.ResponseID
}

type ErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Param   string `json:"param,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

func (e *ErrorDetail) String() string {
	if e == nil {
		return "unknown error"
	}

	parts := []string{}
	for _, part := range []string{e.Type, e.Code, e.Message} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "unknown error"
	}
	return strings.Join(parts, ": ")
}
