package events

import (
	"bytes"
	"encoding/json"
)

// Arguments holds tool call arguments as sent by the server: either a JSON
// encoded string or an inline JSON object.
type Arguments json.RawMessage

func (a *Arguments) UnmarshalJSON(data []byte) error {
	*a = append((*a)[:0], data...)
	return nil
}

func (a Arguments) MarshalJSON() ([]byte, error) {
	if len(a) == 0 {
		return []byte("null"), nil
	}
	return a, nil
}

// String returns the arguments as a JSON document, unwrapping the string
// encoded form.
func (a Arguments) String() string {
	trimmed := bytes.TrimSpace(a)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var unwrapped string
		if err := json.Unmarshal(trimmed, &unwrapped); err == nil {
			return unwrapped
		}
	}
	return string(trimmed)
}

// Map parses the arguments into an object. Invalid or absent JSON yields an
// empty map, never an error.
func (a Arguments) Map() map[string]any {
	parsed := map[string]any{}
	if err := json.Unmarshal([]byte(a.String()), &parsed); err != nil || parsed == nil {
		return map[string]any{}
	}
	return parsed
}
