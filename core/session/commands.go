// Package session holds the outbound side of the hosted session protocol:
// the commands this client sends and the websocket transport that carries
// them.
package session

import (
	"github.com/invopop/jsonschema"
	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-realtime/core/tools"
	"github.com/koscakluka/ema-realtime/internal/utils"
)

type CommandType string

const (
	CommandConversationItemCreate CommandType = "conversation.item.create"
	CommandResponseCreate         CommandType = "response.create"
	CommandResponseCancel         CommandType = "response.cancel"
	CommandInputAudioBufferCommit CommandType = "input_audio_buffer.commit"
	CommandInputAudioBufferClear  CommandType = "input_audio_buffer.clear"
	CommandOutputAudioBufferClear CommandType = "output_audio_buffer.clear"
	CommandSessionUpdate          CommandType = "session.update"
)

// Command is a single outbound frame. Only the fields relevant to its Type
// are set.
type Command struct {
	Type       CommandType `json:"type"`
	EventID    string      `json:"event_id,omitempty"`
	ResponseID string      `json:"response_id,omitempty"`
	Item       *Item       `json:"item,omitempty"`
	Session    *Config     `json:"session,omitempty"`
}

type ItemType string

const (
	ItemTypeMessage            ItemType = "message"
	ItemTypeFunctionCallOutput ItemType = "function_call_output"
)

type Item struct {
	Type    ItemType      `json:"type"`
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
	CallID  string        `json:"call_id,omitempty"`
	// Output is always sent on function_call_output items, even when empty.
	Output  *string       `json:"output,omitempty"`
}

type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// UserMessage creates a typed user message conversation item.
func UserMessage(text string) Command {
	return Command{
		Type: CommandConversationItemCreate,
		Item: &Item{
			Type:    ItemTypeMessage,
			Role:    "user",
			Content: []ContentPart{{Type: "input_text", Text: text}},
		},
	}
}

// FunctionCallOutput answers the outstanding function call callID.
func FunctionCallOutput(callID, output string) Command {
	return Command{
		Type: CommandConversationItemCreate,
		Item: &Item{
			Type:   ItemTypeFunctionCallOutput,
			CallID: callID,
			Output: utils.Ptr(output),
		},
	}
}

func CreateResponse() Command { return Command{Type: CommandResponseCreate} }

func CancelResponse(responseID string) Command {
	return Command{Type: CommandResponseCancel, ResponseID: responseID}
}

func CommitInput() Command { return Command{Type: CommandInputAudioBufferCommit} }

func ClearInput() Command { return Command{Type: CommandInputAudioBufferClear} }

func ClearOutputAudio() Command { return Command{Type: CommandOutputAudioBufferClear} }

type TurnDetectionMode string

const (
	TurnDetectionServerVAD   TurnDetectionMode = "server_vad"
	TurnDetectionSemanticVAD TurnDetectionMode = "semantic_vad"
	TurnDetectionNone        TurnDetectionMode = "none"
)

type TurnDetection struct {
	Type TurnDetectionMode `json:"type"`
}

// Config is the body of a session.update command. A nil TurnDetection is
// sent as null, which disables server side turn detection.
type Config struct {
	Instructions  string         `json:"instructions,omitempty"`
	Voice         string         `json:"voice,omitempty"`
	TurnDetection *TurnDetection `json:"turn_detection"`
	Tools         []ToolSpec     `json:"tools"`
	ToolChoice    string         `json:"tool_choice,omitempty"`
}

type ToolSpec struct {
	Type        string             `json:"type"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

// NewConfig builds a session configuration advertising the given tools.
func NewConfig(instructions, voice string, mode TurnDetectionMode, available []tools.Tool) Config {
	config := Config{
		Instructions: instructions,
		Voice:        voice,
		Tools:        ToolManifest(available),
	}
	if mode != "" && mode != TurnDetectionNone {
		config.TurnDetection = &TurnDetection{Type: mode}
	}
	if len(config.Tools) > 0 {
		config.ToolChoice = "auto"
	}
	return config
}

func UpdateSession(config Config) Command {
	return Command{Type: CommandSessionUpdate, Session: &config}
}

// ToolManifest converts tool definitions into their wire form.
func ToolManifest(available []tools.Tool) []ToolSpec {
	specs := []ToolSpec{}
	if len(available) == 0 {
		return specs
	}

	copier.Copy(&specs, available)
	for i := range specs {
		specs[i].Type = "function"
	}
	return specs
}
