package types

import (
	"encoding/json"
)

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    Role           `json:"role" validate:"required,oneof=user assistant"`
	Content MessageContent `json:"content"`
}

// Tool describes a function the model may call.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// ToolChoiceType enumerates the tool_choice modes.
type ToolChoiceType string

const (
	ToolChoiceTypeAuto ToolChoiceType = "auto"
	ToolChoiceTypeAny  ToolChoiceType = "any"
	ToolChoiceTypeTool ToolChoiceType = "tool"
	ToolChoiceTypeNone ToolChoiceType = "none"
)

// ToolChoice constrains tool selection. Unrecognized shapes decode to the zero value
// instead of failing the request.
type ToolChoice struct {
	Type ToolChoiceType `json:"type"`
	Name string         `json:"name,omitempty"`
}

func (t *ToolChoice) UnmarshalJSON(data []byte) error {
	*t = ToolChoice{}
	switch firstByte(data) {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			t.Type = ToolChoiceType(s)
		}
	case '{':
		type plain ToolChoice
		var p plain
		if err := json.Unmarshal(data, &p); err == nil {
			*t = ToolChoice(p)
		}
	}
	return nil
}

// CreateMessageRequest is the body of POST /v1/messages.
type CreateMessageRequest struct {
	Model         string        `json:"model" validate:"required"`
	Messages      []Message     `json:"messages" validate:"required,min=1,dive"`
	System        *SystemPrompt `json:"system,omitempty"`
	MaxTokens     int           `json:"max_tokens" validate:"gte=0"`
	Temperature   *float64      `json:"temperature,omitempty"`
	TopP          *float64      `json:"top_p,omitempty"`
	StopSequences []string      `json:"stop_sequences,omitempty"`
	Tools         []Tool        `json:"tools,omitempty"`
	ToolChoice    *ToolChoice   `json:"tool_choice,omitempty"`
	Stream        bool          `json:"stream,omitempty"`
}
