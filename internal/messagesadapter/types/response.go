package types

import (
	"github.com/anthropics/anthropic-sdk-go"
)

// Usage reports token accounting. Cache fields are omitted when zero.
type Usage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens,omitempty"`
}

// MessageResponse is a complete assistant message. StopReason and StopSequence encode
// as null while a streamed message is still open.
type MessageResponse struct {
	ID           string                `json:"id"`
	Type         string                `json:"type"`
	Role         Role                  `json:"role"`
	Model        string                `json:"model"`
	Content      []ContentBlock        `json:"content"`
	StopReason   *anthropic.StopReason `json:"stop_reason"`
	StopSequence *string               `json:"stop_sequence"`
	Usage        Usage                 `json:"usage"`
}

// NewMessageResponse returns an assistant message with the fixed envelope fields set.
func NewMessageResponse(id, model string) *MessageResponse {
	return &MessageResponse{
		ID:      id,
		Type:    "message",
		Role:    RoleAssistant,
		Model:   model,
		Content: []ContentBlock{},
	}
}
