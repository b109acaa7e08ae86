package openaichat

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Chat Completions wire types. Only the fields this adapter reads or writes are modeled;
// decoding is lenient so that upstream extensions pass without errors.

const (
	roleSystem    = "system"
	roleUser      = "user"
	roleAssistant = "assistant"
	roleTool      = "tool"

	partTypeText     = "text"
	partTypeImageURL = "image_url"

	toolTypeFunction = "function"
)

// CacheControl marks a content part as eligible for prompt caching.
type CacheControl struct {
	Type string `json:"type"`
}

func ephemeral() *CacheControl {
	return &CacheControl{Type: "ephemeral"}
}

// ImageURL references an image by URL or data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// ContentPart is one element of array-form message content.
type ContentPart struct {
	Type         string
	Text         string
	ImageURL     *ImageURL
	CacheControl *CacheControl

	raw json.RawMessage
}

func (p ContentPart) MarshalJSON() ([]byte, error) {
	switch p.Type {
	case partTypeText:
		return json.Marshal(struct {
			Type         string        `json:"type"`
			Text         string        `json:"text"`
			CacheControl *CacheControl `json:"cache_control,omitempty"`
		}{p.Type, p.Text, p.CacheControl})
	case partTypeImageURL:
		return json.Marshal(struct {
			Type         string        `json:"type"`
			ImageURL     *ImageURL     `json:"image_url"`
			CacheControl *CacheControl `json:"cache_control,omitempty"`
		}{p.Type, p.ImageURL, p.CacheControl})
	default:
		if p.raw != nil {
			return p.raw, nil
		}
		return nil, fmt.Errorf("unsupported content part type %q", p.Type)
	}
}

func (p *ContentPart) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type         string        `json:"type"`
		Text         string        `json:"text"`
		ImageURL     *ImageURL     `json:"image_url"`
		CacheControl *CacheControl `json:"cache_control"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*p = ContentPart{
		Type:         wire.Type,
		Text:         wire.Text,
		ImageURL:     wire.ImageURL,
		CacheControl: wire.CacheControl,
		raw:          bytes.Clone(data),
	}
	return nil
}

// String renders the part as it was received, for placeholder text.
func (p ContentPart) String() string {
	if p.raw != nil {
		return string(p.raw)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("%+v", struct{ Type, Text string }{p.Type, p.Text})
	}
	return string(b)
}

// Content is message content: a string, an array of parts, or null.
// Other is set when an upstream response carries any other JSON shape.
type Content struct {
	Text  *string
	Parts []ContentPart
	Other json.RawMessage
}

// TextOf returns string content.
func TextOf(s string) Content {
	return Content{Text: &s}
}

// PartsOf returns array content.
func PartsOf(parts ...ContentPart) Content {
	if parts == nil {
		parts = []ContentPart{}
	}
	return Content{Parts: parts}
}

// IsNull reports whether the content encodes as null.
func (c Content) IsNull() bool {
	return c.Text == nil && c.Parts == nil && c.Other == nil
}

func (c Content) MarshalJSON() ([]byte, error) {
	switch {
	case c.Parts != nil:
		return json.Marshal(c.Parts)
	case c.Text != nil:
		return json.Marshal(*c.Text)
	case c.Other != nil:
		return c.Other, nil
	default:
		return []byte("null"), nil
	}
}

func (c *Content) UnmarshalJSON(data []byte) error {
	*c = Content{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	switch trimmed[0] {
	case 'n':
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		c.Text = &s
		return nil
	case '[':
		c.Parts = []ContentPart{}
		if err := json.Unmarshal(trimmed, &c.Parts); err != nil {
			// Arrays of non-objects are rendered as-is rather than rejected.
			c.Parts = nil
			c.Other = bytes.Clone(trimmed)
		}
		return nil
	default:
		c.Other = bytes.Clone(trimmed)
		return nil
	}
}

// FunctionCall is the function part of a tool call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a complete tool call on an assistant message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// ChatMessage is one element of the messages array.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    Content    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// FunctionDefinition describes a callable function.
type FunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ChatTool is an entry of the tools array.
type ChatTool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// NamedToolChoice forces a specific function.
type NamedToolChoice struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

// StreamOptions configures streaming responses.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// ChatRequest is the body of POST /chat/completions.
// ToolChoice holds either the string "auto" or a NamedToolChoice.
type ChatRequest struct {
	Model         string         `json:"model"`
	Messages      []ChatMessage  `json:"messages"`
	MaxTokens     int            `json:"max_tokens"`
	Temperature   *float64       `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	Stop          []string       `json:"stop,omitempty"`
	Tools         []ChatTool     `json:"tools,omitempty"`
	ToolChoice    any            `json:"tool_choice,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
}

// TokenDetails breaks down prompt tokens.
type TokenDetails struct {
	CachedTokens int64 `json:"cached_tokens"`
}

// ChatUsage accepts both the prompt/completion and the input/output naming, plus the
// cache fields some compatible backends report directly.
type ChatUsage struct {
	PromptTokens             *int64        `json:"prompt_tokens"`
	CompletionTokens         *int64        `json:"completion_tokens"`
	InputTokens              *int64        `json:"input_tokens"`
	OutputTokens             *int64        `json:"output_tokens"`
	CacheCreationInputTokens *int64        `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     *int64        `json:"cache_read_input_tokens"`
	PromptTokensDetails      *TokenDetails `json:"prompt_tokens_details"`
	InputTokensDetails       *TokenDetails `json:"input_tokens_details"`
}

// Choice is a non-streaming completion choice.
type Choice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason *string     `json:"finish_reason"`
}

// ChatCompletion is a non-streaming response.
type ChatCompletion struct {
	ID      string     `json:"id"`
	Model   string     `json:"model"`
	Choices []Choice   `json:"choices"`
	Usage   *ChatUsage `json:"usage"`
}

// ToolCallDelta is a fragment of a tool call within a stream chunk.
type ToolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

// ChunkDelta is the incremental message of a stream chunk.
type ChunkDelta struct {
	Role      string          `json:"role,omitempty"`
	Content   *string         `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ChunkChoice is a streaming completion choice.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChatCompletionChunk is one streamed event payload.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *ChatUsage    `json:"usage"`
}
