package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ContentBlockType is the discriminant of a ContentBlock.
type ContentBlockType string

const (
	ContentBlockTypeText       ContentBlockType = "text"
	ContentBlockTypeImage      ContentBlockType = "image"
	ContentBlockTypeToolUse    ContentBlockType = "tool_use"
	ContentBlockTypeToolResult ContentBlockType = "tool_result"
)

// ImageSourceType identifies how image bytes are supplied.
type ImageSourceType string

const (
	ImageSourceTypeBase64 ImageSourceType = "base64"
	ImageSourceTypeURL    ImageSourceType = "url"
)

// TextBlock is a plain text segment.
type TextBlock struct {
	Text string `json:"text"`
}

// ImageBlock carries inline base64 data or a reference URL.
type ImageBlock struct {
	Source ImageSource `json:"source"`
}

// ImageSource describes image bytes. MediaType and Data are set for base64 sources,
// URL for url sources.
type ImageSource struct {
	Type      ImageSourceType `json:"type"`
	MediaType string          `json:"media_type,omitempty"`
	Data      string          `json:"data,omitempty"`
	URL       string          `json:"url,omitempty"`
}

// ToolUseBlock is a tool invocation emitted by the model.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultBlock returns the output of a tool invocation to the model.
// Content is kept raw: clients send strings, block arrays or arbitrary JSON.
type ToolResultBlock struct {
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// UnknownBlock preserves a block whose type is not recognized.
type UnknownBlock struct {
	Type string
	Raw  json.RawMessage
}

// ContentBlock is a closed union over the supported block variants.
// Exactly one Of* field is set on a decoded value.
type ContentBlock struct {
	OfText       *TextBlock
	OfImage      *ImageBlock
	OfToolUse    *ToolUseBlock
	OfToolResult *ToolResultBlock
	OfUnknown    *UnknownBlock
}

// NewTextBlock returns a text content block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{OfText: &TextBlock{Text: text}}
}

// NewImageBlock returns a base64 image content block.
func NewImageBlock(mediaType, data string) ContentBlock {
	return ContentBlock{OfImage: &ImageBlock{Source: ImageSource{
		Type:      ImageSourceTypeBase64,
		MediaType: mediaType,
		Data:      data,
	}}}
}

// NewToolUseBlock returns a tool_use content block. A nil input encodes as {}.
func NewToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	return ContentBlock{OfToolUse: &ToolUseBlock{ID: id, Name: name, Input: input}}
}

// AsAny returns the populated variant for use in a type switch.
func (b ContentBlock) AsAny() any {
	switch {
	case b.OfText != nil:
		return b.OfText
	case b.OfImage != nil:
		return b.OfImage
	case b.OfToolUse != nil:
		return b.OfToolUse
	case b.OfToolResult != nil:
		return b.OfToolResult
	case b.OfUnknown != nil:
		return b.OfUnknown
	default:
		return nil
	}
}

// Type returns the block discriminant.
func (b ContentBlock) Type() ContentBlockType {
	switch {
	case b.OfText != nil:
		return ContentBlockTypeText
	case b.OfImage != nil:
		return ContentBlockTypeImage
	case b.OfToolUse != nil:
		return ContentBlockTypeToolUse
	case b.OfToolResult != nil:
		return ContentBlockTypeToolResult
	case b.OfUnknown != nil:
		return ContentBlockType(b.OfUnknown.Type)
	default:
		return ""
	}
}

// UnmarshalJSON decodes a block by its "type" field.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var head struct {
		Type ContentBlockType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("decode content block: %w", err)
	}

	*b = ContentBlock{}
	switch head.Type {
	case ContentBlockTypeText:
		b.OfText = &TextBlock{}
		return json.Unmarshal(data, b.OfText)
	case ContentBlockTypeImage:
		b.OfImage = &ImageBlock{}
		return json.Unmarshal(data, b.OfImage)
	case ContentBlockTypeToolUse:
		b.OfToolUse = &ToolUseBlock{}
		return json.Unmarshal(data, b.OfToolUse)
	case ContentBlockTypeToolResult:
		b.OfToolResult = &ToolResultBlock{}
		return json.Unmarshal(data, b.OfToolResult)
	default:
		b.OfUnknown = &UnknownBlock{Type: string(head.Type), Raw: bytes.Clone(data)}
		return nil
	}
}

// MarshalJSON encodes the populated variant together with its "type" field.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	switch {
	case b.OfText != nil:
		return json.Marshal(struct {
			Type ContentBlockType `json:"type"`
			*TextBlock
		}{ContentBlockTypeText, b.OfText})
	case b.OfImage != nil:
		return json.Marshal(struct {
			Type ContentBlockType `json:"type"`
			*ImageBlock
		}{ContentBlockTypeImage, b.OfImage})
	case b.OfToolUse != nil:
		return json.Marshal(struct {
			Type ContentBlockType `json:"type"`
			*ToolUseBlock
		}{ContentBlockTypeToolUse, b.OfToolUse})
	case b.OfToolResult != nil:
		return json.Marshal(struct {
			Type ContentBlockType `json:"type"`
			*ToolResultBlock
		}{ContentBlockTypeToolResult, b.OfToolResult})
	case b.OfUnknown != nil:
		return b.OfUnknown.Raw, nil
	default:
		return nil, fmt.Errorf("content block has no variant set")
	}
}

// MessageContent is either a plain string or an ordered list of blocks.
type MessageContent struct {
	Text   string
	Blocks []ContentBlock
	// IsBlocks is true when the content was (or should be) encoded as an array.
	IsBlocks bool
}

// TextContent returns string message content.
func TextContent(text string) MessageContent {
	return MessageContent{Text: text}
}

// BlockContent returns array message content.
func BlockContent(blocks ...ContentBlock) MessageContent {
	if blocks == nil {
		blocks = []ContentBlock{}
	}
	return MessageContent{Blocks: blocks, IsBlocks: true}
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	*c = MessageContent{}
	switch firstByte(data) {
	case '"':
		return json.Unmarshal(data, &c.Text)
	case '[':
		c.IsBlocks = true
		c.Blocks = []ContentBlock{}
		return json.Unmarshal(data, &c.Blocks)
	case 'n':
		return nil
	default:
		return fmt.Errorf("message content must be a string or an array of blocks")
	}
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.IsBlocks {
		if c.Blocks == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.Blocks)
	}
	return json.Marshal(c.Text)
}

// SystemPrompt is either a plain string or a list of text blocks.
type SystemPrompt struct {
	Text   string
	Blocks []SystemBlock
}

// SystemBlock is one element of an array-form system prompt. Non-text blocks are
// decoded but carry an empty Text.
type SystemBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	*s = SystemPrompt{}
	switch firstByte(data) {
	case '"':
		return json.Unmarshal(data, &s.Text)
	case '[':
		return json.Unmarshal(data, &s.Blocks)
	case 'n':
		return nil
	default:
		return fmt.Errorf("system must be a string or an array of text blocks")
	}
}

func (s SystemPrompt) MarshalJSON() ([]byte, error) {
	if s.Blocks != nil {
		return json.Marshal(s.Blocks)
	}
	return json.Marshal(s.Text)
}

func firstByte(data []byte) byte {
	data = bytes.TrimLeft(data, " \t\r\n")
	if len(data) == 0 {
		return 0
	}
	return data[0]
}
