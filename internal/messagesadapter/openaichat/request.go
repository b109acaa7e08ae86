package openaichat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/florianilch/msgbridge/internal/messagesadapter/types"
)

// ModelMapper resolves a client-facing model name to the upstream model.
type ModelMapper interface {
	Map(model string) string
}

// ConvertOptions are the read-only limits and feature flags applied during conversion.
type ConvertOptions struct {
	PromptCache bool
	MinTokens   int
	MaxTokens   int
}

// ConvertRequest transforms a Messages request into a Chat Completions request.
// The client request is not modified.
func ConvertRequest(
	clientReq types.CreateMessageRequest,
	models ModelMapper,
	opts ConvertOptions,
) (*ChatRequest, error) {
	messages := make([]ChatMessage, 0, len(clientReq.Messages)+1)
	for i, msg := range clientReq.Messages {
		converted, err := fromMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("convert message %d: %w", i, err)
		}
		messages = append(messages, converted...)
	}

	if system := systemText(clientReq.System); system != "" {
		systemMsg := ChatMessage{Role: roleSystem, Content: TextOf(system)}
		if opts.PromptCache {
			systemMsg.Content = PartsOf(ContentPart{
				Type:         partTypeText,
				Text:         system,
				CacheControl: ephemeral(),
			})
		}
		messages = append([]ChatMessage{systemMsg}, messages...)
	}

	if opts.PromptCache {
		markRecentUserMessages(messages, 2)
	}

	chatReq := &ChatRequest{
		Model:       models.Map(clientReq.Model),
		Messages:    messages,
		MaxTokens:   clampMaxTokens(clientReq.MaxTokens, opts.MinTokens, opts.MaxTokens),
		Temperature: clientReq.Temperature,
		TopP:        clientReq.TopP,
		Stream:      clientReq.Stream,
	}

	if len(clientReq.StopSequences) > 0 {
		chatReq.Stop = clientReq.StopSequences
	}

	chatReq.Tools = fromTools(clientReq.Tools)
	if clientReq.ToolChoice != nil {
		chatReq.ToolChoice = fromToolChoice(*clientReq.ToolChoice)
	}

	return chatReq, nil
}

// clampMaxTokens bounds the requested output size to the configured window.
func clampMaxTokens(requested, minLimit, maxLimit int) int {
	return min(max(requested, minLimit), maxLimit)
}

// systemText flattens the system prompt. Array prompts join their text blocks with a
// blank line. The result is trimmed; an empty result means no system message.
func systemText(system *types.SystemPrompt) string {
	if system == nil {
		return ""
	}
	if system.Blocks == nil {
		return strings.TrimSpace(system.Text)
	}

	parts := make([]string, 0, len(system.Blocks))
	for _, block := range system.Blocks {
		if block.Type == string(types.ContentBlockTypeText) {
			parts = append(parts, block.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

// fromMessage converts one turn. A user turn may expand into several target messages
// because every tool result becomes its own tool message.
func fromMessage(msg types.Message) ([]ChatMessage, error) {
	if !msg.Content.IsBlocks {
		return []ChatMessage{{Role: string(msg.Role), Content: TextOf(msg.Content.Text)}}, nil
	}

	switch msg.Role {
	case types.RoleUser:
		return fromUserBlocks(msg.Content.Blocks), nil
	case types.RoleAssistant:
		assistant, err := fromAssistantBlocks(msg.Content.Blocks)
		if err != nil {
			return nil, err
		}
		return []ChatMessage{assistant}, nil
	default:
		return nil, fmt.Errorf("unsupported role %q", msg.Role)
	}
}

// fromUserBlocks emits tool messages first, then one user message with the remaining
// text and images. Tool results must directly follow the assistant tool calls they
// answer, so this order wins over the original block order.
func fromUserBlocks(blocks []types.ContentBlock) []ChatMessage {
	var (
		toolMessages []ChatMessage
		rest         []types.ContentBlock
	)

	for _, block := range blocks {
		switch v := block.AsAny().(type) {
		case *types.ToolResultBlock:
			toolMessages = append(toolMessages, ChatMessage{
				Role:       roleTool,
				ToolCallID: v.ToolUseID,
				Content:    TextOf(normalizeToolResultRaw(v.Content)),
			})
		case *types.TextBlock, *types.ImageBlock:
			rest = append(rest, block)
		case *types.ToolUseBlock, *types.UnknownBlock:
			// Not representable on a user turn
		}
	}

	messages := toolMessages
	if len(rest) > 0 {
		messages = append(messages, ChatMessage{Role: roleUser, Content: fromContentBlocks(rest)})
	}
	return messages
}

// fromAssistantBlocks concatenates text and converts tool_use blocks to tool calls.
// Images are dropped: assistant messages cannot carry them upstream.
func fromAssistantBlocks(blocks []types.ContentBlock) (ChatMessage, error) {
	msg := ChatMessage{Role: roleAssistant}

	var (
		text    strings.Builder
		hasText bool
	)
	for _, block := range blocks {
		switch v := block.AsAny().(type) {
		case *types.TextBlock:
			text.WriteString(v.Text)
			hasText = true
		case *types.ToolUseBlock:
			arguments, err := toolArguments(v.Input)
			if err != nil {
				return ChatMessage{}, fmt.Errorf("encode input of tool_use %s: %w", v.ID, err)
			}
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:   v.ID,
				Type: toolTypeFunction,
				Function: FunctionCall{
					Name:      v.Name,
					Arguments: arguments,
				},
			})
		case *types.ImageBlock, *types.ToolResultBlock, *types.UnknownBlock:
			// Not representable on an assistant turn
		}
	}

	if hasText {
		msg.Content = TextOf(text.String())
	}
	return msg, nil
}

// toolArguments renders tool input as the JSON string the target expects, keeping the
// client's key order.
func toolArguments(input json.RawMessage) (string, error) {
	if len(bytes.TrimSpace(input)) == 0 {
		return "{}", nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, input); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fromContentBlocks builds user content from text and image blocks. A lone text part
// collapses to a plain string.
func fromContentBlocks(blocks []types.ContentBlock) Content {
	parts := make([]ContentPart, 0, len(blocks))
	for _, block := range blocks {
		switch v := block.AsAny().(type) {
		case *types.TextBlock:
			parts = append(parts, ContentPart{Type: partTypeText, Text: v.Text})
		case *types.ImageBlock:
			if part, ok := fromImageBlock(v); ok {
				parts = append(parts, part)
			}
		}
	}

	switch {
	case len(parts) == 0:
		return TextOf("")
	case len(parts) == 1 && parts[0].Type == partTypeText:
		return TextOf(parts[0].Text)
	default:
		return PartsOf(parts...)
	}
}

// fromImageBlock converts base64 images to data URLs. URL-sourced or incomplete images
// have no upstream equivalent in this path and are dropped.
func fromImageBlock(image *types.ImageBlock) (ContentPart, bool) {
	src := image.Source
	if src.Type != types.ImageSourceTypeBase64 || src.MediaType == "" || src.Data == "" {
		return ContentPart{}, false
	}
	return ContentPart{
		Type:     partTypeImageURL,
		ImageURL: &ImageURL{URL: "data:" + src.MediaType + ";base64," + src.Data},
	}, true
}
