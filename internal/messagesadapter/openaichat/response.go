package openaichat

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"github.com/florianilch/msgbridge/internal/messagesadapter/types"
)

// ConvertResponse transforms a non-streaming completion into a Messages response.
// Only the first choice is used. The model is echoed from the client request.
func ConvertResponse(completion *ChatCompletion, clientModel string, promptCache bool) (*types.MessageResponse, error) {
	if completion == nil || len(completion.Choices) == 0 {
		return nil, &NoChoicesError{}
	}
	choice := completion.Choices[0]

	id := completion.ID
	if id == "" {
		id = "msg_" + uuid.NewString()
	}

	resp := types.NewMessageResponse(id, clientModel)
	resp.Content = append(resp.Content, fromChatContent(choice.Message.Content)...)
	resp.Content = append(resp.Content, fromToolCalls(choice.Message.ToolCalls)...)

	if len(resp.Content) == 0 {
		resp.Content = append(resp.Content, types.NewTextBlock(""))
	}

	stopReason := toStopReason(choice.FinishReason)
	resp.StopReason = &stopReason
	resp.Usage = toUsage(completion.Usage, promptCache)

	return resp, nil
}

// fromChatContent converts response content to blocks. Parts that cannot be mapped are
// rendered as text rather than dropped.
func fromChatContent(content Content) []types.ContentBlock {
	switch {
	case content.Text != nil:
		return []types.ContentBlock{types.NewTextBlock(*content.Text)}
	case content.Parts != nil:
		blocks := make([]types.ContentBlock, 0, len(content.Parts))
		for _, part := range content.Parts {
			switch part.Type {
			case partTypeText:
				if part.Text != "" {
					blocks = append(blocks, types.NewTextBlock(part.Text))
				}
			case partTypeImageURL:
				blocks = append(blocks, fromImageURL(part.ImageURL))
			default:
				blocks = append(blocks, types.NewTextBlock(part.String()))
			}
		}
		return blocks
	case content.Other != nil:
		return []types.ContentBlock{types.NewTextBlock(string(content.Other))}
	default:
		return nil
	}
}

// fromImageURL turns data URLs back into base64 image blocks. Remote URLs and
// unparseable data URLs become text placeholders.
func fromImageURL(image *ImageURL) types.ContentBlock {
	if image == nil {
		return types.NewTextBlock("[Image content]")
	}
	if !strings.HasPrefix(image.URL, "data:") {
		return types.NewTextBlock("[Image: " + image.URL + "]")
	}

	mediaType, data, ok := parseDataURL(image.URL)
	if !ok {
		return types.NewTextBlock("[Image content]")
	}
	return types.NewImageBlock(mediaType, data)
}

// parseDataURL splits "data:<media-type>;base64,<data>".
func parseDataURL(url string) (mediaType, data string, ok bool) {
	header, data, found := strings.Cut(url, ",")
	if !found {
		return "", "", false
	}
	header = strings.TrimPrefix(header, "data:")
	mediaType, _, _ = strings.Cut(header, ";")
	if mediaType == "" {
		return "", "", false
	}
	return mediaType, data, true
}

// fromToolCalls converts function tool calls to tool_use blocks. Missing arguments
// become an empty object; arguments that are not valid JSON are preserved under
// raw_arguments.
func fromToolCalls(toolCalls []ToolCall) []types.ContentBlock {
	var blocks []types.ContentBlock
	for _, call := range toolCalls {
		if call.Type != "" && call.Type != toolTypeFunction {
			continue
		}

		id := call.ID
		if id == "" {
			id = newToolUseID()
		}
		blocks = append(blocks, types.NewToolUseBlock(id, call.Function.Name, decodeArguments(call.Function.Arguments)))
	}
	return blocks
}

func decodeArguments(arguments string) json.RawMessage {
	if strings.TrimSpace(arguments) == "" {
		return json.RawMessage("{}")
	}
	if json.Valid([]byte(arguments)) {
		return json.RawMessage(arguments)
	}
	raw, _ := json.Marshal(map[string]string{"raw_arguments": arguments})
	return raw
}

// toStopReason maps finish_reason to stop_reason. Unknown or missing reasons end the
// turn normally.
func toStopReason(finishReason *string) anthropic.StopReason {
	if finishReason == nil {
		return anthropic.StopReasonEndTurn
	}
	switch *finishReason {
	case "stop":
		return anthropic.StopReasonEndTurn
	case "length":
		return anthropic.StopReasonMaxTokens
	case "tool_calls", "function_call":
		return anthropic.StopReasonToolUse
	default:
		return anthropic.StopReasonEndTurn
	}
}

// newToolUseID generates a fallback tool_use id (format: toolu_<uuid>).
func newToolUseID() string {
	return "toolu_" + uuid.NewString()
}

// newStreamMessageID generates a message id for streams (format: msg_<24 hex chars>).
func newStreamMessageID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
	}
	return "msg_" + hex.EncodeToString(b)
}
