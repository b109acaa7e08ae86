package openaichat

import (
	"strings"

	"github.com/florianilch/msgbridge/internal/messagesadapter/types"
)

// fromTools converts tool definitions to function tools. Tools without a usable name
// are skipped; a nil result omits the tools field.
func fromTools(tools []types.Tool) []ChatTool {
	var chatTools []ChatTool
	for _, tool := range tools {
		if strings.TrimSpace(tool.Name) == "" {
			continue
		}
		chatTools = append(chatTools, ChatTool{
			Type: toolTypeFunction,
			Function: FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}
	return chatTools
}

// fromToolChoice maps tool_choice. "any" has no strict upstream equivalent and
// degrades to "auto", as do unrecognized values.
func fromToolChoice(choice types.ToolChoice) any {
	switch choice.Type {
	case types.ToolChoiceTypeAuto, types.ToolChoiceTypeAny:
		return "auto"
	case types.ToolChoiceTypeTool:
		if choice.Name == "" {
			return "auto"
		}
		named := NamedToolChoice{Type: toolTypeFunction}
		named.Function.Name = choice.Name
		return named
	default:
		return "auto"
	}
}
