package openaichat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// toolResultImagePlaceholder replaces images inside tool results, which the tool role
// cannot carry.
const toolResultImagePlaceholder = "(see following user message for image)"

// NormalizeToolResult flattens tool_result content into the plain string a tool message
// carries. The input is a decoded JSON value (nil, string, []any, map[string]any, ...).
func NormalizeToolResult(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			var part string
			switch elem := item.(type) {
			case map[string]any:
				part = normalizeToolResultObject(elem)
			case string:
				part = elem
			default:
				part = stringify(elem)
			}
			if part != "" {
				parts = append(parts, part)
			}
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		if v["type"] == "text" {
			return textField(v)
		}
		return marshalOrStringify(v)
	default:
		if s := stringify(v); s != "" {
			return s
		}
		return "Unparseable content"
	}
}

// normalizeToolResultRaw decodes raw tool_result content before normalizing it.
// Content that is not valid JSON is passed through as text.
func normalizeToolResultRaw(raw json.RawMessage) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ""
	}
	var content any
	if err := json.Unmarshal(raw, &content); err != nil {
		return string(raw)
	}
	return NormalizeToolResult(content)
}

func normalizeToolResultObject(obj map[string]any) string {
	switch obj["type"] {
	case "text":
		return textField(obj)
	case "image":
		return toolResultImagePlaceholder
	}
	if _, ok := obj["text"]; ok {
		return textField(obj)
	}
	return marshalOrStringify(obj)
}

func textField(obj map[string]any) string {
	switch text := obj["text"].(type) {
	case string:
		return text
	case nil:
		return ""
	default:
		return stringify(text)
	}
}

func marshalOrStringify(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return stringify(v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// stringify renders scalars the way they appear in JSON text (1, 2.5, true) rather
// than with Go's %v float formatting.
func stringify(v any) string {
	switch s := v.(type) {
	case float64, bool, json.Number:
		b, err := json.Marshal(s)
		if err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}
