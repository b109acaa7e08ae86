package openaichat

// cachePlaceholderText fills a synthesized text part when a cached user message has
// no text of its own.
const cachePlaceholderText = "..."

// markRecentUserMessages attaches an ephemeral cache marker to the last text part of
// each of the final n user messages. String content is promoted to a one-part array.
func markRecentUserMessages(messages []ChatMessage, n int) {
	for i := len(messages) - 1; i >= 0 && n > 0; i-- {
		if messages[i].Role != roleUser {
			continue
		}
		n--

		msg := &messages[i]
		if msg.Content.Parts == nil {
			text := ""
			if msg.Content.Text != nil {
				text = *msg.Content.Text
			}
			msg.Content = PartsOf(ContentPart{Type: partTypeText, Text: text})
		}

		last := -1
		for j, part := range msg.Content.Parts {
			if part.Type == partTypeText {
				last = j
			}
		}
		if last < 0 {
			msg.Content.Parts = append(msg.Content.Parts, ContentPart{Type: partTypeText, Text: cachePlaceholderText})
			last = len(msg.Content.Parts) - 1
		}
		msg.Content.Parts[last].CacheControl = ephemeral()
	}
}
