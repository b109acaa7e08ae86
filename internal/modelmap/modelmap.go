// Package modelmap resolves client-facing Claude model names to upstream models.
package modelmap

import "strings"

// passthroughPrefixes identify names that already address the upstream provider.
var passthroughPrefixes = []string{"gpt-", "o1", "o3", "o4", "chatgpt-", "ft:"}

// Mapper maps model families onto three configured tiers.
type Mapper struct {
	Big    string
	Middle string
	Small  string
}

// New returns a Mapper. An empty middle tier falls back to big.
func New(big, middle, small string) *Mapper {
	if middle == "" {
		middle = big
	}
	return &Mapper{Big: big, Middle: middle, Small: small}
}

// Map returns the upstream model for model. Upstream model names and configured tier
// models pass through unchanged; haiku, sonnet and opus names select the small,
// middle and big tier; anything else uses the big tier.
func (m *Mapper) Map(model string) string {
	lower := strings.ToLower(model)

	for _, prefix := range passthroughPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return model
		}
	}
	if model == m.Big || model == m.Middle || model == m.Small {
		return model
	}

	switch {
	case strings.Contains(lower, "haiku"):
		return m.Small
	case strings.Contains(lower, "sonnet"):
		return m.Middle
	case strings.Contains(lower, "opus"):
		return m.Big
	default:
		return m.Big
	}
}
