package openaichat

import (
	"github.com/florianilch/msgbridge/internal/messagesadapter/types"
)

// toUsage converts upstream usage to Messages usage. Both the prompt/completion and
// the input/output naming are accepted, preferring input/output when present.
//
// Cache accounting is only reported with prompt caching enabled. Direct cache fields
// win; a missing or zero cache read count falls back to the first non-zero cached_tokens detail.
// Zero cache counts are left out of the response.
func toUsage(usage *ChatUsage, promptCache bool) types.Usage {
	if usage == nil {
		return types.Usage{}
	}

	result := types.Usage{
		InputTokens:  firstOf(usage.InputTokens, usage.PromptTokens),
		OutputTokens: firstOf(usage.OutputTokens, usage.CompletionTokens),
	}

	if !promptCache {
		return result
	}

	result.CacheCreationInputTokens = firstOf(usage.CacheCreationInputTokens)
	result.CacheReadInputTokens = firstOf(usage.CacheReadInputTokens)
	if result.CacheReadInputTokens == 0 {
		for _, details := range []*TokenDetails{usage.PromptTokensDetails, usage.InputTokensDetails} {
			if details != nil && details.CachedTokens != 0 {
				result.CacheReadInputTokens = details.CachedTokens
				break
			}
		}
	}

	result.CacheCreationInputTokens = max(result.CacheCreationInputTokens, 0)
	result.CacheReadInputTokens = max(result.CacheReadInputTokens, 0)
	return result
}

// firstOf returns the first non-nil count, or zero.
func firstOf(counts ...*int64) int64 {
	for _, c := range counts {
		if c != nil {
			return *c
		}
	}
	return 0
}
