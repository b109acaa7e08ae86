// Package openaichat adapts Messages API requests to the OpenAI Chat Completions API,
// enabling Claude SDK clients to talk to OpenAI models without code changes.
//
// The adapter handles:
//
//   - Message transformation: The system prompt becomes a leading system message. Tool results
//     embedded in user turns are split out into tool messages placed before the remaining user
//     content. Assistant tool_use blocks become tool_calls with JSON string arguments.
//
//   - Tool results: Arbitrary tool_result content is normalized to plain text, see
//     NormalizeToolResult.
//
//   - Prompt caching: With caching enabled the system message and the last text part of the
//     two most recent user messages carry an ephemeral cache_control marker, and cache token
//     counts are reported back in usage.
//
//   - Streaming: Translates Chat Completions chunks to Messages events. Text always lives in
//     block 0; tool calls open blocks 1..n once their id and name are known, and their
//     arguments are forwarded in a single input_json_delta as soon as they form valid JSON.
//
// # Adapters
//
// CreateMessageAdapter: Messages CreateMessage → OpenAI Chat Completions
package openaichat
