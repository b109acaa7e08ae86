// Package types provides Messages API types for server-side request/response handling.
//
// The types are hand-written rather than taken from anthropic-sdk-go:
//
//  1. SERVER-SIDE vs CLIENT-SIDE: The SDK param types are built for encoding outbound
//     requests. This gateway decodes inbound requests and encodes responses, so it needs
//     types whose zero values and JSON shapes match what clients put on the wire.
//
//  2. CLOSED UNIONS: Message content, system prompts and tool results are string-or-array
//     unions. They are decoded once at the boundary into structs with one populated
//     variant, so converters can switch exhaustively instead of probing raw JSON.
//
//  3. SHARED VOCABULARY: Where the SDK defines enumerations that appear verbatim on the
//     wire (stop reasons), they are reused directly.
package types
