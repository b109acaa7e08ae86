package types

import (
	"github.com/anthropics/anthropic-sdk-go"
)

// Stream event names, used both as the SSE "event:" field and the payload "type".
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventPing              = "ping"
	EventError             = "error"
)

// Delta payload types of content_block_delta.
const (
	DeltaTypeText      = "text_delta"
	DeltaTypeInputJSON = "input_json_delta"
)

// StreamEvent is one server-sent event of a streamed message.
type StreamEvent interface {
	EventType() string
}

type MessageStartEvent struct {
	Type    string          `json:"type"`
	Message MessageResponse `json:"message"`
}

type ContentBlockStartEvent struct {
	Type         string       `json:"type"`
	Index        int          `json:"index"`
	ContentBlock ContentBlock `json:"content_block"`
}

// ContentDelta is either a text_delta or an input_json_delta.
type ContentDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

type ContentBlockDeltaEvent struct {
	Type  string       `json:"type"`
	Index int          `json:"index"`
	Delta ContentDelta `json:"delta"`
}

type ContentBlockStopEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type MessageDelta struct {
	StopReason   anthropic.StopReason `json:"stop_reason"`
	StopSequence *string              `json:"stop_sequence"`
}

type MessageDeltaEvent struct {
	Type  string       `json:"type"`
	Delta MessageDelta `json:"delta"`
	Usage Usage        `json:"usage"`
}

type MessageStopEvent struct {
	Type string `json:"type"`
}

type PingEvent struct {
	Type string `json:"type"`
}

// ErrorEvent terminates a stream. It shares its payload shape with ErrorResponse.
type ErrorEvent = ErrorResponse

func (e MessageStartEvent) EventType() string      { return EventMessageStart }
func (e ContentBlockStartEvent) EventType() string { return EventContentBlockStart }
func (e ContentBlockDeltaEvent) EventType() string { return EventContentBlockDelta }
func (e ContentBlockStopEvent) EventType() string  { return EventContentBlockStop }
func (e MessageDeltaEvent) EventType() string      { return EventMessageDelta }
func (e MessageStopEvent) EventType() string       { return EventMessageStop }
func (e PingEvent) EventType() string              { return EventPing }
func (e *ErrorResponse) EventType() string         { return EventError }

// Compile-time checks that all event payloads implement StreamEvent
var (
	_ StreamEvent = MessageStartEvent{}
	_ StreamEvent = ContentBlockStartEvent{}
	_ StreamEvent = ContentBlockDeltaEvent{}
	_ StreamEvent = ContentBlockStopEvent{}
	_ StreamEvent = MessageDeltaEvent{}
	_ StreamEvent = MessageStopEvent{}
	_ StreamEvent = PingEvent{}
	_ StreamEvent = (*ErrorEvent)(nil)
)
