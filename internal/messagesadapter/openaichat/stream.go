package openaichat

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/florianilch/msgbridge/internal/messagesadapter/types"
	"github.com/florianilch/msgbridge/internal/upstream"
)

const (
	sseDataPrefix = "data:"
	sseDone       = "[DONE]"
)

// StreamTranslator turns Chat Completions stream lines into Messages stream events.
//
// The emitted sequence always opens with message_start, a text block at index 0 and a
// ping. Tool calls get their own blocks from index 1 onwards in the order they become
// identifiable. A completed stream closes every opened block and ends with
// message_delta and message_stop; a failed one ends with a single error event instead.
type StreamTranslator struct {
	clientModel string
	promptCache bool

	alive  func() bool
	cancel func()
}

// StreamOption configures a StreamTranslator.
type StreamOption func(*StreamTranslator)

// WithCancellation checks alive before each upstream line. Once it reports false,
// cancel is invoked to abort the upstream call and the stream ends with a cancelled
// error event.
func WithCancellation(alive func() bool, cancel func()) StreamOption {
	return func(t *StreamTranslator) {
		t.alive = alive
		t.cancel = cancel
	}
}

// NewStreamTranslator creates a translator echoing clientModel in message_start.
func NewStreamTranslator(clientModel string, promptCache bool, opts ...StreamOption) *StreamTranslator {
	t := &StreamTranslator{clientModel: clientModel, promptCache: promptCache}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Translate consumes lines in a single pass. The returned sequence is not restartable.
func (t *StreamTranslator) Translate(ctx context.Context, lines iter.Seq2[string, error]) iter.Seq[types.StreamEvent] {
	return func(yield func(types.StreamEvent) bool) {
		state := newStreamState(t.promptCache)

		for _, event := range state.start(t.clientModel) {
			if !yield(event) {
				return
			}
		}

		for line, err := range lines {
			if t.disconnected() {
				slog.InfoContext(ctx, "client disconnected, cancelling upstream stream")
				t.cancel()
				yield(cancelledEvent())
				return
			}

			if err != nil {
				if upstream.IsCancelled(err) {
					yield(cancelledEvent())
					return
				}
				slog.ErrorContext(ctx, "upstream stream failed", "error", err)
				yield(streamingError(err))
				return
			}

			chunk, done, ok := parseLine(ctx, line)
			if done {
				break
			}
			if !ok {
				continue
			}

			for _, event := range state.apply(chunk) {
				if !yield(event) {
					return
				}
			}
		}

		for _, event := range state.finish() {
			if !yield(event) {
				return
			}
		}
	}
}

func (t *StreamTranslator) disconnected() bool {
	return t.alive != nil && !t.alive()
}

// parseLine extracts a chunk from one SSE line. done reports the terminator; ok is
// false for lines that carry nothing usable.
func parseLine(ctx context.Context, line string) (chunk *ChatCompletionChunk, done, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false, false
	}

	payload, found := strings.CutPrefix(line, sseDataPrefix)
	if !found {
		slog.DebugContext(ctx, "skipping non-data stream line", "line", line)
		return nil, false, false
	}
	payload = strings.TrimSpace(payload)
	if payload == sseDone {
		return nil, true, false
	}

	chunk = &ChatCompletionChunk{}
	if err := json.Unmarshal([]byte(payload), chunk); err != nil {
		slog.DebugContext(ctx, "skipping malformed stream chunk", "error", err, "payload", payload)
		return nil, false, false
	}
	return chunk, false, true
}

// toolAccumulator collects the fragments of one upstream tool call.
type toolAccumulator struct {
	id        string
	name      string
	arguments strings.Builder

	started     bool
	jsonEmitted bool
	outputIndex int
}

// streamState is the per-stream translation state.
type streamState struct {
	promptCache bool

	tools     map[int]*toolAccumulator
	started   []*toolAccumulator
	nextIndex int

	stopReason anthropic.StopReason
	usage      types.Usage
	finished   bool
}

func newStreamState(promptCache bool) *streamState {
	return &streamState{
		promptCache: promptCache,
		tools:       make(map[int]*toolAccumulator),
		nextIndex:   1,
		stopReason:  anthropic.StopReasonEndTurn,
	}
}

func (s *streamState) start(clientModel string) []types.StreamEvent {
	return []types.StreamEvent{
		types.MessageStartEvent{
			Type:    types.EventMessageStart,
			Message: *types.NewMessageResponse(newStreamMessageID(), clientModel),
		},
		types.ContentBlockStartEvent{
			Type:         types.EventContentBlockStart,
			Index:        0,
			ContentBlock: types.NewTextBlock(""),
		},
		types.PingEvent{Type: types.EventPing},
	}
}

// apply folds one chunk into the state and returns the events it produces. Usage is
// captured from any chunk; content arriving after the finish reason is ignored.
func (s *streamState) apply(chunk *ChatCompletionChunk) []types.StreamEvent {
	if chunk.Usage != nil {
		s.usage = toUsage(chunk.Usage, s.promptCache)
	}
	if s.finished || len(chunk.Choices) == 0 {
		return nil
	}

	choice := chunk.Choices[0]
	var events []types.StreamEvent

	if choice.Delta.Content != nil && *choice.Delta.Content != "" {
		events = append(events, types.ContentBlockDeltaEvent{
			Type:  types.EventContentBlockDelta,
			Index: 0,
			Delta: types.ContentDelta{Type: types.DeltaTypeText, Text: *choice.Delta.Content},
		})
	}

	for _, delta := range choice.Delta.ToolCalls {
		events = append(events, s.applyToolCall(delta)...)
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		s.stopReason = toStopReason(choice.FinishReason)
		s.finished = true
	}

	return events
}

func (s *streamState) applyToolCall(delta ToolCallDelta) []types.StreamEvent {
	acc, ok := s.tools[delta.Index]
	if !ok {
		acc = &toolAccumulator{}
		s.tools[delta.Index] = acc
	}

	if delta.ID != "" {
		acc.id = delta.ID
	}
	if delta.Function.Name != "" {
		acc.name = delta.Function.Name
	}

	var events []types.StreamEvent

	if !acc.started && acc.id != "" && acc.name != "" {
		acc.started = true
		acc.outputIndex = s.nextIndex
		s.nextIndex++
		s.started = append(s.started, acc)

		events = append(events, types.ContentBlockStartEvent{
			Type:         types.EventContentBlockStart,
			Index:        acc.outputIndex,
			ContentBlock: types.NewToolUseBlock(acc.id, acc.name, nil),
		})
	}

	if !acc.started || delta.Function.Arguments == "" {
		return events
	}

	acc.arguments.WriteString(delta.Function.Arguments)
	// Arguments are forwarded once, as soon as the buffer is complete JSON.
	if !acc.jsonEmitted && json.Valid([]byte(acc.arguments.String())) {
		acc.jsonEmitted = true
		events = append(events, types.ContentBlockDeltaEvent{
			Type:  types.EventContentBlockDelta,
			Index: acc.outputIndex,
			Delta: types.ContentDelta{Type: types.DeltaTypeInputJSON, PartialJSON: acc.arguments.String()},
		})
	}

	return events
}

// finish closes the text block, then every started tool block in output order.
func (s *streamState) finish() []types.StreamEvent {
	events := make([]types.StreamEvent, 0, len(s.started)+3)
	events = append(events, types.ContentBlockStopEvent{Type: types.EventContentBlockStop, Index: 0})

	for _, acc := range s.started {
		events = append(events, types.ContentBlockStopEvent{Type: types.EventContentBlockStop, Index: acc.outputIndex})
	}

	events = append(events,
		types.MessageDeltaEvent{
			Type:  types.EventMessageDelta,
			Delta: types.MessageDelta{StopReason: s.stopReason},
			Usage: s.usage,
		},
		types.MessageStopEvent{Type: types.EventMessageStop},
	)
	return events
}
