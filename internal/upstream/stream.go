package upstream

import (
	"bufio"
	"context"
	"io"
	"iter"
	"sync"
)

// maxLineSize bounds a single SSE line. Tool call argument chunks can be large.
const maxLineSize = 1 << 20

// Stream is an open streaming response. Lines yields raw SSE lines in arrival order;
// framing and payload parsing are left to the consumer. Close must be called once the
// consumer is done, it releases the body and the cancellation registration.
type Stream struct {
	ctx     context.Context
	body    io.ReadCloser
	release func()

	closeOnce sync.Once
}

func newStream(ctx context.Context, body io.ReadCloser, release func()) *Stream {
	return &Stream{ctx: ctx, body: body, release: release}
}

// Lines returns an iterator over the response lines without trailing newlines.
// Read failures are yielded once as classified errors and end the iteration.
func (s *Stream) Lines() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		scanner := bufio.NewScanner(s.body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		for scanner.Scan() {
			if !yield(scanner.Text(), nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			yield("", classify(s.ctx, err))
			return
		}
		// A clean EOF after Cancel still reports the cancellation.
		if s.ctx.Err() != nil {
			yield("", classify(s.ctx, s.ctx.Err()))
		}
	}
}

// Close releases the response body and unregisters the call.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
		s.release()
	})
	return err
}
