package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

const defaultReadSize = 4096

// Callbacks receive stream progress. Any of them may be nil.
type Callbacks struct {
	OnDelta    func(text string) // Called for each answer delta
	OnThinking func(text string) // Called for each thought delta
	OnDone     func(Result)      // Called once after a clean end
	OnError    func(err error, partial Result)
}

// Consumer reads a model response stream and turns it into ordered text
// deltas.
type Consumer struct {
	log      *slog.Logger
	readSize int
}

// NewConsumer creates a Consumer.
func NewConsumer(log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{log: log, readSize: defaultReadSize}
}

// Consume reads r until the [DONE] sentinel, end of input, an in-stream
// error, or a transport failure. On failure the partial Result is returned
// alongside the error.
func (c *Consumer) Consume(ctx context.Context, r io.Reader, cb Callbacks) (Result, error) {
	st := NewState(c.log)
	buf := make([]byte, c.readSize)

	for {
		if err := ctx.Err(); err != nil {
			return c.fail(st, cb, err)
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			deltas, err := st.Feed(buf[:n])
			emit(cb, deltas)
			if err != nil {
				return c.fail(st, cb, err)
			}
			if st.Done() {
				return c.finish(st, cb)
			}
		}

		if errors.Is(readErr, io.EOF) {
			deltas, err := st.Flush()
			emit(cb, deltas)
			if err != nil {
				return c.fail(st, cb, err)
			}
			return c.finish(st, cb)
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return c.fail(st, cb, ctxErr)
			}
			return c.fail(st, cb, fmt.Errorf("stream read failed: %w", readErr))
		}
	}
}

func emit(cb Callbacks, deltas []Delta) {
	for _, d := range deltas {
		switch {
		case d.Thought && cb.OnThinking != nil:
			cb.OnThinking(d.Text)
		case !d.Thought && cb.OnDelta != nil:
			cb.OnDelta(d.Text)
		}
	}
}

func (c *Consumer) finish(st *State, cb Callbacks) (Result, error) {
	res := st.Result()
	c.log.Debug("stream complete",
		"chunks", res.Chunks,
		"deltas", res.Deltas,
		"dropped", res.Dropped,
		"terminated", res.Terminated,
		"finishReason", res.FinishReason,
	)
	if cb.OnDone != nil {
		cb.OnDone(res)
	}
	return res, nil
}

func (c *Consumer) fail(st *State, cb Callbacks, err error) (Result, error) {
	res := st.Result()
	c.log.Warn("stream failed", "error", err, "partialLength", len(res.Text))
	if cb.OnError != nil {
		cb.OnError(err, res)
	}
	return res, err
}
