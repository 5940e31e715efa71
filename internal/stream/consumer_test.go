package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gig-copilot/internal/logger"
)

func TestConsumeOneByteAtATime(t *testing.T) {
	body := sse(envelopeJSON("Hello"), envelopeJSON(" world")) + "data: [DONE]\n"

	var (
		got  []string
		done *Result
	)
	c := NewConsumer(logger.Discard())
	res, err := c.Consume(context.Background(), iotest.OneByteReader(strings.NewReader(body)), Callbacks{
		OnDelta: func(s string) { got = append(got, s) },
		OnDone:  func(r Result) { done = &r },
		OnError: func(error, Result) { t.Fatal("unexpected error callback") },
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Hello", " world"}, got)
	assert.Equal(t, "Hello world", res.Text)
	assert.True(t, res.Terminated)
	assert.Equal(t, len(body), res.Chunks)
	require.NotNil(t, done)
	assert.Equal(t, res, *done)
}

func TestConsumeEOFWithoutSentinel(t *testing.T) {
	c := NewConsumer(logger.Discard())
	res, err := c.Consume(context.Background(), strings.NewReader("data: "+envelopeJSON("end")), Callbacks{})

	require.NoError(t, err)
	assert.Equal(t, "end", res.Text)
	assert.False(t, res.Terminated)
}

func TestConsumeTransportErrorKeepsPartial(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader(sse(envelopeJSON("partial"))), iotest.ErrReader(boom))

	var partial Result
	c := NewConsumer(logger.Discard())
	res, err := c.Consume(context.Background(), r, Callbacks{
		OnError: func(_ error, p Result) { partial = p },
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, "partial", res.Text)
	assert.Equal(t, "partial", partial.Text)
}

func TestConsumeInStreamError(t *testing.T) {
	body := sse(envelopeJSON("so far"), `{"error":{"code":500,"message":"internal","status":"INTERNAL"}}`)

	c := NewConsumer(logger.Discard())
	res, err := c.Consume(context.Background(), strings.NewReader(body), Callbacks{})

	var envErr *EnvelopeError
	require.ErrorAs(t, err, &envErr)
	assert.Equal(t, "INTERNAL", envErr.Status)
	assert.Equal(t, "so far", res.Text)
}

func TestConsumeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewConsumer(logger.Discard())
	_, err := c.Consume(ctx, strings.NewReader(sse(envelopeJSON("x"))), Callbacks{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConsumeThinkingCallback(t *testing.T) {
	body := sse(`{"candidates":[{"content":{"parts":[{"text":"hmm","thought":true},{"text":"yes"}]}}]}`)

	var thinking, answer []string
	c := NewConsumer(logger.Discard())
	_, err := c.Consume(context.Background(), strings.NewReader(body), Callbacks{
		OnThinking: func(s string) { thinking = append(thinking, s) },
		OnDelta:    func(s string) { answer = append(answer, s) },
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"hmm"}, thinking)
	assert.Equal(t, []string{"yes"}, answer)
}
