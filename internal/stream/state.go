package stream

import (
	"bytes"
	"log/slog"
	"strings"
)

const doneSentinel = "[DONE]"

// sseFields are the non-data SSE field names; lines carrying them are
// skipped.
var sseFields = []string{"event:", "id:", "retry:"}

// Delta is one non-empty piece of model output.
type Delta struct {
	Text string
	// Thought marks reasoning output, reported separately from the answer.
	Thought bool
}

// Result summarizes a consumed stream.
type Result struct {
	// Text is the concatenation of every emitted delta.
	Text string
	// Thinking is the concatenation of every thought delta.
	Thinking string
	// Chunks is the number of transport chunks received.
	Chunks int
	// Deltas is the number of non-empty answer deltas emitted.
	Deltas int
	// Dropped counts lines no recovery strategy could parse.
	Dropped int
	// Terminated is true when the [DONE] sentinel was seen.
	Terminated   bool
	FinishReason string
	Usage        Usage
}

// State is the incremental parsing state of one stream. Bytes are fed as
// they arrive; complete lines are parsed and incomplete trailing data is
// kept until the next chunk or Flush.
type State struct {
	log *slog.Logger

	buffer      []byte
	accumulated strings.Builder
	thinking    strings.Builder
	res         Result
	done        bool
}

// NewState returns an empty State.
func NewState(log *slog.Logger) *State {
	if log == nil {
		log = slog.Default()
	}
	return &State{log: log}
}

// Feed appends chunk to the line buffer and processes every complete line.
// It returns the deltas in arrival order. A non-nil error is an
// *EnvelopeError and ends the stream.
func (s *State) Feed(chunk []byte) ([]Delta, error) {
	if s.done {
		return nil, nil
	}
	s.res.Chunks++
	s.buffer = append(s.buffer, chunk...)

	var deltas []Delta
	for !s.done {
		i := bytes.IndexByte(s.buffer, '\n')
		if i < 0 {
			break
		}
		line := string(s.buffer[:i])
		s.buffer = s.buffer[i+1:]

		out, err := s.processLine(line)
		deltas = append(deltas, out...)
		if err != nil {
			s.done = true
			return deltas, err
		}
	}

	if s.done || len(s.buffer) == 0 {
		s.buffer = nil
	}
	return deltas, nil
}

// Flush processes whatever is left in the buffer as a final line. It is
// called once the transport reports end of stream.
func (s *State) Flush() ([]Delta, error) {
	if s.done || len(s.buffer) == 0 {
		s.buffer = nil
		return nil, nil
	}
	line := string(s.buffer)
	s.buffer = nil

	out, err := s.processLine(line)
	if err != nil {
		s.done = true
	}
	return out, err
}

// Done reports whether the stream has terminated, either on the sentinel
// or an in-stream error.
func (s *State) Done() bool { return s.done }

// Pending returns the number of buffered bytes not yet forming a line.
func (s *State) Pending() int { return len(s.buffer) }

// Text returns the text accumulated so far.
func (s *State) Text() string { return s.accumulated.String() }

// Result returns the summary of everything processed so far.
func (s *State) Result() Result {
	r := s.res
	r.Text = s.accumulated.String()
	r.Thinking = s.thinking.String()
	return r
}

func (s *State) processLine(raw string) ([]Delta, error) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return nil, nil
	}

	if payload, ok := strings.CutPrefix(line, "data:"); ok {
		line = strings.TrimSpace(payload)
	} else if isFieldLine(line) {
		return nil, nil
	}

	if line == doneSentinel {
		s.done = true
		s.res.Terminated = true
		return nil, nil
	}
	if line == "" {
		return nil, nil
	}

	docs, strategy, ok := Recover(line)
	if !ok {
		s.res.Dropped++
		s.log.Warn("dropping unparseable stream line", "length", len(line), "preview", preview(line))
		return nil, nil
	}
	if strategy != StrategyDirect {
		s.log.Debug("recovered malformed stream line", "strategy", strategy, "documents", len(docs))
	}

	var deltas []Delta
	for _, doc := range docs {
		for _, env := range decodeEnvelope(doc) {
			if env.err != nil {
				return deltas, env.err
			}
			if env.finishReason != "" {
				s.res.FinishReason = env.finishReason
			}
			if env.usage != nil {
				s.res.Usage = *env.usage
			}
			if env.thought != "" {
				s.thinking.WriteString(env.thought)
				deltas = append(deltas, Delta{Text: env.thought, Thought: true})
			}
			if env.text != "" {
				s.accumulated.WriteString(env.text)
				s.res.Deltas++
				deltas = append(deltas, Delta{Text: env.text})
			}
		}
	}
	return deltas, nil
}

func isFieldLine(line string) bool {
	if strings.HasPrefix(line, ":") {
		return true
	}
	for _, f := range sseFields {
		if strings.HasPrefix(line, f) {
			return true
		}
	}
	return false
}

func preview(s string) string {
	const max = 80
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
