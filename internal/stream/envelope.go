package stream

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Paths into a streamGenerateContent response envelope.
const (
	partsPath        = "candidates.0.content.parts"
	finishReasonPath = "candidates.0.finishReason"
	blockReasonPath  = "promptFeedback.blockReason"
	usagePath        = "usageMetadata"
	errorPath        = "error"
)

// Usage is the token accounting reported by the model.
type Usage struct {
	PromptTokens    int
	CandidateTokens int
	TotalTokens     int
}

// EnvelopeError is an error object delivered inside the stream instead of
// a content envelope. It terminates the stream.
type EnvelopeError struct {
	Code    int
	Status  string
	Message string
}

func (e *EnvelopeError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("stream error %d (%s): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("stream error: %s", e.Message)
}

// APIMessage returns the message reported by the service.
func (e *EnvelopeError) APIMessage() string { return e.Message }

// envelope is what one decoded document contributes to the stream.
type envelope struct {
	text         string
	thought      string
	finishReason string
	usage        *Usage
	err          *EnvelopeError
}

// decodeEnvelope reads a single response envelope. Arrays are treated as a
// batch of envelopes, which is how the non-SSE endpoint frames its output.
func decodeEnvelope(doc gjson.Result) []envelope {
	if doc.IsArray() {
		var out []envelope
		doc.ForEach(func(_, v gjson.Result) bool {
			out = append(out, decodeEnvelope(v)...)
			return true
		})
		return out
	}
	if !doc.IsObject() {
		return nil
	}

	if e := doc.Get(errorPath); e.Exists() {
		msg := e.Get("message").String()
		if msg == "" {
			msg = e.String()
		}
		return []envelope{{err: &EnvelopeError{
			Code:    int(e.Get("code").Int()),
			Status:  e.Get("status").String(),
			Message: msg,
		}}}
	}

	var env envelope

	var text, thought strings.Builder
	for _, part := range doc.Get(partsPath).Array() {
		if part.Get("thought").Bool() {
			thought.WriteString(part.Get("text").String())
			continue
		}
		text.WriteString(part.Get("text").String())
	}
	env.text = text.String()
	env.thought = thought.String()

	env.finishReason = doc.Get(finishReasonPath).String()
	if env.finishReason == "" {
		env.finishReason = doc.Get(blockReasonPath).String()
	}

	if u := doc.Get(usagePath); u.Exists() {
		env.usage = &Usage{
			PromptTokens:    int(u.Get("promptTokenCount").Int()),
			CandidateTokens: int(u.Get("candidatesTokenCount").Int()),
			TotalTokens:     int(u.Get("totalTokenCount").Int()),
		}
	}
	return []envelope{env}
}
