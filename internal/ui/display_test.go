package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gig-copilot/internal/attachment"
	"gig-copilot/internal/chat"
	"gig-copilot/internal/history"
	"gig-copilot/internal/stream"
)

func TestDisplayStreamsReply(t *testing.T) {
	var buf bytes.Buffer
	d := NewDisplay(&buf, true, false)

	d.StartReply()
	d.OnThinking("considering")
	d.OnDelta("Hello ")
	d.OnDelta("there")
	d.OnComplete(chat.Reply{
		Text:        "Hello there",
		Attempts:    2,
		Attachments: []attachment.FileRef{{URI: "files/resume0001"}},
		Usage:       stream.Usage{TotalTokens: 42},
		Missing:     []string{"portfolio"},
	})

	out := buf.String()
	assert.Contains(t, out, "considering")
	assert.Contains(t, out, "answer")
	assert.Contains(t, out, "Hello there")
	assert.Contains(t, out, "42 tokens")
	assert.Contains(t, out, "1 file(s) attached")
	assert.Contains(t, out, "2 attempts")
	assert.Contains(t, out, `"portfolio"`)
}

func TestDisplayHidesThinking(t *testing.T) {
	var buf bytes.Buffer
	d := NewDisplay(&buf, false, false)

	d.StartReply()
	d.OnThinking("secret reasoning")
	d.OnDelta("answer")

	assert.NotContains(t, buf.String(), "secret reasoning")
	assert.Contains(t, buf.String(), "answer")
}

func TestDisplayRetryAndError(t *testing.T) {
	var buf bytes.Buffer
	d := NewDisplay(&buf, false, false)

	d.StartReply()
	d.OnRetry(1, "badfile001", false)
	d.OnRetry(3, "filecccc03", true)
	d.OnError(chat.ErrAttachmentsExhausted, "partial")

	out := buf.String()
	assert.Contains(t, out, "file badfile001 is not accessible")
	assert.Contains(t, out, "retrying without any")
	assert.Contains(t, out, "reply interrupted")
	assert.Contains(t, out, "Some attached files could not be accessed")
}

func TestDisplayListings(t *testing.T) {
	var buf bytes.Buffer
	d := NewDisplay(&buf, false, false)

	d.PrintFiles("Attached", nil)
	d.PrintFiles("Knowledge", []attachment.FileRef{{
		URI:         "https://example.com/v1beta/files/resume0001",
		DisplayName: "cv.md",
		MimeType:    "text/markdown",
		ExpiresAt:   time.Now().Add(time.Hour),
	}})
	d.PrintTurns([]history.Turn{
		history.NewTurn(history.RoleUser, "hi", attachment.FileRef{URI: "files/resume0001", DisplayName: "cv.md"}),
		history.NewTurn(history.RoleModel, "hello"),
	})
	d.PrintError(errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "Attached: none")
	assert.Contains(t, out, "Knowledge (1):")
	assert.Contains(t, out, "resume0001")
	assert.Contains(t, out, "text/markdown")
	assert.Contains(t, out, "📎 cv.md")
	assert.Contains(t, out, "Something went wrong: boom")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "12345678", shortID("1234567890"))
}
