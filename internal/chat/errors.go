package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"gig-copilot/internal/gemini"
	"gig-copilot/internal/prompt"
)

var (
	// ErrBusy is returned by Send while a previous reply is streaming.
	ErrBusy = errors.New("a reply is still streaming")

	// ErrAttachmentsExhausted is returned when permission failures persist
	// through every retry and the attachment-free fallback.
	ErrAttachmentsExhausted = errors.New("attachments could not be sent")

	// ErrEmptyMessage is returned for a message with no text.
	ErrEmptyMessage = errors.New("message is empty")
)

// UserMessage turns an error from Send into a sentence for the terminal.
func UserMessage(err error) string {
	var apiErr *gemini.APIError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBusy):
		return "Still answering the previous message. Wait for it to finish."
	case errors.Is(err, ErrEmptyMessage):
		return "Type a message first."
	case errors.Is(err, ErrAttachmentsExhausted):
		return "Some attached files could not be accessed, and the request failed even without them. " +
			"Re-upload the files or start a new session with /new."
	case errors.Is(err, prompt.ErrUnknownTemplate):
		return "Unknown template. Run /template to list the available ones."
	case errors.Is(err, context.Canceled):
		return "Cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out. Try again."
	case errors.As(err, &apiErr):
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized,
			apiErr.StatusCode == http.StatusForbidden && apiErr.Status != "PERMISSION_DENIED":
			return "The API key was rejected. Check GIG_API_KEY."
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return "Rate limited by Gemini. Wait a moment and try again."
		case apiErr.StatusCode >= 500:
			return "Gemini is having trouble right now. Try again shortly."
		default:
			return fmt.Sprintf("Gemini rejected the request: %s", apiErr.Message)
		}
	default:
		return fmt.Sprintf("Something went wrong: %v", err)
	}
}
