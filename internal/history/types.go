package history

import (
	"strings"
	"time"

	"gig-copilot/internal/attachment"
)

// Roles of a Turn.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Archive represents all archived conversation sessions
type Archive struct {
	Sessions []Session `json:"sessions"`
}

// Session represents a single archived conversation
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Turns     []Turn    `json:"turns"`
}

// Turn is one message of the conversation.
type Turn struct {
	Role      string    `json:"role"` // "user" or "model"
	Parts     []Part    `json:"parts"`
	Timestamp time.Time `json:"timestamp"`
}

// Part is text or a file reference. Exactly one of the fields is set.
type Part struct {
	Text string              `json:"text,omitempty"`
	File *attachment.FileRef `json:"file,omitempty"`
}

// NewTurn builds a turn from text followed by file parts.
func NewTurn(role, text string, files ...attachment.FileRef) Turn {
	t := Turn{Role: role, Timestamp: time.Now()}
	if text != "" {
		t.Parts = append(t.Parts, Part{Text: text})
	}
	for i := range files {
		f := files[i]
		t.Parts = append(t.Parts, Part{File: &f})
	}
	return t
}

// Text returns the concatenated text parts.
func (t Turn) Text() string {
	var b strings.Builder
	for _, p := range t.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// Files returns the file parts in order.
func (t Turn) Files() []attachment.FileRef {
	var out []attachment.FileRef
	for _, p := range t.Parts {
		if p.File != nil {
			out = append(out, *p.File)
		}
	}
	return out
}

func (t Turn) clone() Turn {
	c := t
	c.Parts = make([]Part, len(t.Parts))
	for i, p := range t.Parts {
		if p.File != nil {
			f := *p.File
			p.File = &f
		}
		c.Parts[i] = p
	}
	return c
}
