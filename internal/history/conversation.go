package history

import "gig-copilot/internal/attachment"

// Conversation is the in-memory turn list sent with every request. It is
// not safe for concurrent use; the owning chat session serializes access.
type Conversation struct {
	turns []Turn
}

// Snapshot is a deep copy of a Conversation's turns.
type Snapshot struct {
	turns []Turn
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Append adds t at the end.
func (c *Conversation) Append(t Turn) {
	c.turns = append(c.turns, t.clone())
}

// Len returns the number of turns.
func (c *Conversation) Len() int { return len(c.turns) }

// Turns returns a copy of all turns.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	for i, t := range c.turns {
		out[i] = t.clone()
	}
	return out
}

// Recent returns the last n turns.
func (c *Conversation) Recent(n int) []Turn {
	turns := c.Turns()
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

// FileIDs returns the id segment of every file part in the conversation.
func (c *Conversation) FileIDs() []string {
	var ids []string
	for _, t := range c.turns {
		for _, p := range t.Parts {
			if p.File != nil {
				ids = append(ids, p.File.ID())
			}
		}
	}
	return ids
}

// RemoveFile drops every file part whose id segment is id and returns how
// many were removed. Turns left without parts are removed.
func (c *Conversation) RemoveFile(id string) int {
	return c.filterParts(func(p Part) bool {
		return p.File != nil && p.File.ID() == id
	})
}

// StripFiles drops every file part and returns how many were removed.
func (c *Conversation) StripFiles() int {
	return c.filterParts(func(p Part) bool { return p.File != nil })
}

func (c *Conversation) filterParts(drop func(Part) bool) int {
	removed := 0
	turns := c.turns[:0]
	for _, t := range c.turns {
		parts := t.Parts[:0]
		for _, p := range t.Parts {
			if drop(p) {
				removed++
				continue
			}
			parts = append(parts, p)
		}
		t.Parts = parts
		if len(t.Parts) > 0 {
			turns = append(turns, t)
		}
	}
	c.turns = turns
	return removed
}

// Snapshot captures the current turns.
func (c *Conversation) Snapshot() Snapshot {
	return Snapshot{turns: c.Turns()}
}

// Restore replaces the turns with those captured in s.
func (c *Conversation) Restore(s Snapshot) {
	c.turns = make([]Turn, len(s.turns))
	for i, t := range s.turns {
		c.turns[i] = t.clone()
	}
}

// Clear removes all turns.
func (c *Conversation) Clear() {
	c.turns = nil
}

var _ attachment.History = (*Conversation)(nil)
