package attachment

import "sort"

// Blacklist is the session-scoped set of file ids known to be inaccessible.
// Entries are only added during a session; Clear is reserved for an
// explicit user action. A Blacklist is owned by one chat session and is
// not safe for concurrent use.
type Blacklist struct {
	ids map[string]struct{}
}

// NewBlacklist creates an empty blacklist.
func NewBlacklist() *Blacklist {
	return &Blacklist{ids: make(map[string]struct{})}
}

// Add blacklists id. Returns false if it was already present.
func (b *Blacklist) Add(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := b.ids[id]; ok {
		return false
	}
	b.ids[id] = struct{}{}
	return true
}

// Contains reports whether id is blacklisted.
func (b *Blacklist) Contains(id string) bool {
	if b == nil {
		return false
	}
	_, ok := b.ids[id]
	return ok
}

// Len returns the number of blacklisted ids.
func (b *Blacklist) Len() int {
	return len(b.ids)
}

// List returns the blacklisted ids in sorted order.
func (b *Blacklist) List() []string {
	out := make([]string, 0, len(b.ids))
	for id := range b.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clear empties the blacklist.
func (b *Blacklist) Clear() {
	b.ids = make(map[string]struct{})
}
