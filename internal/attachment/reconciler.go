package attachment

import (
	"log/slog"
)

// Source identifies where a candidate came from. Lower values win when the
// same file is offered by several sources.
type Source int

const (
	SourceExplicit Source = iota
	SourceTemplate
	SourceKnowledge
)

func (s Source) String() string {
	switch s {
	case SourceExplicit:
		return "explicit"
	case SourceTemplate:
		return "template"
	case SourceKnowledge:
		return "knowledge"
	default:
		return "unknown"
	}
}

// History is the view of the conversation the Reconciler needs.
type History interface {
	// FileIDs returns the id segment of every file part already present in
	// the conversation.
	FileIDs() []string
}

// Candidates are the files proposed for the next outbound message, grouped
// by source.
type Candidates struct {
	Explicit  []FileRef
	Template  []FileRef
	Knowledge []FileRef
}

// Len returns the total number of candidates across all sources.
func (c Candidates) Len() int {
	return len(c.Explicit) + len(c.Template) + len(c.Knowledge)
}

// Remove drops every candidate with the given id from all sources and
// returns how many were removed.
func (c *Candidates) Remove(id string) int {
	var n, m int
	c.Explicit, m = RemoveID(c.Explicit, id)
	n += m
	c.Template, m = RemoveID(c.Template, id)
	n += m
	c.Knowledge, m = RemoveID(c.Knowledge, id)
	return n + m
}

// Clear drops all candidates.
func (c *Candidates) Clear() {
	c.Explicit, c.Template, c.Knowledge = nil, nil, nil
}

// RemoveID returns refs without the entries whose id segment is id, and the
// number removed. The input slice is not modified.
func RemoveID(refs []FileRef, id string) ([]FileRef, int) {
	out := make([]FileRef, 0, len(refs))
	for _, r := range refs {
		if r.ID() == id {
			continue
		}
		out = append(out, r)
	}
	return out, len(refs) - len(out)
}

// Rejection records why a candidate was not attached.
type Rejection struct {
	Ref    FileRef
	Source Source
	Err    error
}

// Result is the outcome of one reconciliation pass.
type Result struct {
	Accepted []FileRef
	Rejected []Rejection
}

// Reconciler computes the exact attachment set for an outbound request.
type Reconciler struct {
	Validator *Validator
	Blacklist *Blacklist

	// IncludeKnowledge enables the knowledge-store fallback source.
	IncludeKnowledge bool

	Log *slog.Logger
}

// NewReconciler creates a Reconciler over the session's blacklist.
func NewReconciler(v *Validator, bl *Blacklist, log *slog.Logger) *Reconciler {
	if v == nil {
		v = NewValidator()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{Validator: v, Blacklist: bl, Log: log}
}

// Reconcile filters and de-duplicates candidates against history and the
// blacklist. Files already present anywhere in history are never re-sent,
// and no id appears twice in Accepted.
func (r *Reconciler) Reconcile(h History, c Candidates) Result {
	seen := make(map[string]struct{})
	if h != nil {
		for _, id := range h.FileIDs() {
			seen[id] = struct{}{}
		}
	}

	var res Result
	consider := func(src Source, refs []FileRef) {
		for _, ref := range refs {
			if err := r.admit(ref, seen); err != nil {
				res.Rejected = append(res.Rejected, Rejection{Ref: ref, Source: src, Err: err})
				r.Log.Debug("attachment rejected", "file", ref.Label(), "source", src, "reason", err)
				continue
			}
			seen[ref.ID()] = struct{}{}
			res.Accepted = append(res.Accepted, ref)
		}
	}

	consider(SourceExplicit, c.Explicit)
	consider(SourceTemplate, c.Template)
	if r.IncludeKnowledge {
		consider(SourceKnowledge, c.Knowledge)
	}

	if len(res.Accepted) == 0 && c.Len() > 0 {
		r.Log.Warn("all attachment candidates rejected, sending without attachments",
			"candidates", c.Len(), "rejected", len(res.Rejected))
	}
	return res
}

func (r *Reconciler) admit(ref FileRef, seen map[string]struct{}) error {
	if err := r.Validator.Check(ref); err != nil {
		return err
	}
	id := ref.ID()
	if r.Blacklist.Contains(id) {
		return ErrBlacklisted
	}
	if _, dup := seen[id]; dup {
		return ErrDuplicate
	}
	return nil
}
