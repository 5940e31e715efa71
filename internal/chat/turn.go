package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gig-copilot/internal/attachment"
	"gig-copilot/internal/gemini"
	"gig-copilot/internal/history"
	"gig-copilot/internal/stream"
)

// RetryNotifier is implemented by renderers that want to know when a reply
// is discarded and the message resent.
type RetryNotifier interface {
	OnRetry(attempt int, evicted string, fallback bool)
}

// turn drives one Send through reconciliation, streaming and permission
// recovery.
type turn struct {
	s     *Session
	r     Renderer
	log   *slog.Logger
	text  string
	cands attachment.Candidates
	rec   *attachment.Recovery
	reply *Reply

	firstDenial error

	// set when the fallback strips attachments, restored on failure
	snapshot *history.Snapshot
	attached []attachment.FileRef
}

func (t *turn) run(ctx context.Context) (Reply, error) {
	s := t.s
	rc := attachment.NewReconciler(s.opts.Validator, s.blacklist, t.log)
	rc.IncludeKnowledge = s.opts.IncludeKnowledge

	for {
		attempt, ok := t.rec.Begin()
		if !ok {
			return t.fail(t.exhausted(), "")
		}
		t.reply.Attempts = attempt

		var files []attachment.FileRef
		if !t.rec.InFallback() {
			s.mu.Lock()
			res := rc.Reconcile(s.conv, t.cands)
			s.mu.Unlock()

			t.reply.Rejected = res.Rejected
			files = t.probe(ctx, res.Accepted)
		}

		t.log.Info("sending message",
			"attempt", attempt,
			"attachments", len(files),
			"fallback", t.rec.InFallback(),
		)

		res, err := t.attempt(ctx, files)
		if err == nil {
			return t.succeed(files, res)
		}

		fallback := t.rec.InFallback()
		if !gemini.IsPermissionDenied(err) || (!fallback && len(files) == 0 && !t.historyHasFiles()) {
			t.rec.Failed()
			if fallback {
				// keep the denial that forced the fallback reachable
				err = fmt.Errorf("%w; fallback attempt: %w", t.exhausted(), err)
			}
			return t.fail(err, res.Text)
		}

		if t.firstDenial == nil {
			t.firstDenial = err
		}
		id, named := gemini.DeniedFileID(err)
		progressed := named && !fallback && t.evict(id)

		action := t.rec.Denied(id, progressed)
		t.log.Warn("attachment permission denied",
			"attempt", attempt,
			"file", id,
			"evicted", progressed,
			"action", action,
		)

		switch action {
		case attachment.ActionRetry:
			t.notify(attempt, id, false)
		case attachment.ActionFallback:
			t.enterFallback()
			t.notify(attempt, id, true)
		default:
			return t.fail(t.exhausted(), res.Text)
		}
	}
}

// attempt sends one request and consumes its stream.
func (t *turn) attempt(ctx context.Context, files []attachment.FileRef) (stream.Result, error) {
	s := t.s
	s.mu.Lock()
	req := s.buildRequest(t.text, files)
	s.mu.Unlock()

	t.log.Debug("request built", "contents", len(req.Contents), "files", countFiles(req))

	body, err := s.deps.Generator.StreamGenerateContent(ctx, s.opts.Model, req)
	if err != nil {
		return stream.Result{}, err
	}
	defer body.Close()

	return s.consumer.Consume(ctx, body, stream.Callbacks{
		OnDelta:    t.r.OnDelta,
		OnThinking: t.r.OnThinking,
	})
}

// probe checks accepted files one at a time before sending. Files the
// service denies access to are blacklisted; any other failure only leaves
// the file out of this message.
func (t *turn) probe(ctx context.Context, accepted []attachment.FileRef) []attachment.FileRef {
	s := t.s
	if !s.opts.ProbeAttachments || s.deps.Prober == nil || len(accepted) == 0 {
		return accepted
	}

	errs := make([]error, len(accepted))
	for i, ref := range accepted {
		errs[i] = s.deps.Prober.ProbeFile(ctx, ref.ID(), s.opts.ProbeTimeout)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	files := make([]attachment.FileRef, 0, len(accepted))
	for i, ref := range accepted {
		err := errs[i]
		if err == nil {
			files = append(files, ref)
			continue
		}

		id := ref.ID()
		src := sourceOf(t.cands, id)
		if gemini.IsPermissionDenied(err) {
			s.blacklist.Add(id)
		}
		t.cands.Remove(id)
		t.reply.Rejected = append(t.reply.Rejected, attachment.Rejection{Ref: ref, Source: src, Err: err})
		t.log.Warn("attachment probe failed", "file", ref.Label(), "source", src, "error", err)
	}
	return files
}

// evict removes id from the conversation, the candidates and the attached
// list, and blacklists it. It reports whether anything was removed.
func (t *turn) evict(id string) bool {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.conv.RemoveFile(id)
	n += t.cands.Remove(id)
	var m int
	s.attached, m = attachment.RemoveID(s.attached, id)
	n += m

	s.blacklist.Add(id)
	if n > 0 {
		t.reply.Evicted = append(t.reply.Evicted, id)
	}
	return n > 0
}

// enterFallback snapshots the session and strips every attachment.
func (t *turn) enterFallback() {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.conv.Snapshot()
	t.snapshot = &snap
	t.attached = append([]attachment.FileRef(nil), s.attached...)

	stripped := s.conv.StripFiles()
	t.cands.Clear()
	s.attached = nil
	t.reply.Fallback = true

	t.log.Warn("retrying without attachments", "strippedFromHistory", stripped)
}

// historyHasFiles reports whether earlier turns still carry file parts.
func (t *turn) historyHasFiles() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return len(t.s.conv.FileIDs()) > 0
}

func (t *turn) succeed(files []attachment.FileRef, res stream.Result) (Reply, error) {
	s := t.s
	userTurn := history.NewTurn(history.RoleUser, t.text, files...)
	turns := []history.Turn{userTurn}

	s.mu.Lock()
	s.conv.Append(userTurn)
	if res.Text != "" {
		modelTurn := history.NewTurn(history.RoleModel, res.Text)
		s.conv.Append(modelTurn)
		turns = append(turns, modelTurn)
	}
	s.attached = nil
	s.mu.Unlock()

	if s.deps.Archive != nil {
		if err := s.deps.Archive.AddTurns(turns...); err != nil {
			t.log.Error("failed to archive turns", "error", err)
		}
	}

	t.reply.Text = res.Text
	t.reply.Thinking = res.Thinking
	t.reply.Attachments = files
	t.reply.FinishReason = res.FinishReason
	t.reply.Usage = res.Usage

	t.log.Info("reply complete",
		"attempts", t.reply.Attempts,
		"attachments", len(files),
		"evicted", len(t.reply.Evicted),
		"fallback", t.reply.Fallback,
		"length", len(res.Text),
	)
	t.r.OnComplete(*t.reply)
	return *t.reply, nil
}

func (t *turn) fail(err error, partial string) (Reply, error) {
	s := t.s
	if t.snapshot != nil {
		s.mu.Lock()
		s.conv.Restore(*t.snapshot)
		s.attached = t.attached
		s.mu.Unlock()
	}

	t.reply.Text = partial
	if errors.Is(err, ErrAttachmentsExhausted) {
		t.log.Error("attachment recovery exhausted",
			"attempts", t.reply.Attempts,
			"denied", t.rec.DeniedIDs(),
		)
	} else {
		t.log.Error("send failed", "attempt", t.reply.Attempts, "error", err)
	}
	t.r.OnError(err, partial)
	return *t.reply, err
}

func (t *turn) exhausted() error {
	if t.firstDenial == nil {
		return ErrAttachmentsExhausted
	}
	return fmt.Errorf("%w: %w", ErrAttachmentsExhausted, t.firstDenial)
}

func (t *turn) notify(attempt int, evicted string, fallback bool) {
	if n, ok := t.r.(RetryNotifier); ok {
		n.OnRetry(attempt, evicted, fallback)
	}
}

func sourceOf(c attachment.Candidates, id string) attachment.Source {
	for _, set := range []struct {
		src  attachment.Source
		refs []attachment.FileRef
	}{
		{attachment.SourceExplicit, c.Explicit},
		{attachment.SourceTemplate, c.Template},
		{attachment.SourceKnowledge, c.Knowledge},
	} {
		for _, r := range set.refs {
			if r.ID() == id {
				return set.src
			}
		}
	}
	return attachment.SourceExplicit
}
