package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"

	"gig-copilot/internal/attachment"
	"gig-copilot/internal/gemini"
	"gig-copilot/internal/history"
	"gig-copilot/internal/logger"
	"gig-copilot/internal/prompt"
	"gig-copilot/internal/stream"
)

// Generator starts a streaming generation.
type Generator interface {
	StreamGenerateContent(ctx context.Context, model string, req gemini.GenerateRequest) (io.ReadCloser, error)
}

// Prober checks that a remote file is accessible.
type Prober interface {
	ProbeFile(ctx context.Context, id string, timeout time.Duration) error
}

// Templates renders a prompt template.
type Templates interface {
	Resolve(ctx context.Context, key string, vars map[string]any) (prompt.Resolution, error)
}

// Knowledge lists the knowledge-store files that may be attached.
type Knowledge interface {
	Live(ctx context.Context) ([]attachment.FileRef, error)
}

// Archive persists completed turns.
type Archive interface {
	StartSession() string
	AddTurns(turns ...history.Turn) error
}

// Renderer displays a reply as it streams.
type Renderer interface {
	OnDelta(text string)
	OnThinking(text string)
	OnComplete(reply Reply)
	OnError(err error, partial string)
}

// Message is one user message.
type Message struct {
	Text string
	// Template, when set, renders Text through the named template as the
	// "message" variable.
	Template string
	Vars     map[string]any
	// Files are explicit attachments for this message only.
	Files []attachment.FileRef
}

// Reply is the outcome of Send. Text holds whatever was received even when
// Send fails.
type Reply struct {
	RequestID    string
	Text         string
	Thinking     string
	Attachments  []attachment.FileRef
	Rejected     []attachment.Rejection
	Missing      []string
	Evicted      []string
	Attempts     int
	Fallback     bool
	FinishReason string
	Usage        stream.Usage
}

// Options configure a Session.
type Options struct {
	Model           string
	SystemPrompt    string
	Temperature     *float64
	MaxOutputTokens int
	IncludeThoughts bool

	MaxAttempts      int
	ProbeAttachments bool
	ProbeTimeout     time.Duration
	IncludeKnowledge bool
	Validator        *attachment.Validator
}

// Deps are the session's collaborators. Generator is required.
type Deps struct {
	Generator Generator
	Prober    Prober
	Templates Templates
	Knowledge Knowledge
	Archive   Archive
}

// Session is one conversation with the model. It allows a single
// in-flight Send; state is guarded by mu and never held across network
// calls.
type Session struct {
	opts     Options
	deps     Deps
	consumer *stream.Consumer

	mu        sync.Mutex
	id        string
	log       *slog.Logger
	busy      bool
	conv      *history.Conversation
	blacklist *attachment.Blacklist
	attached  []attachment.FileRef
}

// NewSession creates a session with an empty conversation.
func NewSession(opts Options, deps Deps) *Session {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = attachment.DefaultMaxAttempts
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	if opts.Validator == nil {
		opts.Validator = attachment.NewValidator()
	}

	s := &Session{
		opts:      opts,
		deps:      deps,
		consumer:  stream.NewConsumer(logger.WithComponent("stream")),
		conv:      history.NewConversation(),
		blacklist: attachment.NewBlacklist(),
	}
	s.startLocked()
	return s
}

func (s *Session) startLocked() {
	if s.deps.Archive != nil {
		s.id = s.deps.Archive.StartSession()
	} else {
		s.id = uuid.New().String()
	}
	s.log = logger.WithSession(s.id).With("component", "chat")
}

// ID returns the session id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Busy reports whether a reply is streaming.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Reset starts a new session: the conversation, blacklist and attached
// files are cleared.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.conv.Clear()
	s.blacklist.Clear()
	s.attached = nil
	s.startLocked()
	s.log.Info("session started")
	return nil
}

// Attach adds files to send with the next message. Files already attached
// are ignored.
func (s *Session) Attach(refs ...attachment.FileRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	for _, ref := range refs {
		dup := false
		for _, a := range s.attached {
			if a.ID() == ref.ID() {
				dup = true
				break
			}
		}
		if !dup {
			s.attached = append(s.attached, ref)
		}
	}
	return nil
}

// Detach removes an attached file by id, or all of them when id is empty.
// It returns how many were removed.
func (s *Session) Detach(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return 0, ErrBusy
	}
	if id == "" {
		n := len(s.attached)
		s.attached = nil
		return n, nil
	}
	var n int
	s.attached, n = attachment.RemoveID(s.attached, id)
	return n, nil
}

// Attached returns the files waiting to be sent.
func (s *Session) Attached() []attachment.FileRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]attachment.FileRef(nil), s.attached...)
}

// Blacklisted returns the blacklisted file ids.
func (s *Session) Blacklisted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blacklist.List()
}

// ClearBlacklist forgets every blacklisted id.
func (s *Session) ClearBlacklist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.blacklist.Clear()
	return nil
}

// Turns returns a copy of the conversation.
func (s *Session) Turns() []history.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Turns()
}

// Send sends msg and streams the reply to r. Permission failures naming a
// file evict that file and retry; once the attempts are used up the
// message is sent once more without any attachments.
func (s *Session) Send(ctx context.Context, msg Message, r Renderer) (Reply, error) {
	if r == nil {
		r = nopRenderer{}
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return Reply{}, ErrBusy
	}
	s.busy = true
	log := s.log
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	reply := Reply{RequestID: shortuuid.New()}
	log = log.With("requestID", reply.RequestID)

	text, cands, err := s.prepare(ctx, msg, &reply, log)
	if err != nil {
		r.OnError(err, "")
		return reply, err
	}

	t := &turn{
		s:     s,
		r:     r,
		log:   log,
		text:  text,
		cands: cands,
		rec:   attachment.NewRecovery(s.opts.MaxAttempts),
		reply: &reply,
	}
	return t.run(ctx)
}

// prepare renders the message text and gathers attachment candidates.
func (s *Session) prepare(ctx context.Context, msg Message, reply *Reply, log *slog.Logger) (string, attachment.Candidates, error) {
	var cands attachment.Candidates

	text := strings.TrimSpace(msg.Text)
	if msg.Template != "" {
		if s.deps.Templates == nil {
			return "", cands, fmt.Errorf("%w: %q", prompt.ErrUnknownTemplate, msg.Template)
		}
		vars := map[string]any{}
		for k, v := range msg.Vars {
			vars[k] = v
		}
		vars["message"] = text

		res, err := s.deps.Templates.Resolve(ctx, msg.Template, vars)
		if err != nil {
			return "", cands, err
		}
		text = res.Text
		cands.Template = res.Attachments
		reply.Missing = res.Missing
	}
	if text == "" {
		return "", cands, ErrEmptyMessage
	}

	s.mu.Lock()
	cands.Explicit = append(append([]attachment.FileRef(nil), s.attached...), msg.Files...)
	s.mu.Unlock()

	if s.opts.IncludeKnowledge && s.deps.Knowledge != nil {
		refs, err := s.deps.Knowledge.Live(ctx)
		if err != nil {
			log.Warn("knowledge store unavailable, continuing without it", "error", err)
		}
		cands.Knowledge = refs
	}
	return text, cands, nil
}

type nopRenderer struct{}

func (nopRenderer) OnDelta(string)        {}
func (nopRenderer) OnThinking(string)     {}
func (nopRenderer) OnComplete(Reply)      {}
func (nopRenderer) OnError(error, string) {}
