package attachment

import "fmt"

// DefaultMaxAttempts is the number of attempts made with attachments before
// falling back to a request without any.
const DefaultMaxAttempts = 3

// State is the permission-failure recovery state of one user message.
type State int

const (
	StateReady State = iota
	StateRecovering
	StateFallback
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRecovering:
		return "recovering"
	case StateFallback:
		return "fallback"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Action tells the caller what to do after a failed attempt.
type Action int

const (
	// ActionRetry: the failing file was evicted; resend the same message.
	ActionRetry Action = iota
	// ActionFallback: evict the failing file, snapshot, clear every
	// attachment, and resend once with none.
	ActionFallback
	// ActionFail: give up and surface the error. If a fallback snapshot
	// exists it must be restored.
	ActionFail
)

func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFallback:
		return "fallback"
	default:
		return "fail"
	}
}

// Recovery tracks attempts for a single user message. The total number of
// attempts is bounded by MaxAttempts+1.
type Recovery struct {
	maxAttempts int
	attempts    int
	state       State
	denied      []string
}

// NewRecovery creates a Recovery in StateReady. maxAttempts <= 0 selects
// DefaultMaxAttempts.
func NewRecovery(maxAttempts int) *Recovery {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Recovery{maxAttempts: maxAttempts}
}

// Begin records the start of a network attempt and returns its 1-based
// number. It returns false once no attempt is allowed.
func (r *Recovery) Begin() (int, bool) {
	if r.state == StateFailed || r.attempts >= r.maxAttempts+1 {
		return r.attempts, false
	}
	if r.state == StateRecovering {
		r.state = StateReady
	}
	r.attempts++
	return r.attempts, true
}

// Denied handles a permission denial naming file id. progressed reports
// whether evicting id actually removed something from the request; a
// denial that cannot be acted on skips straight to the fallback.
func (r *Recovery) Denied(id string, progressed bool) Action {
	switch r.state {
	case StateFallback, StateFailed:
		r.state = StateFailed
		return ActionFail
	}

	r.state = StateRecovering
	r.denied = append(r.denied, id)

	if !progressed || r.attempts >= r.maxAttempts {
		r.state = StateFallback
		return ActionFallback
	}
	return ActionRetry
}

// Failed handles any other error. It is always terminal.
func (r *Recovery) Failed() Action {
	r.state = StateFailed
	return ActionFail
}

// State returns the current state.
func (r *Recovery) State() State { return r.state }

// Attempts returns the number of attempts begun so far.
func (r *Recovery) Attempts() int { return r.attempts }

// DeniedIDs returns the ids reported as denied, in order.
func (r *Recovery) DeniedIDs() []string {
	return append([]string(nil), r.denied...)
}

// InFallback reports whether the current attempt is the zero-attachment
// fallback.
func (r *Recovery) InFallback() bool { return r.state == StateFallback }
