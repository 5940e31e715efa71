package attachment

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultMinIDLength rejects ids too short to be generated by the
	// remote API. This is a heuristic: the id format is not documented.
	DefaultMinIDLength = 8

	// DefaultValidity is how long an uploaded file stays usable remotely.
	DefaultValidity = 48 * time.Hour
)

var (
	ErrMissingURI   = errors.New("missing remote uri")
	ErrMalformedURI = errors.New("remote uri is not a file uri")
	ErrShortID      = errors.New("file id too short")
	ErrExpired      = errors.New("file expired")
	ErrBlacklisted  = errors.New("file blacklisted")
	ErrDuplicate    = errors.New("file already included")
)

// remoteFilePattern matches ".../files/<id>" with an optional scheme and
// host. Query and fragment are stripped before matching.
var remoteFilePattern = regexp.MustCompile(`^(?:(?:[a-z][a-z0-9+.-]*://[^/\s]+)?(?:/[^/\s]+)*/|)files/[A-Za-z0-9_-]+/?$`)

// Validator decides whether a FileRef may be sent.
type Validator struct {
	MinIDLength int
	Validity    time.Duration
	Now         func() time.Time
}

// NewValidator returns a Validator with the default thresholds.
func NewValidator() *Validator {
	return &Validator{
		MinIDLength: DefaultMinIDLength,
		Validity:    DefaultValidity,
		Now:         time.Now,
	}
}

// Check returns nil if ref is well formed and not expired. Blacklisting is
// checked separately by the Reconciler.
func (v *Validator) Check(ref FileRef) error {
	uri := strings.TrimSpace(ref.URI)
	if uri == "" {
		return ErrMissingURI
	}
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	if !remoteFilePattern.MatchString(uri) {
		return ErrMalformedURI
	}
	if len(IDSegment(uri)) < v.minIDLength() {
		return ErrShortID
	}
	if v.Expired(ref) {
		return ErrExpired
	}
	return nil
}

// Expired reports whether ref is past its explicit expiration time or older
// than the validity window. Refs with no known upload time only expire
// through ExpiresAt.
func (v *Validator) Expired(ref FileRef) bool {
	now := v.now()
	if !ref.ExpiresAt.IsZero() && now.After(ref.ExpiresAt) {
		return true
	}
	if !ref.UploadedAt.IsZero() && v.validity() > 0 && now.Sub(ref.UploadedAt) > v.validity() {
		return true
	}
	return false
}

func (v *Validator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *Validator) minIDLength() int {
	if v.MinIDLength > 0 {
		return v.MinIDLength
	}
	return DefaultMinIDLength
}

func (v *Validator) validity() time.Duration {
	if v.Validity > 0 {
		return v.Validity
	}
	return DefaultValidity
}
