package gemini

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrProbeTimeout is returned by ProbeFile when the service does not answer
// in time. It says nothing about whether the file is accessible.
var ErrProbeTimeout = errors.New("file probe timed out")

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int // HTTP status
	Code       int
	Status     string // e.g. "PERMISSION_DENIED"
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("Gemini returned status %d (%s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("Gemini returned status %d: %s", e.StatusCode, e.Message)
}

// APIMessage returns the message reported by the service.
func (e *APIError) APIMessage() string { return e.Message }

// apiMessager is implemented by errors that carry a service message, both
// HTTP-level failures and errors delivered inside a stream.
type apiMessager interface {
	error
	APIMessage() string
}

var deniedFilePattern = regexp.MustCompile(`File ([A-Za-z0-9_-]+)`)

// IsPermissionDenied reports whether err is a permission failure.
func IsPermissionDenied(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusForbidden || apiErr.Status == "PERMISSION_DENIED" {
			return true
		}
	}
	var m apiMessager
	if errors.As(err, &m) {
		return mentionsPermission(m.APIMessage())
	}
	return false
}

// DeniedFileID extracts the id of the file named in a permission failure,
// e.g. "You do not have permission to access the File abc123 or it may not
// exist." The boolean is false when err is not such a failure or names no
// file.
func DeniedFileID(err error) (string, bool) {
	if !IsPermissionDenied(err) {
		return "", false
	}
	var m apiMessager
	if !errors.As(err, &m) {
		return "", false
	}
	match := deniedFilePattern.FindStringSubmatch(m.APIMessage())
	if match == nil {
		return "", false
	}
	return match[1], true
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func mentionsPermission(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "permission") || strings.Contains(msg, "forbidden")
}

// readAPIError builds an APIError from a failed response, reading at most
// 64KiB of the body.
func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if e := gjson.GetBytes(body, "error"); e.Exists() {
		apiErr.Code = int(e.Get("code").Int())
		apiErr.Status = e.Get("status").String()
		apiErr.Message = e.Get("message").String()
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
