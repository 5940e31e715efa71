package attachment

import (
	"strings"
	"time"

	"github.com/spf13/cast"
)

// FileRef is a remote file that can be attached to a request. URI is the
// only stable identity; see IDSegment.
type FileRef struct {
	URI         string    `json:"uri"`
	MimeType    string    `json:"mime_type"`
	DisplayName string    `json:"display_name,omitempty"`
	SizeBytes   int64     `json:"size_bytes,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// ID returns the id segment of the file's URI.
func (f FileRef) ID() string {
	return IDSegment(f.URI)
}

// Label returns a short human-readable name for logs and listings.
func (f FileRef) Label() string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return f.ID()
}

// IDSegment returns the final path component of uri, ignoring any query,
// fragment or trailing slash. Two refs are the same file iff their id
// segments match.
func IDSegment(uri string) string {
	uri = strings.TrimSpace(uri)
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	uri = strings.TrimRight(uri, "/")
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

// Descriptor is a loosely typed file description as produced by stores,
// template resolution or older serialized state. Field names vary between
// producers; Normalize maps them onto FileRef.
type Descriptor map[string]any

var (
	uriKeys      = []string{"remoteUri", "geminiUri", "fileUri", "uri"}
	idKeys       = []string{"id", "geminiFileId", "driveFileId", "name"}
	mimeKeys     = []string{"mimeType", "mime_type", "type"}
	nameKeys     = []string{"displayName", "display_name", "fileName", "title"}
	sizeKeys     = []string{"sizeBytes", "size_bytes", "size"}
	uploadedKeys = []string{"uploadedAt", "uploadTime", "geminiUploadTime", "createTime"}
	expiresKeys  = []string{"expiresAt", "expirationTime", "expiration"}
)

// Normalize converts d into a FileRef. baseURI is used to build a URI when
// the descriptor only carries an id (e.g. "files/abc123" or "abc123");
// pass "" to require an explicit URI. The boolean is false when no URI
// could be derived.
func Normalize(d Descriptor, baseURI string) (FileRef, bool) {
	ref := FileRef{
		URI:         firstString(d, uriKeys),
		MimeType:    firstString(d, mimeKeys),
		DisplayName: firstString(d, nameKeys),
		SizeBytes:   firstInt64(d, sizeKeys),
		UploadedAt:  firstTime(d, uploadedKeys),
		ExpiresAt:   firstTime(d, expiresKeys),
	}

	if ref.URI == "" && baseURI != "" {
		if id := IDSegment(firstString(d, idKeys)); id != "" {
			ref.URI = strings.TrimRight(baseURI, "/") + "/files/" + id
		}
	}
	if ref.MimeType == "" {
		ref.MimeType = "application/octet-stream"
	}

	return ref, ref.URI != ""
}

// NormalizeAll converts every descriptor, dropping the ones without a URI.
func NormalizeAll(ds []Descriptor, baseURI string) []FileRef {
	refs := make([]FileRef, 0, len(ds))
	for _, d := range ds {
		if ref, ok := Normalize(d, baseURI); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

func firstString(d Descriptor, keys []string) string {
	for _, k := range keys {
		if v, ok := d[k]; ok {
			if s := strings.TrimSpace(cast.ToString(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstInt64(d Descriptor, keys []string) int64 {
	for _, k := range keys {
		if v, ok := d[k]; ok {
			if n, err := cast.ToInt64E(v); err == nil {
				return n
			}
		}
	}
	return 0
}

// firstTime accepts RFC3339 strings, time.Time values and epoch
// milliseconds.
func firstTime(d Descriptor, keys []string) time.Time {
	for _, k := range keys {
		v, ok := d[k]
		if !ok || v == nil {
			continue
		}
		switch x := v.(type) {
		case string:
			if t, err := cast.ToTimeE(x); err == nil {
				return t
			}
		case time.Time:
			return x
		default:
			if ms, err := cast.ToInt64E(x); err == nil && ms > 0 {
				return time.UnixMilli(ms)
			}
		}
	}
	return time.Time{}
}
