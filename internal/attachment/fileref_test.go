package attachment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIDSegment(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"https://generativelanguage.googleapis.com/v1beta/files/abc12345", "abc12345"},
		{"https://generativelanguage.googleapis.com/v1beta/files/abc12345/", "abc12345"},
		{"https://generativelanguage.googleapis.com/v1beta/files/abc12345?alt=media", "abc12345"},
		{"files/xyz98765", "xyz98765"},
		{"plainid", "plainid"},
		{"  https://host/files/spaced01  ", "spaced01"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, IDSegment(tt.uri))
		})
	}
}

func TestSameFileByIDSegment(t *testing.T) {
	a := FileRef{URI: "https://host/v1beta/files/abc12345", DisplayName: "cv.pdf"}
	b := FileRef{URI: "https://other/v1/files/abc12345?x=1", DisplayName: "resume.pdf", MimeType: "application/pdf"}
	assert.Equal(t, a.ID(), b.ID())
}

func TestNormalize(t *testing.T) {
	t.Run("gemini uri with string size", func(t *testing.T) {
		ref, ok := Normalize(Descriptor{
			"geminiUri":        "https://generativelanguage.googleapis.com/v1beta/files/abc12345",
			"mimeType":         "application/pdf",
			"fileName":         "portfolio.pdf",
			"size":             "2048",
			"geminiUploadTime": int64(1700000000000),
		}, "")
		assert.True(t, ok)
		assert.Equal(t, "abc12345", ref.ID())
		assert.Equal(t, "portfolio.pdf", ref.DisplayName)
		assert.Equal(t, int64(2048), ref.SizeBytes)
		assert.Equal(t, time.UnixMilli(1700000000000), ref.UploadedAt)
	})

	t.Run("id only with base uri", func(t *testing.T) {
		ref, ok := Normalize(Descriptor{"name": "files/def67890"}, "https://generativelanguage.googleapis.com/v1beta")
		assert.True(t, ok)
		assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta/files/def67890", ref.URI)
		assert.Equal(t, "application/octet-stream", ref.MimeType)
	})

	t.Run("rfc3339 expiry", func(t *testing.T) {
		ref, ok := Normalize(Descriptor{
			"uri":            "files/ghi13579",
			"expirationTime": "2024-01-02T15:04:05Z",
		}, "")
		assert.True(t, ok)
		assert.Equal(t, 2024, ref.ExpiresAt.Year())
	})

	t.Run("no uri and no base", func(t *testing.T) {
		_, ok := Normalize(Descriptor{"driveFileId": "1AbCdEfGh"}, "")
		assert.False(t, ok)
	})

	t.Run("normalize all drops unusable", func(t *testing.T) {
		refs := NormalizeAll([]Descriptor{
			{"uri": "files/abc12345"},
			{"displayName": "orphan"},
		}, "")
		assert.Len(t, refs, 1)
	})
}

func TestBlacklist(t *testing.T) {
	bl := NewBlacklist()
	assert.True(t, bl.Add("b1234567"))
	assert.True(t, bl.Add("a1234567"))
	assert.False(t, bl.Add("a1234567"))
	assert.False(t, bl.Add(""))

	assert.True(t, bl.Contains("a1234567"))
	assert.Equal(t, []string{"a1234567", "b1234567"}, bl.List())

	bl.Clear()
	assert.Equal(t, 0, bl.Len())
	assert.False(t, bl.Contains("a1234567"))

	var nilList *Blacklist
	assert.False(t, nilList.Contains("x"))
}
