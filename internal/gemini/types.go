package gemini

import (
	"gig-copilot/internal/attachment"
)

// Roles used in Content.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// GenerateRequest is the body of a generateContent call.
type GenerateRequest struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// Content is one conversation turn.
type Content struct {
	Role  string `json:"role,omitempty"` // "user" or "model"
	Parts []Part `json:"parts"`
}

// Part is either text or a reference to an uploaded file.
type Part struct {
	Text     string    `json:"text,omitempty"`
	FileData *FileData `json:"fileData,omitempty"`
}

// FileData references a file previously uploaded through the Files API.
type FileData struct {
	MimeType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

// GenerationConfig tunes sampling.
type GenerationConfig struct {
	Temperature     *float64        `json:"temperature,omitempty"`
	MaxOutputTokens int             `json:"maxOutputTokens,omitempty"`
	CandidateCount  int             `json:"candidateCount,omitempty"`
	ThinkingConfig  *ThinkingConfig `json:"thinkingConfig,omitempty"`
}

// ThinkingConfig asks thinking models to stream their reasoning.
type ThinkingConfig struct {
	IncludeThoughts bool `json:"includeThoughts,omitempty"`
}

// TextPart returns a text part.
func TextPart(s string) Part { return Part{Text: s} }

// FilePart returns a file part for ref.
func FilePart(ref attachment.FileRef) Part {
	return Part{FileData: &FileData{MimeType: ref.MimeType, FileURI: ref.URI}}
}

// File is the Files API resource.
type File struct {
	Name           string `json:"name"` // "files/<id>"
	DisplayName    string `json:"displayName,omitempty"`
	MimeType       string `json:"mimeType,omitempty"`
	SizeBytes      string `json:"sizeBytes,omitempty"`
	CreateTime     string `json:"createTime,omitempty"`
	ExpirationTime string `json:"expirationTime,omitempty"`
	URI            string `json:"uri,omitempty"`
	State          string `json:"state,omitempty"`
	SHA256Hash     string `json:"sha256Hash,omitempty"`
}

// ID returns the file's id segment.
func (f File) ID() string {
	if f.URI != "" {
		return attachment.IDSegment(f.URI)
	}
	return attachment.IDSegment(f.Name)
}

// Ref converts f into an attachment reference. baseURL is used when the
// service did not return a URI.
func (f File) Ref(baseURL string) (attachment.FileRef, bool) {
	return attachment.Normalize(attachment.Descriptor{
		"uri":            f.URI,
		"name":           f.Name,
		"mimeType":       f.MimeType,
		"displayName":    f.DisplayName,
		"sizeBytes":      f.SizeBytes,
		"createTime":     f.CreateTime,
		"expirationTime": f.ExpirationTime,
	}, baseURL)
}
