package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
)

// Upload describes a file to send to the Files API.
type Upload struct {
	DisplayName string
	MimeType    string
	Content     io.Reader
}

// UploadFile uploads u with a single multipart request and returns the
// created file.
func (c *Client) UploadFile(ctx context.Context, u Upload) (*File, error) {
	if u.MimeType == "" {
		u.MimeType = "application/octet-stream"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	meta, err := json.Marshal(map[string]any{
		"file": map[string]string{"displayName": u.DisplayName},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	metaPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := metaPart.Write(meta); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	dataPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {u.MimeType}})
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(dataPart, u.Content); err != nil {
		return nil, fmt.Errorf("failed to read upload content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	endpoint := c.endpoint(c.uploadURL, "files", url.Values{"uploadType": {"multipart"}})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())
	httpReq.Header.Set("X-Goog-Upload-Protocol", "multipart")

	resp, err := c.do(ctx, c.streamingClient, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		File File `json:"file"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	c.log.Info("file uploaded", "id", result.File.ID(), "name", u.DisplayName, "mimeType", u.MimeType)
	return &result.File, nil
}

// UploadPath uploads the file at path, guessing its MIME type from the
// extension.
func (c *Client) UploadPath(ctx context.Context, path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return c.UploadFile(ctx, Upload{
		DisplayName: filepath.Base(path),
		MimeType:    MimeType(path),
		Content:     f,
	})
}

// MimeType returns the MIME type for path's extension, defaulting to
// application/octet-stream.
func MimeType(path string) string {
	ext := filepath.Ext(path)
	switch ext {
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
		return t
	}
	return "application/octet-stream"
}
