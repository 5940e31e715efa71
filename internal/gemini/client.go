package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// Default endpoints of the Generative Language API.
const (
	DefaultBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	DefaultUploadURL = "https://generativelanguage.googleapis.com/upload/v1beta"
)

// Options configure a Client.
type Options struct {
	BaseURL   string
	UploadURL string
	APIKey    string
	// Timeout bounds unary calls. Streaming calls are bounded only by
	// their context.
	Timeout time.Duration
	// RequestsPerMinute throttles outgoing calls; 0 disables throttling.
	RequestsPerMinute int
	Log               *slog.Logger
}

// Client handles communication with the Gemini API
type Client struct {
	baseURL         string
	uploadURL       string
	apiKey          string
	httpClient      *http.Client
	streamingClient *http.Client
	limiter         *rate.Limiter
	log             *slog.Logger
}

// NewClient creates a new Gemini client
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UploadURL == "" {
		opts.UploadURL = DefaultUploadURL
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}

	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}

	return &Client{
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		uploadURL:       strings.TrimRight(opts.UploadURL, "/"),
		apiKey:          opts.APIKey,
		httpClient:      &http.Client{Timeout: opts.Timeout},
		streamingClient: &http.Client{},
		limiter:         rate.NewLimiter(limit, 1),
		log:             opts.Log,
	}
}

// BaseURL returns the API base, used to build file URIs from bare ids.
func (c *Client) BaseURL() string { return c.baseURL }

// StreamGenerateContent starts a streaming generation and returns the raw
// server-sent event body. The caller must close it.
func (c *Client) StreamGenerateContent(ctx context.Context, model string, req GenerateRequest) (io.ReadCloser, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.endpoint(c.baseURL, "models/"+model+":streamGenerateContent", url.Values{"alt": {"sse"}})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	c.log.Debug("starting stream", "model", model, "contents", len(req.Contents))

	resp, err := c.do(ctx, c.streamingClient, httpReq)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// GetFile fetches a file's metadata.
func (c *Client) GetFile(ctx context.Context, id string) (*File, error) {
	endpoint := c.endpoint(c.baseURL, "files/"+url.PathEscape(id), nil)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.do(ctx, c.httpClient, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var f File
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &f, nil
}

// ProbeFile checks that file id is accessible, giving up after timeout.
// A timeout yields ErrProbeTimeout; an explicit denial yields the
// service's error.
func (c *Client) ProbeFile(ctx context.Context, id string, timeout time.Duration) error {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := c.GetFile(probeCtx, id)
	if err != nil && errors.Is(probeCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: %s", ErrProbeTimeout, id)
	}
	return err
}

// ListFiles returns the files uploaded with this key.
func (c *Client) ListFiles(ctx context.Context) ([]File, error) {
	var files []File
	pageToken := ""
	for {
		q := url.Values{"pageSize": {"100"}}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.baseURL, "files", q), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.do(ctx, c.httpClient, httpReq)
		if err != nil {
			return nil, err
		}
		var page struct {
			Files         []File `json:"files"`
			NextPageToken string `json:"nextPageToken"`
		}
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}

		files = append(files, page.Files...)
		if page.NextPageToken == "" {
			return files, nil
		}
		pageToken = page.NextPageToken
	}
}

// DeleteFile removes an uploaded file.
func (c *Client) DeleteFile(ctx context.Context, id string) error {
	endpoint := c.endpoint(c.baseURL, "files/"+url.PathEscape(id), nil)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.do(ctx, c.httpClient, httpReq)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// ListModels returns the names of the models that support generation.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.baseURL, "models", nil), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.do(ctx, c.httpClient, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var models []string
	gjson.GetBytes(body, "models").ForEach(func(_, m gjson.Result) bool {
		for _, method := range m.Get("supportedGenerationMethods").Array() {
			if method.String() == "generateContent" {
				models = append(models, strings.TrimPrefix(m.Get("name").String(), "models/"))
				break
			}
		}
		return true
	})
	return models, nil
}

// HealthCheck verifies that the API is reachable and the key is accepted.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := c.ListModels(ctx); err != nil {
		return fmt.Errorf("Gemini is unreachable at %s: %w", c.baseURL, err)
	}
	return nil
}

// endpoint joins base and path and appends the API key to the query.
func (c *Client) endpoint(base, path string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	u := base + "/" + strings.TrimLeft(path, "/")
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// do waits for the rate limiter, sends req and converts non-2xx responses
// into *APIError. On success the caller owns resp.Body.
func (c *Client) do(ctx context.Context, hc *http.Client, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		apiErr := readAPIError(resp)
		c.log.Debug("request rejected", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode)
		return nil, apiErr
	}
	return resp, nil
}
