package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Page is the result of fetching a single job posting
type Page struct {
	URL      string
	Title    string
	Text     string
	Err      error
	Duration time.Duration
}

// Crawler fetches job-posting pages
type Crawler struct {
	httpClient *http.Client
	maxSize    int64
	userAgent  string
	maxWorkers int
	maxWords   int
	log        *slog.Logger
}

// Options configure a Crawler.
type Options struct {
	Timeout    time.Duration
	MaxWorkers int
	MaxSize    int64
	UserAgent  string
	// MaxWords truncates extracted text; 0 keeps everything.
	MaxWords int
	Log      *slog.Logger
}

// New creates a new crawler instance
func New(opts Options) *Crawler {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 1
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Crawler{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		maxSize:    opts.MaxSize,
		userAgent:  opts.UserAgent,
		maxWorkers: opts.MaxWorkers,
		maxWords:   opts.MaxWords,
		log:        opts.Log,
	}
}

// FetchAll fetches urls with at most MaxWorkers in flight. Results are in
// the order of urls; per-page failures are reported in Page.Err.
func (c *Crawler) FetchAll(ctx context.Context, urls []string) []Page {
	pages := make([]Page, len(urls))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxWorkers)
	for i, u := range urls {
		g.Go(func() error {
			pages[i] = c.Fetch(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	return pages
}

// Fetch fetches one page and extracts its title and text.
func (c *Crawler) Fetch(ctx context.Context, urlStr string) Page {
	start := time.Now()
	page := Page{URL: urlStr}

	fail := func(err error) Page {
		page.Err = err
		page.Duration = time.Since(start)
		c.log.Warn("page fetch failed", "url", urlStr, "error", err)
		return page
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return fail(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !isHTML(ct) {
		return fail(fmt.Errorf("non-HTML content type: %s", ct))
	}

	body, err := ReadLimitedBody(resp.Body, c.maxSize)
	if err != nil {
		return fail(fmt.Errorf("failed to read body: %w", err))
	}

	title, text, err := ExtractJob(body, c.maxWords)
	if err != nil {
		return fail(fmt.Errorf("failed to extract text: %w", err))
	}

	page.Title = title
	page.Text = text
	page.Duration = time.Since(start)
	c.log.Debug("page fetched", "url", urlStr, "title", title, "words", wordCount(text), "duration", page.Duration)
	return page
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// JobVars turns fetched pages into template variables: "title" is the
// first page's title, "text" joins every page's text, "urls" lists the
// pages that were fetched successfully.
func JobVars(pages []Page) map[string]any {
	vars := map[string]any{}
	var (
		texts []string
		urls  []string
	)
	for _, p := range pages {
		if p.Err != nil {
			continue
		}
		if _, ok := vars["title"]; !ok && p.Title != "" {
			vars["title"] = p.Title
		}
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
		urls = append(urls, p.URL)
	}
	if len(texts) > 0 {
		vars["text"] = joinParagraphs(texts)
	}
	if len(urls) > 0 {
		vars["urls"] = urls
	}
	return vars
}
