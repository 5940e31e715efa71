package crawler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gig-copilot/internal/logger"
)

const jobHTML = `<!doctype html>
<html><head>
<title>Site | Jobs</title>
<meta property="og:title" content="Build a Go CLI">
<script>var tracking = true;</script>
</head><body>
<header>Marketplace header</header>
<nav>Home Jobs</nav>
<main>
  <h1>Build a Go CLI</h1>
  <p>We need a   command line tool.</p>
  <ul><li>Budget: $500</li><li>Deadline: 2 weeks</li></ul>
</main>
<footer>Copyright</footer>
</body></html>`

func TestExtractJob(t *testing.T) {
	title, text, err := ExtractJob([]byte(jobHTML), 0)
	require.NoError(t, err)

	assert.Equal(t, "Build a Go CLI", title)
	assert.Equal(t, "Build a Go CLI\nWe need a command line tool.\nBudget: $500\nDeadline: 2 weeks", text)
	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, "Marketplace header")
	assert.NotContains(t, text, "Copyright")
}

func TestExtractJobTitleFallbacks(t *testing.T) {
	title, _, err := ExtractJob([]byte(`<html><head><title> Plain  title </title></head><body><p>x</p></body></html>`), 0)
	require.NoError(t, err)
	assert.Equal(t, "Plain title", title)

	title, text, err := ExtractJob([]byte(`<html><body><h1>Heading</h1><p>body text</p></body></html>`), 0)
	require.NoError(t, err)
	assert.Equal(t, "Heading", title)
	assert.Contains(t, text, "body text")
}

func TestTruncateWords(t *testing.T) {
	assert.Equal(t, "one two\nthree...", truncateWords("one two\nthree four five", 3))
	assert.Equal(t, "short", truncateWords("short", 3))
	assert.Equal(t, "a b c d", truncateWords("a b c d", 0))
}

func TestFetchAllKeepsOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/slow":
			time.Sleep(50 * time.Millisecond)
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			io.WriteString(w, `<html><head><title>Slow</title></head><body><p>slow job</p></body></html>`)
		case "/fast":
			w.Header().Set("Content-Type", "text/html")
			io.WriteString(w, jobHTML)
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(Options{Timeout: 5 * time.Second, MaxWorkers: 2, MaxSize: 1 << 20, UserAgent: "test", Log: logger.Discard()})
	pages := c.FetchAll(context.Background(), []string{srv.URL + "/slow", srv.URL + "/fast", srv.URL + "/json", srv.URL + "/missing"})

	require.Len(t, pages, 4)
	assert.Equal(t, "Slow", pages[0].Title)
	assert.Equal(t, "Build a Go CLI", pages[1].Title)
	assert.ErrorContains(t, pages[2].Err, "non-HTML")
	assert.ErrorContains(t, pages[3].Err, "HTTP 404")

	vars := JobVars(pages)
	assert.Equal(t, "Slow", vars["title"])
	assert.True(t, strings.HasPrefix(vars["text"].(string), "slow job\n\nBuild a Go CLI"))
	assert.Equal(t, []string{srv.URL + "/slow", srv.URL + "/fast"}, vars["urls"])
}

func TestJobVarsEmpty(t *testing.T) {
	assert.Empty(t, JobVars(nil))
}
