package crawler

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipped elements never contribute text
var skipped = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Header:   true,
	atom.Aside:    true,
	atom.Form:     true,
}

// blocks end a line of text
var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Br: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.Section: true, atom.Tr: true,
}

// ExtractJob extracts the title and main text of a job posting. The title
// prefers og:title, then the first h1, then <title>. Text comes from
// <main> or <article> when present, otherwise from <body>.
func ExtractJob(htmlContent []byte, maxWords int) (title string, text string, err error) {
	doc, err := html.Parse(bytes.NewReader(htmlContent))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	title = metaContent(doc, "og:title")
	if title == "" {
		if h1 := find(doc, atom.H1); h1 != nil {
			title = cleanText(getNodeText(h1))
		}
	}
	if title == "" {
		if t := find(doc, atom.Title); t != nil {
			title = cleanText(getNodeText(t))
		}
	}

	root := find(doc, atom.Main)
	if root == nil {
		root = find(doc, atom.Article)
	}
	if root == nil {
		root = doc
	}

	var b strings.Builder
	extractBodyText(root, &b)

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = cleanText(line); line != "" {
			lines = append(lines, line)
		}
	}
	text = truncateWords(strings.Join(lines, "\n"), maxWords)

	return title, text, nil
}

// find returns the first element with the given atom, depth first.
func find(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, a); found != nil {
			return found
		}
	}
	return nil
}

// metaContent returns the content of <meta property=prop>.
func metaContent(n *html.Node, prop string) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
		var property, content string
		for _, attr := range n.Attr {
			switch attr.Key {
			case "property", "name":
				property = attr.Val
			case "content":
				content = attr.Val
			}
		}
		if property == prop {
			return strings.TrimSpace(content)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if v := metaContent(c, prop); v != "" {
			return v
		}
	}
	return ""
}

// extractBodyText writes the visible text under n, one block per line.
func extractBodyText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode && skipped[n.DataAtom] {
		return
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteString(" ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractBodyText(c, b)
	}
	if n.Type == html.ElementNode && blocks[n.DataAtom] {
		b.WriteString("\n")
	}
}

// getNodeText extracts all text from a node and its children
func getNodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}

	var text strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		text.WriteString(getNodeText(c))
	}
	return text.String()
}

// cleanText collapses runs of whitespace
func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// truncateWords truncates text to approximately maxWords words, keeping
// line breaks. maxWords <= 0 disables truncation.
func truncateWords(text string, maxWords int) string {
	if maxWords <= 0 || wordCount(text) <= maxWords {
		return text
	}

	var out []string
	remaining := maxWords
	for _, line := range strings.Split(text, "\n") {
		words := strings.Fields(line)
		if len(words) >= remaining {
			out = append(out, strings.Join(words[:remaining], " ")+"...")
			break
		}
		out = append(out, line)
		remaining -= len(words)
	}
	return strings.Join(out, "\n")
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func joinParagraphs(texts []string) string {
	return strings.Join(texts, "\n\n")
}

// ReadLimitedBody reads up to maxBytes from a reader. maxBytes <= 0 reads
// everything.
func ReadLimitedBody(body io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(body)
	}
	return io.ReadAll(io.LimitReader(body, maxBytes))
}
