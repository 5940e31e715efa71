package stream

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Names of the strategies tried by Recover, in order.
const (
	StrategyDirect    = "direct"
	StrategyStrip     = "strip"
	StrategyPrefix    = "prefix"
	StrategySplit     = "split"
	StrategyAutoClose = "autoclose"
)

// Recover parses line as one or more JSON documents, applying the
// recovery strategies in order and stopping at the first that yields a
// document. It returns the documents and the name of the strategy used.
func Recover(line string) ([]gjson.Result, string, bool) {
	if doc, ok := ParseDirect(line); ok {
		return []gjson.Result{doc}, StrategyDirect, true
	}

	cleaned := StripArtifacts(line)
	if doc, ok := ParseDirect(cleaned); ok {
		return []gjson.Result{doc}, StrategyStrip, true
	}
	if doc, ok := ParseBalancedPrefix(cleaned); ok {
		return []gjson.Result{doc}, StrategyPrefix, true
	}
	if docs := ParseSplit(cleaned); len(docs) > 0 {
		return docs, StrategySplit, true
	}
	if doc, ok := ParseAutoClosed(cleaned); ok {
		return []gjson.Result{doc}, StrategyAutoClose, true
	}
	return nil, "", false
}

// ParseDirect parses s as a single JSON object or array.
func ParseDirect(s string) (gjson.Result, bool) {
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return gjson.Result{}, false
	}
	if !gjson.Valid(s) {
		return gjson.Result{}, false
	}
	return gjson.Parse(s), true
}

// StripArtifacts removes leftovers of stream framing: repeated "data:"
// prefixes, a byte-order mark, control characters, leading and trailing
// commas, and commas directly before a closing brace or bracket.
func StripArtifacts(s string) string {
	s = strings.TrimSpace(s)
	for {
		rest, ok := strings.CutPrefix(s, "data:")
		if !ok {
			break
		}
		s = strings.TrimSpace(rest)
	}
	s = strings.TrimPrefix(s, "\ufeff")

	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)

	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, ", ")
	s = strings.TrimRight(s, ", ")

	return dropDanglingCommas(s)
}

// dropDanglingCommas removes commas that are followed (after optional
// spaces) by '}' or ']', outside of strings.
func dropDanglingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	var sc scanner
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ',' && !sc.inString {
			j := i + 1
			for j < len(s) && s[j] == ' ' {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		sc.step(c)
		b.WriteByte(c)
	}
	return b.String()
}

// BalancedPrefix returns the longest prefix of s, starting at its first
// '{' or '[', that ends where nesting depth returns to zero. Scanning stops
// at the first mismatched closer.
func BalancedPrefix(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}

	var sc scanner
	end := -1
	for i := start; i < len(s); i++ {
		switch sc.step(s[i]) {
		case stepClose:
			if sc.depth() == 0 {
				end = i + 1
			}
		case stepMismatch:
			i = len(s)
		}
	}
	if end < 0 {
		return "", false
	}
	return s[start:end], true
}

// ParseBalancedPrefix parses the BalancedPrefix of s.
func ParseBalancedPrefix(s string) (gjson.Result, bool) {
	prefix, ok := BalancedPrefix(s)
	if !ok {
		return gjson.Result{}, false
	}
	return ParseDirect(prefix)
}

// SplitObjects returns every top-level balanced run of s, i.e. each span
// where depth goes from zero to open and back to zero. Text between runs
// is ignored; a mismatched closer discards the run in progress.
func SplitObjects(s string) []string {
	var (
		sc    scanner
		out   []string
		start = -1
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if sc.depth() == 0 && !sc.inString && c != '{' && c != '[' {
			continue
		}
		switch sc.step(c) {
		case stepOpen:
			if sc.depth() == 1 {
				start = i
			}
		case stepClose:
			if sc.depth() == 0 && start >= 0 {
				if seg := s[start : i+1]; closesWith(seg) {
					out = append(out, seg)
				}
				start = -1
			}
		case stepMismatch:
			sc = scanner{}
			start = -1
		}
	}
	return out
}

func closesWith(seg string) bool {
	if len(seg) < 2 {
		return false
	}
	first, last := seg[0], seg[len(seg)-1]
	return (first == '{' && last == '}') || (first == '[' && last == ']')
}

// ParseSplit parses each SplitObjects segment independently, keeping the
// ones that are valid. It only succeeds when it finds more than nothing.
func ParseSplit(s string) []gjson.Result {
	var docs []gjson.Result
	for _, seg := range SplitObjects(s) {
		if doc, ok := ParseDirect(seg); ok {
			docs = append(docs, doc)
		}
	}
	return docs
}

// AutoClose balances a truncated value by closing an open string and
// appending the missing closers in nesting order. It returns false if s
// has nothing to close or contains a mismatched closer.
func AutoClose(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	s = s[start:]

	var sc scanner
	for i := 0; i < len(s); i++ {
		if sc.step(s[i]) == stepMismatch {
			return "", false
		}
	}
	if sc.depth() == 0 && !sc.inString {
		return "", false
	}

	var b strings.Builder
	if sc.inString {
		if sc.escaped {
			s = s[:len(s)-1]
		}
		b.WriteString(s)
		b.WriteByte('"')
	} else {
		s = strings.TrimRight(s, " ,")
		b.WriteString(s)
		if strings.HasSuffix(s, ":") {
			b.WriteString("null")
		}
	}
	for i := len(sc.stack) - 1; i >= 0; i-- {
		b.WriteByte(sc.stack[i])
	}
	return b.String(), true
}

// ParseAutoClosed parses the AutoClose repair of s.
func ParseAutoClosed(s string) (gjson.Result, bool) {
	closed, ok := AutoClose(s)
	if !ok {
		return gjson.Result{}, false
	}
	return ParseDirect(closed)
}

type stepKind int

const (
	stepOther stepKind = iota
	stepOpen
	stepClose
	stepMismatch
)

// scanner tracks JSON nesting and string state one byte at a time.
type scanner struct {
	stack    []byte // expected closers, innermost last
	inString bool
	escaped  bool
}

func (sc *scanner) depth() int { return len(sc.stack) }

func (sc *scanner) step(c byte) stepKind {
	if sc.inString {
		switch {
		case sc.escaped:
			sc.escaped = false
		case c == '\\':
			sc.escaped = true
		case c == '"':
			sc.inString = false
		}
		return stepOther
	}

	switch c {
	case '"':
		sc.inString = true
	case '{':
		sc.stack = append(sc.stack, '}')
		return stepOpen
	case '[':
		sc.stack = append(sc.stack, ']')
		return stepOpen
	case '}', ']':
		if len(sc.stack) == 0 || sc.stack[len(sc.stack)-1] != c {
			return stepMismatch
		}
		sc.stack = sc.stack[:len(sc.stack)-1]
		return stepClose
	}
	return stepOther
}
