package terminal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Reader reads user input line by line.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps in.
func NewReader(in io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(in)}
}

// ReadLine reads a line of input from the user. A trailing backslash
// continues the message on the next line.
func (r *Reader) ReadLine() (string, error) {
	var lines []string
	for {
		input, err := r.r.ReadString('\n')
		if err != nil && (err != io.EOF || input == "") {
			if len(lines) > 0 {
				return strings.Join(lines, "\n"), nil
			}
			return "", err
		}

		// Trim whitespace and newline
		line := strings.TrimRight(input, "\r\n")
		if cont, ok := strings.CutSuffix(line, "\\"); ok && err == nil {
			lines = append(lines, cont)
			continue
		}
		lines = append(lines, line)
		return strings.TrimSpace(strings.Join(lines, "\n")), nil
	}
}

// Command is a parsed /command line.
type Command struct {
	Name string
	Args []string
}

// Arg returns the i-th argument or "".
func (c Command) Arg(i int) string {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return ""
}

// Rest returns the arguments from i joined by spaces.
func (c Command) Rest(i int) string {
	if i >= len(c.Args) {
		return ""
	}
	return strings.Join(c.Args[i:], " ")
}

// ParseCommand parses a line starting with "/". Bare "exit" and "quit" are
// accepted too.
func ParseCommand(line string) (Command, bool) {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "exit", "quit":
		return Command{Name: "exit"}, true
	}
	if !strings.HasPrefix(line, "/") || len(line) == 1 {
		return Command{}, false
	}

	fields := strings.Fields(line[1:])
	cmd := Command{Name: strings.ToLower(fields[0]), Args: fields[1:]}
	if cmd.Name == "quit" {
		cmd.Name = "exit"
	}
	return cmd, true
}

// ExtractFileRefs removes @path mentions that name existing files under
// workingDir and returns them. Mentions that match nothing stay in the
// text.
func ExtractFileRefs(workingDir, query string) (string, []string) {
	var (
		kept  []string
		paths []string
	)
	for _, word := range strings.Fields(query) {
		if strings.HasPrefix(word, "@") && len(word) > 1 {
			p := strings.Trim(strings.TrimPrefix(word, "@"), "\"',.;:!?")
			full := p
			if !filepath.IsAbs(full) {
				full = filepath.Join(workingDir, p)
			}
			if info, err := os.Stat(full); err == nil && !info.IsDir() {
				paths = append(paths, full)
				continue
			}
		}
		kept = append(kept, word)
	}
	return strings.Join(kept, " "), paths
}

// FindMatchingFiles searches for files matching the partial path after @
func FindMatchingFiles(workingDir string, partial string) []string {
	matches := []string{}

	// Determine search directory and pattern
	searchDir := workingDir
	pattern := strings.ToLower(partial)

	if strings.Contains(partial, "/") {
		dir, file := filepath.Split(partial)
		searchDir = filepath.Join(workingDir, dir)
		pattern = strings.ToLower(file)
	}

	_ = filepath.Walk(searchDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}

		relPath, err := filepath.Rel(workingDir, path)
		if err != nil || relPath == "." {
			return nil
		}

		// Skip hidden files and directories
		if strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !info.IsDir() {
			relPathLower := strings.ToLower(relPath)
			isMatch := partial == "" ||
				strings.Contains(relPathLower, pattern) ||
				strings.Contains(strings.ToLower(info.Name()), pattern)

			if isMatch && len(matches) < 100 {
				matches = append(matches, relPath)
			}
		}

		// Limit depth to avoid scanning too deep
		if info.IsDir() && strings.Count(relPath, string(filepath.Separator)) >= 4 {
			return filepath.SkipDir
		}
		return nil
	})

	return matches
}

// ShowFileSuggestions prints up to ten candidates for every @mention in
// query that does not name an existing file.
func ShowFileSuggestions(w io.Writer, workingDir string, query string) {
	for _, word := range strings.Fields(query) {
		if !strings.HasPrefix(word, "@") || len(word) < 2 {
			continue
		}
		partial := strings.Trim(strings.TrimPrefix(word, "@"), "\"'")

		matches := FindMatchingFiles(workingDir, partial)
		if len(matches) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n💡 File suggestions for '@%s':\n", partial)
		for i, match := range matches {
			if i == 10 {
				break
			}
			fmt.Fprintf(w, "   @%s\n", match)
		}
		fmt.Fprintln(w)
	}
}
