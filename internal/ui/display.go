package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"gig-copilot/internal/attachment"
	"gig-copilot/internal/chat"
	"gig-copilot/internal/history"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 2)

	metaStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	thinkingStyle = lipgloss.NewStyle().Faint(true).Italic(true)
	promptStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	userStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	modelStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("135"))
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Display renders the chat in the terminal. It implements chat.Renderer:
// deltas stream as raw text and the finished reply is re-rendered as
// markdown.
type Display struct {
	out          io.Writer
	width        int
	showThinking bool
	renderer     *glamour.TermRenderer

	mu          sync.Mutex
	startTime   time.Time
	inThinking  bool
	answerBegun bool
	response    strings.Builder
}

var _ chat.Renderer = (*Display)(nil)
var _ chat.RetryNotifier = (*Display)(nil)

// NewDisplay creates a display writing to out. markdown enables the final
// glamour render.
func NewDisplay(out io.Writer, showThinking, markdown bool) *Display {
	width := terminalWidth()

	d := &Display{out: out, width: width, showThinking: showThinking}
	if markdown {
		// Create markdown renderer
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(min(width, 100)-4),
		)
		if err == nil {
			d.renderer = r
		}
	}
	return d
}

// PrintWelcome displays the banner.
func (d *Display) PrintWelcome(model, sessionID string) {
	fmt.Fprintln(d.out, titleStyle.Render("gig-copilot · freelance replies with Gemini"))
	fmt.Fprintln(d.out, metaStyle.Render(fmt.Sprintf("Model: %s · Session: %s", model, shortID(sessionID))))
	fmt.Fprintln(d.out, metaStyle.Render("Commands: /help /new /attach /detach /files /template /job /blacklist /history /exit"))
	fmt.Fprintln(d.out, metaStyle.Render("Attach local files inline with @path (e.g. \"review @cv.md\")"))
	fmt.Fprintln(d.out)
}

// PrintPrompt displays the input prompt.
func (d *Display) PrintPrompt() {
	fmt.Fprint(d.out, "\n"+promptStyle.Render("❯")+" ")
}

// StartReply prints the reply header and resets per-reply state.
func (d *Display) StartReply() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.startTime = time.Now()
	d.inThinking = false
	d.answerBegun = false
	d.response.Reset()

	fmt.Fprintf(d.out, "\n%s %s\n", modelStyle.Render("Gemini"), metaStyle.Render(d.startTime.Format("15:04:05")))
}

// OnThinking writes reasoning text, dimmed, when enabled.
func (d *Display) OnThinking(text string) {
	if !d.showThinking {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inThinking = true
	fmt.Fprint(d.out, thinkingStyle.Render(text))
}

// OnDelta streams answer text.
func (d *Display) OnDelta(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inThinking && !d.answerBegun {
		fmt.Fprintf(d.out, "\n%s\n", metaStyle.Render("─── answer ───"))
	}
	d.answerBegun = true
	d.response.WriteString(text)
	fmt.Fprint(d.out, text)
}

// OnRetry reports that the streamed text was discarded.
func (d *Display) OnRetry(attempt int, evicted string, fallback bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.answerBegun {
		fmt.Fprintln(d.out)
	}
	d.answerBegun = false
	d.response.Reset()

	switch {
	case fallback:
		fmt.Fprintln(d.out, warningStyle.Render(fmt.Sprintf("⚠ attempt %d: attachments are not accessible, retrying without any", attempt)))
	case evicted != "":
		fmt.Fprintln(d.out, warningStyle.Render(fmt.Sprintf("⚠ attempt %d: file %s is not accessible, removed and retrying", attempt, evicted)))
	default:
		fmt.Fprintln(d.out, warningStyle.Render(fmt.Sprintf("⚠ attempt %d failed, retrying", attempt)))
	}
}

// OnComplete renders the final reply and its metadata.
func (d *Display) OnComplete(reply chat.Reply) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fmt.Fprintln(d.out)
	if d.renderer != nil && d.response.Len() > 0 {
		rendered, err := d.renderer.Render(d.response.String())
		if err == nil {
			fmt.Fprintln(d.out)
			fmt.Fprint(d.out, rendered)
		}
	}

	meta := []string{formatDuration(time.Since(d.startTime))}
	if reply.Usage.TotalTokens > 0 {
		meta = append(meta, fmt.Sprintf("%d tokens", reply.Usage.TotalTokens))
	}
	if n := len(reply.Attachments); n > 0 {
		meta = append(meta, fmt.Sprintf("%d file(s) attached", n))
	}
	if reply.Attempts > 1 {
		meta = append(meta, fmt.Sprintf("%d attempts", reply.Attempts))
	}
	if reply.Fallback {
		meta = append(meta, "sent without attachments")
	}
	if reply.FinishReason != "" && reply.FinishReason != "STOP" {
		meta = append(meta, "finish: "+strings.ToLower(reply.FinishReason))
	}
	fmt.Fprintln(d.out, metaStyle.Render(strings.Join(meta, " · ")))

	for _, name := range reply.Missing {
		fmt.Fprintln(d.out, warningStyle.Render(fmt.Sprintf("⚠ template attachment %q is not in the knowledge store", name)))
	}
}

// OnError prints a readable failure. Text already received stays on
// screen.
func (d *Display) OnError(err error, partial string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if partial != "" {
		fmt.Fprintln(d.out)
		fmt.Fprintln(d.out, metaStyle.Render("(reply interrupted)"))
	}
	fmt.Fprintln(d.out, errorStyle.Render("✗ "+chat.UserMessage(err)))
}

// PrintFiles lists file references.
func (d *Display) PrintFiles(title string, refs []attachment.FileRef) {
	if len(refs) == 0 {
		d.PrintInfo(title + ": none")
		return
	}
	fmt.Fprintln(d.out, infoStyle.Render(fmt.Sprintf("%s (%d):", title, len(refs))))
	for _, r := range refs {
		line := fmt.Sprintf("  • %-24s %s", truncate(r.Label(), 24), r.ID())
		if r.MimeType != "" {
			line += "  " + r.MimeType
		}
		if !r.ExpiresAt.IsZero() {
			line += "  expires " + r.ExpiresAt.Local().Format("Jan 2 15:04")
		}
		fmt.Fprintln(d.out, line)
	}
}

// PrintTurns shows the conversation so far.
func (d *Display) PrintTurns(turns []history.Turn) {
	if len(turns) == 0 {
		d.PrintInfo("No messages yet")
		return
	}
	for _, t := range turns {
		label := userStyle.Render("You")
		if t.Role == history.RoleModel {
			label = modelStyle.Render("Gemini")
		}
		fmt.Fprintf(d.out, "%s %s\n", label, metaStyle.Render(t.Timestamp.Local().Format("15:04:05")))
		fmt.Fprintln(d.out, truncate(t.Text(), 300))
		for _, f := range t.Files() {
			fmt.Fprintln(d.out, metaStyle.Render("  📎 "+f.Label()))
		}
	}
}

// PrintInfo displays info message
func (d *Display) PrintInfo(msg string) {
	fmt.Fprintln(d.out, infoStyle.Render("ℹ "+msg))
}

// PrintWarning displays warning message
func (d *Display) PrintWarning(msg string) {
	fmt.Fprintln(d.out, warningStyle.Render("⚠ "+msg))
}

// PrintError displays error message
func (d *Display) PrintError(err error) {
	fmt.Fprintln(d.out, errorStyle.Render("✗ "+chat.UserMessage(err)))
}

// PrintSuccess displays success message
func (d *Display) PrintSuccess(msg string) {
	fmt.Fprintln(d.out, successStyle.Render("✓ "+msg))
}

// PrintGoodbye displays goodbye message
func (d *Display) PrintGoodbye() {
	fmt.Fprintln(d.out, "\n"+infoStyle.Render("Good luck with the gig! 👋"))
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}
