package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"gig-copilot/internal/attachment"
	"gig-copilot/internal/chat"
	"gig-copilot/internal/crawler"
	"gig-copilot/internal/history"
	"gig-copilot/internal/knowledge"
	"gig-copilot/internal/logger"
	"gig-copilot/internal/terminal"
	"gig-copilot/internal/ui"
)

var (
	showThinking bool
	noMarkdown   bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session.

Type a message to send it. Mention local files with @path to upload and
attach them. Lines starting with / are commands; type /help to list them.`,
	RunE: runChat,
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, chatCmd} {
		c.Flags().BoolVar(&showThinking, "show-thinking", false, "Show the model's reasoning while it streams")
		c.Flags().BoolVar(&noMarkdown, "no-markdown", false, "Do not re-render finished replies as markdown")
	}
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	display := ui.NewDisplay(os.Stdout, showThinking, !noMarkdown)

	if err := a.client.HealthCheck(ctx); err != nil {
		display.PrintError(err)
		display.PrintInfo("Check GIG_API_KEY and your network connection")
		return err
	}

	archive := history.NewManager(a.cfg.HistoryPath, a.cfg.MaxHistorySize)
	if err := archive.Load(); err != nil {
		display.PrintWarning(fmt.Sprintf("Failed to load history: %v", err))
	}

	temperature := a.cfg.Temperature
	session := chat.NewSession(chat.Options{
		Model:            a.cfg.ModelName,
		SystemPrompt:     a.cfg.SystemPrompt,
		Temperature:      &temperature,
		MaxOutputTokens:  a.cfg.MaxOutputTokens,
		IncludeThoughts:  showThinking,
		MaxAttempts:      a.cfg.MaxAttempts,
		ProbeAttachments: a.cfg.ProbeAttachments,
		ProbeTimeout:     a.cfg.ProbeTimeout,
		IncludeKnowledge: a.cfg.IncludeKnowledge,
		Validator:        a.validator,
	}, chat.Deps{
		Generator: a.client,
		Prober:    a.client,
		Templates: a.templates,
		Knowledge: a.store,
		Archive:   archive,
	})

	wd, _ := os.Getwd()
	r := &repl{
		app:     a,
		session: session,
		display: display,
		spinner: terminal.NewSpinner(os.Stdout),
		input:   terminal.NewReader(os.Stdin),
		out:     os.Stdout,
		wd:      wd,
		crawler: crawler.New(crawler.Options{
			Timeout:    a.cfg.FetchTimeout,
			MaxWorkers: a.cfg.MaxFetchers,
			MaxSize:    a.cfg.MaxContentSize,
			UserAgent:  a.cfg.UserAgent,
			MaxWords:   1500,
			Log:        logger.WithComponent("crawler"),
		}),
	}

	display.PrintWelcome(a.cfg.ModelName, session.ID())
	r.loop(ctx)
	display.PrintGoodbye()
	return nil
}

// repl is the interactive loop.
type repl struct {
	app     *app
	session *chat.Session
	display *ui.Display
	spinner *terminal.Spinner
	input   *terminal.Reader
	out     io.Writer
	wd      string
	crawler *crawler.Crawler

	// job holds the variables of the last /job fetch
	job map[string]any
}

func (r *repl) loop(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := r.input.ReadLine()
			if err != nil {
				return
			}
			lines <- line
		}
	}()

	for {
		r.display.PrintPrompt()

		var line string
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = l
		}

		if line == "" {
			continue
		}
		if cmd, ok := terminal.ParseCommand(line); ok {
			if cmd.Name == "exit" {
				return
			}
			r.command(ctx, cmd)
			continue
		}
		r.message(ctx, line)
	}
}

func (r *repl) message(ctx context.Context, line string) {
	text, paths := terminal.ExtractFileRefs(r.wd, line)
	if strings.Contains(text, "@") {
		terminal.ShowFileSuggestions(r.out, r.wd, text)
	}

	files, ok := r.importPaths(ctx, paths)
	if !ok {
		return
	}
	r.send(ctx, chat.Message{Text: text, Files: files})
}

func (r *repl) importPaths(ctx context.Context, paths []string) ([]attachment.FileRef, bool) {
	var files []attachment.FileRef
	for _, p := range paths {
		r.spinner.Start("Uploading " + p)
		entry, reused, err := r.app.importer.Import(ctx, p, "")
		r.spinner.Stop()
		if err != nil {
			r.display.PrintWarning(fmt.Sprintf("Could not upload %s: %v", p, err))
			return nil, false
		}
		if reused {
			r.display.PrintInfo(fmt.Sprintf("Using existing upload of %s", entry.Name))
		} else {
			r.display.PrintSuccess(fmt.Sprintf("Uploaded %s", entry.Name))
		}
		files = append(files, entry.Ref)
	}
	return files, true
}

func (r *repl) send(ctx context.Context, msg chat.Message) {
	r.display.StartReply()
	r.spinner.Start("Thinking")

	_, err := r.session.Send(ctx, msg, &liveRenderer{Display: r.display, stop: r.spinner.Stop})
	r.spinner.Stop()
	if errors.Is(err, chat.ErrBusy) {
		r.display.PrintError(err)
	}
}

func (r *repl) command(ctx context.Context, cmd terminal.Command) {
	switch cmd.Name {
	case "help":
		r.help()
	case "new", "clear":
		if err := r.session.Reset(); err != nil {
			r.display.PrintError(err)
			return
		}
		r.job = nil
		r.display.PrintSuccess("Started a new session " + r.session.ID())
	case "attach":
		r.attach(ctx, cmd.Args)
	case "detach":
		n, err := r.session.Detach(cmd.Arg(0))
		if err != nil {
			r.display.PrintError(err)
			return
		}
		r.display.PrintInfo(fmt.Sprintf("Detached %d file(s)", n))
	case "files":
		r.display.PrintFiles("Attached to next message", r.session.Attached())
		entries, err := r.app.store.All(ctx)
		if err != nil {
			r.display.PrintError(err)
			return
		}
		r.display.PrintFiles("Knowledge store", entryRefs(entries))
	case "blacklist":
		if cmd.Arg(0) == "clear" {
			if err := r.session.ClearBlacklist(); err != nil {
				r.display.PrintError(err)
				return
			}
			r.display.PrintSuccess("Blacklist cleared")
			return
		}
		ids := r.session.Blacklisted()
		if len(ids) == 0 {
			r.display.PrintInfo("No blacklisted files")
			return
		}
		r.display.PrintInfo("Blacklisted files: " + strings.Join(ids, ", "))
	case "template", "t":
		r.template(ctx, cmd)
	case "job":
		r.fetchJob(ctx, cmd.Args)
	case "history":
		r.display.PrintTurns(r.session.Turns())
	default:
		r.display.PrintWarning(fmt.Sprintf("Unknown command /%s. Type /help for the list.", cmd.Name))
	}
}

func (r *repl) help() {
	fmt.Fprint(r.out, `Commands:
  /new                     start a new session
  /attach <name|path|id>   attach a knowledge file, local file or remote file id
  /detach [id]             detach one file, or all
  /files                   list attached and knowledge-store files
  /blacklist [clear]       show or clear inaccessible files
  /template [key [text]]   list templates, or send text through one (k=v sets variables)
  /job <url>...            fetch job postings for the summarize-job and proposal templates
  /history                 show this session
  /exit                    quit
`)
}

// attach resolves each argument as a knowledge-store name, a local path,
// or a remote file id, in that order.
func (r *repl) attach(ctx context.Context, args []string) {
	if len(args) == 0 {
		r.display.PrintWarning("Usage: /attach <name|path|id>")
		return
	}
	var refs []attachment.FileRef
	for _, arg := range args {
		if entry, err := r.app.store.Get(ctx, arg); err == nil {
			refs = append(refs, entry.Ref)
			continue
		} else if !errors.Is(err, knowledge.ErrNotFound) {
			r.display.PrintError(err)
			return
		}

		if info, err := os.Stat(arg); err == nil && !info.IsDir() {
			files, ok := r.importPaths(ctx, []string{arg})
			if !ok {
				return
			}
			refs = append(refs, files...)
			continue
		}

		file, err := r.app.client.GetFile(ctx, attachment.IDSegment(arg))
		if err != nil {
			r.display.PrintWarning(fmt.Sprintf("%s is not a knowledge name, local file or accessible file id", arg))
			return
		}
		ref, ok := file.Ref(r.app.client.BaseURL())
		if !ok {
			r.display.PrintWarning(fmt.Sprintf("%s has no usable URI", arg))
			return
		}
		refs = append(refs, ref)
	}

	if err := r.session.Attach(refs...); err != nil {
		r.display.PrintError(err)
		return
	}
	r.display.PrintFiles("Attached to next message", r.session.Attached())
}

func (r *repl) template(ctx context.Context, cmd terminal.Command) {
	if len(cmd.Args) == 0 {
		for _, key := range r.app.templates.Keys() {
			t, _ := r.app.templates.Get(key)
			fmt.Fprintf(r.out, "  %-16s %s\n", key, t.Description)
		}
		return
	}

	vars, words := parseVars(cmd.Args[1:])
	if r.job != nil {
		vars["job"] = r.job
	}
	text := strings.Join(words, " ")
	if text == "" {
		// templates such as summarize-job need no message
		text = cmd.Arg(0)
	}
	r.send(ctx, chat.Message{Text: text, Template: cmd.Arg(0), Vars: vars})
}

func (r *repl) fetchJob(ctx context.Context, urls []string) {
	if len(urls) == 0 {
		r.display.PrintWarning("Usage: /job <url>...")
		return
	}

	r.spinner.Start(fmt.Sprintf("Fetching %d page(s)", len(urls)))
	pages := r.crawler.FetchAll(ctx, urls)
	r.spinner.Stop()

	for _, p := range pages {
		if p.Err != nil {
			r.display.PrintWarning(fmt.Sprintf("%s: %v", p.URL, p.Err))
			continue
		}
		r.display.PrintSuccess(fmt.Sprintf("%s (%s)", p.Title, formatWords(p.Text)))
	}

	vars := crawler.JobVars(pages)
	if len(vars) == 0 {
		return
	}
	r.job = vars
	r.display.PrintInfo("Job loaded. Try /template summarize-job or /template proposal")
}

// parseVars splits key=value arguments from the message words.
func parseVars(args []string) (map[string]any, []string) {
	vars := map[string]any{}
	var words []string
	for _, a := range args {
		k, val, ok := strings.Cut(a, "=")
		if ok && k != "" && !strings.ContainsAny(k, " @/") {
			vars[k] = val
			continue
		}
		words = append(words, a)
	}
	return vars, words
}

func entryRefs(entries []knowledge.Entry) []attachment.FileRef {
	refs := make([]attachment.FileRef, 0, len(entries))
	for _, e := range entries {
		ref := e.Ref
		if ref.DisplayName == "" {
			ref.DisplayName = e.Name
		}
		refs = append(refs, ref)
	}
	return refs
}

func formatWords(text string) string {
	return fmt.Sprintf("%d words", len(strings.Fields(text)))
}

// liveRenderer stops the spinner before the first output.
type liveRenderer struct {
	*ui.Display
	stop func()
	once sync.Once
}

func (l *liveRenderer) halt() { l.once.Do(l.stop) }

func (l *liveRenderer) OnDelta(text string) {
	l.halt()
	l.Display.OnDelta(text)
}

func (l *liveRenderer) OnThinking(text string) {
	l.halt()
	l.Display.OnThinking(text)
}

func (l *liveRenderer) OnRetry(attempt int, evicted string, fallback bool) {
	l.halt()
	l.Display.OnRetry(attempt, evicted, fallback)
}

func (l *liveRenderer) OnComplete(reply chat.Reply) {
	l.halt()
	l.Display.OnComplete(reply)
}

func (l *liveRenderer) OnError(err error, partial string) {
	l.halt()
	l.Display.OnError(err, partial)
}
