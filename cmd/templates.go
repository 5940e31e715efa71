package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gig-copilot/internal/prompt"
)

var templatesCmd = &cobra.Command{
	Use:   "templates [key]",
	Short: "List prompt templates or show one",
	Long: `List the prompt templates, or print the prompt and attachments of one.

Templates are read from templates_path (default
~/.gig-copilot/templates.yaml); the built-in set is used when that file does
not exist.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		if len(args) == 0 {
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tATTACHMENTS\tDESCRIPTION")
			for _, key := range a.templates.Keys() {
				t, _ := a.templates.Get(key)
				fmt.Fprintf(w, "%s\t%s\t%s\n", key, strings.Join(t.Attachments, ","), t.Description)
			}
			return w.Flush()
		}

		t, ok := a.templates.Get(args[0])
		if !ok {
			return fmt.Errorf("%w: %q", prompt.ErrUnknownTemplate, args[0])
		}
		fmt.Fprintf(out, "%s: %s\n\n%s\n", t.Key, t.Description, strings.TrimSpace(t.Prompt))
		if len(t.Attachments) > 0 {
			fmt.Fprintf(out, "\nattachments: %s\n", strings.Join(t.Attachments, ", "))
		}
		return nil
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models that support content generation",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		models, err := a.client.ListModels(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range models {
			marker := " "
			if m == a.cfg.ModelName || strings.TrimPrefix(m, "models/") == a.cfg.ModelName {
				marker = "*"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, m)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(templatesCmd, modelsCmd)
}
