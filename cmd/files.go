package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gig-copilot/internal/attachment"
	"gig-copilot/internal/gemini"
	"gig-copilot/internal/knowledge"
)

var (
	uploadName   string
	listRemote   bool
	forgetRemote bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <path>...",
	Short: "Upload files to the knowledge store",
	Long: `Upload local files to the Gemini Files API and record them in the
knowledge store under a short name that templates and /attach can use.

Files whose content was already uploaded and has not expired are reused.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if uploadName != "" && len(args) > 1 {
			return fmt.Errorf("--name can only be used with a single file")
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		for _, path := range args {
			entry, reused, err := a.importer.Import(cmd.Context(), path, uploadName)
			if err != nil {
				return err
			}
			verb := "uploaded"
			if reused {
				verb = "reused"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s → %s\n", verb, entry.Name, entry.Ref.URI)
		}
		return nil
	},
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List knowledge-store files",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if listRemote {
			files, err := a.client.ListFiles(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tMIME\tSTATE\tEXPIRES")
			for _, f := range files {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", f.ID(), f.DisplayName, f.MimeType, f.State, f.ExpirationTime)
			}
			return w.Flush()
		}

		entries, err := a.store.All(cmd.Context())
		if err != nil {
			return err
		}
		printEntries(cmd, entries, a.validator)
		return nil
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget <name|id>",
	Short: "Remove a file from the knowledge store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		key := args[0]
		id := key
		if entry, err := a.store.Get(cmd.Context(), key); err == nil {
			id = entry.Ref.ID()
		}

		n, err := a.store.Forget(cmd.Context(), key)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "forgot %d entr%s\n", n, plural(n, "y", "ies"))

		if forgetRemote {
			err := a.client.DeleteFile(cmd.Context(), id)
			switch {
			case gemini.IsNotFound(err):
				fmt.Fprintf(cmd.OutOrStdout(), "remote file %s was already gone\n", id)
			case err != nil:
				return err
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "deleted remote file %s\n", id)
			}
		}
		return nil
	},
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadName, "name", "n", "", "Knowledge-store name (defaults to the file name)")
	filesCmd.Flags().BoolVar(&listRemote, "remote", false, "List files on the Gemini Files API instead")
	forgetCmd.Flags().BoolVar(&forgetRemote, "delete", false, "Also delete the remote file")

	rootCmd.AddCommand(uploadCmd, filesCmd, forgetCmd)
}

func printEntries(cmd *cobra.Command, entries []knowledge.Entry, v *attachment.Validator) {
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No files in the knowledge store. Add one with: gig-copilot upload <path>")
		return
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tID\tMIME\tSTATUS\tADDED")
	for _, e := range entries {
		status := "live"
		if err := v.Check(e.Ref); err != nil {
			status = err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Name, e.Ref.ID(), e.Ref.MimeType, status, e.AddedAt.Local().Format(time.DateTime))
	}
	w.Flush()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
