package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	v       = viper.New()

	version = "dev"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gig-copilot",
	Short: "Draft freelance replies, job summaries and proposals with Gemini",
	Long: `gig-copilot is a terminal chat client for the Gemini API aimed at
freelancers.

It streams replies as they are generated, attaches your CV, portfolio and
other uploaded files to prompts, and keeps going when an attached file has
become inaccessible.

Quick Start:
  gig-copilot upload cv.md --name cv     # Upload a file to the knowledge store
  gig-copilot chat                       # Start chatting
  gig-copilot templates                  # List prompt templates`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runChat,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default ~/.gig-copilot/config.yaml)")
	flags.BoolP("verbose", "v", false, "Enable verbose logging on stderr")
	flags.StringP("model", "m", "", "Gemini model name")

	flags.Bool("knowledge", false, "Attach every live knowledge-store file to each message")
	flags.Bool("probe", false, "Check that attachments are accessible before sending")

	_ = v.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = v.BindPFlag("model", flags.Lookup("model"))
	_ = v.BindPFlag("include_knowledge", flags.Lookup("knowledge"))
	_ = v.BindPFlag("probe_attachments", flags.Lookup("probe"))

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
