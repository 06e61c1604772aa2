package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"gallerygrab/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	quiet      bool
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gallerygrab",
	Short: "A resumable crawler for infinite-scroll media galleries",
	Long: `Gallery Grab crawls an infinitely-scrolling media gallery in a headless
browser and downloads every item it has not seen before.

Features:
  - Checkpointed resume: runs pick up exactly where the last one stopped
  - Fingerprint-based duplicate detection (timestamp + prompt prefix)
  - Boundary search that jumps long runs of already-downloaded items
  - Layered metadata extraction with confidence scoring
  - Secure session cookie storage using the system keychain
  - Automatic retry with exponential backoff`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet || logLevel == "error" {
			ui.SetQuietMode(true)
		}
		if cmd.Name() != "version" && cmd.Name() != "help" && cmd.Name() != "completion" {
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./gallerygrab.yaml or $HOME/.gallerygrab.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show all output")

	rootCmd.SetVersionTemplate(`Gallery Grab {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
