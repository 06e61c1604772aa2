package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"gallerygrab/pkg/config"
	"gallerygrab/pkg/ui"
)

var configForce bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Inspect and scaffold the gallerygrab configuration file.

The selector block is the part that needs real work: it maps the crawler's
named regions (grid items, detail timestamp, download control) onto the
target site's DOM. Everything else has workable defaults.`,
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter configuration file",
	Example: `  # Write ./gallerygrab.yaml
  gallerygrab config init

  # Write somewhere else
  gallerygrab config init ~/.gallerygrab.yaml`,
	Args: cobra.MaximumNArgs(1),
	Run:  runConfigInit,
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after the file, environment overrides and
defaults have been merged, as YAML.`,
	Run: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) {
	path := "gallerygrab.yaml"
	if len(args) > 0 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil && !configForce {
		ui.PrintError("Refusing to overwrite existing file", path)
		ui.PrintWarning("Use --force to overwrite")
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(path); err != nil {
		ui.PrintError("Failed to write configuration", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Wrote " + path)
	ui.PrintWarning("Fill in gallery.url and the gallery.selectors block before crawling")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg := config.DefaultConfig()
	if err := cfg.LoadFromFile(configFile); err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		ui.PrintError("Failed to load environment overrides", err.Error())
		os.Exit(1)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		ui.PrintError("Failed to render configuration", err.Error())
		os.Exit(1)
	}
	fmt.Print(string(out))

	if err := cfg.Validate(); err != nil {
		ui.PrintWarning("Configuration is incomplete", err.Error())
	}
}
