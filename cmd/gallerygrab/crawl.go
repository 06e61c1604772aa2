package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gallerygrab/internal/downloader"
	"gallerygrab/pkg/auth"
	"gallerygrab/pkg/boundary"
	"gallerygrab/pkg/checkpoint"
	"gallerygrab/pkg/config"
	"gallerygrab/pkg/crawler"
	"gallerygrab/pkg/extract"
	"gallerygrab/pkg/logger"
	"gallerygrab/pkg/ratelimit"
	"gallerygrab/pkg/scanner"
	"gallerygrab/pkg/storage"
	"gallerygrab/pkg/ui"
	"gallerygrab/pkg/viewport"
)

var (
	// Crawl command flags
	galleryURL    string
	outputDir     string
	duplicateMode string
	maxDownloads  int
	actionsPerMin int
	accountName   string
	notifications bool
)

// crawlCmd represents the crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl <gallery>",
	Short: "Crawl a gallery and download every item not seen before",
	Long: `Crawl the named gallery: open each item in the detail view, fingerprint
it, download what is new and fast-forward past what is not.

Resume is implicit. The checkpoint log written by previous runs is loaded at
startup, so an interrupted crawl continues where it stopped; there is no
separate resume command.

A session cookie is needed for private galleries. Store one with
'gallerygrab auth login' or set GALLERYGRAB_SESSION_COOKIE.`,
	Example: `  # Crawl with settings from gallerygrab.yaml
  gallerygrab crawl dreambench

  # Stop at the first already-downloaded item (fast incremental top-up)
  gallerygrab crawl dreambench --duplicate-mode stop

  # Bound the run
  gallerygrab crawl dreambench --max-downloads 50`,
	Args: cobra.ExactArgs(1),
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	crawlCmd.Flags().StringVar(&galleryURL, "url", "", "gallery overview URL (overrides config)")
	crawlCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for downloads")
	crawlCmd.Flags().StringVar(&duplicateMode, "duplicate-mode", "", "what to do on a known item: stop or skip")
	crawlCmd.Flags().IntVar(&maxDownloads, "max-downloads", 0, "stop after this many downloads (0 = unlimited)")
	crawlCmd.Flags().IntVar(&actionsPerMin, "actions-per-minute", 0, "pace browser actions (0 = config default)")
	crawlCmd.Flags().StringVarP(&accountName, "account", "a", "", "use the stored credentials of this gallery name")
	crawlCmd.Flags().BoolVar(&notifications, "notifications", true, "send a desktop notification when the crawl ends")
}

func runCrawl(cmd *cobra.Command, args []string) error {
	galleryName := strings.TrimSpace(args[0])
	ui.PrintInfo("Target gallery", galleryName)

	cfg := config.DefaultConfig()
	if err := cfg.LoadFromFile(configFile); err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		ui.PrintError("Failed to load environment overrides", err.Error())
		os.Exit(1)
	}
	applyCrawlFlags(cfg, galleryName)

	if logLevel != "info" {
		cfg.Logging.Level = logLevel
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logging", err.Error())
		os.Exit(1)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("Gallery Grab starting")

	if err := cfg.Validate(); err != nil {
		ui.PrintError("Invalid configuration", err.Error())
		os.Exit(1)
	}

	account := resolveAccount(cfg, log)

	cp, err := checkpoint.OpenForGallery(cfg.Gallery.Name)
	if err != nil {
		ui.PrintError("Failed to open checkpoint log", err.Error())
		os.Exit(1)
	}
	defer cp.Close()
	if cp.Count() > 0 {
		ui.PrintInfo("Resuming", cp.Path())
	}

	outDir := cfg.Output.BaseDirectory
	if cfg.Output.CreateGalleryFolders {
		outDir = filepath.Join(outDir, cfg.Gallery.Name)
	}
	library, err := storage.NewManager(outDir)
	if err != nil {
		ui.PrintError("Failed to prepare output directory", err.Error())
		os.Exit(1)
	}

	vp, err := viewport.NewChromedp(cfg.Gallery, account)
	if err != nil {
		ui.PrintError("Failed to start browser", err.Error())
		os.Exit(1)
	}
	defer vp.Close()

	stagingDir, err := os.MkdirTemp("", "gallerygrab-staging-")
	if err != nil {
		ui.PrintError("Failed to create staging directory", err.Error())
		os.Exit(1)
	}
	defer os.RemoveAll(stagingDir)

	executor, err := downloader.NewBrowserExecutor(vp, library, stagingDir, cfg.Download, log)
	if err != nil {
		ui.PrintError("Failed to configure browser downloads", err.Error())
		os.Exit(1)
	}

	var pacer ratelimit.Limiter = ratelimit.Unlimited{}
	if apm := cfg.Crawl.ActionsPerMinute; apm > 0 {
		pacer = ratelimit.NewTokenBucket(apm, time.Minute)
	}

	// The pacer covers boundary-search scrolls as well as item opens.
	scanOpts := scanner.Options{
		ScrollViewports:  cfg.Crawl.ScrollViewports,
		MaxStaleScrolls:  cfg.Crawl.MaxStaleScrolls,
		StabilizeTimeout: cfg.Crawl.StabilizeTimeout,
		Pacer:            pacer,
	}
	locator := boundary.NewLocator(vp, cp, scanOpts, log)

	orch := crawler.New(vp, extract.New(cfg.Crawl), locator, cp, executor, pacer, cfg.Crawl, log)

	tracker := ui.NewProgressTracker()
	orch.Progress = func(r crawler.Report) {
		tracker.Update(r)
		tracker.PrintProgress()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupts
		ui.PrintWarning("Interrupt received, finishing the current item")
		orch.Stop()
	}()

	ui.PrintHighlight("[CRAWL STARTED]")
	report, err := orch.Run(ctx)
	ui.PrintReport(report)

	if notifications {
		notifier := ui.NewNotifier()
		notifier.SendSuccess("Gallery Grab",
			"Crawl of "+cfg.Gallery.Name+" ended: "+report.TerminationReason)
	}

	if err != nil {
		log.WithError(err).Error("crawl ended with an error")
		ui.PrintError("Crawl failed", err.Error())
		os.Exit(1)
	}
	return nil
}

// applyCrawlFlags layers command-line overrides on top of the loaded config.
func applyCrawlFlags(cfg *config.Config, galleryName string) {
	if cfg.Gallery.Name == "" || galleryName != "" {
		cfg.Gallery.Name = galleryName
	}
	if galleryURL != "" {
		cfg.Gallery.URL = galleryURL
	}
	if outputDir != "" {
		cfg.Output.BaseDirectory = outputDir
	}
	if duplicateMode != "" {
		cfg.Crawl.DuplicateMode = config.DuplicateMode(duplicateMode)
	}
	if maxDownloads > 0 {
		cfg.Crawl.MaxDownloads = maxDownloads
	}
	if actionsPerMin > 0 {
		cfg.Crawl.ActionsPerMinute = actionsPerMin
	}
}

// resolveAccount finds a session credential through the keyring/env store
// chain. A nil account means an anonymous crawl.
func resolveAccount(cfg *config.Config, log logger.Logger) *auth.Account {
	name := accountName
	if name == "" {
		name = cfg.Gallery.Name
	}

	manager, err := auth.NewManager()
	if err == nil {
		if account, err := manager.Retrieve(name); err == nil {
			log.WithField("gallery", name).Info("using stored credentials")
			return account
		}
	}

	log.Warn("no session credentials found, crawling anonymously")
	return nil
}
