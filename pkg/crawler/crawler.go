// Package crawler coordinates the whole run: open items in the detail view,
// extract and fingerprint them, download what is new, fast-forward past what
// is not, and escalate to a grid boundary search when duplicate runs get
// long enough to be wasteful.
package crawler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"gallerygrab/internal/downloader"
	"gallerygrab/pkg/checkpoint"
	"gallerygrab/pkg/config"
	"gallerygrab/pkg/errors"
	"gallerygrab/pkg/fingerprint"
	"gallerygrab/pkg/gallery"
	"gallerygrab/pkg/logger"
	"gallerygrab/pkg/ratelimit"
	"gallerygrab/pkg/retry"
	"gallerygrab/pkg/storage"
	"gallerygrab/pkg/viewport"
)

// unknownTimestamp is recorded for items downloaded on the fail-safe path,
// where extraction produced no usable fingerprint fields.
const unknownTimestamp = "?"

// Checkpoints is the slice of the checkpoint log the orchestrator needs.
type Checkpoints interface {
	Contains(fp fingerprint.Fingerprint) bool
	Append(entry checkpoint.Entry) error
	AppendIncomplete(timestamp, prompt string) error
}

// MetadataExtractor reads the open detail view into an item plus confidence.
type MetadataExtractor interface {
	Extract(ctx context.Context, vp viewport.Adapter) (gallery.Item, float64)
}

// BoundaryLocator scans the overview grid for the first item absent from
// the checkpoint log.
type BoundaryLocator interface {
	Locate(ctx context.Context) (gallery.BoundaryResult, error)
}

// Orchestrator owns the crawl state machine. It is single-threaded by
// construction: all viewport operations are issued sequentially, and the
// only concurrent entry point is Stop.
type Orchestrator struct {
	vp          viewport.Adapter
	extractor   MetadataExtractor
	locator     BoundaryLocator
	checkpoints Checkpoints
	executor    downloader.Executor
	pacer       ratelimit.Limiter
	cfg         config.CrawlConfig
	log         logger.Logger

	stopRequested atomic.Bool
	cancelMu      sync.Mutex
	cancelRun     context.CancelFunc

	// Progress, when set, receives a snapshot of the running report after
	// each visited item. Invoked from the crawl goroutine.
	Progress func(Report)

	state State
	// justDownloadedBoundary suppresses a boundary search for exactly one
	// iteration after a successful download. Without it, a boundary item
	// followed immediately by another duplicate re-triggers the search on
	// the same boundary forever.
	justDownloadedBoundary bool
	consecutiveDuplicates  int
	gridFailures           int
	// boundaryDisabled is set once a search exhausts the gallery; further
	// searches would rescan the same grid for the same answer.
	boundaryDisabled bool

	report Report
}

// New builds an orchestrator. pacer may be nil for an unpaced crawl; log
// may be nil for the global logger.
func New(
	vp viewport.Adapter,
	extractor MetadataExtractor,
	locator BoundaryLocator,
	checkpoints Checkpoints,
	executor downloader.Executor,
	pacer ratelimit.Limiter,
	cfg config.CrawlConfig,
	log logger.Logger,
) *Orchestrator {
	if pacer == nil {
		pacer = ratelimit.Unlimited{}
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Orchestrator{
		vp:          vp,
		extractor:   extractor,
		locator:     locator,
		checkpoints: checkpoints,
		executor:    executor,
		pacer:       pacer,
		cfg:         cfg,
		log:         log.WithField("component", "crawler"),
		state:       StateIdle,
	}
}

// Stop requests a cooperative halt. The flag is polled between items, and
// the run context is cancelled so in-flight scroll passes of a boundary
// search abort too; the crawl winds down within one item's worth of work.
func (o *Orchestrator) Stop() {
	o.stopRequested.Store(true)
	o.cancelMu.Lock()
	if o.cancelRun != nil {
		o.cancelRun()
	}
	o.cancelMu.Unlock()
}

// State returns the current phase.
func (o *Orchestrator) State() State {
	return o.state
}

// Run executes the crawl until the gallery ends, a limit is hit, Stop is
// called, or the grid becomes unnavigable. The report is always returned,
// alongside the error for fatal terminations.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	defer func() { o.report.Duration = time.Since(start) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.cancelMu.Lock()
	o.cancelRun = cancel
	o.cancelMu.Unlock()

	o.state = StateOpeningItem
	if err := o.vp.Navigate(ctx); err != nil {
		o.terminate(ReasonFatalNavigation)
		return &o.report, errors.Wrap(errors.ErrorTypeNavigation, "opening gallery", err)
	}
	visible, err := o.vp.WaitFor(ctx, viewport.GridVisible(), o.cfg.StabilizeTimeout)
	if err != nil {
		o.terminate(ReasonFatalNavigation)
		return &o.report, errors.Wrap(errors.ErrorTypeViewport, "waiting for gallery grid", err)
	}
	if !visible {
		o.terminate(ReasonFatalNavigation)
		return &o.report, errors.New(errors.ErrorTypeNavigation, "gallery grid never became visible")
	}

	handles, err := o.vp.VisibleItems(ctx)
	if err != nil {
		o.terminate(ReasonFatalNavigation)
		return &o.report, errors.Wrap(errors.ErrorTypeViewport, "enumerating gallery grid", err)
	}
	if len(handles) == 0 {
		o.log.Info("gallery is empty")
		o.terminate(ReasonExhausted)
		return &o.report, nil
	}
	if err := o.openItem(ctx, handles[0]); err != nil {
		o.terminate(ReasonFatalNavigation)
		return &o.report, err
	}

	for {
		if o.stopRequested.Load() {
			o.terminate(ReasonStopped)
			return &o.report, nil
		}
		if err := o.pacer.Wait(ctx); err != nil {
			o.terminate(ReasonStopped)
			return &o.report, nil
		}

		// The guard lives for exactly one iteration.
		guard := o.justDownloadedBoundary
		o.justDownloadedBoundary = false

		o.state = StateExtractingMetadata
		o.report.ItemsVisited++
		item, confidence := o.extractor.Extract(ctx, o.vp)
		fp := fingerprint.Compute(item.Timestamp, item.PromptText)

		// Unresolvable metadata cannot be proven a duplicate; downloading
		// unnecessarily is the fail-safe direction.
		isNew := confidence == 0 || !o.checkpoints.Contains(fp)

		if isNew {
			o.state = StateDownloading
			o.downloadItem(ctx, item, confidence)
			if o.cfg.MaxDownloads > 0 && o.report.Downloaded >= o.cfg.MaxDownloads {
				o.terminate(ReasonMaxDownloads)
				return &o.report, nil
			}
		} else {
			o.state = StateSkippingDuplicate
			o.report.SkippedDuplicates++

			if o.cfg.DuplicateMode == config.DuplicateModeStop {
				o.log.InfoWithFields("duplicate reached in stop mode", map[string]interface{}{
					"fingerprint": string(fp),
				})
				o.terminate(ReasonDuplicateStop)
				return &o.report, nil
			}

			o.consecutiveDuplicates++
			if o.consecutiveDuplicates >= o.cfg.ConsecutiveDuplicateThreshold &&
				!guard && !o.boundaryDisabled {
				reentered, err := o.searchBoundary(ctx)
				if err != nil {
					// A Stop request cancels the run context, which surfaces
					// here as a scroll failure mid-search.
					if o.stopRequested.Load() {
						o.terminate(ReasonStopped)
						return &o.report, nil
					}
					o.terminate(ReasonFatalNavigation)
					return &o.report, err
				}
				if reentered {
					// The boundary item's detail view is open; extract it
					// on the next iteration.
					o.notifyProgress()
					continue
				}
			}
		}

		o.notifyProgress()

		o.state = StateOpeningItem
		advanced, err := o.advance(ctx)
		if err != nil {
			if o.stopRequested.Load() {
				o.terminate(ReasonStopped)
				return &o.report, nil
			}
			o.terminate(ReasonFatalNavigation)
			return &o.report, err
		}
		if !advanced {
			o.terminate(ReasonCompleted)
			return &o.report, nil
		}
	}
}

// downloadItem triggers the executor, retrying retryable failures up to the
// configured count. Exhausting the retries records an incomplete placeholder
// so a later run retries the item, and the crawl moves on; a failed download
// never halts the run.
func (o *Orchestrator) downloadItem(ctx context.Context, item gallery.Item, confidence float64) {
	attempts := o.cfg.DownloadRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	saved, err := retry.DoWithResult(func() (storage.SavedFile, error) {
		return o.executor.Download(ctx, item)
	}, &retry.Config{
		MaxAttempts: attempts,
		Backoff:     &retry.ConstantBackoff{Delay: 100 * time.Millisecond},
		RetryIf:     retry.DefaultRetryIf,
		Context:     ctx,
		Logger:      o.log,
	})

	timestamp := item.Timestamp
	if timestamp == "" {
		timestamp = unknownTimestamp
	}

	if err != nil {
		o.report.Failed++
		o.log.ErrorWithFields("download failed", map[string]interface{}{
			"item":  item.ID,
			"error": err.Error(),
		})
		if cpErr := o.checkpoints.AppendIncomplete(timestamp, item.PromptText); cpErr != nil {
			o.log.WithError(cpErr).Error("failed to record incomplete download")
		}
		return
	}

	entry := checkpoint.Entry{
		Timestamp:    timestamp,
		PromptPrefix: item.PromptText,
		FileID:       saved.FileID,
		DownloadedAt: time.Now(),
	}
	if err := o.checkpoints.Append(entry); err != nil {
		// The file is on disk but unrecorded; the worst case is one
		// redundant download next run.
		o.log.WithError(err).Error("failed to append checkpoint entry")
	}

	o.report.Downloaded++
	if confidence == 0 {
		o.report.LowConfidence++
	}
	o.consecutiveDuplicates = 0
	o.justDownloadedBoundary = true

	o.log.InfoWithFields("downloaded", map[string]interface{}{
		"item":       item.ID,
		"file_id":    saved.FileID,
		"size":       saved.Size,
		"confidence": confidence,
	})
}

// openItem clicks a grid item and verifies the detail view actually changed
// before trusting the click. Unverified clicks are retried up to the
// configured bound.
func (o *Orchestrator) openItem(ctx context.Context, h viewport.ItemHandle) error {
	retries := o.cfg.ClickRetries
	if retries <= 0 {
		retries = 3
	}

	for attempt := 1; attempt <= retries; attempt++ {
		prev, err := o.vp.DetailToken(ctx)
		if err != nil {
			return errors.Wrap(errors.ErrorTypeViewport, "reading detail state", err)
		}

		dispatched, err := o.vp.ClickItem(ctx, h)
		if err != nil {
			return errors.Wrap(errors.ErrorTypeViewport, "clicking item", err)
		}
		if dispatched {
			changed, err := o.vp.WaitFor(ctx, viewport.DetailChanged(prev), o.cfg.StabilizeTimeout)
			if err != nil {
				return errors.Wrap(errors.ErrorTypeViewport, "waiting for detail view", err)
			}
			if changed {
				return nil
			}
		}

		o.log.DebugWithFields("click did not change the view", map[string]interface{}{
			"item":    h.ID,
			"attempt": attempt,
		})
	}
	return errors.New(errors.ErrorTypeNavigation, "item click never changed the detail view")
}

// advance moves the detail view one item forward. The first return is false
// at the end of the gallery. Navigation failures inside the retry bound are
// absorbed; past the grid failure limit they become a fatal error.
func (o *Orchestrator) advance(ctx context.Context) (bool, error) {
	retries := o.cfg.ClickRetries
	if retries <= 0 {
		retries = 3
	}

	for attempt := 1; attempt <= retries; attempt++ {
		prev, err := o.vp.DetailToken(ctx)
		if err != nil {
			return false, errors.Wrap(errors.ErrorTypeViewport, "reading detail state", err)
		}

		dispatched, err := o.vp.NextItem(ctx)
		if err != nil {
			return false, errors.Wrap(errors.ErrorTypeViewport, "advancing detail view", err)
		}
		if !dispatched {
			// Control absent or disabled: end of gallery.
			return false, nil
		}

		changed, err := o.vp.WaitFor(ctx, viewport.DetailChanged(prev), o.cfg.StabilizeTimeout)
		if err != nil {
			return false, errors.Wrap(errors.ErrorTypeViewport, "waiting for detail view", err)
		}
		if changed {
			o.gridFailures = 0
			return true, nil
		}

		o.log.WarnWithFields("advance did not change the view", map[string]interface{}{
			"attempt": attempt,
		})
	}

	o.gridFailures++
	limit := o.cfg.GridFailureLimit
	if limit <= 0 {
		limit = 3
	}
	if o.gridFailures >= limit {
		return false, errors.New(errors.ErrorTypeNavigation, "gallery stopped responding to navigation")
	}
	// Treat the stuck advance as end of this pass rather than looping on a
	// dead control.
	return false, nil
}

// searchBoundary runs the exit-scan-return escalation: close the detail
// view, locate the first item absent from the checkpoint log, and re-enter
// the detail view on it. Returns true when the boundary item is open.
// Exhaustion and failed re-entry fall back to the per-item path.
func (o *Orchestrator) searchBoundary(ctx context.Context) (bool, error) {
	o.state = StateSearchingBoundary
	o.report.BoundarySearches++
	o.consecutiveDuplicates = 0

	o.log.InfoWithFields("escalating to boundary search", map[string]interface{}{
		"search": o.report.BoundarySearches,
	})

	if err := o.vp.CloseDetail(ctx); err != nil {
		return false, errors.Wrap(errors.ErrorTypeViewport, "closing detail view", err)
	}

	result, err := o.locator.Locate(ctx)
	o.report.ScrollPasses += result.ScrollPasses
	if err != nil {
		return false, errors.Wrap(errors.ErrorTypeNavigation, "boundary search failed", err)
	}

	if !result.Found {
		// Everything reachable is already downloaded. Fall back to the
		// per-item path and do not search again this run.
		o.boundaryDisabled = true
		return o.reenterGrid(ctx)
	}

	o.state = StateReenteringAtBoundary
	if err := o.openItem(ctx, viewport.ItemHandle{ID: result.Item.ID, Index: result.Item.PositionIndex}); err != nil {
		o.log.WithError(err).Warn("boundary re-entry click failed, falling back to per-item skip")
		return o.reenterGrid(ctx)
	}
	return true, nil
}

// reenterGrid opens the first visible item again so the per-item path can
// continue after a boundary search left the detail view closed.
func (o *Orchestrator) reenterGrid(ctx context.Context) (bool, error) {
	handles, err := o.vp.VisibleItems(ctx)
	if err != nil {
		return false, errors.Wrap(errors.ErrorTypeViewport, "enumerating gallery grid", err)
	}
	if len(handles) == 0 {
		return false, errors.New(errors.ErrorTypeNavigation, "gallery grid is empty after boundary search")
	}
	if err := o.openItem(ctx, handles[0]); err != nil {
		return false, err
	}
	return true, nil
}

func (o *Orchestrator) notifyProgress() {
	if o.Progress != nil {
		o.Progress(o.report)
	}
}

func (o *Orchestrator) terminate(reason string) {
	o.state = StateTerminated
	o.report.TerminationReason = reason
	o.log.InfoWithFields("crawl terminated", map[string]interface{}{
		"reason":     reason,
		"downloaded": o.report.Downloaded,
		"skipped":    o.report.SkippedDuplicates,
		"failed":     o.report.Failed,
	})
}
