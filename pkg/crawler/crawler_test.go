package crawler

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gallerygrab/internal/downloader"
	"gallerygrab/pkg/boundary"
	"gallerygrab/pkg/checkpoint"
	"gallerygrab/pkg/config"
	"gallerygrab/pkg/errors"
	"gallerygrab/pkg/extract"
	"gallerygrab/pkg/fingerprint"
	"gallerygrab/pkg/logger"
	"gallerygrab/pkg/scanner"
	"gallerygrab/pkg/viewport"
)

type harness struct {
	fake *viewport.Fake
	cp   *checkpoint.Log
	exec *downloader.FakeExecutor
	orch *Orchestrator
}

func testCrawlConfig() config.CrawlConfig {
	return config.CrawlConfig{
		DuplicateMode:                 config.DuplicateModeSkip,
		ConsecutiveDuplicateThreshold: 5,
		ConfidenceThreshold:           0.6,
		ScrollViewports:               3,
		MaxStaleScrolls:               3,
		StabilizeTimeout:              20 * time.Millisecond,
		ClickRetries:                  3,
		GridFailureLimit:              3,
		DownloadRetries:               1,
	}
}

func fakeItems(n int) []viewport.FakeItem {
	items := make([]viewport.FakeItem, n)
	for i := range items {
		items[i] = viewport.FakeItem{
			Timestamp: fmt.Sprintf("2026-08-%02d 10:00", i%28+1),
			Prompt:    fmt.Sprintf("a painting of subject number %d in oil", i),
			MediaRef:  fmt.Sprintf("https://gallery.example/media/%d", i),
		}
	}
	return items
}

// newHarness wires a full orchestrator over the fake adapter: real
// extractor, real boundary locator, real checkpoint log in a temp dir.
// known marks how many items, from the top, are pre-recorded as downloaded.
func newHarness(t *testing.T, items []viewport.FakeItem, known int, cfg config.CrawlConfig) *harness {
	t.Helper()

	cp, err := checkpoint.Open(filepath.Join(t.TempDir(), "run.checkpoint.log"))
	require.NoError(t, err)
	t.Cleanup(func() { cp.Close() })

	for i := 0; i < known; i++ {
		require.NoError(t, cp.Append(checkpoint.Entry{
			Timestamp:    items[i].Timestamp,
			PromptPrefix: items[i].Prompt,
			FileID:       fmt.Sprintf("prior-%d.png", i),
			DownloadedAt: time.Now(),
		}))
	}

	fake := viewport.NewFake(items)

	scanOpts := scanner.Options{
		ScrollViewports:  cfg.ScrollViewports,
		MaxStaleScrolls:  cfg.MaxStaleScrolls,
		StabilizeTimeout: 20 * time.Millisecond,
		PollInterval:     time.Millisecond,
	}
	log := logger.NewTestLogger()
	locator := boundary.NewLocator(fake, cp, scanOpts, log)
	exec := &downloader.FakeExecutor{}

	orch := New(fake, extract.New(cfg), locator, cp, exec, nil, cfg, log)
	return &harness{fake: fake, cp: cp, exec: exec, orch: orch}
}

func TestFreshGalleryDownloadsEverything(t *testing.T) {
	h := newHarness(t, fakeItems(8), 0, testCrawlConfig())

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ReasonCompleted, report.TerminationReason)
	assert.Equal(t, 8, report.Downloaded)
	assert.Equal(t, 0, report.SkippedDuplicates)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 8, h.cp.Count())
}

func TestNoRedownloadAcrossRuns(t *testing.T) {
	items := fakeItems(8)
	h := newHarness(t, items, 0, testCrawlConfig())

	_, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 8, h.exec.Calls)

	// Second run over the same gallery with every item already recorded.
	h2 := newHarness(t, items, 8, testCrawlConfig())
	report, err := h2.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Downloaded)
	assert.Equal(t, 0, h2.exec.Calls, "stored fingerprints must never be downloaded again")
	assert.Equal(t, ReasonCompleted, report.TerminationReason)
}

func TestBoundarySearchJumpsDuplicateRun(t *testing.T) {
	// The 10 most recent items are already downloaded; the 30 below them
	// are new.
	h := newHarness(t, fakeItems(40), 10, testCrawlConfig())

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ReasonCompleted, report.TerminationReason)
	assert.Equal(t, 30, report.Downloaded)
	assert.Equal(t, 1, report.BoundarySearches)
	// The cheap path tolerates the threshold's worth of duplicates, then
	// the boundary search skips the rest of the run in one jump.
	assert.Equal(t, testCrawlConfig().ConsecutiveDuplicateThreshold, report.SkippedDuplicates)
}

func TestNewestItemFoundWithoutFullScan(t *testing.T) {
	// Reverse-chronological gallery where the newest item is the only new
	// one: the very first detail view is already the boundary.
	h := newHarness(t, fakeItems(40), 0, testCrawlConfig())
	// Mark all but the top item known.
	items := h.fake.Items
	for i := 1; i < len(items); i++ {
		require.NoError(t, h.cp.Append(checkpoint.Entry{
			Timestamp:    items[i].Timestamp,
			PromptPrefix: items[i].Prompt,
			FileID:       fmt.Sprintf("prior-%d.png", i),
		}))
	}

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Downloaded)
	assert.Equal(t, 1, h.exec.Calls)

	fp := fingerprint.Compute(h.fake.Items[0].Timestamp, h.fake.Items[0].Prompt)
	assert.True(t, h.cp.Contains(fp), "the top item is the one that was downloaded")
}

func TestBoundaryGuardPreventsRepeatedSearches(t *testing.T) {
	// Regression shape: the boundary item is new, but the item immediately
	// after it is a duplicate again. With an aggressive threshold the
	// orchestrator would re-trigger the search on every such duplicate if
	// the one-iteration guard were missing.
	items := fakeItems(12)
	h := newHarness(t, items, 5, testCrawlConfig())
	// Item 6, right after the boundary at 5, is also already downloaded.
	require.NoError(t, h.cp.Append(checkpoint.Entry{
		Timestamp:    items[6].Timestamp,
		PromptPrefix: items[6].Prompt,
		FileID:       "prior-6.png",
	}))

	cfg := testCrawlConfig()
	cfg.ConsecutiveDuplicateThreshold = 1
	h2 := &harness{fake: h.fake, cp: h.cp, exec: h.exec}
	log := logger.NewTestLogger()
	locator := boundary.NewLocator(h.fake, h.cp, scanner.Options{
		MaxStaleScrolls:  cfg.MaxStaleScrolls,
		StabilizeTimeout: 20 * time.Millisecond,
		PollInterval:     time.Millisecond,
	}, log)
	h2.orch = New(h.fake, extract.New(cfg), locator, h.cp, h.exec, nil, cfg, log)

	report, err := h2.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ReasonCompleted, report.TerminationReason)
	assert.Equal(t, 6, report.Downloaded) // items 5, 7, 8, 9, 10, 11
	assert.Equal(t, 1, report.BoundarySearches,
		"the post-download guard must suppress an immediate re-search")
}

func TestDuplicateStopMode(t *testing.T) {
	cfg := testCrawlConfig()
	cfg.DuplicateMode = config.DuplicateModeStop
	h := newHarness(t, fakeItems(10), 10, cfg)

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ReasonDuplicateStop, report.TerminationReason)
	assert.Equal(t, 0, report.Downloaded)
	assert.Equal(t, 0, h.exec.Calls)
	assert.Equal(t, 1, report.SkippedDuplicates)
}

func TestMaxDownloadsBoundsTheRun(t *testing.T) {
	cfg := testCrawlConfig()
	cfg.MaxDownloads = 3
	h := newHarness(t, fakeItems(10), 0, cfg)

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ReasonMaxDownloads, report.TerminationReason)
	assert.Equal(t, 3, report.Downloaded)
	assert.Equal(t, 3, h.exec.Calls)
}

func TestUnreadableItemsDownloadFailSafe(t *testing.T) {
	h := newHarness(t, fakeItems(3), 0, testCrawlConfig())
	h.fake.BlankDetail = true

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	// Unresolvable metadata can never be proven a duplicate, so every item
	// is downloaded rather than silently dropped.
	assert.Equal(t, 3, report.Downloaded)
	assert.Equal(t, 3, report.LowConfidence)
	assert.Equal(t, 0, report.SkippedDuplicates)
}

func TestDownloadTimeoutThenSuccess(t *testing.T) {
	h := newHarness(t, fakeItems(1), 0, testCrawlConfig())
	h.exec.Errs = map[int]error{
		0: errors.New(errors.ErrorTypeTimeout, "download did not complete in time"),
	}

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Downloaded)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 2, h.exec.Calls)
	// Exactly one complete entry, not two.
	assert.Equal(t, 1, h.cp.Count())

	fp := fingerprint.Compute(h.fake.Items[0].Timestamp, h.fake.Items[0].Prompt)
	assert.True(t, h.cp.Contains(fp))
}

func TestDownloadFailureRecordsIncompleteAndContinues(t *testing.T) {
	h := newHarness(t, fakeItems(2), 0, testCrawlConfig())
	h.exec.Errs = map[int]error{
		0: errors.New(errors.ErrorTypeDownload, "trigger failed"),
		1: errors.New(errors.ErrorTypeDownload, "trigger failed"),
	}

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ReasonCompleted, report.TerminationReason)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Downloaded, "one failed download must not halt the run")

	// The incomplete placeholder is excluded from duplicate membership so a
	// later run retries the item.
	fp := fingerprint.Compute(h.fake.Items[0].Timestamp, h.fake.Items[0].Prompt)
	assert.False(t, h.cp.Contains(fp))
	require.NotNil(t, h.cp.Latest())
}

func TestDownloadRetriesFollowConfig(t *testing.T) {
	cfg := testCrawlConfig()
	cfg.DownloadRetries = 0
	h := newHarness(t, fakeItems(1), 0, cfg)
	h.exec.Errs = map[int]error{
		0: errors.New(errors.ErrorTypeTimeout, "download did not complete in time"),
	}

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	// With retries disabled the first failure is final.
	assert.Equal(t, 1, h.exec.Calls)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Downloaded)
}

func TestProgressReportsEveryItem(t *testing.T) {
	h := newHarness(t, fakeItems(6), 0, testCrawlConfig())

	var snapshots []Report
	h.orch.Progress = func(r Report) { snapshots = append(snapshots, r) }

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, report.ItemsVisited, len(snapshots))
	last := snapshots[len(snapshots)-1]
	assert.Equal(t, report.Downloaded, last.Downloaded)
	assert.Equal(t, report.SkippedDuplicates, last.SkippedDuplicates)
}

func TestStopIsCooperative(t *testing.T) {
	h := newHarness(t, fakeItems(20), 0, testCrawlConfig())
	h.orch.Stop()

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ReasonStopped, report.TerminationReason)
	assert.Equal(t, 0, report.Downloaded)
}

// stopOnScroll issues a stop request on the first grid scroll and counts
// any scrolls the crawl performs after that.
type stopOnScroll struct {
	*viewport.Fake
	stop             func()
	stopIssued       bool
	scrollsAfterStop int
}

func (a *stopOnScroll) ScrollBy(ctx context.Context, pixels int) error {
	if !a.stopIssued {
		a.stopIssued = true
		a.stop()
	} else {
		a.scrollsAfterStop++
	}
	return a.Fake.ScrollBy(ctx, pixels)
}

func TestStopHaltsBoundarySearch(t *testing.T) {
	// Every item is a duplicate, so the duplicate threshold escalates to a
	// boundary search that would otherwise scroll the whole gallery.
	items := fakeItems(120)
	cp, err := checkpoint.Open(filepath.Join(t.TempDir(), "run.checkpoint.log"))
	require.NoError(t, err)
	t.Cleanup(func() { cp.Close() })
	for i := range items {
		require.NoError(t, cp.Append(checkpoint.Entry{
			Timestamp:    items[i].Timestamp,
			PromptPrefix: items[i].Prompt,
			FileID:       fmt.Sprintf("prior-%d.png", i),
			DownloadedAt: time.Now(),
		}))
	}

	fake := &stopOnScroll{Fake: viewport.NewFake(items)}
	fake.RevealBatch = 4

	cfg := testCrawlConfig()
	log := logger.NewTestLogger()
	locator := boundary.NewLocator(fake, cp, scanner.Options{
		ScrollViewports:  cfg.ScrollViewports,
		MaxStaleScrolls:  cfg.MaxStaleScrolls,
		StabilizeTimeout: 20 * time.Millisecond,
		PollInterval:     time.Millisecond,
	}, log)
	exec := &downloader.FakeExecutor{}
	orch := New(fake, extract.New(cfg), locator, cp, exec, nil, cfg, log)
	fake.stop = orch.Stop

	report, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ReasonStopped, report.TerminationReason)
	assert.Equal(t, 0, fake.scrollsAfterStop,
		"a stop request must end the boundary search before the next scroll pass")
	assert.Equal(t, 0, report.Downloaded)
}

func TestUnverifiedClicksAreRetried(t *testing.T) {
	h := newHarness(t, fakeItems(2), 0, testCrawlConfig())
	// The first two clicks on item 0 dispatch but change nothing.
	h.fake.FailClicks = map[int]int{0: 2}

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Downloaded)
	assert.GreaterOrEqual(t, h.fake.ItemClicks, 3)
}

func TestEmptyGallery(t *testing.T) {
	h := newHarness(t, nil, 0, testCrawlConfig())

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ReasonExhausted, report.TerminationReason)
	assert.Equal(t, 0, report.Downloaded)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "searching_boundary", StateSearchingBoundary.String())
	assert.Equal(t, "terminated", StateTerminated.String())
	assert.Equal(t, "unknown", State(99).String())
}
