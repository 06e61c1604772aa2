package ui

import (
	"fmt"
	"time"

	"gallerygrab/pkg/crawler"
)

// ProgressTracker renders a single live status line during a crawl. It is
// fed report snapshots through the orchestrator's progress hook.
type ProgressTracker struct {
	Downloaded int
	Skipped    int
	Failed     int
	StartTime  time.Time
}

// NewProgressTracker creates a tracker anchored at the current time
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{StartTime: time.Now()}
}

// Update replaces the counters with a report snapshot.
func (pt *ProgressTracker) Update(report crawler.Report) {
	pt.Downloaded = report.Downloaded
	pt.Skipped = report.SkippedDuplicates
	pt.Failed = report.Failed
}

// GetDownloadRate returns the average download rate in items per minute
func (pt *ProgressTracker) GetDownloadRate() float64 {
	elapsed := time.Since(pt.StartTime).Minutes()
	if elapsed == 0 {
		return 0
	}
	return float64(pt.Downloaded) / elapsed
}

// PrintProgress rewrites the status line in place
func (pt *ProgressTracker) PrintProgress() {
	if quietMode {
		return
	}
	fmt.Printf("\r%s downloaded: %d | skipped: %d | failed: %d | %.1f/min",
		Green("[CRAWLING]"),
		pt.Downloaded,
		pt.Skipped,
		pt.Failed,
		pt.GetDownloadRate())
}

// PrintReport prints the structured end-of-run summary.
func PrintReport(report *crawler.Report) {
	fmt.Println()
	PrintHighlight("=== Crawl Report ===")
	PrintInfo("Termination", report.TerminationReason)
	PrintInfo("Downloaded", fmt.Sprintf("%d", report.Downloaded))
	PrintInfo("Skipped duplicates", fmt.Sprintf("%d", report.SkippedDuplicates))
	PrintInfo("Failed", fmt.Sprintf("%d", report.Failed))
	if report.LowConfidence > 0 {
		PrintInfo("Low-confidence downloads", fmt.Sprintf("%d", report.LowConfidence))
	}
	PrintInfo("Items visited", fmt.Sprintf("%d", report.ItemsVisited))
	PrintInfo("Boundary searches", fmt.Sprintf("%d", report.BoundarySearches))
	if report.ScrollPasses > 0 {
		PrintInfo("Scroll passes", fmt.Sprintf("%d", report.ScrollPasses))
	}
	PrintInfo("Duration", report.Duration.Round(time.Second).String())

	switch report.TerminationReason {
	case crawler.ReasonFatalNavigation:
		PrintError("The gallery stopped responding to navigation")
	case crawler.ReasonCompleted, crawler.ReasonMaxDownloads:
		PrintSuccess("Crawl finished cleanly")
	}
}
