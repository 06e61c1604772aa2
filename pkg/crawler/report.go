package crawler

import "time"

// Report is the structured end-of-run summary. Every outcome is counted
// somewhere; nothing is silently swallowed.
type Report struct {
	// Downloaded counts completed downloads with checkpoint entries.
	Downloaded int
	// SkippedDuplicates counts items recognized by fingerprint and passed
	// over.
	SkippedDuplicates int
	// Failed counts downloads that failed after their retry and were
	// recorded as incomplete.
	Failed int
	// LowConfidence counts items downloaded on the fail-safe path because
	// extraction could not produce a trustworthy fingerprint.
	LowConfidence int
	// BoundarySearches counts exit-scan-return escalations.
	BoundarySearches int
	// ScrollPasses counts scroll cycles issued during boundary searches.
	ScrollPasses int
	// ItemsVisited counts detail views examined.
	ItemsVisited int
	// Duration is the wall-clock run time.
	Duration time.Duration
	// TerminationReason is one of the Reason constants.
	TerminationReason string
}
