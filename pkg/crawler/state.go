package crawler

// State is the orchestrator's current phase. Only the orchestrator mutates
// it; collaborators observe it through the run report's transition log.
type State int

const (
	// StateIdle is the state before Run starts.
	StateIdle State = iota
	// StateOpeningItem covers clicking a grid item or advancing the detail
	// view to the next item.
	StateOpeningItem
	// StateExtractingMetadata covers reading the open detail view.
	StateExtractingMetadata
	// StateDownloading covers triggering and persisting a download.
	StateDownloading
	// StateSkippingDuplicate covers the cheap per-item fast-forward path.
	StateSkippingDuplicate
	// StateSearchingBoundary covers the exit-scan-return escalation: leave
	// the detail view and scan the grid for the first new item.
	StateSearchingBoundary
	// StateReenteringAtBoundary covers clicking the located boundary item.
	StateReenteringAtBoundary
	// StateTerminated is final; the report carries the reason.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpeningItem:
		return "opening_item"
	case StateExtractingMetadata:
		return "extracting_metadata"
	case StateDownloading:
		return "downloading"
	case StateSkippingDuplicate:
		return "skipping_duplicate"
	case StateSearchingBoundary:
		return "searching_boundary"
	case StateReenteringAtBoundary:
		return "reentering_at_boundary"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Termination reasons carried by the run report.
const (
	// ReasonCompleted means the gallery ran out of items to advance to.
	ReasonCompleted = "completed"
	// ReasonMaxDownloads means the configured download limit was reached.
	ReasonMaxDownloads = "max_downloads"
	// ReasonDuplicateStop means duplicate-mode stop met its first duplicate.
	ReasonDuplicateStop = "duplicate_stop"
	// ReasonStopped means Stop was called or the context was canceled.
	ReasonStopped = "stopped"
	// ReasonExhausted means the gallery had no items at all.
	ReasonExhausted = "exhausted"
	// ReasonFatalNavigation means the overview grid itself stopped
	// responding to navigation.
	ReasonFatalNavigation = "fatal_navigation"
)
