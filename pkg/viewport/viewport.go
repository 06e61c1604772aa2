// Package viewport models the single browser surface the crawl drives. The
// Adapter interface is the only doorway between the crawl core and the DOM;
// site selectors are configuration handed to the adapter, never logic in the
// core. All operations are issued sequentially; the adapter is not safe for
// concurrent use and is never called concurrently.
package viewport

import (
	"context"
	"time"
)

// ItemHandle is an opaque reference to one gallery item container in the
// overview grid. Handles are only valid within the viewport state they were
// read from; a scroll or navigation may invalidate them.
type ItemHandle struct {
	// ID is the adapter-assigned stable identifier of the container node.
	ID string
	// Index is the container's position in the grid at read time.
	Index int
}

// Region names a readable area of the page. The adapter maps regions to
// selectors from its configuration.
type Region string

const (
	// Grid cell regions, relative to an ItemHandle.
	RegionGridTimestamp Region = "grid_timestamp"
	RegionGridPrompt    Region = "grid_prompt"

	// Detail view regions.
	// Label-anchored regions locate a stable text label and read the value
	// adjacent to it.
	RegionTimestampByLabel Region = "timestamp_by_label"
	RegionPromptByLabel    Region = "prompt_by_label"
	// Structural regions read a fixed position in the detail layout.
	RegionTimestamp Region = "timestamp"
	RegionPrompt    Region = "prompt"
	RegionMedia     Region = "media"
)

// Condition is a named wait predicate. Conditions are data so the adapter
// can render them however its backend requires.
type Condition struct {
	kind  condKind
	token string
	count int
}

type condKind int

const (
	condDetailChanged condKind = iota
	condItemCountAtLeast
	condGridVisible
)

// DetailChanged waits until the detail view's state token differs from prev.
// This is how a click is verified rather than assumed.
func DetailChanged(prev string) Condition {
	return Condition{kind: condDetailChanged, token: prev}
}

// ItemCountAtLeast waits until the grid holds at least n item containers.
func ItemCountAtLeast(n int) Condition {
	return Condition{kind: condItemCountAtLeast, count: n}
}

// GridVisible waits until the overview grid container is present.
func GridVisible() Condition {
	return Condition{kind: condGridVisible}
}

// Adapter is the narrow browser capability the crawl consumes. Every call
// may block up to a bounded timeout; callers treat timeouts as retryable
// failures, not crashes.
type Adapter interface {
	// Navigate opens the gallery overview page, injecting the session
	// credential when one is configured.
	Navigate(ctx context.Context) error

	// VisibleItems enumerates the item containers currently in the grid, in
	// DOM (reverse-chronological) order.
	VisibleItems(ctx context.Context) ([]ItemHandle, error)

	// ItemCount returns the number of item containers in the grid.
	ItemCount(ctx context.Context) (int, error)

	// ScrollBy scrolls the gallery by the given number of pixels.
	ScrollBy(ctx context.Context, pixels int) error

	// ViewportHeight reports the visible viewport height in pixels.
	ViewportHeight(ctx context.Context) (int, error)

	// ClickItem clicks an item container to open its detail view. The
	// returned bool reports whether the click was dispatched; callers must
	// still verify the view changed via WaitFor(DetailChanged).
	ClickItem(ctx context.Context, h ItemHandle) (bool, error)

	// NextItem advances the open detail view to the next item in sequence.
	// Returns false when the control is absent or disabled (end of gallery).
	NextItem(ctx context.Context) (bool, error)

	// CloseDetail returns from the detail view to the overview grid.
	CloseDetail(ctx context.Context) error

	// ClickDownload triggers the detail view's download control.
	ClickDownload(ctx context.Context) (bool, error)

	// WaitFor polls the condition until it holds or the timeout elapses.
	// The bool is false on timeout; err reports backend failures only.
	WaitFor(ctx context.Context, cond Condition, timeout time.Duration) (bool, error)

	// ReadText reads a grid-cell region of the given item.
	ReadText(ctx context.Context, h ItemHandle, region Region) (string, error)

	// ReadDetailText reads a region of the open detail view.
	ReadDetailText(ctx context.Context, region Region) (string, error)

	// DetailTexts returns the text content of the detail view's nodes, for
	// heuristic extraction when anchored reads fail.
	DetailTexts(ctx context.Context) ([]string, error)

	// DetailToken returns a cheap token identifying the current detail view
	// state. Two different open items yield two different tokens.
	DetailToken(ctx context.Context) (string, error)

	// Close releases the browser surface.
	Close() error
}
