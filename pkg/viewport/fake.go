package viewport

import (
	"context"
	"fmt"
	"time"
)

// FakeItem scripts one gallery entry for the Fake adapter.
type FakeItem struct {
	Timestamp string
	Prompt    string
	MediaRef  string
}

// Fake is a scripted in-memory Adapter used by scanner, boundary and
// orchestrator tests. It models the gallery as a reveal window that grows on
// scroll and a detail view positioned on one item.
type Fake struct {
	Items []FakeItem

	// RevealBatch is how many additional items each scroll reveals.
	RevealBatch int
	// InitialVisible is how many items are visible before any scroll.
	InitialVisible int

	// FailClicks maps item index to a number of clicks that will be
	// dispatched but silently not change the detail view, exercising the
	// verified-click path.
	FailClicks map[int]int
	// RefuseClicks maps item index to a number of clicks reported as not
	// dispatched at all.
	RefuseClicks map[int]int
	// HideDetailRegions disables the structural and label-anchored detail
	// regions, forcing extraction down to the heuristic strategy.
	HideDetailRegions bool
	// HideLabelRegions disables only the label-anchored regions.
	HideLabelRegions bool
	// BlankDetail makes the detail view unreadable entirely, so extraction
	// returns the unknown sentinel.
	BlankDetail bool

	visible     int
	detailIndex int // -1 when no detail view is open
	navigated   bool

	// Counters inspected by tests.
	Scrolls        int
	ItemClicks     int
	NextClicks     int
	DownloadClicks int
}

var _ Adapter = (*Fake)(nil)

// NewFake builds a Fake over the given items. The whole gallery starts
// hidden except for the initial window.
func NewFake(items []FakeItem) *Fake {
	f := &Fake{
		Items:          items,
		RevealBatch:    6,
		InitialVisible: 6,
		detailIndex:    -1,
	}
	return f
}

func (f *Fake) Navigate(ctx context.Context) error {
	f.navigated = true
	f.visible = f.InitialVisible
	if f.visible > len(f.Items) {
		f.visible = len(f.Items)
	}
	f.detailIndex = -1
	return ctx.Err()
}

func (f *Fake) VisibleItems(ctx context.Context) ([]ItemHandle, error) {
	handles := make([]ItemHandle, f.visible)
	for i := 0; i < f.visible; i++ {
		handles[i] = ItemHandle{ID: fmt.Sprintf("item-%d", i), Index: i}
	}
	return handles, ctx.Err()
}

func (f *Fake) ItemCount(ctx context.Context) (int, error) {
	return f.visible, ctx.Err()
}

func (f *Fake) ScrollBy(ctx context.Context, pixels int) error {
	f.Scrolls++
	f.visible += f.RevealBatch
	if f.visible > len(f.Items) {
		f.visible = len(f.Items)
	}
	return ctx.Err()
}

func (f *Fake) ViewportHeight(ctx context.Context) (int, error) {
	return 900, ctx.Err()
}

func (f *Fake) ClickItem(ctx context.Context, h ItemHandle) (bool, error) {
	f.ItemClicks++
	if h.Index >= f.visible {
		return false, nil
	}
	if n := f.RefuseClicks[h.Index]; n > 0 {
		f.RefuseClicks[h.Index] = n - 1
		return false, nil
	}
	if n := f.FailClicks[h.Index]; n > 0 {
		f.FailClicks[h.Index] = n - 1
		return true, nil // dispatched, view unchanged
	}
	f.detailIndex = h.Index
	return true, ctx.Err()
}

func (f *Fake) NextItem(ctx context.Context) (bool, error) {
	f.NextClicks++
	if f.detailIndex < 0 || f.detailIndex+1 >= len(f.Items) {
		return false, ctx.Err()
	}
	f.detailIndex++
	return true, ctx.Err()
}

func (f *Fake) CloseDetail(ctx context.Context) error {
	f.detailIndex = -1
	return ctx.Err()
}

func (f *Fake) ClickDownload(ctx context.Context) (bool, error) {
	f.DownloadClicks++
	if f.detailIndex < 0 {
		return false, ctx.Err()
	}
	return true, ctx.Err()
}

func (f *Fake) WaitFor(ctx context.Context, cond Condition, timeout time.Duration) (bool, error) {
	switch cond.kind {
	case condDetailChanged:
		token, _ := f.DetailToken(ctx)
		return token != cond.token && token != "", ctx.Err()
	case condItemCountAtLeast:
		return f.visible >= cond.count, ctx.Err()
	case condGridVisible:
		return f.navigated, ctx.Err()
	default:
		return false, fmt.Errorf("unknown condition")
	}
}

func (f *Fake) ReadText(ctx context.Context, h ItemHandle, region Region) (string, error) {
	if h.Index >= len(f.Items) {
		return "", fmt.Errorf("no item at index %d", h.Index)
	}
	item := f.Items[h.Index]
	switch region {
	case RegionGridTimestamp:
		return item.Timestamp, ctx.Err()
	case RegionGridPrompt:
		return item.Prompt, ctx.Err()
	default:
		return "", fmt.Errorf("region %s not readable from grid", region)
	}
}

func (f *Fake) ReadDetailText(ctx context.Context, region Region) (string, error) {
	if f.detailIndex < 0 || f.BlankDetail {
		return "", ctx.Err()
	}
	item := f.Items[f.detailIndex]
	switch region {
	case RegionTimestampByLabel:
		if f.HideDetailRegions || f.HideLabelRegions {
			return "", ctx.Err()
		}
		return item.Timestamp, ctx.Err()
	case RegionPromptByLabel:
		if f.HideDetailRegions || f.HideLabelRegions {
			return "", ctx.Err()
		}
		return item.Prompt, ctx.Err()
	case RegionTimestamp:
		if f.HideDetailRegions {
			return "", ctx.Err()
		}
		return item.Timestamp, ctx.Err()
	case RegionPrompt:
		if f.HideDetailRegions {
			return "", ctx.Err()
		}
		return item.Prompt, ctx.Err()
	case RegionMedia:
		return item.MediaRef, ctx.Err()
	default:
		return "", ctx.Err()
	}
}

func (f *Fake) DetailTexts(ctx context.Context) ([]string, error) {
	if f.detailIndex < 0 || f.BlankDetail {
		return nil, ctx.Err()
	}
	item := f.Items[f.detailIndex]
	return []string{"Creation Time", item.Timestamp, "Prompt", item.Prompt}, ctx.Err()
}

func (f *Fake) DetailToken(ctx context.Context) (string, error) {
	if f.detailIndex < 0 {
		return "", ctx.Err()
	}
	return fmt.Sprintf("token-%d", f.detailIndex), ctx.Err()
}

func (f *Fake) Close() error { return nil }

// DetailIndex reports which item the detail view shows, -1 for none.
func (f *Fake) DetailIndex() int { return f.detailIndex }

// RevealedCount reports how many items the grid currently exposes.
func (f *Fake) RevealedCount() int { return f.visible }
