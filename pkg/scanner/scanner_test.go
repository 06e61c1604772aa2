package scanner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gallerygrab/pkg/logger"
	"gallerygrab/pkg/viewport"
)

type countingLimiter struct {
	waits int
}

func (c *countingLimiter) Allow() bool                    { return true }
func (c *countingLimiter) Wait(ctx context.Context) error { c.waits++; return ctx.Err() }
func (c *countingLimiter) Reset()                         {}

func fastOptions() Options {
	return Options{
		ScrollViewports:  3,
		MaxStaleScrolls:  3,
		StabilizeTimeout: 50 * time.Millisecond,
		PollInterval:     time.Millisecond,
	}
}

// fakeGallery builds an opened fake adapter with the first visible items
// revealed, as they would be after the orchestrator's initial Navigate.
func fakeGallery(t *testing.T, n, visible int) *viewport.Fake {
	t.Helper()
	items := make([]viewport.FakeItem, n)
	for i := range items {
		items[i] = viewport.FakeItem{
			Timestamp: fmt.Sprintf("2026-08-%02d 10:00", i+1),
			Prompt:    fmt.Sprintf("prompt number %d", i),
		}
	}
	f := viewport.NewFake(items)
	f.InitialVisible = visible
	if err := f.Navigate(context.Background()); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	return f
}

func TestScanVisibleReturnsNewItemsInOrder(t *testing.T) {
	f := fakeGallery(t, 10, 4)
	ctx := context.Background()

	s := NewSession(f, fastOptions(), logger.NewTestLogger())
	items, err := s.ScanVisible(ctx)
	if err != nil {
		t.Fatalf("ScanVisible: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(items))
	}
	for i, it := range items {
		if it.PositionIndex != i {
			t.Errorf("item %d: position %d", i, it.PositionIndex)
		}
		if it.Timestamp == "" || it.PromptText == "" {
			t.Errorf("item %d: missing grid text: %+v", i, it)
		}
	}

	// A second scan with no scroll yields nothing new.
	again, err := s.ScanVisible(ctx)
	if err != nil {
		t.Fatalf("ScanVisible: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no new items, got %d", len(again))
	}
}

func TestScrollForMoreRevealsOnlyNewItems(t *testing.T) {
	f := fakeGallery(t, 10, 4)
	f.RevealBatch = 3
	ctx := context.Background()

	s := NewSession(f, fastOptions(), logger.NewTestLogger())
	if _, err := s.ScanVisible(ctx); err != nil {
		t.Fatalf("ScanVisible: %v", err)
	}

	grew, err := s.ScrollForMore(ctx)
	if err != nil {
		t.Fatalf("ScrollForMore: %v", err)
	}
	if !grew {
		t.Fatal("expected scroll to reveal items")
	}

	items, err := s.ScanVisible(ctx)
	if err != nil {
		t.Fatalf("ScanVisible: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 new items, got %d", len(items))
	}
	if items[0].PositionIndex != 4 {
		t.Errorf("new items should continue the position sequence, got %d", items[0].PositionIndex)
	}
}

func TestExhaustedAfterStaleScrolls(t *testing.T) {
	f := fakeGallery(t, 4, 4) // nothing left to reveal
	ctx := context.Background()

	opts := fastOptions()
	s := NewSession(f, opts, logger.NewTestLogger())

	for i := 0; i < opts.MaxStaleScrolls; i++ {
		if s.Exhausted() {
			t.Fatalf("exhausted too early, after %d scrolls", i)
		}
		grew, err := s.ScrollForMore(ctx)
		if err != nil {
			t.Fatalf("ScrollForMore: %v", err)
		}
		if grew {
			t.Fatal("nothing should have been revealed")
		}
	}
	if !s.Exhausted() {
		t.Fatal("expected session to be exhausted")
	}
}

func TestScrollPassesArePaced(t *testing.T) {
	f := fakeGallery(t, 20, 4)
	ctx := context.Background()

	pacer := &countingLimiter{}
	opts := fastOptions()
	opts.Pacer = pacer

	s := NewSession(f, opts, logger.NewTestLogger())
	for i := 0; i < 3; i++ {
		if _, err := s.ScrollForMore(ctx); err != nil {
			t.Fatalf("ScrollForMore: %v", err)
		}
	}
	if pacer.waits != 3 {
		t.Errorf("pacer consulted %d times, want one per scroll pass", pacer.waits)
	}
}

func TestScrollAbortsWhenContextCancelled(t *testing.T) {
	f := fakeGallery(t, 20, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSession(f, fastOptions(), logger.NewTestLogger())
	if _, err := s.ScrollForMore(ctx); err == nil {
		t.Fatal("expected a cancelled scroll pass to fail")
	}
	if f.Scrolls != 0 {
		t.Errorf("no scroll should be issued after cancellation, got %d", f.Scrolls)
	}
}

func TestGrowthResetsStaleCount(t *testing.T) {
	f := fakeGallery(t, 20, 4)
	f.RevealBatch = 0
	ctx := context.Background()

	opts := fastOptions()
	s := NewSession(f, opts, logger.NewTestLogger())

	for i := 0; i < opts.MaxStaleScrolls-1; i++ {
		if _, err := s.ScrollForMore(ctx); err != nil {
			t.Fatalf("ScrollForMore: %v", err)
		}
	}

	f.RevealBatch = 5
	grew, err := s.ScrollForMore(ctx)
	if err != nil {
		t.Fatalf("ScrollForMore: %v", err)
	}
	if !grew {
		t.Fatal("expected growth")
	}

	f.RevealBatch = 0
	if _, err := s.ScrollForMore(ctx); err != nil {
		t.Fatalf("ScrollForMore: %v", err)
	}
	if s.Exhausted() {
		t.Fatal("one stale scroll after growth should not exhaust the session")
	}
}
