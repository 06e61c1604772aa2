// Package scanner walks the gallery grid incrementally: enumerate the item
// containers currently rendered, scroll to force the virtualized list to
// mount more, and report when the gallery has nothing left to reveal.
package scanner

import (
	"context"
	"fmt"
	"time"

	"gallerygrab/pkg/gallery"
	"gallerygrab/pkg/logger"
	"gallerygrab/pkg/ratelimit"
	"gallerygrab/pkg/viewport"
)

// Options tune a scan session. Zero values fall back to defaults.
type Options struct {
	// ScrollViewports is the scroll distance per pass, in viewport heights.
	ScrollViewports int

	// MaxStaleScrolls is how many consecutive zero-growth scrolls mark the
	// gallery as exhausted.
	MaxStaleScrolls int

	// StabilizeTimeout bounds the wait for the item count to settle after a
	// scroll.
	StabilizeTimeout time.Duration

	// PollInterval is the item-count sampling interval while stabilizing.
	PollInterval time.Duration

	// Pacer takes a token before each scroll pass, so grid scans observe
	// the same action budget as the per-item path. Nil means unpaced.
	Pacer ratelimit.Limiter
}

func (o *Options) applyDefaults() {
	if o.ScrollViewports <= 0 {
		o.ScrollViewports = 3
	}
	if o.MaxStaleScrolls <= 0 {
		o.MaxStaleScrolls = 5
	}
	if o.StabilizeTimeout <= 0 {
		o.StabilizeTimeout = 5 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	if o.Pacer == nil {
		o.Pacer = ratelimit.Unlimited{}
	}
}

// Session is one pass over the grid. It remembers which containers it has
// already returned so repeated ScanVisible calls after scrolling only yield
// the newly mounted items. Sessions are single-use; discard after the scan.
type Session struct {
	vp   viewport.Adapter
	opts Options
	log  logger.Logger

	seen         map[string]bool
	nextIndex    int
	staleScrolls int
}

// NewSession starts a scan session against the adapter.
func NewSession(vp viewport.Adapter, opts Options, log logger.Logger) *Session {
	opts.applyDefaults()
	if log == nil {
		log = logger.GetLogger()
	}
	return &Session{
		vp:   vp,
		opts: opts,
		log:  log,
		seen: make(map[string]bool),
	}
}

// ScanVisible returns the grid items not previously returned this session,
// in DOM order, with their grid-cell timestamp and prompt text. Items whose
// grid cells cannot be read still come back, with empty fields; the caller
// decides whether to open them for a full extraction.
func (s *Session) ScanVisible(ctx context.Context) ([]gallery.Item, error) {
	handles, err := s.vp.VisibleItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating grid items: %w", err)
	}

	var items []gallery.Item
	for _, h := range handles {
		if s.seen[h.ID] {
			continue
		}
		s.seen[h.ID] = true

		item := gallery.Item{
			ID:            h.ID,
			PositionIndex: s.nextIndex,
		}
		s.nextIndex++

		ts, err := s.vp.ReadText(ctx, h, viewport.RegionGridTimestamp)
		if err != nil {
			s.log.DebugWithFields("grid timestamp unreadable", map[string]interface{}{
				"item": h.ID,
			})
		} else {
			item.Timestamp = ts
		}

		prompt, err := s.vp.ReadText(ctx, h, viewport.RegionGridPrompt)
		if err != nil {
			s.log.DebugWithFields("grid prompt unreadable", map[string]interface{}{
				"item": h.ID,
			})
		} else {
			item.PromptText = prompt
		}

		items = append(items, item)
	}
	return items, nil
}

// ScrollForMore scrolls one pass and waits for the item count to stabilize.
// It returns true when the scroll revealed at least one new container.
func (s *Session) ScrollForMore(ctx context.Context) (bool, error) {
	if err := s.opts.Pacer.Wait(ctx); err != nil {
		return false, err
	}

	before, err := s.vp.ItemCount(ctx)
	if err != nil {
		return false, fmt.Errorf("reading item count: %w", err)
	}

	height, err := s.vp.ViewportHeight(ctx)
	if err != nil {
		return false, fmt.Errorf("reading viewport height: %w", err)
	}
	if err := s.vp.ScrollBy(ctx, height*s.opts.ScrollViewports); err != nil {
		return false, fmt.Errorf("scrolling: %w", err)
	}

	after, err := s.stabilize(ctx, before)
	if err != nil {
		return false, err
	}

	if after > before {
		s.staleScrolls = 0
		s.log.DebugWithFields("scroll revealed items", map[string]interface{}{
			"before": before,
			"after":  after,
		})
		return true, nil
	}

	s.staleScrolls++
	s.log.DebugWithFields("scroll revealed nothing", map[string]interface{}{
		"stale_scrolls": s.staleScrolls,
	})
	return false, nil
}

// stabilize samples the item count until two consecutive reads agree or the
// timeout elapses, and returns the final count.
func (s *Session) stabilize(ctx context.Context, last int) (int, error) {
	deadline := time.Now().Add(s.opts.StabilizeTimeout)
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(s.opts.PollInterval):
		}

		count, err := s.vp.ItemCount(ctx)
		if err != nil {
			return last, fmt.Errorf("reading item count: %w", err)
		}
		if count == last || time.Now().After(deadline) {
			return count, nil
		}
		last = count
	}
}

// Exhausted reports whether enough consecutive scrolls revealed nothing that
// the gallery can be treated as fully loaded.
func (s *Session) Exhausted() bool {
	return s.staleScrolls >= s.opts.MaxStaleScrolls
}
