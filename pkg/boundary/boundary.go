// Package boundary finds the resume point in a gallery: the first grid item,
// in natural reverse-chronological order, whose fingerprint is absent from
// the checkpoint log. Everything above the boundary has been downloaded in a
// previous run; everything from the boundary down is new.
package boundary

import (
	"context"
	"fmt"

	"gallerygrab/pkg/fingerprint"
	"gallerygrab/pkg/gallery"
	"gallerygrab/pkg/logger"
	"gallerygrab/pkg/scanner"
	"gallerygrab/pkg/viewport"
)

// Store is the checkpoint membership test the locator needs.
type Store interface {
	Contains(fp fingerprint.Fingerprint) bool
}

// Locator drives scan-and-scroll cycles over the grid until it crosses from
// known items into new ones.
type Locator struct {
	vp    viewport.Adapter
	store Store
	opts  scanner.Options
	log   logger.Logger
}

// NewLocator builds a Locator. Scan options are shared with the scanner so
// both see the same scroll distances and exhaustion threshold.
func NewLocator(vp viewport.Adapter, store Store, opts scanner.Options, log logger.Logger) *Locator {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Locator{vp: vp, store: store, opts: opts, log: log}
}

// Locate scans the grid in order and returns the first item whose
// fingerprint the store does not contain. Items are never revisited or
// re-ordered, so "first absent" is well-defined. Running out of gallery
// without finding one is an outcome, not an error: the result comes back
// with Found false and the caller picks its fallback.
func (l *Locator) Locate(ctx context.Context) (gallery.BoundaryResult, error) {
	session := scanner.NewSession(l.vp, l.opts, l.log)
	result := gallery.BoundaryResult{}

	for {
		items, err := session.ScanVisible(ctx)
		if err != nil {
			return result, fmt.Errorf("scanning for boundary: %w", err)
		}

		for _, item := range items {
			result.ContainersScanned++
			fp := fingerprint.Compute(item.Timestamp, item.PromptText)
			if !l.store.Contains(fp) {
				result.Found = true
				result.Item = item
				l.log.InfoWithFields("boundary located", map[string]interface{}{
					"item":     item.ID,
					"position": item.PositionIndex,
					"scanned":  result.ContainersScanned,
					"scrolls":  result.ScrollPasses,
				})
				return result, nil
			}
		}

		if session.Exhausted() {
			l.log.WarnWithFields("boundary search exhausted gallery", map[string]interface{}{
				"scanned": result.ContainersScanned,
				"scrolls": result.ScrollPasses,
			})
			return result, nil
		}

		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.ScrollPasses++
		if _, err := session.ScrollForMore(ctx); err != nil {
			return result, fmt.Errorf("scrolling for boundary: %w", err)
		}
	}
}
