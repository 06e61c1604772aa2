// Package gallery defines the shared domain types passed between the
// scanner, extractor, boundary locator and orchestrator.
package gallery

// Item is a single gallery entry as observed in the overview grid or the
// detail view. Instances are transient: a fresh Item is produced every time
// the viewport is scanned, and nothing outside the fingerprint survives a
// scan session.
type Item struct {
	// ID is the opaque viewport handle for the item's grid container.
	ID string
	// PositionIndex is the item's zero-based position in the grid at the
	// time it was scanned.
	PositionIndex int
	// Timestamp is the creation-time string as rendered by the site.
	Timestamp string
	// PromptText is the generation prompt as rendered. May be truncated by
	// the site; fingerprinting only relies on its prefix.
	PromptText string
	// MediaRef points at the item's media resource, when known.
	MediaRef string
}

// Known reports whether the item carries enough metadata to fingerprint.
func (it Item) Known() bool {
	return it.Timestamp != ""
}

// UnknownItem returns the sentinel item used when metadata extraction fails
// entirely. Callers treat it as new content, never as a duplicate.
func UnknownItem() Item {
	return Item{}
}

// BoundaryResult reports the outcome of a boundary search over the overview
// grid.
type BoundaryResult struct {
	// Found is true when an item absent from the checkpoint log was reached.
	Found bool
	// Item is the boundary item. Only valid when Found is true.
	Item Item
	// ContainersScanned counts grid items examined during the search.
	ContainersScanned int
	// ScrollPasses counts scroll cycles issued during the search.
	ScrollPasses int
}
