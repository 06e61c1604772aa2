package extract

import (
	"context"
	"regexp"
	"strings"

	"gallerygrab/pkg/gallery"
	"gallerygrab/pkg/viewport"
)

// timestampShaped matches the timestamp formats the site renders:
// "2025-09-03 16:15:18", ISO variants, and slashed dates with time.
var timestampShaped = regexp.MustCompile(
	`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(?::\d{2})?$|^\d{1,2}/\d{1,2}/\d{4}[, ]+\d{1,2}:\d{2}(?::\d{2})?(?: ?[AP]M)?$`)

// landmarkStrategy reads the values anchored to the stable text labels in
// the detail view ("Creation Time", prompt heading). Most reliable: label
// text survives layout changes that break positional selectors.
type landmarkStrategy struct{}

func (s *landmarkStrategy) Name() string { return "landmark" }

func (s *landmarkStrategy) Extract(ctx context.Context, vp viewport.Adapter) (gallery.Item, float64, error) {
	timestamp, err := vp.ReadDetailText(ctx, viewport.RegionTimestampByLabel)
	if err != nil {
		return gallery.Item{}, 0, err
	}
	prompt, err := vp.ReadDetailText(ctx, viewport.RegionPromptByLabel)
	if err != nil {
		return gallery.Item{}, 0, err
	}
	mediaRef, _ := vp.ReadDetailText(ctx, viewport.RegionMedia)

	item := gallery.Item{Timestamp: timestamp, PromptText: prompt, MediaRef: mediaRef}
	return item, scoreItem(item, 1.0), nil
}

// structuralStrategy reads fixed positions in the detail layout. Breaks when
// the site reshuffles the panel, hence its score discount.
type structuralStrategy struct{}

func (s *structuralStrategy) Name() string { return "structural" }

func (s *structuralStrategy) Extract(ctx context.Context, vp viewport.Adapter) (gallery.Item, float64, error) {
	timestamp, err := vp.ReadDetailText(ctx, viewport.RegionTimestamp)
	if err != nil {
		return gallery.Item{}, 0, err
	}
	prompt, err := vp.ReadDetailText(ctx, viewport.RegionPrompt)
	if err != nil {
		return gallery.Item{}, 0, err
	}
	mediaRef, _ := vp.ReadDetailText(ctx, viewport.RegionMedia)

	item := gallery.Item{Timestamp: timestamp, PromptText: prompt, MediaRef: mediaRef}
	return item, scoreItem(item, 0.8), nil
}

// heuristicStrategy scans every text node of the detail view for a
// timestamp-shaped value and the longest prose block. Last resort.
type heuristicStrategy struct{}

func (s *heuristicStrategy) Name() string { return "heuristic" }

// minPromptLength filters labels and buttons out of prompt candidates.
const minPromptLength = 20

func (s *heuristicStrategy) Extract(ctx context.Context, vp viewport.Adapter) (gallery.Item, float64, error) {
	texts, err := vp.DetailTexts(ctx)
	if err != nil {
		return gallery.Item{}, 0, err
	}

	var timestamp, prompt string
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if timestamp == "" && timestampShaped.MatchString(t) {
			timestamp = t
			continue
		}
		if len(t) >= minPromptLength && len(t) > len(prompt) && !timestampShaped.MatchString(t) {
			prompt = t
		}
	}

	item := gallery.Item{Timestamp: timestamp, PromptText: prompt}
	return item, scoreItem(item, 0.65), nil
}

// scoreItem discounts the strategy's base confidence by what is actually
// missing or implausible in the result.
func scoreItem(item gallery.Item, base float64) float64 {
	score := base
	if item.Timestamp == "" {
		return 0
	}
	if !timestampShaped.MatchString(strings.TrimSpace(item.Timestamp)) {
		score *= 0.6
	}
	if item.PromptText == "" {
		score *= 0.5
	}
	return score
}
