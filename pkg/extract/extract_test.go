package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gallerygrab/pkg/config"
	"gallerygrab/pkg/viewport"
)

func openFake(t *testing.T, f *viewport.Fake) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.Navigate(ctx))
	handles, err := f.VisibleItems(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, handles)
	ok, err := f.ClickItem(ctx, handles[0])
	require.NoError(t, err)
	require.True(t, ok)
}

func testItems() []viewport.FakeItem {
	return []viewport.FakeItem{{
		Timestamp: "2025-09-03 16:15:18",
		Prompt:    "The camera begins a slow dolly zoom across the harbor at dawn",
		MediaRef:  "https://cdn.example.com/vid_001.mp4",
	}}
}

func TestLandmarkStrategyWins(t *testing.T) {
	f := viewport.NewFake(testItems())
	openFake(t, f)

	ex := New(config.DefaultConfig().Crawl)
	item, confidence := ex.Extract(context.Background(), f)

	assert.Equal(t, "2025-09-03 16:15:18", item.Timestamp)
	assert.Contains(t, item.PromptText, "dolly zoom")
	assert.GreaterOrEqual(t, confidence, 0.6)
}

func TestFallsBackToStructural(t *testing.T) {
	f := viewport.NewFake(testItems())
	f.HideLabelRegions = true
	openFake(t, f)

	ex := New(config.DefaultConfig().Crawl)
	item, confidence := ex.Extract(context.Background(), f)

	assert.Equal(t, "2025-09-03 16:15:18", item.Timestamp)
	assert.GreaterOrEqual(t, confidence, 0.6)
}

func TestFallsBackToHeuristic(t *testing.T) {
	f := viewport.NewFake(testItems())
	f.HideDetailRegions = true
	openFake(t, f)

	ex := New(config.DefaultConfig().Crawl)
	item, confidence := ex.Extract(context.Background(), f)

	assert.Equal(t, "2025-09-03 16:15:18", item.Timestamp)
	assert.Contains(t, item.PromptText, "dolly zoom")
	assert.GreaterOrEqual(t, confidence, 0.6)
}

func TestAllStrategiesFailReturnsUnknown(t *testing.T) {
	f := viewport.NewFake(testItems())
	f.BlankDetail = true
	openFake(t, f)

	ex := New(config.DefaultConfig().Crawl)
	item, confidence := ex.Extract(context.Background(), f)

	assert.False(t, item.Known())
	assert.Equal(t, 0.0, confidence)
}

func TestGridAndDetailFingerprintFieldsAgree(t *testing.T) {
	// The same item read through the grid path and the detail path must
	// produce identical fingerprint fields.
	f := viewport.NewFake(testItems())
	openFake(t, f)
	ctx := context.Background()

	ex := New(config.DefaultConfig().Crawl)
	detailItem, _ := ex.Extract(ctx, f)

	handles, err := f.VisibleItems(ctx)
	require.NoError(t, err)
	gridTS, err := f.ReadText(ctx, handles[0], viewport.RegionGridTimestamp)
	require.NoError(t, err)
	gridPrompt, err := f.ReadText(ctx, handles[0], viewport.RegionGridPrompt)
	require.NoError(t, err)

	assert.Equal(t, detailItem.Timestamp, gridTS)
	assert.Equal(t, detailItem.PromptText, gridPrompt)
}

func TestConfidenceDiscounts(t *testing.T) {
	s := &structuralStrategy{}
	f := viewport.NewFake([]viewport.FakeItem{{Timestamp: "not a timestamp", Prompt: "p"}})
	openFake(t, f)

	_, confidence, err := s.Extract(context.Background(), f)
	require.NoError(t, err)

	// Implausible timestamp shape must fall below the default threshold.
	assert.Less(t, confidence, 0.6)
}
