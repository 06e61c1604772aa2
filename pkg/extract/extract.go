// Package extract reads item metadata out of the open detail view. A fixed
// list of strategies is tried in order; each reports a confidence score and
// the first acceptable result wins. Failing every strategy is not an error;
// the caller receives the unknown sentinel and treats the item as new, since
// unresolvable metadata can never prove a duplicate.
package extract

import (
	"context"

	"gallerygrab/pkg/config"
	"gallerygrab/pkg/gallery"
	"gallerygrab/pkg/logger"
	"gallerygrab/pkg/viewport"
)

// Strategy is one way of reading metadata from the detail view.
type Strategy interface {
	// Name identifies the strategy in logs.
	Name() string
	// Extract attempts a read and scores its own result in [0,1].
	Extract(ctx context.Context, vp viewport.Adapter) (gallery.Item, float64, error)
}

// Extractor runs the ordered strategy list against a viewport.
type Extractor struct {
	strategies []Strategy
	threshold  float64
	logger     logger.Logger
}

// New builds the default extractor: landmark first, structural second,
// heuristic last.
func New(cfg config.CrawlConfig) *Extractor {
	return NewWithStrategies(cfg.ConfidenceThreshold,
		&landmarkStrategy{},
		&structuralStrategy{},
		&heuristicStrategy{},
	)
}

// NewWithStrategies builds an extractor over an explicit strategy list.
func NewWithStrategies(threshold float64, strategies ...Strategy) *Extractor {
	return &Extractor{
		strategies: strategies,
		threshold:  threshold,
		logger:     logger.GetLogger().WithField("component", "extract"),
	}
}

// Extract tries each strategy in order and returns the first result whose
// confidence meets the threshold. When every strategy falls short, the
// unknown sentinel is returned with confidence 0.
func (e *Extractor) Extract(ctx context.Context, vp viewport.Adapter) (gallery.Item, float64) {
	for _, s := range e.strategies {
		item, confidence, err := s.Extract(ctx, vp)
		if err != nil {
			e.logger.WarnWithFields("extraction strategy failed", map[string]interface{}{
				"strategy": s.Name(),
				"error":    err.Error(),
			})
			continue
		}
		if confidence >= e.threshold {
			e.logger.DebugWithFields("metadata extracted", map[string]interface{}{
				"strategy":   s.Name(),
				"confidence": confidence,
				"timestamp":  item.Timestamp,
			})
			return item, confidence
		}
		e.logger.DebugWithFields("strategy below confidence threshold", map[string]interface{}{
			"strategy":   s.Name(),
			"confidence": confidence,
			"threshold":  e.threshold,
		})
	}

	e.logger.Warn("all extraction strategies failed, treating item as new")
	return gallery.UnknownItem(), 0
}
