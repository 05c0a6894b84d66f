package attribution

import (
	"github.com/sells-group/keyword-cli/internal/config"
	"github.com/sells-group/keyword-cli/internal/model"
)

// Engine bundles the pure per-hit derivations: referrer classification and
// revenue extraction. It holds no per-run state and may be shared.
type Engine struct {
	classifier *Classifier
	extractor  Extractor
}

// NewEngine builds an Engine from the attribution configuration.
func NewEngine(cfg config.AttributionConfig) *Engine {
	return &Engine{
		classifier: NewClassifier(cfg.Engines, cfg.KeywordParams),
		extractor: Extractor{
			PurchaseEvent: cfg.PurchaseEvent,
			RevenueIndex:  cfg.RevenueIndex,
		},
	}
}

// DefaultEngine returns an Engine using the built-in engine table and
// keyword parameters, purchase event "1" and revenue at position 3.
func DefaultEngine() *Engine {
	return NewEngine(config.AttributionConfig{
		Engines:       config.DefaultEngines(),
		KeywordParams: config.DefaultKeywordParams(),
		PurchaseEvent: "1",
		RevenueIndex:  3,
	})
}

// Classify delegates to the engine's classifier.
func (e *Engine) Classify(referrer string) (model.RevenueKey, bool) {
	return e.classifier.Classify(referrer)
}

// Extract delegates to the engine's revenue extractor.
func (e *Engine) Extract(hit model.HitRecord) Extraction {
	return e.extractor.Extract(hit)
}
