package attribution

import (
	"go.uber.org/zap"

	"github.com/sells-group/keyword-cli/internal/model"
)

// Outcome describes what a single hit did to the attribution state.
type Outcome int

const (
	// OutcomeNone means the hit carried no positive revenue.
	OutcomeNone Outcome = iota
	// OutcomeAttributed means revenue was credited to the visitor's pointer.
	OutcomeAttributed
	// OutcomeUnattributed means revenue arrived before any qualifying referral.
	OutcomeUnattributed
)

// Emission is revenue credited to a key.
type Emission struct {
	Key    model.RevenueKey
	Amount float64
}

// Tracker is the last-touch state machine. It owns the per-visitor pointer
// table for one run and is not safe for concurrent use.
type Tracker struct {
	engine   *Engine
	pointers map[string]model.RevenueKey
}

// NewTracker creates a Tracker with an empty pointer table.
func NewTracker(engine *Engine) *Tracker {
	return &Tracker{
		engine:   engine,
		pointers: make(map[string]model.RevenueKey),
	}
}

// Observe feeds one hit through the state machine. A qualifying referral
// overwrites the visitor's pointer before the purchase on the same hit is
// evaluated. Pointers are never cleared.
func (t *Tracker) Observe(hit model.HitRecord) (Emission, Outcome) {
	if key, ok := t.engine.Classify(hit.Referrer); ok {
		t.pointers[hit.VisitorID] = key
	}

	ex := t.engine.Extract(hit)
	if ex.Skipped > 0 {
		zap.L().Debug("attribution: skipped malformed product entries",
			zap.String("visitor", hit.VisitorID),
			zap.Int64("seq", hit.Seq),
			zap.Int("skipped", ex.Skipped),
		)
	}
	if ex.Amount <= 0 {
		return Emission{}, OutcomeNone
	}

	key, ok := t.pointers[hit.VisitorID]
	if !ok {
		return Emission{}, OutcomeUnattributed
	}
	return Emission{Key: key, Amount: ex.Amount}, OutcomeAttributed
}

// Pointer returns the visitor's current attribution, if any.
func (t *Tracker) Pointer(visitorID string) (model.RevenueKey, bool) {
	key, ok := t.pointers[visitorID]
	return key, ok
}

// Visitors returns the number of visitors holding a pointer.
func (t *Tracker) Visitors() int {
	return len(t.pointers)
}
