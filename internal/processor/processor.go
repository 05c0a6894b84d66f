// Package processor runs hit records from a source through the attribution
// engine. Two execution models are provided and agree on output whenever
// each visitor's hits arrive in timestamp order.
package processor

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/keyword-cli/internal/attribution"
	"github.com/sells-group/keyword-cli/internal/model"
	"github.com/sells-group/keyword-cli/internal/source"
)

// Mode names an execution model.
const (
	ModeSequential = "sequential"
	ModeParallel   = "parallel"
)

// Result is the outcome of one run: the revenue ledger and run counters.
type Result struct {
	Ledger *attribution.Ledger
	Stats  model.RunStats
}

// Processor consumes a source and produces a Result. A Processor is
// single-use.
type Processor interface {
	Process(ctx context.Context) (*Result, error)
	Describe() string
}

// ValidateMode reports whether mode names an execution model. The empty
// mode means sequential.
func ValidateMode(mode string) error {
	switch mode {
	case ModeSequential, ModeParallel, "":
		return nil
	default:
		return eris.Errorf("processor: unknown mode %q", mode)
	}
}

// New returns the processor for mode.
func New(mode string, src source.Source, engine *attribution.Engine, workers int) (Processor, error) {
	if err := ValidateMode(mode); err != nil {
		return nil, err
	}
	if mode == ModeParallel {
		return NewParallel(src, engine, workers), nil
	}
	return NewSequential(src, engine), nil
}

// tally applies one hit outcome to the run counters and ledger.
func tally(stats *model.RunStats, ledger *attribution.Ledger, em attribution.Emission, out attribution.Outcome) {
	switch out {
	case attribution.OutcomeAttributed:
		stats.PurchasesAttributed++
		ledger.Record(em)
	case attribution.OutcomeUnattributed:
		stats.PurchasesUnattributed++
	}
}

func logSummary(p Processor, res *Result) {
	zap.L().Info("processor: run complete",
		zap.String("processor", p.Describe()),
		zap.Int64("rows", res.Stats.TotalRows),
		zap.Int64("batches", res.Stats.Batches),
		zap.Int64("purchases_attributed", res.Stats.PurchasesAttributed),
		zap.Int64("unattributed_purchases", res.Stats.PurchasesUnattributed),
		zap.Int64("visitors", res.Stats.Visitors),
		zap.Int("keys", res.Ledger.Len()),
	)
}
