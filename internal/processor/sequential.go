package processor

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/sells-group/keyword-cli/internal/attribution"
	"github.com/sells-group/keyword-cli/internal/source"
)

// Sequential streams batches through a single tracker. The pointer table
// lives for the whole run; batch boundaries never touch it.
type Sequential struct {
	src    source.Source
	engine *attribution.Engine
}

// NewSequential creates a sequential streaming processor.
func NewSequential(src source.Source, engine *attribution.Engine) *Sequential {
	return &Sequential{src: src, engine: engine}
}

// Describe names the execution model and its input.
func (p *Sequential) Describe() string {
	return fmt.Sprintf("sequential streaming from %s", p.src.Name())
}

// Process consumes the source in arrival order.
func (p *Sequential) Process(ctx context.Context) (*Result, error) {
	tracker := attribution.NewTracker(p.engine)
	res := &Result{Ledger: attribution.NewLedger()}

	for {
		batch, err := p.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		res.Stats.Batches++
		for _, hit := range batch {
			res.Stats.TotalRows++
			em, out := tracker.Observe(hit)
			tally(&res.Stats, res.Ledger, em, out)
		}

		zap.L().Debug("processor: batch done",
			zap.Int64("batch", res.Stats.Batches),
			zap.Int("size", len(batch)),
			zap.Int("visitors", tracker.Visitors()),
		)
	}

	res.Stats.Visitors = int64(tracker.Visitors())
	logSummary(p, res)
	return res, nil
}
