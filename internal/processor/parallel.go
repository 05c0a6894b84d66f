package processor

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/keyword-cli/internal/attribution"
	"github.com/sells-group/keyword-cli/internal/model"
	"github.com/sells-group/keyword-cli/internal/source"
)

// shardsPerWorker spreads visitors over more shards than workers so one
// heavy shard does not stall the pool.
const shardsPerWorker = 4

// Parallel groups hits by visitor, sorts each visitor's hits by
// (timestamp, arrival), and runs visitor shards concurrently. Each shard
// owns its tracker and ledger; shard ledgers are merged at the end.
type Parallel struct {
	src     source.Source
	engine  *attribution.Engine
	workers int
}

// NewParallel creates a partitioned-parallel processor. workers <= 0 uses
// GOMAXPROCS.
func NewParallel(src source.Source, engine *attribution.Engine, workers int) *Parallel {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Parallel{src: src, engine: engine, workers: workers}
}

// Describe names the execution model and its input.
func (p *Parallel) Describe() string {
	return fmt.Sprintf("partitioned parallel (%d workers) from %s", p.workers, p.src.Name())
}

// partition is the hits of one shard, grouped by visitor.
type partition map[string][]model.HitRecord

type shardResult struct {
	ledger *attribution.Ledger
	stats  model.RunStats
}

// Process reads the whole source, then attributes shards concurrently.
func (p *Parallel) Process(ctx context.Context) (*Result, error) {
	shards := make([]partition, p.workers*shardsPerWorker)
	for i := range shards {
		shards[i] = make(partition)
	}

	var stats model.RunStats
	for {
		batch, err := p.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		stats.Batches++
		stats.TotalRows += int64(len(batch))
		for _, hit := range batch {
			s := shards[shardOf(hit.VisitorID, len(shards))]
			s[hit.VisitorID] = append(s[hit.VisitorID], hit)
		}
	}

	results := make([]shardResult, len(shards))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, shard := range shards {
		if len(shard) == 0 {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = p.runShard(shard)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Ledger: attribution.NewLedger(), Stats: stats}
	for _, r := range results {
		if r.ledger == nil {
			continue
		}
		res.Ledger.Merge(r.ledger)
		res.Stats.PurchasesAttributed += r.stats.PurchasesAttributed
		res.Stats.PurchasesUnattributed += r.stats.PurchasesUnattributed
		res.Stats.Visitors += r.stats.Visitors
	}

	logSummary(p, res)
	return res, nil
}

func (p *Parallel) runShard(shard partition) shardResult {
	tracker := attribution.NewTracker(p.engine)
	out := shardResult{ledger: attribution.NewLedger()}

	for _, hits := range shard {
		slices.SortStableFunc(hits, compareHits)
		for _, hit := range hits {
			em, o := tracker.Observe(hit)
			tally(&out.stats, out.ledger, em, o)
		}
	}
	out.stats.Visitors = int64(tracker.Visitors())
	return out
}

// compareHits orders by timestamp, then arrival sequence.
func compareHits(a, b model.HitRecord) int {
	if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

func shardOf(visitor string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(visitor))
	return int(h.Sum32() % uint32(n))
}
