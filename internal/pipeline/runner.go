// Package pipeline runs one input end to end: resolve and open the source,
// attribute revenue, render the report, deliver it, and record the run.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/keyword-cli/internal/attribution"
	"github.com/sells-group/keyword-cli/internal/config"
	"github.com/sells-group/keyword-cli/internal/model"
	"github.com/sells-group/keyword-cli/internal/processor"
	"github.com/sells-group/keyword-cli/internal/report"
	"github.com/sells-group/keyword-cli/internal/source"
	"github.com/sells-group/keyword-cli/internal/store"
)

// Request describes one report run. Zero fields fall back to configuration.
type Request struct {
	Input     string `json:"input"`
	Output    string `json:"output,omitempty"`
	Mode      string `json:"mode,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
	Workers   int    `json:"workers,omitempty"`
}

// Outcome is what a completed run produced.
type Outcome struct {
	Run    *model.Run
	Rows   []model.ReportRow
	Result model.RunResult
}

// Runner executes report runs. The store is optional.
type Runner struct {
	cfg    *config.Config
	store  store.Store
	engine *attribution.Engine

	openSource func(ctx context.Context, cfg config.SourceConfig, input string) (source.Source, error)
	newSink    func(dest, region string) (report.Sink, error)
	now        func() time.Time

	wg sync.WaitGroup
}

// NewRunner creates a Runner. st may be nil to skip run history.
func NewRunner(cfg *config.Config, st store.Store) *Runner {
	return &Runner{
		cfg:    cfg,
		store:  st,
		engine: attribution.NewEngine(cfg.Attribution),
		openSource: func(ctx context.Context, sc config.SourceConfig, input string) (source.Source, error) {
			return source.NewOpenerFromConfig(sc).Open(ctx, input)
		},
		newSink: report.NewSink,
		now:     time.Now,
	}
}

func (r *Runner) withDefaults(req Request) Request {
	if req.Mode == "" {
		req.Mode = r.cfg.Processor.Mode
	}
	if req.BatchSize <= 0 {
		req.BatchSize = r.cfg.Source.BatchSize
	}
	if req.Workers <= 0 {
		req.Workers = r.cfg.Processor.Workers
	}
	if req.Output == "" {
		req.Output = r.cfg.Output.Dir
	}
	return req
}

// Run executes req synchronously. On failure the run, if recorded, is
// marked failed and no report is written.
func (r *Runner) Run(ctx context.Context, req Request) (*Outcome, error) {
	req = r.withDefaults(req)
	run, err := r.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	return r.finish(ctx, run, req)
}

// Start records the run and executes it in the background. Wait blocks
// until every started run has finished.
func (r *Runner) Start(ctx context.Context, req Request) (*model.Run, error) {
	req = r.withDefaults(req)
	if err := processor.ValidateMode(req.Mode); err != nil {
		return nil, err
	}
	run, err := r.begin(ctx, req)
	if err != nil {
		return nil, err
	}

	bg := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.finish(bg, run, req); err != nil {
			zap.L().Error("pipeline: background run failed", zap.String("input", req.Input), zap.Error(err))
		}
	}()
	return run, nil
}

// Wait blocks until background runs complete.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) begin(ctx context.Context, req Request) (*model.Run, error) {
	if req.Input == "" {
		return nil, eris.New("pipeline: input is required")
	}
	if r.store == nil {
		return nil, nil
	}
	run, err := r.store.CreateRun(ctx, req.Input, req.Mode)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	return run, nil
}

func (r *Runner) finish(ctx context.Context, run *model.Run, req Request) (*Outcome, error) {
	log := zap.L().With(zap.String("input", req.Input), zap.String("mode", req.Mode))
	if run != nil {
		log = log.With(zap.String("run_id", run.ID))
	}

	out, err := r.execute(ctx, req, log)
	if err != nil {
		if run != nil {
			if ferr := r.store.FailRun(ctx, run.ID, err.Error()); ferr != nil {
				log.Error("pipeline: record failure", zap.Error(ferr))
			}
			run.Status = model.RunStatusFailed
			run.Error = err.Error()
		}
		return nil, err
	}

	out.Run = run
	if run != nil {
		if err := r.store.SaveReportRows(ctx, run.ID, out.Rows); err != nil {
			return nil, eris.Wrap(err, "pipeline: save report rows")
		}
		if err := r.store.CompleteRun(ctx, run.ID, &out.Result); err != nil {
			return nil, eris.Wrap(err, "pipeline: complete run")
		}
		run.Status = model.RunStatusComplete
		run.Result = &out.Result
	}
	return out, nil
}

func (r *Runner) execute(ctx context.Context, req Request, log *zap.Logger) (*Outcome, error) {
	start := r.now()

	input, err := source.Resolve(req.Input, r.cfg.Source.DataDir)
	if err != nil {
		return nil, err
	}

	sc := r.cfg.Source
	sc.BatchSize = req.BatchSize
	src, err := r.openSource(ctx, sc, input)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			log.Warn("pipeline: close source", zap.Error(cerr))
		}
	}()

	proc, err := processor.New(req.Mode, src, r.engine, req.Workers)
	if err != nil {
		return nil, err
	}
	log.Info("pipeline: processing", zap.String("processor", proc.Describe()))

	res, err := proc.Process(ctx)
	if err != nil {
		if !errors.Is(err, source.ErrSourceUnavailable) {
			err = eris.Wrap(err, "pipeline: process")
		}
		return nil, err
	}

	rows := report.Rows(res.Ledger)
	var buf bytes.Buffer
	if err := report.Write(&buf, rows); err != nil {
		return nil, err
	}

	dest := report.Destination(input, req.Output)
	sink, err := r.newSink(dest, r.cfg.Output.S3Region)
	if err != nil {
		return nil, err
	}
	loc, err := sink.Put(ctx, report.FileName(start, r.cfg.Output.Suffix), buf.Bytes())
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: deliver report")
	}

	log.Info("pipeline: run complete",
		zap.String("output", loc),
		zap.Int("rows", len(rows)),
		zap.Duration("elapsed", r.now().Sub(start)),
	)

	return &Outcome{
		Rows: rows,
		Result: model.RunResult{
			Stats:        res.Stats,
			Keys:         len(rows),
			TotalRevenue: res.Ledger.Total(),
			Output:       loc,
			Processor:    proc.Describe(),
		},
	}, nil
}
