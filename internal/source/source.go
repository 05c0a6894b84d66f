// Package source reads hit records in ordered batches from local files,
// remote downloads, object storage and ClickHouse.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sells-group/keyword-cli/internal/config"
	"github.com/sells-group/keyword-cli/internal/model"
)

// ErrSourceUnavailable is matched (errors.Is) by every failure to open or
// read the input. No report may be produced after it.
var ErrSourceUnavailable = errors.New("source unavailable")

// Source yields hit records in input order. Next returns io.EOF once the
// input is exhausted; a source cannot be restarted.
type Source interface {
	Next(ctx context.Context) ([]model.HitRecord, error)
	Name() string
	Close() error
}

// UnavailableError describes an input that could not be opened or read.
type UnavailableError struct {
	Input string
	Tried []string
	Err   error
}

func (e *UnavailableError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "source not found or unreadable: %s", e.Input)
	if len(e.Tried) > 0 {
		fmt.Fprintf(&b, " (tried: %s)", strings.Join(e.Tried, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrSourceUnavailable) true.
func (e *UnavailableError) Is(target error) bool { return target == ErrSourceUnavailable }

func unavailable(input string, err error) error {
	return &UnavailableError{Input: input, Err: err}
}

// Options configures how inputs are opened and decoded.
type Options struct {
	BatchSize       int
	Delimiter       rune
	Encoding        string
	Columns         config.ColumnsConfig
	ClickHouseTable string
	TempDir         string
}

// OptionsFromConfig converts the source configuration section.
func OptionsFromConfig(cfg config.SourceConfig) Options {
	opts := Options{
		BatchSize:       cfg.BatchSize,
		Encoding:        cfg.Encoding,
		Columns:         cfg.Columns,
		ClickHouseTable: cfg.ClickHouseTable,
	}
	if r := []rune(cfg.Delimiter); len(r) == 1 {
		opts.Delimiter = r[0]
	}
	return opts.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 10_000
	}
	if o.Delimiter == 0 {
		o.Delimiter = '\t'
	}
	if o.Encoding == "" {
		o.Encoding = "utf-8"
	}
	if o.ClickHouseTable == "" {
		o.ClickHouseTable = "hits"
	}
	if o.Columns.Visitor == "" {
		o.Columns = config.ColumnsConfig{
			Timestamp: "hit_time_gmt",
			Visitor:   "ip",
			Referrer:  "referrer",
			Events:    "event_list",
			Products:  "product_list",
		}
	}
	return o
}
