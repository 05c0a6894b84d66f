package source

import (
	"context"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/keyword-cli/internal/config"
	"github.com/sells-group/keyword-cli/internal/model"
)

// columnMap holds the index of each hit field in an input row. -1 means the
// column is absent.
type columnMap struct {
	timestamp int
	visitor   int
	referrer  int
	events    int
	products  int
}

// mapColumns locates the configured columns in header. Every column but
// the timestamp is required.
func mapColumns(header []string, cols config.ColumnsConfig) (columnMap, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	find := func(name string) int {
		if i, ok := index[strings.ToLower(strings.TrimSpace(name))]; ok && name != "" {
			return i
		}
		return -1
	}

	m := columnMap{
		timestamp: find(cols.Timestamp),
		visitor:   find(cols.Visitor),
		referrer:  find(cols.Referrer),
		events:    find(cols.Events),
		products:  find(cols.Products),
	}

	var missing []string
	for name, idx := range map[string]int{
		cols.Visitor:  m.visitor,
		cols.Referrer: m.referrer,
		cols.Events:   m.events,
		cols.Products: m.products,
	} {
		if idx < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return m, eris.Errorf("source: missing required columns %v", slices.Sorted(slices.Values(missing)))
	}
	return m, nil
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func (m columnMap) hit(row []string, seq int64) model.HitRecord {
	return model.HitRecord{
		Seq:         seq,
		Timestamp:   parseTimestamp(field(row, m.timestamp)),
		VisitorID:   strings.TrimSpace(field(row, m.visitor)),
		Referrer:    field(row, m.referrer),
		EventList:   field(row, m.events),
		ProductList: field(row, m.products),
	}
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp reads epoch seconds or a date-time. Anything else is 0.
func parseTimestamp(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return int64(v)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Unix()
		}
	}
	return 0
}

// rowSource batches string rows from a producer goroutine into hit records.
type rowSource struct {
	name      string
	rows      <-chan []string
	errs      <-chan error
	columns   columnMap
	batchSize int

	seq     int64
	done    bool
	closers []func() error
}

func (s *rowSource) Name() string { return s.name }

// Next returns up to batchSize records, or io.EOF when the rows run out.
func (s *rowSource) Next(ctx context.Context) ([]model.HitRecord, error) {
	if s.done {
		return nil, io.EOF
	}

	batch := make([]model.HitRecord, 0, s.batchSize)
	for len(batch) < s.batchSize {
		select {
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), "source: next batch")
		case row, ok := <-s.rows:
			if !ok {
				s.done = true
				if err := <-s.errs; err != nil {
					return nil, unavailable(s.name, err)
				}
				if len(batch) == 0 {
					return nil, io.EOF
				}
				return batch, nil
			}
			if isBlank(row) {
				continue
			}
			s.seq++
			batch = append(batch, s.columns.hit(row, s.seq))
		}
	}
	return batch, nil
}

// Close stops the producer and releases temp files and connections.
func (s *rowSource) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	s.done = true
	return first
}

func isBlank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// emptySource is a header-less input: it yields nothing.
type emptySource struct {
	name    string
	closers []func() error
}

func (e *emptySource) Name() string { return e.name }

func (e *emptySource) Next(context.Context) ([]model.HitRecord, error) { return nil, io.EOF }

func (e *emptySource) Close() error {
	var first error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	e.closers = nil
	return first
}
