package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/keyword-cli/internal/config"
	"github.com/sells-group/keyword-cli/internal/fetcher"
)

// Opener opens inputs by scheme and extension.
type Opener struct {
	opts       Options
	fetchers   map[string]fetcher.Fetcher
	clickhouse ClickHouseDialer
}

// NewOpener creates an Opener. fetchers maps a remote scheme (http, https,
// ftp, s3) to the Fetcher that downloads it.
func NewOpener(opts Options, fetchers map[string]fetcher.Fetcher) *Opener {
	return &Opener{
		opts:       opts.withDefaults(),
		fetchers:   fetchers,
		clickhouse: DialClickHouse,
	}
}

// NewOpenerFromConfig wires the HTTP, FTP and S3 fetchers from configuration.
func NewOpenerFromConfig(cfg config.SourceConfig) *Opener {
	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:    secondsOr(cfg.HTTPTimeoutSecs, 30),
		MaxRetries: cfg.MaxRetries,
	})
	return NewOpener(OptionsFromConfig(cfg), map[string]fetcher.Fetcher{
		"http":  httpFetcher,
		"https": httpFetcher,
		"ftp":   fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: secondsOr(cfg.HTTPTimeoutSecs, 30)}),
		"s3":    fetcher.NewS3Fetcher(cfg.S3Region),
	})
}

// WithClickHouse replaces the ClickHouse dialer.
func (o *Opener) WithClickHouse(d ClickHouseDialer) *Opener {
	o.clickhouse = d
	return o
}

// Open opens input for batched reading. Every failure matches
// ErrSourceUnavailable.
func (o *Opener) Open(ctx context.Context, input string) (Source, error) {
	scheme := Scheme(input)
	switch scheme {
	case "":
		return o.openLocal(ctx, input, localPath(input), nil)
	case "clickhouse":
		return o.openClickHouse(ctx, input)
	}

	f, ok := o.fetchers[scheme]
	if !ok {
		return nil, unavailable(input, eris.Errorf("source: no fetcher for scheme %q", scheme))
	}

	switch extOf(input) {
	case ".zip", ".xlsx":
		// Archives and spreadsheets need random access.
		dir, err := os.MkdirTemp(o.opts.TempDir, "keyword-src-*")
		if err != nil {
			return nil, unavailable(input, eris.Wrap(err, "source: create temp dir"))
		}
		cleanup := func() error { return os.RemoveAll(dir) }
		dest := filepath.Join(dir, "download"+extOf(input))
		n, err := fetcher.DownloadToFile(ctx, f, input, dest)
		if err != nil {
			_ = cleanup()
			return nil, unavailable(input, err)
		}
		zap.L().Debug("source: downloaded", zap.String("input", input), zap.Int64("bytes", n))
		return o.openLocal(ctx, input, dest, []func() error{cleanup})
	}

	body, err := f.Download(ctx, input)
	if err != nil {
		return nil, unavailable(input, err)
	}
	return o.openDelimited(ctx, input, body, []func() error{body.Close})
}

// archiveMembers are the extensions a hit file inside a zip may carry.
var archiveMembers = []string{".tsv", ".tab", ".txt", ".csv", ".xlsx"}

func (o *Opener) openLocal(ctx context.Context, name, path string, closers []func() error) (Source, error) {
	fail := func(err error) (Source, error) {
		runClosers(closers)
		return nil, unavailable(name, err)
	}

	if !isFile(path) {
		return fail(os.ErrNotExist)
	}

	switch extOf(path) {
	case ".zip":
		dir, err := os.MkdirTemp(o.opts.TempDir, "keyword-zip-*")
		if err != nil {
			return fail(eris.Wrap(err, "source: create temp dir"))
		}
		closers = append(closers, func() error { return os.RemoveAll(dir) })
		inner, err := fetcher.ExtractHitFile(path, dir, archiveMembers)
		if err != nil {
			return fail(err)
		}
		return o.openLocal(ctx, name, inner, closers)

	case ".xlsx":
		return o.openXLSX(ctx, name, path, closers)
	}

	file, err := os.Open(path)
	if err != nil {
		return fail(err)
	}
	return o.openDelimited(ctx, name, file, append(closers, file.Close))
}

func (o *Opener) openDelimited(ctx context.Context, name string, r io.Reader, closers []func() error) (Source, error) {
	enc, err := htmlindex.Get(o.opts.Encoding)
	if err != nil {
		runClosers(closers)
		return nil, unavailable(name, eris.Wrapf(err, "source: unknown encoding %q", o.opts.Encoding))
	}

	streamCtx, cancel := context.WithCancel(ctx)
	headerCh := make(chan []string, 1)
	rows, errs := fetcher.StreamCSV(streamCtx, enc.NewDecoder().Reader(r), fetcher.CSVOptions{
		Delimiter:  o.opts.Delimiter,
		HasHeader:  true,
		HeaderCh:   headerCh,
		LazyQuotes: true,
	})
	// Closers run in reverse: the producer is cancelled before its reader closes.
	closers = append(closers, func() error { cancel(); return nil })
	return o.newRowSource(ctx, name, headerCh, rows, errs, closers)
}

func (o *Opener) openXLSX(ctx context.Context, name, path string, closers []func() error) (Source, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	headerCh := make(chan []string, 1)
	rows, errs := fetcher.StreamXLSX(streamCtx, path, fetcher.XLSXOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})
	closers = append(closers, func() error { cancel(); return nil })
	return o.newRowSource(ctx, name, headerCh, rows, errs, closers)
}

// newRowSource waits for the header row and maps the configured columns.
func (o *Opener) newRowSource(ctx context.Context, name string, headerCh <-chan []string, rows <-chan []string, errs <-chan error, closers []func() error) (Source, error) {
	header, err := awaitHeader(ctx, headerCh, errs)
	if err != nil {
		runClosers(closers)
		return nil, unavailable(name, err)
	}
	if header == nil {
		zap.L().Warn("source: input is empty", zap.String("input", name))
		return &emptySource{name: name, closers: closers}, nil
	}

	cols, err := mapColumns(header, o.opts.Columns)
	if err != nil {
		runClosers(closers)
		return nil, unavailable(name, err)
	}
	if cols.timestamp < 0 {
		zap.L().Warn("source: timestamp column absent, hits ordered by position only",
			zap.String("input", name),
			zap.String("column", o.opts.Columns.Timestamp),
		)
	}

	return &rowSource{
		name:      name,
		rows:      rows,
		errs:      errs,
		columns:   cols,
		batchSize: o.opts.BatchSize,
		closers:   closers,
	}, nil
}

// awaitHeader returns the header row, nil for an empty input, or the
// producer's error.
func awaitHeader(ctx context.Context, headerCh <-chan []string, errs <-chan error) ([]string, error) {
	select {
	case h := <-headerCh:
		return h, nil
	case err, ok := <-errs:
		if ok && err != nil {
			return nil, err
		}
		select {
		case h := <-headerCh:
			return h, nil
		default:
			return nil, nil
		}
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "source: await header")
	}
}

func runClosers(closers []func() error) {
	for i := len(closers) - 1; i >= 0; i-- {
		_ = closers[i]()
	}
}

func secondsOr(secs, def int) time.Duration {
	if secs <= 0 {
		secs = def
	}
	return time.Duration(secs) * time.Second
}
