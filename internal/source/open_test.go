package source

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/keyword-cli/internal/fetcher"
	"github.com/sells-group/keyword-cli/internal/model"
)

const hitsHeader = "hit_time_gmt\tdate_time\tuser_agent\tip\tevent_list\tgeo_city\tgeo_region\tgeo_country\tpagename\tpage_url\tproduct_list\treferrer"

const sampleHits = hitsHeader + `
1254033280	2009-09-27 06:34:40	Mozilla/5.0	67.98.123.1		Salem	OR	US	Home	http://www.esshopzilla.com		http://www.google.com/search?hl=en&q=Ipod
1254033379	2009-09-27 06:36:19	Mozilla/5.0	23.8.61.21	2	Rochester	NY	US	Zune	http://www.esshopzilla.com/product/?pid=asfe13	Electronics;Zune - 32GB;1;;	http://www.bing.com/search?q=Zune&go=&form=QBLH&qs=n
1254033577	2009-09-27 06:39:37	Mozilla/5.0	67.98.123.1	1	Salem	OR	US	Order Complete	https://www.esshopzilla.com/checkout/?a=complete	Electronics;Ipod - Touch - 32GB;1;290;	https://www.esshopzilla.com/checkout/?a=confirm
`

func testOpener() *Opener {
	return NewOpener(Options{BatchSize: 2}, nil)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// readAll drains a source, returning the batches it produced.
func readAll(t *testing.T, src Source) [][]model.HitRecord {
	t.Helper()
	var batches [][]model.HitRecord
	for {
		batch, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.NotEmpty(t, batch)
		batches = append(batches, batch)
	}
	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	return batches
}

func flatten(batches [][]model.HitRecord) []model.HitRecord {
	var out []model.HitRecord
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}

func TestOpen_LocalTSV(t *testing.T) {
	path := writeFile(t, "hits.tsv", sampleHits)

	src, err := testOpener().Open(context.Background(), path)
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck
	assert.Equal(t, path, src.Name())

	batches := readAll(t, src)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 1)

	hits := flatten(batches)
	assert.Equal(t, model.HitRecord{
		Seq:         1,
		Timestamp:   1254033280,
		VisitorID:   "67.98.123.1",
		Referrer:    "http://www.google.com/search?hl=en&q=Ipod",
		EventList:   "",
		ProductList: "",
	}, hits[0])
	assert.Equal(t, int64(2), hits[1].Seq)
	assert.Equal(t, "2", hits[1].EventList)
	assert.Equal(t, "Electronics;Ipod - Touch - 32GB;1;290;", hits[2].ProductList)
	assert.Equal(t, int64(3), hits[2].Seq)
}

func TestOpen_ShortRowsArePadded(t *testing.T) {
	path := writeFile(t, "hits.tsv", "ip\treferrer\tevent_list\tproduct_list\n1.1.1.1\thttp://www.google.com/?q=x\n")

	src, err := testOpener().Open(context.Background(), path)
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck

	hits := flatten(readAll(t, src))
	require.Len(t, hits, 1)
	assert.Equal(t, "1.1.1.1", hits[0].VisitorID)
	assert.Equal(t, "", hits[0].EventList)
	assert.Equal(t, "", hits[0].ProductList)
	assert.Zero(t, hits[0].Timestamp)
}

func TestOpen_MissingRequiredColumn(t *testing.T) {
	path := writeFile(t, "hits.tsv", "ip\treferrer\tevent_list\n1.1.1.1\t\t\n")

	_, err := testOpener().Open(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "missing required columns [product_list]")
}

func TestOpen_EmptyFile(t *testing.T) {
	path := writeFile(t, "hits.tsv", "")

	src, err := testOpener().Open(context.Background(), path)
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck
	assert.Empty(t, readAll(t, src))
}

func TestOpen_HeaderOnly(t *testing.T) {
	path := writeFile(t, "hits.tsv", hitsHeader+"\n")

	src, err := testOpener().Open(context.Background(), path)
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck
	assert.Empty(t, readAll(t, src))
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := testOpener().Open(context.Background(), filepath.Join(t.TempDir(), "missing.tsv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestOpen_Windows1252(t *testing.T) {
	content := append([]byte("ip\treferrer\tevent_list\tproduct_list\n1.1.1.1\thttp://www.google.com/?q=caf"), 0xe9)
	content = append(content, []byte("\t\t\n")...)
	path := filepath.Join(t.TempDir(), "hits.tsv")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	src, err := NewOpener(Options{Encoding: "windows-1252"}, nil).Open(context.Background(), path)
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck

	hits := flatten(readAll(t, src))
	require.Len(t, hits, 1)
	assert.Equal(t, "http://www.google.com/?q=café", hits[0].Referrer)
}

func TestOpen_UnknownEncoding(t *testing.T) {
	path := writeFile(t, "hits.tsv", sampleHits)
	_, err := NewOpener(Options{Encoding: "klingon"}, nil).Open(context.Background(), path)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestOpen_CommaDelimited(t *testing.T) {
	path := writeFile(t, "hits.csv", "IP,Referrer,Event_List,Product_List\n1.1.1.1,\"http://www.google.com/?q=a,b\",1,\"E;X;1;5;\"\n")

	src, err := NewOpener(Options{Delimiter: ','}, nil).Open(context.Background(), path)
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck

	hits := flatten(readAll(t, src))
	require.Len(t, hits, 1)
	assert.Equal(t, "http://www.google.com/?q=a,b", hits[0].Referrer)
	assert.Equal(t, "E;X;1;5;", hits[0].ProductList)
}

func TestOpen_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("hits")
	require.NoError(t, err)
	for _, r := range [][]string{
		{"hit_time_gmt", "ip", "referrer", "event_list", "product_list"},
		{"100", "1.1.1.1", "http://www.bing.com/search?q=zune", "", ""},
		{"200", "1.1.1.1", "", "1", "E;Zune;1;250;"},
	} {
		row := sheet.AddRow()
		for _, c := range r {
			row.AddCell().SetString(c)
		}
	}
	path := filepath.Join(t.TempDir(), "hits.xlsx")
	require.NoError(t, f.Save(path))

	src, err := testOpener().Open(context.Background(), path)
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck

	hits := flatten(readAll(t, src))
	require.Len(t, hits, 2)
	assert.Equal(t, int64(200), hits[1].Timestamp)
	assert.Equal(t, "E;Zune;1;250;", hits[1].ProductList)
}

func writeZIP(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hits.zip")
	out, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(out)
	for name, body := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, out.Close())
	return path
}

func TestOpen_ZIP(t *testing.T) {
	tmp := t.TempDir()
	path := writeZIP(t, map[string]string{"hits.tsv": sampleHits})

	src, err := NewOpener(Options{BatchSize: 10, TempDir: tmp}, nil).Open(context.Background(), path)
	require.NoError(t, err)

	assert.Len(t, flatten(readAll(t, src)), 3)
	require.NoError(t, src.Close())

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp extraction dir removed on close")
}

func TestOpen_ZIPWithTwoFiles(t *testing.T) {
	path := writeZIP(t, map[string]string{"a.tsv": sampleHits, "b.tsv": sampleHits})
	_, err := testOpener().Open(context.Background(), path)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestOpen_ZIPIgnoresArchiveMetadata(t *testing.T) {
	path := writeZIP(t, map[string]string{
		"export/hits.tsv":            sampleHits,
		"__MACOSX/export/._hits.tsv": "resource fork",
		"export/.DS_Store":           "finder",
		"export/README.md":           "notes",
	})

	src, err := testOpener().Open(context.Background(), path)
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck
	assert.Len(t, flatten(readAll(t, src)), 3)
}

func TestOpen_ZIPNested(t *testing.T) {
	path := writeZIP(t, map[string]string{"inner.zip": "PK"})
	_, err := testOpener().Open(context.Background(), path)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestOpen_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hits.tsv" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, sampleHits)
	}))
	defer srv.Close()

	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{MaxRetries: 1})
	opener := NewOpener(Options{}, map[string]fetcher.Fetcher{"http": httpFetcher})

	src, err := opener.Open(context.Background(), srv.URL+"/hits.tsv")
	require.NoError(t, err)
	assert.Len(t, flatten(readAll(t, src)), 3)
	require.NoError(t, src.Close())

	_, err = opener.Open(context.Background(), srv.URL+"/missing.tsv")
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestOpen_HTTPZip(t *testing.T) {
	zipPath := writeZIP(t, map[string]string{"hits.tsv": sampleHits})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, zipPath)
	}))
	defer srv.Close()

	opener := NewOpener(Options{TempDir: t.TempDir()}, map[string]fetcher.Fetcher{
		"http": fetcher.NewHTTPFetcher(fetcher.HTTPOptions{MaxRetries: 1}),
	})
	src, err := opener.Open(context.Background(), srv.URL+"/export/hits.zip")
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck
	assert.Len(t, flatten(readAll(t, src)), 3)
}

type mapFetcher map[string]string

func (m mapFetcher) Download(_ context.Context, url string) (io.ReadCloser, error) {
	body, ok := m[url]
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func TestOpen_S3(t *testing.T) {
	opener := NewOpener(Options{}, map[string]fetcher.Fetcher{
		"s3": mapFetcher{"s3://analytics/hits.tsv": sampleHits},
	})

	src, err := opener.Open(context.Background(), "s3://analytics/hits.tsv")
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck
	assert.Len(t, flatten(readAll(t, src)), 3)

	_, err = opener.Open(context.Background(), "s3://analytics/other.tsv")
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestOpen_UnconfiguredScheme(t *testing.T) {
	_, err := testOpener().Open(context.Background(), "ftp://ftp.example.com/hits.tsv")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Contains(t, err.Error(), `no fetcher for scheme "ftp"`)
}

func TestSource_CloseEarly(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(hitsHeader + "\n")
	for range 5000 {
		sb.WriteString("1\t\t\t1.1.1.1\t\t\t\t\t\t\t\t\n")
	}
	path := writeFile(t, "big.tsv", sb.String())

	src, err := NewOpener(Options{BatchSize: 10}, nil).Open(context.Background(), path)
	require.NoError(t, err)

	batch, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, batch, 10)
	require.NoError(t, src.Close())

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestSource_NextHonoursContext(t *testing.T) {
	path := writeFile(t, "hits.tsv", sampleHits)
	src, err := testOpener().Open(context.Background(), path)
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Next(ctx)
	// Either the cancelled context or a ready batch wins the select.
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestOptionsFromConfigDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, 10_000, opts.BatchSize)
	assert.Equal(t, '\t', opts.Delimiter)
	assert.Equal(t, "utf-8", opts.Encoding)
	assert.Equal(t, "ip", opts.Columns.Visitor)
	assert.Equal(t, "hits", opts.ClickHouseTable)
}
