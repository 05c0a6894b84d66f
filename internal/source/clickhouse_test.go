package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRows struct {
	data   [][]string
	pos    int
	err    error
	closed bool
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	for i := range dest {
		*(dest[i].(*string)) = row[i]
	}
	return nil
}

func (r *fakeRows) Err() error   { return r.err }
func (r *fakeRows) Close() error { r.closed = true; return nil }

type fakeQuerier struct {
	rows    *fakeRows
	queries []string
	qerr    error
	closed  bool
}

func (q *fakeQuerier) Query(_ context.Context, query string, _ ...any) (Rows, error) {
	q.queries = append(q.queries, query)
	if q.qerr != nil {
		return nil, q.qerr
	}
	return q.rows, nil
}

func (q *fakeQuerier) Close() error { q.closed = true; return nil }

func TestParseClickHouseDSN(t *testing.T) {
	dsn, err := ParseClickHouseDSN("clickhouse://analyst:pw@ch.internal:9440/web?table=hit_data", "hits")
	require.NoError(t, err)
	assert.Equal(t, ClickHouseDSN{
		Addr:     "ch.internal:9440",
		Database: "web",
		Username: "analyst",
		Password: "pw",
		Table:    "hit_data",
	}, dsn)

	dsn, err = ParseClickHouseDSN("clickhouse://ch.internal", "hits")
	require.NoError(t, err)
	assert.Equal(t, "ch.internal:9000", dsn.Addr)
	assert.Equal(t, "default", dsn.Database)
	assert.Equal(t, "hits", dsn.Table)

	_, err = ParseClickHouseDSN("clickhouse:///web", "hits")
	assert.Error(t, err)
	_, err = ParseClickHouseDSN("http://ch.internal/web", "hits")
	assert.Error(t, err)
}

func TestOpen_ClickHouse(t *testing.T) {
	rows := &fakeRows{data: [][]string{
		// visitor, referrer, events, products, timestamp
		{"1.1.1.1", "http://www.google.com/search?q=ipod", "", "", "100"},
		{"1.1.1.1", "", "1", "E;Ipod;1;290;", "2009-09-27 06:39:37"},
		{"2.2.2.2", "", "", "", "300"},
	}}
	q := &fakeQuerier{rows: rows}

	var gotDSN ClickHouseDSN
	opener := testOpener().WithClickHouse(func(_ context.Context, dsn ClickHouseDSN) (Querier, error) {
		gotDSN = dsn
		return q, nil
	})

	src, err := opener.Open(context.Background(), "clickhouse://analyst:pw@ch.internal/web?table=hit_data")
	require.NoError(t, err)
	assert.NotContains(t, src.Name(), "pw")
	assert.Equal(t, "hit_data", gotDSN.Table)

	batches := readAll(t, src)
	require.Len(t, batches, 2)
	hits := flatten(batches)
	require.Len(t, hits, 3)
	assert.Equal(t, "1.1.1.1", hits[0].VisitorID)
	assert.Equal(t, int64(100), hits[0].Timestamp)
	assert.Equal(t, int64(1254033577), hits[1].Timestamp)
	assert.Equal(t, "E;Ipod;1;290;", hits[1].ProductList)

	require.NoError(t, src.Close())
	assert.True(t, q.closed)
	assert.True(t, rows.closed)
	require.Len(t, q.queries, 1)
	assert.Equal(t,
		"SELECT toString(`ip`), toString(`referrer`), toString(`event_list`), toString(`product_list`), toString(`hit_time_gmt`) FROM `hit_data` ORDER BY `hit_time_gmt`",
		q.queries[0],
	)
}

func TestOpen_ClickHouseDialFailure(t *testing.T) {
	opener := testOpener().WithClickHouse(func(context.Context, ClickHouseDSN) (Querier, error) {
		return nil, errors.New("connection refused")
	})
	_, err := opener.Open(context.Background(), "clickhouse://ch.internal/web")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestOpen_ClickHouseQueryFailure(t *testing.T) {
	q := &fakeQuerier{qerr: errors.New("Table web.hits doesn't exist")}
	opener := testOpener().WithClickHouse(func(context.Context, ClickHouseDSN) (Querier, error) {
		return q, nil
	})
	_, err := opener.Open(context.Background(), "clickhouse://ch.internal/web")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.True(t, q.closed)
}

func TestOpen_ClickHouseIterationError(t *testing.T) {
	q := &fakeQuerier{rows: &fakeRows{err: errors.New("network partition")}}
	opener := testOpener().WithClickHouse(func(context.Context, ClickHouseDSN) (Querier, error) {
		return q, nil
	})
	src, err := opener.Open(context.Background(), "clickhouse://ch.internal/web")
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "clickhouse://analyst:xxxxx@ch/web", redact("clickhouse://analyst:pw@ch/web"))
	assert.Equal(t, "clickhouse://ch/web", redact("clickhouse://ch/web"))
}

func TestParseTimestamp(t *testing.T) {
	tests := map[string]int64{
		"":                     0,
		"1254033280":           1254033280,
		" 1254033280 ":         1254033280,
		"1254033280.75":        1254033280,
		"2009-09-27T06:34:40Z": 1254033280,
		"2009-09-27 06:34:40":  1254033280,
		"yesterday":            0,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseTimestamp(in), in)
	}
}
