// Package report turns a revenue ledger into the search keyword
// performance table and delivers it.
package report

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/keyword-cli/internal/model"
)

// Header is the fixed first line of every report.
var Header = []string{"Search Engine Domain", "Search Keyword", "Revenue"}

// Totals is a read-only view of accumulated revenue per key.
type Totals interface {
	Keys() []model.RevenueKey
	Get(key model.RevenueKey) float64
}

// Rows returns one row per key, highest revenue first. Revenue ties are
// broken by domain then keyword. Comparison uses revenue rounded to cents,
// so rows that render equal sort by name. The totals are not modified.
func Rows(t Totals) []model.ReportRow {
	keys := t.Keys()
	rows := make([]model.ReportRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, model.ReportRow{Domain: k.Domain, Keyword: k.Keyword, Revenue: t.Get(k)})
	}
	SortRows(rows)
	return rows
}

// SortRows orders rows in report order in place.
func SortRows(rows []model.ReportRow) {
	slices.SortFunc(rows, func(a, b model.ReportRow) int {
		if c := cmp.Compare(rounded(b.Revenue), rounded(a.Revenue)); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Domain, b.Domain); c != 0 {
			return c
		}
		return cmp.Compare(a.Keyword, b.Keyword)
	})
}

// FormatRevenue renders an amount with exactly two decimals.
func FormatRevenue(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// rounded is the value FormatRevenue prints, read back as a float.
func rounded(v float64) float64 {
	r, err := strconv.ParseFloat(FormatRevenue(v), 64)
	if err != nil {
		return v
	}
	return r
}

// cell keeps a value on one line and inside one column.
var cell = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ")

// Write renders rows as a tab-delimited table with a header line.
func Write(w io.Writer, rows []model.ReportRow) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(Header, "\t") + "\n"); err != nil {
		return eris.Wrap(err, "report: write header")
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%s\n",
			cell.Replace(r.Domain), cell.Replace(r.Keyword), FormatRevenue(r.Revenue)); err != nil {
			return eris.Wrap(err, "report: write row")
		}
	}
	return eris.Wrap(bw.Flush(), "report: flush")
}

// Render returns the table as a string.
func Render(rows []model.ReportRow) string {
	var b strings.Builder
	_ = Write(&b, rows)
	return b.String()
}

// Parse reads a table produced by Write.
func Parse(r io.Reader) ([]model.ReportRow, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, eris.Wrap(err, "report: read header")
		}
		return nil, eris.New("report: empty input")
	}
	if got := strings.TrimRight(sc.Text(), "\r"); got != strings.Join(Header, "\t") {
		return nil, eris.Errorf("report: unexpected header %q", got)
	}

	var rows []model.ReportRow
	line := 1
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != len(Header) {
			return nil, eris.Errorf("report: line %d: want %d fields, got %d", line, len(Header), len(fields))
		}
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "report: line %d: revenue", line)
		}
		rows = append(rows, model.ReportRow{Domain: fields[0], Keyword: fields[1], Revenue: v})
	}
	return rows, eris.Wrap(sc.Err(), "report: scan")
}
