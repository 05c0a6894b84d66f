package model

// RevenueKey identifies a search engine and keyword pair. Both parts are
// lowercase and trimmed.
type RevenueKey struct {
	Domain  string `json:"domain"`
	Keyword string `json:"keyword"`
}

// IsZero reports whether the key carries no attribution.
func (k RevenueKey) IsZero() bool {
	return k.Domain == "" && k.Keyword == ""
}

// String renders the key as "domain/keyword".
func (k RevenueKey) String() string {
	return k.Domain + "/" + k.Keyword
}

// ReportRow is one line of the search keyword performance report.
type ReportRow struct {
	Domain  string  `json:"domain"`
	Keyword string  `json:"keyword"`
	Revenue float64 `json:"revenue"`
}

// Key returns the row's revenue key.
func (r ReportRow) Key() RevenueKey {
	return RevenueKey{Domain: r.Domain, Keyword: r.Keyword}
}
