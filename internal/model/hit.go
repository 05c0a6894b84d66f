package model

import "strings"

// HitRecord is one row of web-analytics input. Values are decoded best-effort
// strings; nothing here is validated beyond trimming.
type HitRecord struct {
	Seq         int64  `json:"seq"`          // arrival position within the source, 0-based
	Timestamp   int64  `json:"timestamp"`    // hit_time_gmt; 0 when absent or unparsable
	VisitorID   string `json:"visitor_id"`   // usually the client IP
	Referrer    string `json:"referrer"`     // raw referrer URL
	EventList   string `json:"event_list"`   // comma-joined event codes
	ProductList string `json:"product_list"` // comma-joined "category;name;qty;revenue;..." items
}

// EventCodes returns the trimmed, non-empty event tokens in order.
func (h HitRecord) EventCodes() []string {
	var codes []string
	for _, tok := range strings.Split(h.EventList, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			codes = append(codes, tok)
		}
	}
	return codes
}

// ProductEntries splits the product list into line items, each split into its
// positional fields. Empty input yields nil.
func (h HitRecord) ProductEntries() [][]string {
	if strings.TrimSpace(h.ProductList) == "" {
		return nil
	}
	items := strings.Split(h.ProductList, ",")
	entries := make([][]string, 0, len(items))
	for _, item := range items {
		entries = append(entries, strings.Split(item, ";"))
	}
	return entries
}
