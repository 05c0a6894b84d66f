package attribution

import (
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/keyword-cli/internal/model"
)

// Extractor computes purchase revenue from a hit's event and product lists.
type Extractor struct {
	PurchaseEvent string
	RevenueIndex  int
}

// Extraction is the result of reading revenue off one hit.
type Extraction struct {
	Purchase bool    // the purchase event code was present
	Amount   float64 // sum of parseable revenue fields, >= 0
	Skipped  int     // line items whose revenue field was missing or unparsable
}

// Revenue returns the purchase revenue carried by the hit, or 0.
func (e Extractor) Revenue(hit model.HitRecord) float64 {
	return e.Extract(hit).Amount
}

// Extract reads revenue off the hit. Malformed line items contribute nothing
// and are counted in Skipped.
func (e Extractor) Extract(hit model.HitRecord) Extraction {
	var out Extraction
	out.Purchase = e.IsPurchase(hit)
	if !out.Purchase {
		return out
	}

	for _, fields := range hit.ProductEntries() {
		if len(fields) <= e.RevenueIndex {
			out.Skipped++
			continue
		}
		raw := strings.TrimSpace(fields[e.RevenueIndex])
		if raw == "" {
			out.Skipped++
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			out.Skipped++
			continue
		}
		out.Amount += v
	}
	return out
}

// IsPurchase reports whether the purchase event code is among the hit's events.
func (e Extractor) IsPurchase(hit model.HitRecord) bool {
	want := strings.TrimSpace(e.PurchaseEvent)
	for _, code := range hit.EventCodes() {
		if code == want {
			return true
		}
	}
	return false
}
