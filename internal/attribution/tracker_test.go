package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/keyword-cli/internal/model"
)

func search(ip, referrer string) model.HitRecord {
	return model.HitRecord{VisitorID: ip, Referrer: referrer}
}

func purchase(ip, products string) model.HitRecord {
	return model.HitRecord{VisitorID: ip, EventList: "1", ProductList: products}
}

// runTracker feeds hits through a fresh tracker and returns the ledger.
func runTracker(hits ...model.HitRecord) (*Ledger, *Tracker) {
	tr := NewTracker(DefaultEngine())
	ledger := NewLedger()
	for _, h := range hits {
		if em, out := tr.Observe(h); out == OutcomeAttributed {
			ledger.Record(em)
		}
	}
	return ledger, tr
}

func TestTracker_BasicAttribution(t *testing.T) {
	ledger, _ := runTracker(
		model.HitRecord{Timestamp: 1000, VisitorID: "1.1.1.1", Referrer: "http://www.google.com/search?q=Ipod"},
		model.HitRecord{Timestamp: 2000, VisitorID: "1.1.1.1", EventList: "1", ProductList: "E;Ipod;1;290;"},
	)
	assert.Equal(t, map[model.RevenueKey]float64{{Domain: "google.com", Keyword: "ipod"}: 290}, ledger.Snapshot())
}

func TestTracker_NonSearchReferrerNotAttributed(t *testing.T) {
	tr := NewTracker(DefaultEngine())

	_, out := tr.Observe(search("2.2.2.2", "http://www.esshopzilla.com/"))
	assert.Equal(t, OutcomeNone, out)

	em, out := tr.Observe(purchase("2.2.2.2", "E;Ipod;1;290;"))
	assert.Equal(t, OutcomeUnattributed, out)
	assert.Equal(t, Emission{}, em)
	assert.Equal(t, 0, tr.Visitors())
}

func TestTracker_VisitorsAggregateOnSameKey(t *testing.T) {
	ledger, tr := runTracker(
		search("3.3.3.3", "http://www.google.com/search?q=Zune"),
		purchase("3.3.3.3", "E;Zune;1;100;"),
		search("4.4.4.4", "http://www.google.com/search?q=Zune"),
		purchase("4.4.4.4", "E;Zune;1;150;"),
	)
	assert.InDelta(t, 250, ledger.Get(model.RevenueKey{Domain: "google.com", Keyword: "zune"}), 1e-9)
	assert.Equal(t, 1, ledger.Len())
	assert.Equal(t, 2, tr.Visitors())
}

func TestTracker_LastTouchWins(t *testing.T) {
	ledger, _ := runTracker(
		search("5.5.5.5", "http://www.google.com/search?q=headphones"),
		search("5.5.5.5", "http://www.bing.com/search?q=headphones"),
		purchase("5.5.5.5", "E;HP;1;199;"),
	)
	snap := ledger.Snapshot()
	assert.Contains(t, snap, model.RevenueKey{Domain: "bing.com", Keyword: "headphones"})
	assert.NotContains(t, snap, model.RevenueKey{Domain: "google.com", Keyword: "headphones"})
}

func TestTracker_NonPurchaseEventsContributeNothing(t *testing.T) {
	tr := NewTracker(DefaultEngine())
	tr.Observe(search("6.6.6.6", "http://www.google.com/search?q=ipod"))

	_, out := tr.Observe(model.HitRecord{VisitorID: "6.6.6.6", EventList: "2,12", ProductList: "E;Ipod;1;290;"})
	assert.Equal(t, OutcomeNone, out)
}

func TestTracker_NonQualifyingHitKeepsPointer(t *testing.T) {
	tr := NewTracker(DefaultEngine())
	tr.Observe(search("7.7.7.7", "http://www.google.com/search?q=ipod"))
	before, ok := tr.Pointer("7.7.7.7")
	assert.True(t, ok)

	for _, ref := range []string{"", "http://www.esshopzilla.com/", "http://www.google.com/", "::bad::"} {
		tr.Observe(search("7.7.7.7", ref))
		after, ok := tr.Pointer("7.7.7.7")
		assert.True(t, ok)
		assert.Equal(t, before, after, "referrer %q must not move the pointer", ref)
	}
}

func TestTracker_PointerSurvivesPurchases(t *testing.T) {
	ledger, _ := runTracker(
		search("8.8.8.8", "http://www.google.com/search?q=ipod"),
		purchase("8.8.8.8", "E;Ipod;1;100;"),
		purchase("8.8.8.8", "E;Case;1;20;"),
	)
	assert.InDelta(t, 120, ledger.Get(model.RevenueKey{Domain: "google.com", Keyword: "ipod"}), 1e-9)
}

func TestTracker_SameHitReferralAndPurchase(t *testing.T) {
	ledger, _ := runTracker(model.HitRecord{
		VisitorID:   "9.9.9.9",
		Referrer:    "http://www.bing.com/search?q=Zune",
		EventList:   "1",
		ProductList: "E;Zune;1;250;",
	})
	assert.InDelta(t, 250, ledger.Get(model.RevenueKey{Domain: "bing.com", Keyword: "zune"}), 1e-9)
}

func TestTracker_PurchaseBeforeReferralDropped(t *testing.T) {
	ledger, _ := runTracker(
		purchase("10.0.0.1", "E;Ipod;1;50;"),
		search("10.0.0.1", "http://www.google.com/search?q=ipod"),
	)
	assert.Equal(t, 0, ledger.Len())
}

func TestTracker_VisitorsAreIsolated(t *testing.T) {
	ledger, _ := runTracker(
		search("11.0.0.1", "http://www.google.com/search?q=ipod"),
		purchase("11.0.0.2", "E;Ipod;1;50;"),
	)
	assert.Equal(t, 0, ledger.Len())
}

func TestTracker_ZeroRevenuePurchaseIsNotAnEmission(t *testing.T) {
	tr := NewTracker(DefaultEngine())
	tr.Observe(search("12.0.0.1", "http://www.google.com/search?q=ipod"))
	_, out := tr.Observe(purchase("12.0.0.1", "E;Ipod;1;;"))
	assert.Equal(t, OutcomeNone, out)
}
