// Package attribution implements last-touch search keyword attribution:
// referrer classification, revenue extraction, the per-visitor pointer table
// and the revenue ledger.
package attribution

import (
	"net/url"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/keyword-cli/internal/model"
)

// Classifier maps referrer URLs to the search engine and keyword that sent
// the visitor. It is safe for concurrent use.
type Classifier struct {
	engines map[string]string
	params  []string
	casers  sync.Pool
}

// NewClassifier builds a classifier from a hostname to canonical domain table
// and an ordered list of keyword query parameters. Hostnames and domains are
// lowercased.
func NewClassifier(engines map[string]string, params []string) *Classifier {
	table := make(map[string]string, len(engines))
	for host, domain := range engines {
		table[strings.ToLower(strings.TrimSpace(host))] = strings.ToLower(strings.TrimSpace(domain))
	}
	c := &Classifier{
		engines: table,
		params:  append([]string(nil), params...),
	}
	// Casers keep state between calls and must not be shared across goroutines.
	c.casers.New = func() any {
		caser := cases.Lower(language.Und)
		return &caser
	}
	return c
}

// Classify returns the (domain, keyword) a referrer URL carries. ok is false
// when the referrer is empty, unparsable, not a known engine, or has no
// usable keyword.
func (c *Classifier) Classify(referrer string) (key model.RevenueKey, ok bool) {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return model.RevenueKey{}, false
	}

	u, err := url.Parse(referrer)
	if err != nil {
		return model.RevenueKey{}, false
	}

	domain, known := c.engines[strings.ToLower(u.Hostname())]
	if !known {
		return model.RevenueKey{}, false
	}

	query := queryValues(u.RawQuery)
	for _, param := range c.params {
		for _, value := range query[param] {
			keyword := strings.TrimSpace(value)
			if keyword == "" {
				continue
			}
			return model.RevenueKey{Domain: domain, Keyword: c.lower(keyword)}, true
		}
	}

	return model.RevenueKey{}, false
}

// queryValues splits a raw query on '&' only, so ';' stays part of a value.
// Pairs without '=' or with bad escapes are skipped.
func queryValues(raw string) map[string][]string {
	values := make(map[string][]string)
	for _, pair := range strings.Split(raw, "&") {
		name, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		name, err := url.QueryUnescape(name)
		if err != nil {
			continue
		}
		value, err = url.QueryUnescape(value)
		if err != nil {
			continue
		}
		values[name] = append(values[name], value)
	}
	return values
}

func (c *Classifier) lower(s string) string {
	caser := c.casers.Get().(*cases.Caser)
	out := caser.String(s)
	caser.Reset()
	c.casers.Put(caser)
	return out
}
