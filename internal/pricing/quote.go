package pricing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"price-alerts/internal/asset"
)

// Origin tells observers how fresh a quote is.
type Origin string

const (
	OriginLive     Origin = "live"
	OriginCached   Origin = "cached"
	OriginFallback Origin = "fallback"
)

// Quote is one resolved price point.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Currency  string          `json:"currency"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Origin    Origin          `json:"origin"`
}

func newQuote(d asset.Descriptor, price decimal.Decimal, at time.Time, source string, origin Origin) Quote {
	return Quote{
		Symbol:    d.Symbol,
		Name:      d.Name,
		Currency:  d.Currency,
		Price:     price,
		Timestamp: at.UTC(),
		Source:    source,
		Origin:    origin,
	}
}

// Snapshot is the full set of quotes produced by one cycle. It is never modified after Build returns.
type Snapshot struct {
	TakenAt time.Time        `json:"taken_at"`
	Quotes  map[string]Quote `json:"quotes"`
}

// Get returns the quote for symbol if it was resolved this cycle.
func (s *Snapshot) Get(symbol string) (Quote, bool) {
	if s == nil {
		return Quote{}, false
	}
	q, ok := s.Quotes[symbol]
	return q, ok
}

// Len reports how many assets were resolved.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Quotes)
}

// Sorted returns quotes ordered by symbol.
func (s *Snapshot) Sorted() []Quote {
	if s == nil {
		return nil
	}
	out := make([]Quote, 0, len(s.Quotes))
	for _, q := range s.Quotes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Degraded lists symbols served from the emergency fallback.
func (s *Snapshot) Degraded() []string {
	var out []string
	for _, q := range s.Sorted() {
		if q.Origin == OriginFallback {
			out = append(out, q.Symbol)
		}
	}
	return out
}
