// Package market resolves ticker symbols to quotes through a provider chain,
// replacing missing or implausible answers with synthetic quotes.
package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceSynthetic marks a generated quote.
const SourceSynthetic = "synthetic"

// Quote is one symbol's current price snapshot.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	LastUpdate    time.Time `json:"lastUpdate"`
	Source        string    `json:"source"`
}

func (q Quote) Synthetic() bool { return q.Source == SourceSynthetic }

type OutcomeKind int

const (
	Real OutcomeKind = iota
	Synthetic
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Real:
		return "real"
	case Synthetic:
		return "synthetic"
	default:
		return "failed"
	}
}

// Outcome is the result of resolving one symbol. Failed never leaves the feed.
type Outcome struct {
	Kind  OutcomeKind
	Quote Quote
	Err   error
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
