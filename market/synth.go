package market

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Synthesizer generates placeholder quotes near a reference price.
type Synthesizer struct {
	// MaxDrift bounds the relative move from the reference, 0.01 = 1%.
	MaxDrift float64

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSynthesizer(seed uint64) *Synthesizer {
	return &Synthesizer{MaxDrift: 0.01, rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Quote moves ref by a single draw in [-MaxDrift, +MaxDrift] and derives
// change and changePercent from that same move.
func (s *Synthesizer) Quote(symbol string, ref float64, at time.Time) Quote {
	s.mu.Lock()
	delta := (s.rnd.Float64()*2 - 1) * s.MaxDrift
	s.mu.Unlock()

	base := decimal.NewFromFloat(ref)
	price := base.Mul(decimal.NewFromFloat(1 + delta)).Round(2)
	change := price.Sub(base)
	pct := decimal.Zero
	if !base.IsZero() {
		pct = change.Div(base).Mul(decimal.NewFromInt(100)).Round(2)
	}

	p, _ := price.Float64()
	c, _ := change.Round(2).Float64()
	cp, _ := pct.Float64()
	return Quote{
		Symbol:        symbol,
		Price:         p,
		Change:        c,
		ChangePercent: cp,
		LastUpdate:    at,
		Source:        SourceSynthetic,
	}
}
