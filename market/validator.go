package market

import (
	"strings"
	"time"

	"finedu/config"
	"finedu/market/providers"
)

type Class string

const (
	ClassIndex  Class = "index"
	ClassEquity Class = "equity"
)

// Band is an inclusive plausible price range.
type Band struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (b Band) Contains(p float64) bool { return p >= b.Min && p <= b.Max }

func (b Band) zero() bool { return b.Min == 0 && b.Max == 0 }

// Reference is what a symbol is expected to trade around.
type Reference struct {
	Class Class   `json:"class"`
	Price float64 `json:"price"`
	// Band overrides the class band when set.
	Band Band `json:"band"`
}

// ValidatorConfig maps symbols to their reference prices and bands.
type ValidatorConfig struct {
	References map[string]Reference
	ClassBands map[Class]Band
	// DefaultReference seeds synthetic quotes for symbols with no reference.
	DefaultReference float64
}

func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		References: map[string]Reference{
			"NSEI":      {Class: ClassIndex, Price: 19500, Band: Band{Min: 15000, Max: 25000}},
			"BSESN":     {Class: ClassIndex, Price: 65800, Band: Band{Min: 50000, Max: 85000}},
			"NSEBANK":   {Class: ClassIndex, Price: 44200, Band: Band{Min: 35000, Max: 55000}},
			"RELIANCE":  {Class: ClassEquity, Price: 2450},
			"TCS":       {Class: ClassEquity, Price: 3450},
			"HDFCBANK":  {Class: ClassEquity, Price: 1620},
			"INFY":      {Class: ClassEquity, Price: 1480},
			"ICICIBANK": {Class: ClassEquity, Price: 950},
		},
		ClassBands: map[Class]Band{
			ClassIndex:  {Min: 1000, Max: 200000},
			ClassEquity: {Min: 1, Max: 100000},
		},
		DefaultReference: 100,
	}
}

// WithBands returns a copy with per-symbol overrides from configuration applied.
func (c ValidatorConfig) WithBands(bands map[string]config.Band) ValidatorConfig {
	refs := make(map[string]Reference, len(c.References)+len(bands))
	for k, v := range c.References {
		refs[k] = v
	}
	for sym, b := range bands {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		ref := refs[sym]
		if b.Class != "" {
			ref.Class = Class(strings.ToLower(b.Class))
		}
		if b.Reference > 0 {
			ref.Price = b.Reference
		}
		if b.Min != 0 || b.Max != 0 {
			ref.Band = Band{Min: b.Min, Max: b.Max}
		}
		refs[sym] = ref
	}
	c.References = refs
	return c
}

func (c ValidatorConfig) reference(symbol string) Reference {
	ref, ok := c.References[strings.ToUpper(symbol)]
	if !ok {
		ref = Reference{Class: ClassEquity}
	}
	if ref.Class == "" {
		ref.Class = ClassEquity
	}
	if ref.Band.zero() {
		ref.Band = c.ClassBands[ref.Class]
	}
	if ref.Price <= 0 {
		ref.Price = c.DefaultReference
		if ref.Price <= 0 {
			ref.Price = 100
		}
	}
	return ref
}

// Band reports the plausible range used for symbol.
func (c ValidatorConfig) Band(symbol string) Band { return c.reference(symbol).Band }

// Validator decides whether a provider answer is believable.
//
// A price outside the band is treated the same as no answer: providers that
// run out of quota tend to return stale placeholders rather than errors.
type Validator struct {
	cfg   ValidatorConfig
	synth *Synthesizer
	now   func() time.Time
}

func NewValidator(cfg ValidatorConfig, synth *Synthesizer, now func() time.Time) *Validator {
	if synth == nil {
		synth = NewSynthesizer(uint64(time.Now().UnixNano()))
	}
	if now == nil {
		now = time.Now
	}
	return &Validator{cfg: cfg, synth: synth, now: now}
}

func (v *Validator) Config() ValidatorConfig { return v.cfg }

// Validate returns raw as a real quote when plausible, otherwise a synthetic one.
func (v *Validator) Validate(symbol string, raw *providers.Raw) Quote {
	return v.Classify(symbol, raw).Quote
}

// Classify is Validate with the outcome kind exposed.
func (v *Validator) Classify(symbol string, raw *providers.Raw) Outcome {
	ref := v.cfg.reference(symbol)
	if raw == nil || !ref.Band.Contains(raw.Price) {
		return Outcome{Kind: Synthetic, Quote: v.synth.Quote(symbol, ref.Price, v.now())}
	}
	q := Quote{
		Symbol:     symbol,
		Price:      round2(raw.Price),
		LastUpdate: v.now(),
		Source:     raw.Source,
	}
	if raw.HasChange {
		q.Change = round2(raw.Change)
		q.ChangePercent = round2(raw.ChangePercent)
	}
	return Outcome{Kind: Real, Quote: q}
}

// Synthetic produces a placeholder quote for symbol.
func (v *Validator) Synthetic(symbol string) Quote {
	return v.synth.Quote(symbol, v.cfg.reference(symbol).Price, v.now())
}
