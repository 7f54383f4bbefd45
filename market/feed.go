package market

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"finedu/market/providers"
	"finedu/market/ratelimit"
)

var errNoProviders = errors.New("no market providers configured")

// Feed walks a symbol list through the provider chain one symbol at a time.
type Feed struct {
	chain     []providers.Provider
	validator *Validator
	gate      *ratelimit.Gate
	log       *zap.Logger
}

// NewFeed builds a feed. gate spaces consecutive symbol lookups and may be
// shared between feeds that hit the same quotas.
func NewFeed(chain []providers.Provider, v *Validator, gate *ratelimit.Gate, log *zap.Logger) *Feed {
	if v == nil {
		v = NewValidator(DefaultValidatorConfig(), nil, nil)
	}
	if gate == nil {
		gate = ratelimit.NewGate(0, nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{chain: chain, validator: v, gate: gate, log: log}
}

func (f *Feed) Validator() *Validator { return f.validator }

// FetchQuotes returns exactly one quote per symbol, in input order. Lookups
// are sequential and never closer together than the gate interval. Failures
// become synthetic quotes for that symbol only; once ctx is done the rest of
// the batch is synthesized without calling providers.
func (f *Feed) FetchQuotes(ctx context.Context, symbols []string) []Quote {
	out := make([]Quote, len(symbols))
	synthetic := 0
	for i, sym := range symbols {
		o := f.lookup(ctx, sym)
		if o.Kind == Failed {
			f.log.Warn("quote lookup failed, using synthetic quote", zap.String("symbol", sym), zap.Error(o.Err))
			o = Outcome{Kind: Synthetic, Quote: f.validator.Synthetic(sym)}
		}
		if o.Kind == Synthetic {
			synthetic++
		}
		out[i] = o.Quote
	}
	f.log.Debug("quote batch resolved", zap.Int("symbols", len(symbols)), zap.Int("synthetic", synthetic))
	return out
}

func (f *Feed) lookup(ctx context.Context, symbol string) Outcome {
	if err := ctx.Err(); err != nil {
		return Outcome{Kind: Failed, Err: err}
	}
	if len(f.chain) == 0 {
		return Outcome{Kind: Failed, Err: errNoProviders}
	}
	if err := f.gate.Wait(ctx); err != nil {
		return Outcome{Kind: Failed, Err: err}
	}

	var lastErr error
	for _, p := range f.chain {
		raw, err := p.Quote(ctx, symbol)
		if err != nil {
			f.log.Debug("provider failed", zap.String("provider", p.Name()), zap.String("symbol", symbol), zap.Error(err))
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if raw.Source == "" {
			raw.Source = p.Name()
		}
		o := f.validator.Classify(symbol, &raw)
		if o.Kind == Synthetic {
			f.log.Info("implausible quote replaced",
				zap.String("provider", p.Name()),
				zap.String("symbol", symbol),
				zap.Float64("price", raw.Price))
		}
		return o
	}
	return Outcome{Kind: Failed, Err: lastErr}
}
