package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"finedu/config"
	"finedu/httpx"
	"finedu/market/ratelimit"
)

// Limited guards a provider's quota with a token bucket. An exhausted bucket
// fails the call immediately with ErrRateLimited so the chain can move on.
type Limited struct {
	Provider
	Bucket *ratelimit.TokenBucket
}

func (l *Limited) Quote(ctx context.Context, symbol string) (Raw, error) {
	if l.Bucket != nil && !l.Bucket.Allow() {
		return Raw{}, fmt.Errorf("%s: %w", l.Name(), ErrRateLimited)
	}
	return l.Provider.Quote(ctx, symbol)
}

// Chain builds the enabled providers from configuration, in order.
func Chain(cfgs []config.Provider, client *httpx.Client, clock ratelimit.Clock) ([]Provider, error) {
	if client == nil {
		client = httpx.New(10 * time.Second)
	}
	var out []Provider
	for _, c := range cfgs {
		if !c.Enabled {
			continue
		}
		var p Provider
		switch strings.ToLower(c.Name) {
		case "alphavantage":
			p = NewAlphaVantage(AlphaVantageConfig{Endpoint: c.Endpoint, APIKey: c.APIKey, Mode: c.Mode, SymbolMap: c.SymbolMap}, client)
		case "finnhub":
			p = NewFinnhub(FinnhubConfig{Endpoint: c.Endpoint, APIKey: c.APIKey, SymbolMap: c.SymbolMap}, client)
		default:
			return nil, fmt.Errorf("unknown market provider %q", c.Name)
		}
		if c.MaxRequestsPerMinute > 0 {
			p = &Limited{Provider: p, Bucket: ratelimit.PerMinute(c.MaxRequestsPerMinute, c.Burst, clock)}
		}
		out = append(out, p)
	}
	return out, nil
}
