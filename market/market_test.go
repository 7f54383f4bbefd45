package market

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"finedu/config"
	"finedu/market/providers"
	"finedu/market/ratelimit"
	"finedu/notify"
)

var validatedAt = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func testValidator() *Validator {
	return NewValidator(DefaultValidatorConfig(), NewSynthesizer(42), func() time.Time { return validatedAt })
}

func mockProvider(ctrl *gomock.Controller, name string) *MockProvider {
	p := NewMockProvider(ctrl)
	p.EXPECT().Name().Return(name).AnyTimes()
	return p
}

// withinDrift allows for rounding to cents on top of the 1% drift.
func withinDrift(t *testing.T, ref, price float64) {
	t.Helper()
	assert.LessOrEqual(t, math.Abs(price-ref), ref*0.01+0.005, "price %v too far from %v", price, ref)
}

func TestFetchQuotesAllProvidersFail(t *testing.T) {
	ctrl := gomock.NewController(t)
	primary := mockProvider(ctrl, "alphavantage")
	secondary := mockProvider(ctrl, "finnhub")
	primary.EXPECT().Quote(gomock.Any(), gomock.Any()).Return(providers.Raw{}, providers.ErrRateLimited).Times(3)
	secondary.EXPECT().Quote(gomock.Any(), gomock.Any()).Return(providers.Raw{}, errors.New("dial tcp: timeout")).Times(3)

	feed := NewFeed([]providers.Provider{primary, secondary}, testValidator(), nil, nil)
	quotes := feed.FetchQuotes(context.Background(), []string{"NSEI", "BSESN", "NSEBANK"})

	require.Len(t, quotes, 3)
	refs := []float64{19500, 65800, 44200}
	for i, sym := range []string{"NSEI", "BSESN", "NSEBANK"} {
		assert.Equal(t, sym, quotes[i].Symbol)
		assert.True(t, quotes[i].Synthetic())
		assert.Equal(t, validatedAt, quotes[i].LastUpdate)
		withinDrift(t, refs[i], quotes[i].Price)
	}
}

func TestFetchQuotesReplacesImplausiblePrice(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := mockProvider(ctrl, "alphavantage")
	p.EXPECT().Quote(gomock.Any(), "NSEI").Return(providers.Raw{Symbol: "NSEI", Price: 500, Change: 2, HasChange: true}, nil)

	quotes := NewFeed([]providers.Provider{p}, testValidator(), nil, nil).FetchQuotes(context.Background(), []string{"NSEI"})

	require.Len(t, quotes, 1)
	assert.True(t, quotes[0].Synthetic())
	assert.NotEqual(t, 500.0, quotes[0].Price)
	withinDrift(t, 19500, quotes[0].Price)
}

func TestFetchQuotesPassesRealQuote(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := mockProvider(ctrl, "alphavantage")
	p.EXPECT().Quote(gomock.Any(), "NSEI").Return(providers.Raw{
		Symbol: "NSEI", Price: 19620.456, Change: 120.456, ChangePercent: 0.6177, HasChange: true,
		AsOf: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil)

	quotes := NewFeed([]providers.Provider{p}, testValidator(), nil, nil).FetchQuotes(context.Background(), []string{"NSEI"})

	require.Len(t, quotes, 1)
	q := quotes[0]
	assert.Equal(t, "alphavantage", q.Source)
	assert.Equal(t, 19620.46, q.Price)
	assert.Equal(t, 120.46, q.Change)
	assert.Equal(t, 0.62, q.ChangePercent)
	// The provider's own timestamp never leaks through.
	assert.Equal(t, validatedAt, q.LastUpdate)
}

func TestFetchQuotesFallsThroughChain(t *testing.T) {
	ctrl := gomock.NewController(t)
	primary := mockProvider(ctrl, "alphavantage")
	secondary := mockProvider(ctrl, "finnhub")
	gomock.InOrder(
		primary.EXPECT().Quote(gomock.Any(), "TCS").Return(providers.Raw{}, providers.ErrNoData),
		secondary.EXPECT().Quote(gomock.Any(), "TCS").Return(providers.Raw{Symbol: "TCS", Price: 3460, Source: "finnhub"}, nil),
	)

	quotes := NewFeed([]providers.Provider{primary, secondary}, testValidator(), nil, nil).FetchQuotes(context.Background(), []string{"TCS"})

	require.Len(t, quotes, 1)
	assert.Equal(t, "finnhub", quotes[0].Source)
	assert.Equal(t, 3460.0, quotes[0].Price)
	assert.Zero(t, quotes[0].Change)
}

func TestFetchQuotesPartialFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := mockProvider(ctrl, "alphavantage")
	p.EXPECT().Quote(gomock.Any(), "NSEI").Return(providers.Raw{Price: 19400}, nil)
	p.EXPECT().Quote(gomock.Any(), "BSESN").Return(providers.Raw{}, providers.ErrUpstream)
	p.EXPECT().Quote(gomock.Any(), "NSEBANK").Return(providers.Raw{Price: 44100}, nil)

	quotes := NewFeed([]providers.Provider{p}, testValidator(), nil, nil).FetchQuotes(context.Background(), []string{"NSEI", "BSESN", "NSEBANK"})

	require.Len(t, quotes, 3)
	assert.False(t, quotes[0].Synthetic())
	assert.True(t, quotes[1].Synthetic())
	assert.False(t, quotes[2].Synthetic())
}

func TestFetchQuotesSpacesLookups(t *testing.T) {
	ctrl := gomock.NewController(t)
	clock := ratelimit.NewVirtual(validatedAt)
	p := mockProvider(ctrl, "alphavantage")

	var calls []time.Time
	p.EXPECT().Quote(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, symbol string) (providers.Raw, error) {
		calls = append(calls, clock.Now())
		clock.Advance(700 * time.Millisecond)
		return providers.Raw{}, providers.ErrRateLimited
	}).Times(4)

	feed := NewFeed([]providers.Provider{p}, testValidator(), ratelimit.NewGate(12*time.Second, clock), nil)
	quotes := feed.FetchQuotes(context.Background(), []string{"NSEI", "BSESN", "NSEBANK", "TCS"})

	require.Len(t, quotes, 4)
	require.Len(t, calls, 4)
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i].Sub(calls[i-1]), 12*time.Second)
	}
}

func TestFetchQuotesCanceledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := mockProvider(ctrl, "alphavantage")
	p.EXPECT().Quote(gomock.Any(), gomock.Any()).Times(0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	quotes := NewFeed([]providers.Provider{p}, testValidator(), nil, nil).FetchQuotes(ctx, []string{"NSEI", "INFY"})

	require.Len(t, quotes, 2)
	assert.Equal(t, "INFY", quotes[1].Symbol)
	assert.True(t, quotes[1].Synthetic())
	withinDrift(t, 1480, quotes[1].Price)
}

func TestFetchQuotesNoProviders(t *testing.T) {
	quotes := NewFeed(nil, testValidator(), nil, nil).FetchQuotes(context.Background(), []string{"NSEI"})
	require.Len(t, quotes, 1)
	assert.True(t, quotes[0].Synthetic())

	assert.Empty(t, NewFeed(nil, nil, nil, nil).FetchQuotes(context.Background(), nil))
}

func TestSynthesizerIsConsistent(t *testing.T) {
	s := NewSynthesizer(7)
	for _, ref := range []float64{19500, 65800, 44200, 2450, 950} {
		for i := 0; i < 200; i++ {
			q := s.Quote("X", ref, validatedAt)
			withinDrift(t, ref, q.Price)
			assert.InDelta(t, q.Price-ref, q.Change, 1e-6)
			assert.InDelta(t, q.Change/ref*100, q.ChangePercent, 0.005+1e-9)
			assert.Equal(t, SourceSynthetic, q.Source)
		}
	}
}

func TestSynthesizerSeeded(t *testing.T) {
	a := NewSynthesizer(99).Quote("NSEI", 19500, validatedAt)
	b := NewSynthesizer(99).Quote("NSEI", 19500, validatedAt)
	assert.Equal(t, a, b)
}

func TestValidatorBands(t *testing.T) {
	v := testValidator()
	tests := []struct {
		symbol string
		price  float64
		real   bool
	}{
		{"NSEI", 19500, true},
		{"NSEI", 15000, true},
		{"NSEI", 14999.99, false},
		{"NSEI", 500, false},
		{"BSESN", 90000, false},
		{"RELIANCE", 2461, true},
		{"RELIANCE", 0, false},
		{"UNKNOWN", 42, true},
		{"UNKNOWN", 250000, false},
	}
	for _, tt := range tests {
		o := v.Classify(tt.symbol, &providers.Raw{Price: tt.price})
		assert.Equal(t, tt.real, o.Kind == Real, "%s @ %v", tt.symbol, tt.price)
	}

	o := v.Classify("NSEI", nil)
	assert.Equal(t, Synthetic, o.Kind)
}

func TestValidatorConfigOverrides(t *testing.T) {
	cfg := DefaultValidatorConfig().WithBands(map[string]config.Band{
		"nsei":   {Min: 100, Max: 1000},
		"GOLDBE": {Class: "equity", Reference: 55},
	})
	v := NewValidator(cfg, NewSynthesizer(1), func() time.Time { return validatedAt })

	assert.Equal(t, Real, v.Classify("NSEI", &providers.Raw{Price: 500}).Kind)
	assert.Equal(t, 19500.0, cfg.References["NSEI"].Price)
	assert.Equal(t, Band{Min: 1, Max: 100000}, cfg.Band("GOLDBE"))
	withinDrift(t, 55, v.Synthetic("GOLDBE").Price)

	// The defaults are untouched.
	assert.Equal(t, Band{Min: 15000, Max: 25000}, DefaultValidatorConfig().Band("NSEI"))
}

type fakeQuoter struct {
	mu    sync.Mutex
	calls int
	gate  chan struct{}
}

func (f *fakeQuoter) FetchQuotes(ctx context.Context, symbols []string) []Quote {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
		}
	}
	out := make([]Quote, len(symbols))
	for i, s := range symbols {
		out[i] = Quote{Symbol: s, Price: float64(n), Source: "fake"}
	}
	return out
}

func TestPollerReplacesBatch(t *testing.T) {
	q := &fakeQuoter{}
	p := NewPoller(q, []string{"NSEI", "BSESN"}, time.Hour, nil)
	batches := make(chan []Quote, 4)
	p.OnBatch(func(b []Quote) { batches <- b })

	p.Start(context.Background())
	defer p.Stop()

	first := <-batches
	require.Len(t, first, 2)
	assert.Equal(t, 1.0, first[0].Price)

	p.SetSymbols([]string{"INFY"})
	p.Refresh()
	second := <-batches
	require.Len(t, second, 1)
	assert.Equal(t, "INFY", second[0].Symbol)

	latest, at := p.Latest()
	assert.Equal(t, second, latest)
	assert.False(t, at.IsZero())
}

func TestPollerStopDiscardsInFlightBatch(t *testing.T) {
	q := &fakeQuoter{gate: make(chan struct{})}
	p := NewPoller(q, []string{"NSEI"}, time.Hour, nil)
	stored := make(chan struct{}, 1)
	p.OnBatch(func([]Quote) { stored <- struct{}{} })

	p.Start(context.Background())
	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.calls == 1
	}, time.Second, 5*time.Millisecond)

	p.Stop()
	latest, _ := p.Latest()
	assert.Empty(t, latest)
	assert.Empty(t, stored)

	// Stopped pollers stay stopped.
	p.Start(context.Background())
	p.Stop()
}

func TestAnomalyDetector(t *testing.T) {
	var mu sync.Mutex
	var got []notify.Event
	ad := NewAnomalyDetector(func(ev notify.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	ad.SetDegradedAfter(2)

	live := func(p float64) []Quote { return []Quote{{Symbol: "NSEI", Price: p, Source: "alphavantage"}} }
	synth := []Quote{{Symbol: "NSEI", Price: 19500, Source: SourceSynthetic}}

	assert.Empty(t, ad.ProcessBatch(live(19500)))
	assert.Empty(t, ad.ProcessBatch(live(19600)))

	events := ad.ProcessBatch(live(21000))
	require.Len(t, events, 1)
	assert.Equal(t, AnomalyTypePriceJump, events[0].Type)

	assert.Empty(t, ad.ProcessBatch(synth))
	events = ad.ProcessBatch(synth)
	require.Len(t, events, 1)
	assert.Equal(t, AnomalyTypeFeedDegraded, events[0].Type)
	assert.Empty(t, ad.ProcessBatch(synth))

	events = ad.ProcessBatch(live(21050))
	require.Len(t, events, 1)
	assert.Equal(t, AnomalyTypeFeedRestored, events[0].Type)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 3)
	assert.Equal(t, notify.Error, got[1].Level)
}
