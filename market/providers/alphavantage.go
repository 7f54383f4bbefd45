package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"finedu/httpx"
)

const (
	ModeGlobalQuote = "GLOBAL_QUOTE"
	ModeDailySeries = "TIME_SERIES_DAILY"
)

type AlphaVantageConfig struct {
	Endpoint  string
	APIKey    string
	Mode      string
	SymbolMap map[string]string
}

// AlphaVantage 调用 Alpha Vantage 的 query 接口
type AlphaVantage struct {
	cfg    AlphaVantageConfig
	client *httpx.Client
}

func NewAlphaVantage(cfg AlphaVantageConfig, client *httpx.Client) *AlphaVantage {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://www.alphavantage.co/query"
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeGlobalQuote
	}
	if client == nil {
		client = httpx.New(10 * time.Second)
	}
	return &AlphaVantage{cfg: cfg, client: client}
}

func (a *AlphaVantage) Name() string { return "alphavantage" }

// avNotice holds the fields Alpha Vantage uses instead of HTTP status codes.
type avNotice struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

type avGlobalQuote struct {
	Quote struct {
		Symbol        string `json:"01. symbol"`
		Price         string `json:"05. price"`
		LatestDay     string `json:"07. latest trading day"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
}

type avDailySeries struct {
	Series map[string]struct {
		Close string `json:"4. close"`
	} `json:"Time Series (Daily)"`
}

func (a *AlphaVantage) Quote(ctx context.Context, symbol string) (Raw, error) {
	q := url.Values{}
	q.Set("function", a.cfg.Mode)
	q.Set("symbol", mapSymbol(a.cfg.SymbolMap, symbol))
	q.Set("apikey", a.cfg.APIKey)

	body, err := getJSON(ctx, a.client, a.Name(), a.cfg.Endpoint+"?"+q.Encode())
	if err != nil {
		return Raw{}, err
	}

	var notice avNotice
	if err := json.Unmarshal(body, &notice); err == nil {
		switch {
		case notice.ErrorMessage != "":
			return Raw{}, fmt.Errorf("alphavantage: %s: %w", notice.ErrorMessage, ErrUpstream)
		case notice.Note != "":
			return Raw{}, fmt.Errorf("alphavantage: %s: %w", notice.Note, ErrRateLimited)
		case notice.Information != "":
			return Raw{}, fmt.Errorf("alphavantage: %s: %w", notice.Information, ErrRateLimited)
		}
	}

	switch a.cfg.Mode {
	case ModeDailySeries:
		return a.fromSeries(symbol, body)
	default:
		return a.fromGlobalQuote(symbol, body)
	}
}

func (a *AlphaVantage) fromGlobalQuote(symbol string, body []byte) (Raw, error) {
	var gq avGlobalQuote
	if err := json.Unmarshal(body, &gq); err != nil {
		return Raw{}, fmt.Errorf("alphavantage: decode quote: %w", err)
	}
	if strings.TrimSpace(gq.Quote.Price) == "" {
		return Raw{}, fmt.Errorf("alphavantage %s: %w", symbol, ErrNoData)
	}
	price, err := parseNumber(gq.Quote.Price)
	if err != nil {
		return Raw{}, fmt.Errorf("alphavantage: price: %w", err)
	}
	raw := Raw{Symbol: symbol, Price: price, Source: a.Name()}
	if change, err := parseNumber(gq.Quote.Change); err == nil {
		raw.Change = change
		raw.HasChange = true
		if pct, err := parseNumber(gq.Quote.ChangePercent); err == nil {
			raw.ChangePercent = pct
		} else if price-change != 0 {
			raw.ChangePercent = change / (price - change) * 100
		}
	}
	if day, err := time.Parse("2006-01-02", gq.Quote.LatestDay); err == nil {
		raw.AsOf = day
	}
	return raw, nil
}

// fromSeries takes the latest close as the price and derives the change
// from the two most recent dates.
func (a *AlphaVantage) fromSeries(symbol string, body []byte) (Raw, error) {
	var ds avDailySeries
	if err := json.Unmarshal(body, &ds); err != nil {
		return Raw{}, fmt.Errorf("alphavantage: decode series: %w", err)
	}
	if len(ds.Series) == 0 {
		return Raw{}, fmt.Errorf("alphavantage %s: %w", symbol, ErrNoData)
	}
	dates := make([]string, 0, len(ds.Series))
	for d := range ds.Series {
		dates = append(dates, d)
	}
	// ISO dates sort lexically.
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	latest, err := parseNumber(ds.Series[dates[0]].Close)
	if err != nil {
		return Raw{}, fmt.Errorf("alphavantage: close %s: %w", dates[0], err)
	}
	raw := Raw{Symbol: symbol, Price: latest, Source: a.Name()}
	if t, err := time.Parse("2006-01-02", dates[0]); err == nil {
		raw.AsOf = t
	}
	if len(dates) > 1 {
		prev, err := parseNumber(ds.Series[dates[1]].Close)
		if err == nil && prev != 0 {
			raw.Change = latest - prev
			raw.ChangePercent = raw.Change / prev * 100
			raw.HasChange = true
		}
	}
	return raw, nil
}
