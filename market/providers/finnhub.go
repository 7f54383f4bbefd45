package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"finedu/httpx"
)

type FinnhubConfig struct {
	Endpoint  string
	APIKey    string
	SymbolMap map[string]string
}

// Finnhub 调用 Finnhub /quote 接口
type Finnhub struct {
	cfg    FinnhubConfig
	client *httpx.Client
}

func NewFinnhub(cfg FinnhubConfig, client *httpx.Client) *Finnhub {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://finnhub.io/api/v1"
	}
	if client == nil {
		client = httpx.New(10 * time.Second)
	}
	return &Finnhub{cfg: cfg, client: client}
}

func (f *Finnhub) Name() string { return "finnhub" }

type finnhubQuote struct {
	Current       float64  `json:"c"`
	Change        *float64 `json:"d"`
	ChangePercent *float64 `json:"dp"`
	PrevClose     float64  `json:"pc"`
	Timestamp     int64    `json:"t"`
	Error         string   `json:"error"`
}

func (f *Finnhub) Quote(ctx context.Context, symbol string) (Raw, error) {
	q := url.Values{}
	q.Set("symbol", mapSymbol(f.cfg.SymbolMap, symbol))
	q.Set("token", f.cfg.APIKey)

	body, err := getJSON(ctx, f.client, f.Name(), strings.TrimRight(f.cfg.Endpoint, "/")+"/quote?"+q.Encode())
	if err != nil {
		return Raw{}, err
	}
	var fq finnhubQuote
	if err := json.Unmarshal(body, &fq); err != nil {
		return Raw{}, fmt.Errorf("finnhub: decode quote: %w", err)
	}
	if fq.Error != "" {
		if strings.Contains(strings.ToLower(fq.Error), "limit") {
			return Raw{}, fmt.Errorf("finnhub: %s: %w", fq.Error, ErrRateLimited)
		}
		return Raw{}, fmt.Errorf("finnhub: %s: %w", fq.Error, ErrUpstream)
	}
	// Unknown symbols come back as all zeros.
	if fq.Current == 0 {
		return Raw{}, fmt.Errorf("finnhub %s: %w", symbol, ErrNoData)
	}

	raw := Raw{Symbol: symbol, Price: fq.Current, Source: f.Name()}
	if fq.Change != nil {
		raw.Change = *fq.Change
		raw.HasChange = true
		if fq.ChangePercent != nil {
			raw.ChangePercent = *fq.ChangePercent
		} else if fq.PrevClose != 0 {
			raw.ChangePercent = raw.Change / fq.PrevClose * 100
		}
	}
	if fq.Timestamp > 0 {
		raw.AsOf = time.Unix(fq.Timestamp, 0).UTC()
	}
	return raw, nil
}
