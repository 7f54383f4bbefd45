// Package providers adapts external market-data services to a single lookup.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"finedu/httpx"
)

//go:generate mockgen -package=market -destination=../mock_provider_test.go -source=provider.go Provider

// Provider 行情数据提供者接口
type Provider interface {
	Name() string
	Quote(ctx context.Context, symbol string) (Raw, error)
}

// Raw is an unvalidated provider answer for one symbol.
type Raw struct {
	Symbol        string
	Price         float64
	Change        float64
	ChangePercent float64
	// HasChange is false when the provider gave a price only.
	HasChange bool
	Source    string
	AsOf      time.Time
}

var (
	ErrRateLimited = errors.New("provider rate limit reached")
	ErrUpstream    = errors.New("provider reported an error")
	ErrNoData      = errors.New("provider returned no data")
)

func mapSymbol(m map[string]string, symbol string) string {
	if v := m[symbol]; v != "" {
		return v
	}
	return symbol
}

// getJSON performs a GET and returns the body of a 2xx response.
func getJSON(ctx context.Context, client *httpx.Client, name, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", name, err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s: %w", name, ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%s: status %d: %w", name, resp.StatusCode, ErrUpstream)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%s: malformed payload", name)
	}
	return body, nil
}

// parseNumber accepts "19500.25", "0.45%" and surrounding blanks.
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return 0, errors.New("empty number")
	}
	return strconv.ParseFloat(s, 64)
}
