// Package config loads the service configuration from yaml with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type HTTP struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// Backend points at the remote data service. A placeholder URL disables it.
type Backend struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type Database struct {
	Path string `yaml:"path"`
}

type Log struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Provider configures one market-data provider in the chain.
type Provider struct {
	Name                 string            `yaml:"name"`
	Enabled              bool              `yaml:"enabled"`
	Endpoint             string            `yaml:"endpoint"`
	APIKey               string            `yaml:"api_key"`
	Mode                 string            `yaml:"mode"`
	MaxRequestsPerMinute int               `yaml:"max_requests_per_minute"`
	Burst                int               `yaml:"burst"`
	SymbolMap            map[string]string `yaml:"symbol_map"`
}

// Band overrides the plausible price range and reference price of a symbol.
type Band struct {
	Class     string  `yaml:"class"`
	Reference float64 `yaml:"reference"`
	Min       float64 `yaml:"min"`
	Max       float64 `yaml:"max"`
}

type Market struct {
	Symbols      []string        `yaml:"symbols"`
	PollInterval time.Duration   `yaml:"poll_interval"`
	MinDelay     time.Duration   `yaml:"min_delay"`
	Providers    []Provider      `yaml:"providers"`
	Bands        map[string]Band `yaml:"bands"`
}

type Auth struct {
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
	MaxSessions int           `yaml:"max_sessions"`
}

type Stores struct {
	MaxMounted int `yaml:"max_mounted"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	Backend  Backend  `yaml:"backend"`
	Database Database `yaml:"database"`
	Log      Log      `yaml:"log"`
	Market   Market   `yaml:"market"`
	Auth     Auth     `yaml:"auth"`
	Stores   Stores   `yaml:"stores"`
}

// Default returns a configuration that runs entirely on fallback and synthetic data.
func Default() Config {
	return Config{
		HTTP: HTTP{Port: 8080, Timeout: 30 * time.Second, AllowedOrigins: []string{"*"}},
		Backend: Backend{
			URL:     "your-project-url",
			Timeout: 10 * time.Second,
		},
		Database: Database{Path: "finedu.db"},
		Log:      Log{Level: "info", Format: "json", MaxSizeMB: 50, MaxBackups: 3, MaxAgeDays: 14},
		Market: Market{
			Symbols:      []string{"NSEI", "BSESN", "NSEBANK"},
			PollInterval: 5 * time.Minute,
			// Alpha Vantage free tier allows 5 calls per minute.
			MinDelay: 12 * time.Second,
			Providers: []Provider{
				{
					Name:                 "alphavantage",
					Enabled:              true,
					Endpoint:             "https://www.alphavantage.co/query",
					Mode:                 "GLOBAL_QUOTE",
					MaxRequestsPerMinute: 5,
					Burst:                1,
					SymbolMap:            map[string]string{"NSEI": "^NSEI", "BSESN": "^BSESN", "NSEBANK": "^NSEBANK"},
				},
				{
					Name:                 "finnhub",
					Enabled:              false,
					Endpoint:             "https://finnhub.io/api/v1",
					MaxRequestsPerMinute: 60,
					Burst:                1,
				},
			},
		},
		Auth:   Auth{Username: "admin", SessionTTL: 12 * time.Hour, MaxSessions: 256},
		Stores: Stores{MaxMounted: 64},
	}
}

// Load reads yaml config from path. A missing file yields defaults.
// Environment variables override secrets and endpoints.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http.port %d", c.HTTP.Port)
	}
	if c.Market.MinDelay < 0 {
		return fmt.Errorf("market.min_delay must not be negative")
	}
	if c.Market.PollInterval <= 0 {
		return fmt.Errorf("market.poll_interval must be positive")
	}
	for sym, b := range c.Market.Bands {
		if b.Min >= b.Max {
			return fmt.Errorf("market.bands[%s]: min %.2f must be below max %.2f", sym, b.Min, b.Max)
		}
		if b.Reference != 0 && (b.Reference < b.Min || b.Reference > b.Max) {
			return fmt.Errorf("market.bands[%s]: reference %.2f outside band", sym, b.Reference)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if x, err := strconv.Atoi(v); err == nil && x > 0 {
			cfg.HTTP.Port = x
		}
	}
	if v := os.Getenv("FINEDU_BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("FINEDU_BACKEND_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := os.Getenv("FINEDU_DATABASE"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FINEDU_SYMBOLS"); v != "" {
		cfg.Market.Symbols = splitCSV(v)
	}
	if v := os.Getenv("FINEDU_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Market.PollInterval = d
		}
	}
	if v := os.Getenv("FINEDU_ADMIN_PASSWORD"); v != "" {
		cfg.Auth.Password = v
	}
	for i := range cfg.Market.Providers {
		p := &cfg.Market.Providers[i]
		prefix := strings.ToUpper(p.Name)
		if v := os.Getenv(prefix + "_API_KEY"); v != "" {
			p.APIKey = v
		}
		if v := os.Getenv(prefix + "_ENABLED"); v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "y":
				p.Enabled = true
			case "0", "false", "no", "n":
				p.Enabled = false
			}
		}
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
