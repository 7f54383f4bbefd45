package cmd

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/google/subcommands"
	"go.uber.org/zap"

	"finedu/auth"
	"finedu/config"
	qhttp "finedu/http"
	"finedu/httpx"
	"finedu/market"
	"finedu/market/providers"
	"finedu/market/ratelimit"
	"finedu/monitoring"
	"finedu/notify"
	"finedu/store"
)

type serveCmd struct {
	configFlags
	watch bool
}

func (*serveCmd) Name() string { return "serve" }
func (*serveCmd) Synopsis() string {
	return "run the site API with content stores and the quote poller"
}
func (*serveCmd) Usage() string {
	return `finedu serve [-config <path>] [-watch]

  Serves /api content, quotes, login and the notification websocket.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	c.setFlags(f)
	f.BoolVar(&c.watch, "watch", true, "reload backend endpoint and symbols when the config file changes")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, log, err := c.load()
	if err != nil {
		return fail("%v", err)
	}
	defer log.Sync()

	guard := config.NewGuard(cfg.Backend.URL)
	if !guard.IsConfigured() {
		log.Warn("data service not configured, serving sample content", zap.String("url", cfg.Backend.URL))
	}
	client := httpx.New(cfg.Backend.Timeout)
	if cfg.Backend.APIKey != "" {
		client.Headers = map[string]string{"X-API-Key": cfg.Backend.APIKey}
	}

	registry, err := store.NewRegistry(cfg.Stores.MaxMounted)
	if err != nil {
		return fail("store registry: %v", err)
	}

	metrics := newMetrics()
	relay := notify.NewRelay()
	hub := notify.NewHub(log.Named("ws"), cfg.HTTP.AllowedOrigins)
	relay.Subscribe(hub.Notify)
	relay.Subscribe(func(ev notify.Event) {
		metrics.IncrCounter("notifications_total", 1, map[string]string{"level": string(ev.Level), "source": ev.Source})
	})
	go hub.Run(ctx)

	chain, err := providers.Chain(cfg.Market.Providers, httpx.New(15*time.Second), nil)
	if err != nil {
		return fail("market providers: %v", err)
	}
	validator := market.NewValidator(market.DefaultValidatorConfig().WithBands(cfg.Market.Bands), nil, nil)
	feed := market.NewFeed(chain, validator, ratelimit.NewGate(cfg.Market.MinDelay, nil), log.Named("market"))
	poller := market.NewPoller(feed, cfg.Market.Symbols, cfg.Market.PollInterval, log.Named("poller"))

	anomalies := market.NewAnomalyDetector(relay.Publish)
	poller.OnBatch(func(batch []market.Quote) {
		hub.Publish(notify.Quotes, batch)
		for _, q := range batch {
			metrics.IncrCounter("quotes_total", 1, map[string]string{"source": q.Source})
		}
		metrics.SetGauge("ws_clients", float64(hub.Clients()), nil)
		for _, ev := range anomalies.ProcessBatch(batch) {
			log.Info("market anomaly", zap.String("type", ev.Type), zap.String("symbol", ev.Symbol))
		}
	})
	poller.Start(ctx)
	defer poller.Stop()

	api := &qhttp.API{
		Guard:    guard,
		Registry: registry,
		Backends: qhttp.NewBackends(guard, client),
		Relay:    relay,
		Hub:      hub,
		Feed:     feed,
		Poller:   poller,
		Sessions: auth.NewSessions(
			auth.Static{Username: cfg.Auth.Username, Password: cfg.Auth.Password},
			cfg.Auth.MaxSessions, cfg.Auth.SessionTTL,
		),
		Metrics: metrics,
		Log:     log.Named("api"),
	}
	if cfg.Auth.Password == "" {
		log.Warn("no admin password set, content mutations are disabled")
	}

	if c.watch {
		if _, err := os.Stat(c.path); err == nil {
			go func() {
				err := config.Watch(ctx, c.path, log, func(next config.Config) {
					if next.Backend.URL != guard.Endpoint() {
						guard.Set(next.Backend.URL)
						registry.Purge()
					}
					poller.SetSymbols(next.Market.Symbols)
				})
				if err != nil {
					log.Warn("config watch stopped", zap.Error(err))
				}
			}()
		}
	}

	server := qhttp.NewServer(cfg.HTTP, log, metrics, api)
	errc := make(chan error, 1)
	go func() {
		errc <- server.Start()
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fail("%v", err)
		}
		return subcommands.ExitSuccess
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warn("server forced to shutdown", zap.Error(err))
	}
	return subcommands.ExitSuccess
}

func newMetrics() *monitoring.MetricsCollector {
	mc := monitoring.NewMetricsCollector()
	mc.Describe("http_requests_total", "Requests served, by method and status class")
	mc.Describe("http_request_seconds_total", "Time spent serving requests")
	mc.Describe("quotes_total", "Quotes produced by the poller, by source")
	mc.Describe("notifications_total", "Notifications relayed to clients")
	mc.Describe("ws_clients", "Connected websocket clients")
	return mc
}
