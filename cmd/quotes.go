package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"finedu/httpx"
	"finedu/market"
	"finedu/market/providers"
	"finedu/market/ratelimit"
)

type quotesCmd struct {
	configFlags
	asJSON bool
}

func (*quotesCmd) Name() string     { return "quotes" }
func (*quotesCmd) Synopsis() string { return "fetch one batch of quotes and print it" }
func (*quotesCmd) Usage() string {
	return `finedu quotes [-config <path>] [-json] [SYMBOL...]

  Runs the provider chain once for the given symbols, or the configured ones.
  Lookups are spaced by market.min_delay, so a long list takes a while.
`
}

func (c *quotesCmd) SetFlags(f *flag.FlagSet) {
	c.setFlags(f)
	f.BoolVar(&c.asJSON, "json", false, "print JSON instead of a table")
}

func (c *quotesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, log, err := c.load()
	if err != nil {
		return fail("%v", err)
	}
	defer log.Sync()

	symbols := cfg.Market.Symbols
	if f.NArg() > 0 {
		symbols = nil
		for _, s := range f.Args() {
			symbols = append(symbols, strings.ToUpper(s))
		}
	}

	chain, err := providers.Chain(cfg.Market.Providers, httpx.New(15*time.Second), nil)
	if err != nil {
		return fail("%v", err)
	}
	validator := market.NewValidator(market.DefaultValidatorConfig().WithBands(cfg.Market.Bands), nil, nil)
	feed := market.NewFeed(chain, validator, ratelimit.NewGate(cfg.Market.MinDelay, nil), log)
	quotes := feed.FetchQuotes(ctx, symbols)

	if c.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(quotes); err != nil {
			return fail("%v", err)
		}
		return subcommands.ExitSuccess
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "SYMBOL\tPRICE\tCHANGE\tCHANGE %\tSOURCE\t")
	for _, q := range quotes {
		fmt.Fprintf(tw, "%s\t%.2f\t%+.2f\t%+.2f\t%s\t\n", q.Symbol, q.Price, q.Change, q.ChangePercent, q.Source)
	}
	tw.Flush()
	return subcommands.ExitSuccess
}
