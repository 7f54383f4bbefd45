// Package cmd holds the finedu subcommands.
package cmd

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"go.uber.org/zap"

	"finedu/config"
	"finedu/logger"
)

// Commands lists every subcommand registered by main.
var Commands = []subcommands.Command{
	&serveCmd{},
	&dataServiceCmd{},
	&quotesCmd{},
}

// configFlags is embedded by commands that read the yaml configuration.
type configFlags struct {
	path string
}

func (c *configFlags) setFlags(f *flag.FlagSet) {
	defPath := "config.yaml"
	if env := os.Getenv("FINEDU_CONFIG"); env != "" {
		defPath = env
	}
	f.StringVar(&c.path, "config", defPath, "path to the yaml configuration (env FINEDU_CONFIG)")
}

// load reads the configuration and builds the logger it describes.
func (c *configFlags) load() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.path)
	if err != nil {
		return cfg, nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}

func fail(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	return subcommands.ExitFailure
}
