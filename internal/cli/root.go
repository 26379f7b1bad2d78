// Package cli implements the nerprompt command line: the HTTP server plus
// offline ingestion, querying, batch file processing and collection admin.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/nerprompt/internal/config"
	logpkg "github.com/kailas-cloud/nerprompt/internal/logger"
	"github.com/kailas-cloud/nerprompt/internal/version"
)

// globals holds what the root command resolves before any subcommand runs.
type globals struct {
	cfgFile  string
	env      string
	logLevel string

	cfg    config.Config
	logger *zap.Logger
}

// RootCmd builds the command tree.
func RootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "nerprompt",
		Short: "Retrieval-augmented NER instruction builder",
		Long: `nerprompt stores reference entities and labelled sentences per language in a
vector store and turns a query text into an NER instruction prompt enriched
with the most similar examples.

Example usage:
  nerprompt ingest --entities data/entities.json --sentences data/sentences.json
  nerprompt query --language en "Barack Obama visited Paris"
  nerprompt batch "data/input/**/*.jsonl"
  nerprompt serve`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return g.load()
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if g.logger != nil {
				_ = g.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&g.cfgFile, "config", "", "config file (default is config/<env>.yaml)")
	root.PersistentFlags().StringVar(&g.env, "env", "", "environment: local, dev, docker, prod (default is $ENV or local)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override logging.level: debug, info, warn, error")

	root.AddCommand(
		serveCmd(g),
		ingestCmd(g),
		queryCmd(g),
		batchCmd(g),
		statsCmd(g),
		cleanupCmd(g),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := RootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1) //nolint:gocritic // stop() called explicitly above
	}
}

func (g *globals) load() error {
	if g.env == "" {
		g.env = config.GetEnv()
	}

	var err error
	if g.cfgFile != "" {
		g.cfg, err = config.LoadFile(g.cfgFile)
	} else {
		g.cfg, err = config.Load(g.env)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := g.cfg.Logging.Level
	if g.logLevel != "" {
		level = g.logLevel
	}
	g.logger, err = logpkg.NewLogger(g.env, level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	return nil
}

// app wires the services. Callers must Close it.
func (g *globals) app(ctx context.Context) (*App, error) {
	return NewApp(ctx, g.cfg, g.logger)
}
