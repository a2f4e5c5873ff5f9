// Package commands implements the oliphant CLI.
package commands

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/archivekc/oliphant"
	"github.com/archivekc/oliphant/config"
	zapadapter "github.com/archivekc/oliphant/log/zap"
)

// CLI holds the root command and the state shared by subcommands.
type CLI struct {
	rootCmd    *cobra.Command
	configPath string
	verbose    bool

	// newLogger is replaced in tests.
	newLogger func(verbose bool) (*zap.Logger, error)
}

func New() *CLI {
	c := &CLI{newLogger: defaultLogger}
	rootCmd := &cobra.Command{
		Use:           "oliphant",
		Short:         "Inspect and drive an entity change feed",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "oliphant.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(c.newCheckCmd())
	rootCmd.AddCommand(c.newWatchCmd())
	rootCmd.AddCommand(c.newEmitCmd())
	rootCmd.AddCommand(c.newProbeCmd())

	c.rootCmd = rootCmd
	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) { c.rootCmd.SetArgs(args) }

// SetOutput sets the output and error streams. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

func defaultLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func (c *CLI) load() (*config.Config, oliphant.Logger, func(), error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	zl, err := c.newLogger(c.verbose)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, zapadapter.New(zl), func() { _ = zl.Sync() }, nil
}
