package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/archivekc/oliphant/config"
)

func (c *CLI) newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok: feed=%s ledger=%s cache=%s ledger_miss=%s seed_on_load=%t\n",
				cfg.Feed.Kind, cfg.Ledger.Kind, cfg.Cache.Kind, cfg.LedgerMiss, cfg.SeedOnLoad)
			return err
		},
	}
}
