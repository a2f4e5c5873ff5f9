package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/archivekc/oliphant"
	"github.com/archivekc/oliphant/config"
	"github.com/archivekc/oliphant/entity"
)

func (c *CLI) newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe TABLE KEY VERSION",
		Short: "Check whether an object carrying VERSION is stale",
		Long: "Pull the feed once, then run a pre-flush check for the object. " +
			"With a local ledger only notifications visible to this process count.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid := entity.UID{Table: args[0], Key: args[1]}
			v := entity.ParseVersion(args[2])

			cfg, log, sync, err := c.load()
			if err != nil {
				return err
			}
			defer sync()

			ctx := cmd.Context()
			coord, err := config.Open(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			defer coord.Close(ctx)

			s := coord.NewSession("probe")
			err = coord.OnPreFlush(ctx, s, uid, v)
			out := cmd.OutOrStdout()
			var stale *oliphant.StaleEntityError
			switch {
			case errors.As(err, &stale):
				_, err = fmt.Fprintf(out, "stale %s: %s\n", uid, stale.Error())
			case err != nil:
				return err
			default:
				_, err = fmt.Fprintf(out, "fresh %s\n", uid)
			}
			for _, w := range s.Warnings() {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", w)
			}
			return err
		},
	}
}
