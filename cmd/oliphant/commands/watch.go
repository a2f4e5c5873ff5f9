package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/archivekc/oliphant"
	"github.com/archivekc/oliphant/config"
	"github.com/archivekc/oliphant/feed"
)

func (c *CLI) newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print notifications as they arrive on the feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			interval, _ := cmd.Flags().GetDuration("interval")
			once, _ := cmd.Flags().GetBool("once")
			if interval <= 0 {
				return fmt.Errorf("watch: --interval must be positive, got %s", interval)
			}

			cfg, log, sync, err := c.load()
			if err != nil {
				return err
			}
			defer sync()

			ctx := cmd.Context()
			src, err := config.OpenSource(ctx, cfg.Feed)
			if err != nil {
				return err
			}
			defer src.Close()

			out := cmd.OutOrStdout()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				batch, err := src.PullLatest(ctx)
				switch {
				case err != nil && ctx.Err() != nil:
					return nil
				case err != nil:
					if once {
						return err
					}
					log.Warn("feed unavailable", oliphant.Fields{"err": err})
				default:
					for _, m := range batch.Skipped {
						log.Warn("skipped malformed notification", oliphant.Fields{"record": m.Record, "reason": m.Reason})
					}
					for _, n := range batch.Notifications {
						if _, err := fmt.Fprintln(out, feed.FormatRecord(n)); err != nil {
							return err
						}
					}
				}
				if once {
					return nil
				}
				select {
				case <-ctx.Done():
					if errors.Is(ctx.Err(), context.Canceled) {
						return nil
					}
					return ctx.Err()
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().Duration("interval", time.Second, "Pull interval")
	cmd.Flags().Bool("once", false, "Pull once and exit")
	return cmd
}
