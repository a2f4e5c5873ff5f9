package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/archivekc/oliphant"
	"github.com/archivekc/oliphant/config"
	"github.com/archivekc/oliphant/entity"
	"github.com/archivekc/oliphant/feed"
)

func (c *CLI) newEmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emit TABLE KEY [VERSION]",
		Short: "Publish one notification to the configured feed",
		Long: "Publish one notification to the configured feed. " +
			"Use --delete instead of VERSION to announce a deleted row.",
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			del, _ := cmd.Flags().GetBool("delete")
			var v entity.Version
			switch {
			case del && len(args) == 3:
				return fmt.Errorf("emit: VERSION and --delete are mutually exclusive")
			case del:
				v = entity.Tombstone()
			case len(args) == 3 && args[2] != "":
				v = entity.ParseVersion(args[2])
			default:
				return fmt.Errorf("emit: VERSION or --delete is required")
			}
			n := feed.Notification{UID: entity.UID{Table: args[0], Key: args[1]}, Version: v}

			cfg, log, sync, err := c.load()
			if err != nil {
				return err
			}
			defer sync()

			pub, err := config.OpenPublisher(cfg.Feed)
			if err != nil {
				return err
			}
			defer pub.Close()

			if err := pub.Publish(cmd.Context(), n); err != nil {
				return err
			}
			log.Info("notification published", oliphant.Fields{"feed": cfg.Feed.Kind, "record": feed.FormatRecord(n)})
			_, err = fmt.Fprintln(cmd.OutOrStdout(), feed.FormatRecord(n))
			return err
		},
	}
	cmd.Flags().Bool("delete", false, "Announce a deleted row (tombstone)")
	return cmd
}
