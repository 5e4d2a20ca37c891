package pull

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikesmullin/slack/cmd/slack-chat/internal"
	"github.com/mikesmullin/slack/pkg/pull"
)

func NewPullCommand() *cobra.Command {
	var (
		since      string
		limit      int
		typeFilter string
		channel    string
	)

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Fetch recent messages into local storage",
		Args:  cobra.NoArgs,
		Example: `  slack-chat pull --since yesterday
  slack-chat pull --since "3 days ago" --type dms
  slack-chat pull --since 2026-03-01 --channel C0A7RJWRZPT`,
		RunE: func(_ *cobra.Command, _ []string) error {
			app, err := internal.NewApp()
			if err != nil {
				return err
			}

			cutoff, err := pull.ParseSince(since, time.Now())
			if err != nil {
				return err
			}

			fmt.Printf("Pulling messages since %s...\n", cutoff.Format("2006-01-02"))

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			puller := pull.New(app.Client, app.Store)
			res, err := puller.Pull(ctx, pull.Options{
				Since:   cutoff,
				Limit:   limit,
				Type:    typeFilter,
				Channel: channel,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Done: %d stored, %d skipped, %d fetched total\n",
				res.Stored, res.Skipped, res.Fetched)
			if len(res.Errors) > 0 {
				fmt.Printf("%d errors occurred:\n", len(res.Errors))
				for _, e := range res.Errors {
					fmt.Printf("  - %s\n", e)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&since, "since", "yesterday",
		"Date cutoff: YYYY-MM-DD, yesterday, or 'N days ago'")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100,
		"Maximum messages to fetch per category")
	cmd.Flags().StringVarP(&typeFilter, "type", "t", "",
		"Filter: channels, dms, threads, mentions, all")
	cmd.Flags().StringVarP(&channel, "channel", "c", "",
		"Only pull from this channel ID")

	return cmd
}
