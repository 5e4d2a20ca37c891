package migrate

import (
	"github.com/spf13/cobra"

	"github.com/mikesmullin/slack/cmd/slack-chat/internal"
	"github.com/mikesmullin/slack/pkg/migrate"
)

func NewMigrateCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate legacy read tracking into per-record state",
		Args:  cobra.NoArgs,
		Example: `  slack-chat migrate
  slack-chat migrate --dry-run`,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return err
			}
			result, err := migrate.Run(migrate.Options{
				StorageDir: cfg.Storage.Dir,
				DryRun:     dryRun,
			})
			if err != nil {
				return err
			}
			migrate.PrintSummary(result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false,
		"Show what would be migrated without making changes")

	return cmd
}
