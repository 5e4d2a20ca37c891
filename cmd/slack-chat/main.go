package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mikesmullin/slack/cmd/slack-chat/internal"
	"github.com/mikesmullin/slack/cmd/slack-chat/internal/inbox"
	"github.com/mikesmullin/slack/cmd/slack-chat/internal/message"
	"github.com/mikesmullin/slack/cmd/slack-chat/internal/migrate"
	"github.com/mikesmullin/slack/cmd/slack-chat/internal/pull"
	"github.com/mikesmullin/slack/cmd/slack-chat/internal/resolve"
	"github.com/mikesmullin/slack/cmd/slack-chat/internal/version"
	"github.com/mikesmullin/slack/cmd/slack-chat/internal/watch"
)

func NewSlackChatCommand() *cobra.Command {
	short := fmt.Sprintf("slack-chat - offline Slack cache and watch engine v%s", internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "slack-chat",
		Short:   short,
		Example: "slack-chat inbox list",
	}

	cmd.PersistentFlags().StringVar(&internal.ConfigPath, "config", internal.DefaultConfigPath,
		"Path to the YAML config file")

	cmd.AddCommand(
		watch.NewWatchCommand(),
		inbox.NewInboxCommand(),
		resolve.NewChannelCommand(),
		resolve.NewUserCommand(),
		pull.NewPullCommand(),
		message.NewReplyCommand(),
		migrate.NewMigrateCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewSlackChatCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
