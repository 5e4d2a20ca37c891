package resolve

import (
	"github.com/spf13/cobra"
)

func NewChannelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Channel resolution and lookup",
		Example: `  slack-chat channel resolve C0A7RJWRZPT
  slack-chat channel resolve "#prod-tech"
  slack-chat channel list
  slack-chat channel find prod`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "resolve <id-or-name>",
			Short: "Resolve a channel ID to name or vice versa",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return resolveChannel(args[0])
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List all cached channels",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return listChannels()
			},
		},
		&cobra.Command{
			Use:   "find <keyword>",
			Short: "Find cached channels by name keyword",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return findChannels(args[0])
			},
		},
	)
	return cmd
}

func NewUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User resolution and lookup",
		Example: `  slack-chat user resolve U0A7QGTLB94
  slack-chat user list
  slack-chat user find smith`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "resolve <id-or-name>",
			Short: "Resolve a user ID to name or vice versa",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return resolveUser(args[0])
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List all cached users",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return listUsers()
			},
		},
		&cobra.Command{
			Use:   "find <keyword>",
			Short: "Find cached users by name keyword",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return findUsers(args[0])
			},
		},
	)
	return cmd
}
