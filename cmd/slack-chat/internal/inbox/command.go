package inbox

import (
	"github.com/spf13/cobra"
)

func NewInboxCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "inbox",
		Aliases: []string{"i"},
		Short:   "Inbox operations on the local message store",
		Example: `  slack-chat inbox summary
  slack-chat inbox list --type dms
  slack-chat inbox view b89c7a
  slack-chat inbox read C0A7RJWRZPT:1767815267.099869`,
	}

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Show unread counts from local storage",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return showSummary()
		},
	}

	var listOpts listOptions
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List messages from local storage",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return listMessages(listOpts)
		},
	}
	listCmd.Flags().StringVarP(&listOpts.Type, "type", "t", "",
		"Filter: channels, dms, threads, all")
	listCmd.Flags().IntVarP(&listOpts.Limit, "limit", "n", 20,
		"Maximum items to show")
	listCmd.Flags().StringVar(&listOpts.Since, "since", "",
		"Only show messages after this date (YYYY-MM-DD, yesterday, 'N days ago')")
	listCmd.Flags().BoolVarP(&listOpts.ShowAll, "all", "a", false,
		"Include read messages")

	viewCmd := &cobra.Command{
		Use:   "view <id-or-event>",
		Short: "View a single stored message",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return viewMessage(args[0])
		},
	}

	var readOfflineOnly bool
	readCmd := &cobra.Command{
		Use:   "read <id-or-event>",
		Short: "Mark a message as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return markRead(args[0], readOfflineOnly)
		},
	}
	readCmd.Flags().BoolVar(&readOfflineOnly, "offline-only", false,
		"Only update local storage, don't mark on the server")

	unreadCmd := &cobra.Command{
		Use:   "unread <id-or-event>",
		Short: "Mark a message as unread (local storage only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return markUnread(args[0])
		},
	}

	var threadOfflineOnly bool
	markThreadCmd := &cobra.Command{
		Use:   "mark-thread <id-or-event>",
		Short: "Mark all messages in a thread as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return markThread(args[0], threadOfflineOnly)
		},
	}
	markThreadCmd.Flags().BoolVar(&threadOfflineOnly, "offline-only", false,
		"Only update local storage, don't mark on the server")

	var channelOfflineOnly bool
	markChannelCmd := &cobra.Command{
		Use:   "mark-channel <channel-id>",
		Short: "Mark all messages in a channel as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return markChannel(args[0], channelOfflineOnly)
		},
	}
	markChannelCmd.Flags().BoolVar(&channelOfflineOnly, "offline-only", false,
		"Only update local storage, don't mark on the server")

	cmd.AddCommand(summaryCmd, listCmd, viewCmd, readCmd, unreadCmd, markThreadCmd, markChannelCmd)
	return cmd
}
