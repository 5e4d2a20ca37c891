package message

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mikesmullin/slack/cmd/slack-chat/internal"
	"github.com/mikesmullin/slack/pkg/eventid"
	"github.com/mikesmullin/slack/pkg/store"
)

var (
	hexIDPattern     = regexp.MustCompile(`^[0-9a-f]+$`)
	channelIDPattern = regexp.MustCompile(`^[CDG][A-Z0-9]{8,}$`)
)

func NewReplyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reply <target> <message>",
		Short: "Reply to a channel or thread",
		Long: `Reply to a channel or thread.

Smart targeting - accepts:
  - Channel ID: C0A7RJWRZPT (posts to channel)
  - Channel name: #prod-tech (posts to channel)
  - Storage ID: b89c7a (replies to that message's thread)
  - Event ID: C0A7RJWRZPT:1767815267.099869 (replies to thread)
  - Event ID with thread: C0A7RJWRZPT:1767815267.099869@1767773973.649239`,
		Args: cobra.ExactArgs(2),
		Example: `  slack-chat reply C0A7RJWRZPT "Hello everyone!"
  slack-chat reply "#prod-tech" "Hello world!"
  slack-chat reply b89c7a "Thanks for the update!"`,
		RunE: func(_ *cobra.Command, args []string) error {
			return reply(args[0], args[1])
		},
	}
}

func reply(target, text string) error {
	app, err := internal.NewApp()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	channelID, threadTS, err := resolveTarget(ctx, app, target)
	if err != nil {
		return err
	}

	posted, err := app.Resolver.PostMessage(ctx, channelID, text, threadTS)
	if err != nil {
		return err
	}
	if !posted {
		return fmt.Errorf("message was not posted")
	}

	result := map[string]any{
		"ok":      true,
		"channel": channelID,
	}
	if threadTS != "" {
		result["thread_ts"] = threadTS
	}
	data, err := yaml.Marshal(result)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

// resolveTarget maps a reply target to (channel, thread). Storage IDs
// and event references target the message's thread; channel IDs and
// names post to the channel top level.
func resolveTarget(ctx context.Context, app *internal.App, target string) (channelID, threadTS string, err error) {
	if hexIDPattern.MatchString(strings.ToLower(target)) {
		addr, rec, err := app.Store.FindByPrefix(strings.ToLower(target))
		var amb *store.AmbiguousIDError
		if errors.As(err, &amb) {
			return "", "", amb
		}
		if err != nil {
			return "", "", err
		}
		if addr != "" {
			threadTS := rec.ThreadTS
			if threadTS == "" {
				threadTS = rec.Timestamp
			}
			return rec.ChannelID, threadTS, nil
		}
	}

	if strings.Contains(target, ":") {
		channel, ts, parsedThreadTS := eventid.Parse(target)
		threadTS := parsedThreadTS
		if threadTS == "" {
			threadTS = ts
		}
		return channel, threadTS, nil
	}

	if channelIDPattern.MatchString(target) {
		return target, "", nil
	}

	id, err := app.Resolver.ResolveChannel(ctx, target)
	if err != nil {
		return "", "", err
	}
	if id == "" {
		return "", "", fmt.Errorf("could not resolve channel: %s (try 'slack-chat channel find <keyword>')", target)
	}
	return id, "", nil
}
