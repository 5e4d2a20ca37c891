package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mikesmullin/slack/cmd/slack-chat/internal"
	"github.com/mikesmullin/slack/pkg/eventid"
	"github.com/mikesmullin/slack/pkg/pull"
	"github.com/mikesmullin/slack/pkg/store"
)

var hexIDPattern = regexp.MustCompile(`^[0-9a-f]+$`)

// resolveRef finds a stored record by partial content address or by
// event reference (CHANNEL:TS or CHANNEL:TS@THREAD_TS).
func resolveRef(st *store.Store, ref string) (string, *store.Record, error) {
	if hexIDPattern.MatchString(strings.ToLower(ref)) {
		addr, rec, err := st.FindByPrefix(strings.ToLower(ref))
		var amb *store.AmbiguousIDError
		if errors.As(err, &amb) {
			return "", nil, amb
		}
		if err != nil {
			return "", nil, err
		}
		if rec != nil {
			return addr, rec, nil
		}
	}

	if strings.Contains(ref, ":") {
		channel, ts, threadTS := eventid.Parse(ref)
		addr := store.AddressOf(channel, ts, threadTS)
		rec, err := st.Get(addr)
		if err != nil {
			return "", nil, err
		}
		if rec != nil {
			return addr, rec, nil
		}
	}

	return "", nil, fmt.Errorf("message not found: %s", ref)
}

func printYAML(v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

func showSummary() error {
	app, err := internal.NewApp()
	if err != nil {
		return err
	}
	messages, err := app.Store.List()
	if err != nil {
		return err
	}

	unread, read := 0, 0
	byType := map[string]int{"channel": 0, "dm": 0, "thread": 0}
	for _, m := range messages {
		if m.Record.IsRead() {
			read++
			continue
		}
		unread++
		switch {
		case m.Record.ThreadTS != "":
			byType["thread"]++
		case strings.HasPrefix(m.Record.ChannelID, "D"):
			byType["dm"]++
		default:
			byType["channel"]++
		}
	}

	return printYAML(map[string]any{
		"summary": map[string]any{
			"unread":  unread,
			"read":    read,
			"total":   len(messages),
			"by_type": byType,
		},
	})
}

type listOptions struct {
	Type    string
	Limit   int
	Since   string
	ShowAll bool
}

func listMessages(opts listOptions) error {
	app, err := internal.NewApp()
	if err != nil {
		return err
	}
	messages, err := app.Store.List()
	if err != nil {
		return err
	}

	if !opts.ShowAll {
		messages = filterStored(messages, func(m store.Stored) bool {
			return !m.Record.IsRead()
		})
	}

	if opts.Since != "" {
		since, err := pull.ParseSince(opts.Since, time.Now())
		if err != nil {
			return err
		}
		messages = filterStored(messages, func(m store.Stored) bool {
			return !tsTime(m.Record.Timestamp).Before(since)
		})
	}

	if opts.Type != "" && opts.Type != "all" {
		messages = filterStored(messages, func(m store.Stored) bool {
			switch opts.Type {
			case "threads":
				return m.Record.ThreadTS != ""
			case "dms":
				return strings.HasPrefix(m.Record.ChannelID, "D")
			case "channels":
				return !strings.HasPrefix(m.Record.ChannelID, "D") && m.Record.ThreadTS == ""
			default:
				return false
			}
		})
	}

	total := len(messages)
	if opts.Limit > 0 && len(messages) > opts.Limit {
		messages = messages[:opts.Limit]
	}

	fmt.Printf("Showing %d of %d messages:\n\n", len(messages), total)
	for _, m := range messages {
		rec := m.Record
		typeStr := ""
		if rec.ThreadTS != "" {
			typeStr = " (thread)"
		} else if strings.HasPrefix(rec.ChannelID, "D") {
			typeStr = " (DM)"
		}
		dateStr := tsTime(rec.Timestamp).Format("2006-01-02 15:04")
		fmt.Printf("%s / %s / %s / %s%s\n", m.Addr[:6], dateStr, rec.ChannelID, rec.UserID, typeStr)
		if text := strings.ReplaceAll(truncate(rec.Text, 60), "\n", " "); text != "" {
			fmt.Printf("  %s\n", text)
		}
		fmt.Println()
	}
	if total > len(messages) {
		fmt.Printf("... and %d more\n", total-len(messages))
	}
	return nil
}

func viewMessage(ref string) error {
	app, err := internal.NewApp()
	if err != nil {
		return err
	}
	addr, _, err := resolveRef(app.Store, ref)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(app.Store.Path(addr))
	if err != nil {
		return err
	}
	fmt.Print(string(content))
	return nil
}

func markRead(ref string, offlineOnly bool) error {
	app, err := internal.NewApp()
	if err != nil {
		return err
	}
	addr, rec, err := resolveRef(app.Store, ref)
	if err != nil {
		return err
	}

	if _, err := app.Store.SetRead(addr, true); err != nil {
		return err
	}
	eventRef := eventid.Format(rec.ChannelID, rec.Timestamp, rec.ThreadTS)
	if err := app.Store.SaveReadEvent(eventRef); err != nil {
		return err
	}

	result := map[string]any{
		"ok":                  true,
		"marked_read_locally": addr[:8] + "...",
	}
	if !offlineOnly {
		serverMark(app, rec.ChannelID, rec.Timestamp, result)
	}
	return printYAML(result)
}

func markUnread(ref string) error {
	app, err := internal.NewApp()
	if err != nil {
		return err
	}
	addr, _, err := resolveRef(app.Store, ref)
	if err != nil {
		return err
	}
	if _, err := app.Store.SetRead(addr, false); err != nil {
		return err
	}
	return printYAML(map[string]any{
		"ok":                    true,
		"marked_unread_locally": addr[:8] + "...",
	})
}

func markThread(ref string, offlineOnly bool) error {
	app, err := internal.NewApp()
	if err != nil {
		return err
	}

	var channelID, threadTS string
	if _, rec, err := resolveRef(app.Store, ref); err == nil {
		channelID = rec.ChannelID
		threadTS = rec.ThreadTS
		if threadTS == "" {
			threadTS = rec.Timestamp
		}
	} else if strings.Contains(ref, ":") {
		var ts string
		channelID, ts, threadTS = eventid.Parse(ref)
		if threadTS == "" {
			threadTS = ts
		}
	} else {
		return err
	}
	if channelID == "" || threadTS == "" {
		return fmt.Errorf("could not determine thread for: %s", ref)
	}

	messages, err := app.Store.List()
	if err != nil {
		return err
	}

	var marked []string
	for _, m := range messages {
		rec := m.Record
		if rec.ChannelID != channelID {
			continue
		}
		msgThreadTS := rec.ThreadTS
		if msgThreadTS == "" {
			msgThreadTS = rec.Timestamp
		}
		if msgThreadTS != threadTS && rec.Timestamp != threadTS {
			continue
		}
		if _, err := app.Store.SetRead(m.Addr, true); err != nil {
			return err
		}
		if err := app.Store.SaveReadEvent(eventid.Format(rec.ChannelID, rec.Timestamp, rec.ThreadTS)); err != nil {
			return err
		}
		marked = append(marked, m.Addr[:8])
	}
	if len(marked) == 0 {
		return fmt.Errorf("no messages found for thread: %s", threadTS)
	}

	result := map[string]any{
		"ok":           true,
		"thread_ts":    threadTS,
		"channel_id":   channelID,
		"marked_count": len(marked),
		"marked_ids":   marked,
	}
	if !offlineOnly {
		serverMark(app, channelID, threadTS, result)
	}
	return printYAML(result)
}

func markChannel(channelID string, offlineOnly bool) error {
	app, err := internal.NewApp()
	if err != nil {
		return err
	}
	messages, err := app.Store.List()
	if err != nil {
		return err
	}

	var marked []string
	latestTS := ""
	for _, m := range messages {
		rec := m.Record
		if rec.ChannelID != channelID {
			continue
		}
		if rec.Timestamp > latestTS {
			latestTS = rec.Timestamp
		}
		if _, err := app.Store.SetRead(m.Addr, true); err != nil {
			return err
		}
		if err := app.Store.SaveReadEvent(eventid.Format(rec.ChannelID, rec.Timestamp, rec.ThreadTS)); err != nil {
			return err
		}
		marked = append(marked, m.Addr[:8])
	}
	if len(marked) == 0 {
		return fmt.Errorf("no messages found for channel: %s", channelID)
	}

	result := map[string]any{
		"ok":           true,
		"channel_id":   channelID,
		"marked_count": len(marked),
		"marked_ids":   marked,
	}
	if !offlineOnly {
		serverMark(app, channelID, latestTS, result)
	}
	return printYAML(result)
}

// serverMark marks the conversation read on the server, recording the
// outcome in result without failing the local update.
func serverMark(app *internal.App, channel, ts string, result map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := app.Client.Call(ctx, "conversations.mark", map[string]any{
		"channel": channel,
		"ts":      ts,
	})
	if err != nil {
		result["slack_error"] = err.Error()
	} else {
		result["marked_read_on_slack"] = true
	}
}

func filterStored(in []store.Stored, keep func(store.Stored) bool) []store.Stored {
	out := in[:0]
	for _, m := range in {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

func tsTime(ts string) time.Time {
	sec, _, _ := strings.Cut(ts, ".")
	unix, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
