package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mikesmullin/slack/cmd/slack-chat/internal"
)

var (
	channelIDPattern = regexp.MustCompile(`^[CDG][A-Z0-9]{8,}$`)
	userIDPattern    = regexp.MustCompile(`^[UW][A-Z0-9]{8,}$`)
)

const apiTimeout = 30 * time.Second

func printYAML(v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

func resolveChannel(identifier string) error {
	app, err := internal.NewApp()
	if err != nil {
		return err
	}
	identifier = strings.TrimLeft(identifier, "#@")

	ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
	defer cancel()

	if channelIDPattern.MatchString(identifier) {
		info, err := channelInfo(ctx, app, identifier)
		if err != nil {
			return err
		}
		output := map[string]any{
			"name":        info["name"],
			"is_archived": boolField(info, "is_archived"),
			"is_private":  boolField(info, "is_private"),
			"topic":       nestedValue(info, "topic"),
			"purpose":     nestedValue(info, "purpose"),
		}
		if created, ok := info["created"]; ok {
			output["created"] = created
		}
		if creator, ok := info["creator"]; ok {
			output["creator"] = creator
		}
		if boolField(info, "is_mpim") {
			if members, ok := info["members"]; ok {
				output["members"] = members
			}
		}
		return printYAML(output)
	}

	id, err := app.Resolver.ResolveChannel(ctx, identifier)
	if err != nil {
		return printYAML(map[string]any{"input": identifier, "error": err.Error()})
	}
	if id == "" {
		return printYAML(map[string]any{
			"input": identifier,
			"type":  "channel_name",
			"error": "Channel not found",
		})
	}
	name := identifier
	if ch := app.Cache.GetChannel(id); ch != nil {
		if n, ok := ch["name"].(string); ok {
			name = n
		}
	}
	return printYAML(map[string]any{
		"input":         identifier,
		"type":          "channel_name",
		"resolved_name": name,
		"resolved_id":   id,
	})
}

// channelInfo resolves a channel ID to its metadata, cache first.
func channelInfo(ctx context.Context, app *internal.App, channelID string) (map[string]any, error) {
	if ch := app.Cache.GetChannel(channelID); ch != nil {
		return ch, nil
	}
	data, err := app.Client.Call(ctx, "conversations.info", map[string]any{"channel": channelID})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Channel map[string]any `json:"channel"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	if resp.Channel == nil {
		return nil, fmt.Errorf("channel not found: %s", channelID)
	}
	if err := app.Cache.PutChannel(channelID, resp.Channel); err != nil {
		return nil, err
	}
	return resp.Channel, nil
}

func listChannels() error {
	app, err := internal.NewApp()
	if err != nil {
		return err
	}
	channels := app.Cache.Channels()
	if len(channels) == 0 {
		return fmt.Errorf("no channels cached; use 'slack-chat channel resolve <id>' to cache channels")
	}

	sorted := make([]map[string]any, 0, len(channels))
	for _, ch := range channels {
		sorted = append(sorted, ch)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return strings.ToLower(strField(sorted[i], "name")) < strings.ToLower(strField(sorted[j], "name"))
	})

	for _, ch := range sorted {
		printChannelRow(ch)
	}
	return nil
}

func findChannels(keyword string) error {
	app, err := internal.NewApp()
	if err != nil {
		return err
	}
	matches := app.Cache.SearchChannels(keyword)
	if len(matches) == 0 {
		return fmt.Errorf("no channels found matching %q", keyword)
	}
	for _, ch := range matches {
		printChannelRow(ch)
	}
	return nil
}

func printChannelRow(ch map[string]any) {
	description := nestedValue(ch, "purpose")
	if description == "" {
		description = nestedValue(ch, "topic")
	}
	fmt.Printf("%s\t%s\t%s\n", strField(ch, "id"), strField(ch, "name"), truncate(description, 50))
}

func resolveUser(identifier string) error {
	app, err := internal.NewApp()
	if err != nil {
		return err
	}
	identifier = strings.TrimLeft(identifier, "#@")

	ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
	defer cancel()

	if userIDPattern.MatchString(identifier) {
		user, err := app.Resolver.ResolveUser(ctx, identifier)
		if err != nil {
			return err
		}
		name := strField(user, "real_name")
		if name == "" {
			name = strField(user, "name")
		}
		output := map[string]any{
			"name":     name,
			"is_bot":   boolField(user, "is_bot"),
			"is_admin": boolField(user, "is_admin"),
		}
		profile, _ := user["profile"].(map[string]any)
		for _, key := range []string{"email", "display_name", "title", "first_name", "last_name"} {
			if v := strField(profile, key); v != "" {
				output[key] = v
			}
		}
		if tz := strField(user, "tz"); tz != "" {
			output["tz"] = tz
		}
		return printYAML(output)
	}

	// Name lookup: cached first, then the full member list.
	if user := app.Cache.FindUserByName(identifier); user != nil {
		return printYAML(map[string]any{"resolved_name": displayName(user)})
	}

	data, err := app.Client.Call(ctx, "users.list", nil)
	if err != nil {
		return printYAML(map[string]any{"input": identifier, "error": err.Error()})
	}
	var resp struct {
		Members []map[string]any `json:"members"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return err
	}
	for _, user := range resp.Members {
		profile, _ := user["profile"].(map[string]any)
		if strField(user, "name") == identifier ||
			strField(user, "real_name") == identifier ||
			strField(profile, "display_name") == identifier {
			if id := strField(user, "id"); id != "" {
				if err := app.Cache.PutUser(id, user); err != nil {
					return err
				}
			}
			return printYAML(map[string]any{"resolved_name": displayName(user)})
		}
	}
	return printYAML(map[string]any{
		"input": identifier,
		"type":  "user_name",
		"error": "User not found",
	})
}

func listUsers() error {
	app, err := internal.NewApp()
	if err != nil {
		return err
	}
	users := app.Cache.Users()
	if len(users) == 0 {
		return fmt.Errorf("no users cached; use 'slack-chat user resolve <id>' to cache users")
	}

	sorted := make([]map[string]any, 0, len(users))
	for _, u := range users {
		sorted = append(sorted, u)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return strings.ToLower(displayName(sorted[i])) < strings.ToLower(displayName(sorted[j]))
	})

	for _, u := range sorted {
		printUserRow(u)
	}
	return nil
}

func findUsers(keyword string) error {
	app, err := internal.NewApp()
	if err != nil {
		return err
	}
	matches := app.Cache.SearchUsers(keyword)
	if len(matches) == 0 {
		return fmt.Errorf("no users found matching %q", keyword)
	}
	for _, u := range matches {
		printUserRow(u)
	}
	return nil
}

func printUserRow(u map[string]any) {
	profile, _ := u["profile"].(map[string]any)
	fmt.Printf("%s\t%s\t%s\n", strField(u, "id"), displayName(u), strField(profile, "title"))
}

// displayName prefers the profile first/last name pair, then the
// display name, then the login name.
func displayName(u map[string]any) string {
	profile, _ := u["profile"].(map[string]any)
	full := strings.TrimSpace(strField(profile, "first_name") + " " + strField(profile, "last_name"))
	if full != "" {
		return full
	}
	if dn := strField(profile, "display_name"); dn != "" {
		return dn
	}
	if rn := strField(u, "real_name"); rn != "" {
		return rn
	}
	return strField(u, "name")
}

func strField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}

// nestedValue extracts the "value" string from topic/purpose objects.
func nestedValue(m map[string]any, key string) string {
	obj, _ := m[key].(map[string]any)
	return strField(obj, "value")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
