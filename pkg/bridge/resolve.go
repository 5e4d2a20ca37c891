package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mikesmullin/slack/pkg/cache"
)

// contextFetchLimit is how many preceding channel messages FetchContext
// returns when the trigger is not in a thread.
const contextFetchLimit = 10

// Resolver implements the engine's collaborators on top of the bridge
// API, filling the resolution cache as a side effect.
type Resolver struct {
	Client *Client
	Cache  *cache.Cache
}

// ResolveUser fetches user metadata by ID and caches it.
func (r *Resolver) ResolveUser(ctx context.Context, userID string) (map[string]any, error) {
	data, err := r.Client.Call(ctx, "users.info", map[string]any{"user": userID})
	if err != nil {
		return nil, err
	}

	var resp struct {
		User map[string]any `json:"user"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, fmt.Errorf("users.info returned no user for %s", userID)
	}

	if err := r.Cache.PutUser(userID, resp.User); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// ResolveChannel maps a channel name to its ID: cache first, then a
// conversations.list walk that refills the cache along the way.
// Returns "" when nothing matches.
func (r *Resolver) ResolveChannel(ctx context.Context, name string) (string, error) {
	name = strings.TrimPrefix(name, "#")

	if ch := r.Cache.FindChannelByName(name); ch != nil {
		id, _ := ch["id"].(string)
		return id, nil
	}

	cursor := ""
	for {
		params := map[string]any{
			"limit": 200,
			"types": "public_channel,private_channel,mpim,im",
		}
		if cursor != "" {
			params["cursor"] = cursor
		}

		data, err := r.Client.Call(ctx, "conversations.list", params)
		if err != nil {
			return "", err
		}

		var resp struct {
			Channels []map[string]any `json:"channels"`
			Metadata struct {
				NextCursor string `json:"next_cursor"`
			} `json:"response_metadata"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return "", err
		}

		for _, ch := range resp.Channels {
			id, _ := ch["id"].(string)
			if id == "" {
				continue
			}
			if err := r.Cache.PutChannel(id, ch); err != nil {
				return "", err
			}
			chName, _ := ch["name"].(string)
			if strings.EqualFold(chName, name) {
				return id, nil
			}
		}

		cursor = resp.Metadata.NextCursor
		if cursor == "" {
			return "", nil
		}
	}
}

// PostMessage publishes text to a channel, threaded when threadTS is
// set.
func (r *Resolver) PostMessage(ctx context.Context, channel, text, threadTS string) (bool, error) {
	params := map[string]any{"channel": channel, "text": text}
	if threadTS != "" {
		params["thread_ts"] = threadTS
	}
	if _, err := r.Client.Call(ctx, "chat.postMessage", params); err != nil {
		return false, err
	}
	return true, nil
}

// FetchContext returns the messages surrounding a trigger: the thread
// transcript when the trigger is a thread reply, otherwise the
// preceding channel messages. Chronological, trigger excluded.
func (r *Resolver) FetchContext(ctx context.Context, channel, ts, threadTS string) ([]map[string]any, error) {
	if threadTS != "" {
		data, err := r.Client.Call(ctx, "conversations.replies", map[string]any{
			"channel": channel,
			"ts":      threadTS,
			"limit":   50,
		})
		if err != nil {
			return nil, err
		}
		msgs, err := decodeMessages(data)
		if err != nil {
			return nil, err
		}
		// Replies arrive oldest-first already; drop the trigger.
		out := msgs[:0]
		for _, m := range msgs {
			if msgTS, _ := m["ts"].(string); msgTS != ts {
				out = append(out, m)
			}
		}
		return out, nil
	}

	data, err := r.Client.Call(ctx, "conversations.history", map[string]any{
		"channel":   channel,
		"latest":    ts,
		"inclusive": false,
		"limit":     contextFetchLimit,
	})
	if err != nil {
		return nil, err
	}
	msgs, err := decodeMessages(data)
	if err != nil {
		return nil, err
	}

	// History arrives newest-first; flip to chronological.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func decodeMessages(data []byte) ([]map[string]any, error) {
	var resp struct {
		Messages []map[string]any `json:"messages"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}
