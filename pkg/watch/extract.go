package watch

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// platformIDPattern matches platform identifiers embedded in text:
// U/W users, C channels, D DMs, G groups.
var platformIDPattern = regexp.MustCompile(`\b([UWCDG][A-Z0-9]{8,})\b`)

// extractIDs returns the unique platform identifiers found in any
// string leaf of the payload. The payload is viewed as a generic JSON
// tree and walked recursively rather than scanned as serialized text.
func extractIDs(payload any) []string {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil
	}

	set := map[string]struct{}{}
	collectIDs(tree, set)

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func collectIDs(v any, set map[string]struct{}) {
	switch val := v.(type) {
	case string:
		for _, m := range platformIDPattern.FindAllString(val, -1) {
			set[m] = struct{}{}
		}
	case map[string]any:
		for _, child := range val {
			collectIDs(child, set)
		}
	case []any:
		for _, child := range val {
			collectIDs(child, set)
		}
	}
}

// resolveIDs maps each identifier to resolution info. Users come from
// the cache with an external resolver fallback; channels from the
// cache only. Resolution is best-effort per identifier: a failure for
// one never aborts the others.
func (e *Engine) resolveIDs(ctx context.Context, ids []string) map[string]map[string]any {
	resolutions := map[string]map[string]any{}

	for _, id := range ids {
		switch id[0] {
		case 'U', 'W':
			user := e.cache.GetUser(id)
			if user == nil && e.collab.ResolveUser != nil {
				fetched, err := e.collab.ResolveUser(ctx, id)
				if err != nil {
					e.log.Warn().Str("user", id).Err(err).Msg("failed to resolve user")
					continue
				}
				user = fetched
			}
			if user != nil {
				display := ""
				if profile, ok := user["profile"].(map[string]any); ok {
					display, _ = profile["display_name"].(string)
				}
				resolutions[id] = map[string]any{
					"type":         "user",
					"name":         user["name"],
					"real_name":    user["real_name"],
					"display_name": display,
				}
			}
		case 'C', 'D', 'G':
			if channel := e.cache.GetChannel(id); channel != nil {
				resolutions[id] = map[string]any{
					"type":       "channel",
					"name":       channel["name"],
					"is_channel": channel["is_channel"],
					"is_group":   channel["is_group"],
					"is_im":      channel["is_im"],
					"is_mpim":    channel["is_mpim"],
				}
			}
		}
	}
	return resolutions
}

// looksLikeChannelID reports whether s is a raw channel identifier.
func looksLikeChannelID(s string) bool {
	return channelIDPattern.MatchString(strings.TrimSpace(s))
}
