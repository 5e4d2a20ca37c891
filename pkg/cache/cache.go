// Package cache is the disk-backed resolution cache for user and
// channel metadata. Entries are whole API blobs keyed by platform ID,
// persisted as flat YAML maps and rewritten in full on every put.
// Staleness is tolerated; nothing expires.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	usersFile    = "users.yml"
	channelsFile = "channels.yml"
)

// Cache owns the _cache directory under the storage root.
type Cache struct {
	dir string
	mu  sync.Mutex
}

// New returns a Cache rooted at dir.
func New(dir string) *Cache {
	return &Cache{dir: dir}
}

func (c *Cache) usersPath() string    { return filepath.Join(c.dir, usersFile) }
func (c *Cache) channelsPath() string { return filepath.Join(c.dir, channelsFile) }

// load reads a cache file into a flat id->blob map. Missing or
// unreadable files are an empty cache.
func load(path string) map[string]map[string]any {
	data, err := os.ReadFile(path)
	if err != nil {
		return map[string]map[string]any{}
	}
	out := map[string]map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return map[string]map[string]any{}
	}
	return out
}

func (c *Cache) save(path string, data map[string]map[string]any) error {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	raw, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// GetUser returns the cached user blob, or nil when absent.
func (c *Cache) GetUser(id string) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return load(c.usersPath())[id]
}

// PutUser stores a user blob, stamping the cache instant.
func (c *Cache) PutUser(id string, data map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	all := load(c.usersPath())
	data["_cached_at"] = time.Now().UTC().Format(time.RFC3339)
	all[id] = data
	return c.save(c.usersPath(), all)
}

// GetChannel returns the cached channel blob, or nil when absent.
func (c *Cache) GetChannel(id string) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return load(c.channelsPath())[id]
}

// PutChannel stores a channel blob, stamping the cache instant.
func (c *Cache) PutChannel(id string, data map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	all := load(c.channelsPath())
	data["_cached_at"] = time.Now().UTC().Format(time.RFC3339)
	all[id] = data
	return c.save(c.channelsPath(), all)
}

// Users returns the full users cache.
func (c *Cache) Users() map[string]map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return load(c.usersPath())
}

// Channels returns the full channels cache.
func (c *Cache) Channels() map[string]map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return load(c.channelsPath())
}

// FindChannelByName looks up a channel by display name,
// case-insensitively, against the name and name_normalized fields.
// A leading "#" is ignored.
func (c *Cache) FindChannelByName(name string) map[string]any {
	name = strings.ToLower(strings.TrimPrefix(name, "#"))
	for _, ch := range c.Channels() {
		if strings.ToLower(strField(ch, "name")) == name ||
			strings.ToLower(strField(ch, "name_normalized")) == name {
			return ch
		}
	}
	return nil
}

// FindUserByName looks up a user by name, real name, or profile
// display name, case-insensitively. A leading "@" is ignored.
func (c *Cache) FindUserByName(name string) map[string]any {
	name = strings.ToLower(strings.TrimPrefix(name, "@"))
	for _, u := range c.Users() {
		display := ""
		if profile, ok := u["profile"].(map[string]any); ok {
			display = strField(profile, "display_name")
		}
		if strings.ToLower(strField(u, "name")) == name ||
			strings.ToLower(strField(u, "real_name")) == name ||
			strings.ToLower(display) == name {
			return u
		}
	}
	return nil
}

// SearchChannels returns channels whose name contains the keyword,
// case-insensitively, sorted by name.
func (c *Cache) SearchChannels(keyword string) []map[string]any {
	keyword = strings.ToLower(keyword)
	var out []map[string]any
	for _, ch := range c.Channels() {
		if strings.Contains(strings.ToLower(strField(ch, "name")), keyword) {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strField(out[i], "name") < strField(out[j], "name")
	})
	return out
}

// SearchUsers returns users where any string leaf anywhere in the
// blob (profile, custom fields, nested lists) contains the keyword,
// case-insensitively. Sorted by real name, falling back to name.
func (c *Cache) SearchUsers(keyword string) []map[string]any {
	keyword = strings.ToLower(keyword)
	var out []map[string]any
	for _, u := range c.Users() {
		if containsKeyword(u, keyword) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return userSortKey(out[i]) < userSortKey(out[j])
	})
	return out
}

// containsKeyword walks a generic YAML value looking for the keyword
// in any string leaf.
func containsKeyword(v any, keyword string) bool {
	switch val := v.(type) {
	case string:
		return strings.Contains(strings.ToLower(val), keyword)
	case map[string]any:
		for _, child := range val {
			if containsKeyword(child, keyword) {
				return true
			}
		}
	case []any:
		for _, child := range val {
			if containsKeyword(child, keyword) {
				return true
			}
		}
	}
	return false
}

func userSortKey(u map[string]any) string {
	if rn := strField(u, "real_name"); rn != "" {
		return rn
	}
	return strField(u, "name")
}

func strField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
