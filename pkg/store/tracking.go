package store

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Legacy flat read tracking: a YAML file listing event references that
// were marked read before per-record read state existed. Kept so old
// state keeps counting as read.

const readTrackingFile = "read_events.yaml"

type readTracking struct {
	ReadEvents []string `yaml:"read_events"`
}

func (s *Store) readTrackingPath() string {
	return filepath.Join(s.root, readTrackingFile)
}

// LoadReadEvents returns the set of event references marked as read.
// A missing or unreadable file is an empty set.
func (s *Store) LoadReadEvents() map[string]struct{} {
	out := map[string]struct{}{}
	data, err := os.ReadFile(s.readTrackingPath())
	if err != nil {
		return out
	}
	var t readTracking
	if err := yaml.Unmarshal(data, &t); err != nil {
		return out
	}
	for _, id := range t.ReadEvents {
		out[id] = struct{}{}
	}
	return out
}

// SaveReadEvent adds an event reference to the read tracking file.
func (s *Store) SaveReadEvent(eventID string) error {
	if err := s.ensureDirs(); err != nil {
		return err
	}

	set := s.LoadReadEvents()
	set[eventID] = struct{}{}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data, err := yaml.Marshal(readTracking{ReadEvents: ids})
	if err != nil {
		return err
	}
	return writeFileAtomic(s.readTrackingPath(), data)
}

// IsEventRead reports whether an event reference, or any thread
// variant of it, is marked read in the legacy tracking file.
func (s *Store) IsEventRead(eventID string) bool {
	set := s.LoadReadEvents()

	if _, ok := set[eventID]; ok {
		return true
	}

	// A threaded reference counts as read when its base message is.
	baseID, _, _ := strings.Cut(eventID, "@")
	if _, ok := set[baseID]; ok && baseID != eventID {
		return true
	}

	// Any recorded variant rooted at the same base also counts.
	for readID := range set {
		if strings.HasPrefix(readID, baseID+"@") || strings.HasPrefix(readID, baseID+":") {
			if variant, _, _ := strings.Cut(readID, "@"); variant == baseID {
				return true
			}
		}
	}
	return false
}
