// Package store persists messages as content-addressed files.
//
// Each message maps to one .md file under the storage root, named by
// the sha1 of its identity triple. Ingestion is idempotent by
// identity: writing the same (channel, timestamp, thread) twice is a
// no-op unless an overwrite is requested. Files whose names start
// with "_" belong to internal state (caches) and are ignored by scans.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// Store owns a storage root directory and everything beneath it.
type Store struct {
	root string
}

// Stored pairs a content address with its decoded record.
type Stored struct {
	Addr   string
	Record *Record
}

// New returns a Store rooted at dir. The directory is created lazily
// on first write.
func New(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the storage root directory.
func (s *Store) Root() string { return s.root }

// CacheDir returns the directory holding the resolution caches.
func (s *Store) CacheDir() string { return filepath.Join(s.root, "_cache") }

// Path maps a content address to its file location.
func (s *Store) Path(addr string) string {
	return filepath.Join(s.root, addr+".md")
}

// Exists reports whether a record is already stored for addr.
func (s *Store) Exists(addr string) bool {
	_, err := os.Stat(s.Path(addr))
	return err == nil
}

func (s *Store) ensureDirs() error {
	if err := os.MkdirAll(s.root, 0o700); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	if err := os.MkdirAll(s.CacheDir(), 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	return nil
}

// Put persists a message keyed by its identity triple. When the
// record already exists and overwrite is false, the write is skipped
// and written is false; the stored payload remains the first one.
func (s *Store) Put(channel, ts, threadTS string, msg slack.Msg, overwrite bool) (addr string, written bool, err error) {
	if err := s.ensureDirs(); err != nil {
		return "", false, err
	}

	addr = AddressOf(channel, ts, threadTS)
	if !overwrite && s.Exists(addr) {
		return addr, false, nil
	}

	rec := NewRecord(channel, ts, threadTS, msg)
	data, err := rec.Encode()
	if err != nil {
		return "", false, err
	}
	if err := writeFileAtomic(s.Path(addr), data); err != nil {
		return "", false, err
	}
	return addr, true, nil
}

// Get loads a record by its full content address. A missing record
// returns (nil, nil).
func (s *Store) Get(addr string) (*Record, error) {
	data, err := os.ReadFile(s.Path(addr))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return DecodeRecord(data)
}

// List enumerates every stored record, newest first. Individually
// corrupt files are skipped rather than failing the enumeration.
func (s *Store) List() ([]Stored, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []Stored
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "_") || !strings.HasSuffix(name, ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.root, name))
		if err != nil {
			continue
		}
		rec, err := DecodeRecord(data)
		if err != nil {
			continue
		}
		out = append(out, Stored{Addr: strings.TrimSuffix(name, ".md"), Record: rec})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Record.Timestamp > out[j].Record.Timestamp
	})
	return out, nil
}

// FindByPrefix resolves a partial content address git-style. Zero
// matches returns ("", nil, nil); more than one returns an
// *AmbiguousIDError carrying up to 5 candidates. A prefix equal to a
// full address goes through the same scan.
func (s *Store) FindByPrefix(prefix string) (string, *Record, error) {
	prefix = strings.TrimSuffix(prefix, ".md")

	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, err
	}

	var matches []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "_") || !strings.HasSuffix(name, ".md") {
			continue
		}
		id := strings.TrimSuffix(name, ".md")
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}

	switch len(matches) {
	case 0:
		return "", nil, nil
	case 1:
		rec, err := s.Get(matches[0])
		if err != nil {
			return "", nil, err
		}
		return matches[0], rec, nil
	default:
		sort.Strings(matches)
		ambErr := &AmbiguousIDError{Prefix: prefix, Candidates: matches, Truncated: false}
		if len(matches) > maxAmbiguousCandidates {
			ambErr.Candidates = matches[:maxAmbiguousCandidates]
			ambErr.Truncated = true
		}
		return "", nil, ambErr
	}
}

// SetRead updates the offline read state of a record, stamping the
// read instant on read and clearing it on unread. Returns false when
// the address is unknown. The full record is rewritten.
func (s *Store) SetRead(addr string, read bool) (bool, error) {
	rec, err := s.Get(addr)
	if err != nil || rec == nil {
		return false, err
	}

	rec.Offline.Read = read
	if read {
		now := time.Now().UTC()
		rec.Offline.ReadAt = &now
	} else {
		rec.Offline.ReadAt = nil
	}

	data, err := rec.Encode()
	if err != nil {
		return false, err
	}
	if err := writeFileAtomic(s.Path(addr), data); err != nil {
		return false, err
	}
	return true, nil
}

// writeFileAtomic writes via a temp file then rename so a concurrent
// reader never observes a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
