package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/slack-go/slack"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "storage"))
}

func TestAddressOfDeterministic(t *testing.T) {
	a := AddressOf("C0123456789", "1700000000.000100", "")
	b := AddressOf("C0123456789", "1700000000.000100", "")
	if a != b {
		t.Errorf("expected identical addresses, got %q and %q", a, b)
	}
	if len(a) != 40 {
		t.Errorf("expected 40-char sha1 hex, got %d chars", len(a))
	}

	threaded := AddressOf("C0123456789", "1700000000.000100", "1700000000.000050")
	if threaded == a {
		t.Error("thread context must change the address")
	}
}

func TestPutIdempotentByIdentity(t *testing.T) {
	s := testStore(t)

	addr, written, err := s.Put("C1", "100.000", "", slack.Msg{Text: "first"}, false)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !written {
		t.Fatal("expected first put to write")
	}

	addr2, written, err := s.Put("C1", "100.000", "", slack.Msg{Text: "second"}, false)
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if written {
		t.Error("expected second put to be skipped")
	}
	if addr2 != addr {
		t.Errorf("address changed across puts: %q vs %q", addr2, addr)
	}

	rec, err := s.Get(addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Text != "first" {
		t.Errorf("stored payload mutated by skipped put: %q", rec.Text)
	}
}

func TestPutOverwrite(t *testing.T) {
	s := testStore(t)

	addr, _, err := s.Put("C1", "100.000", "", slack.Msg{Text: "first"}, false)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, written, err := s.Put("C1", "100.000", "", slack.Msg{Text: "second"}, true); err != nil || !written {
		t.Fatalf("overwrite put: written=%v err=%v", written, err)
	}

	rec, err := s.Get(addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Text != "second" {
		t.Errorf("expected overwrite to replace payload, got %q", rec.Text)
	}
}

func TestGetMissing(t *testing.T) {
	s := testStore(t)
	rec, err := s.Get("0000000000000000000000000000000000000000")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec != nil {
		t.Error("expected nil record for missing address")
	}
}

func TestFindByPrefix(t *testing.T) {
	s := testStore(t)

	// Two records whose addresses share no useful prefix is not
	// guaranteed, so write synthetic files directly.
	if err := s.ensureDirs(); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{
		"ab12000000000000000000000000000000000000",
		"ab99000000000000000000000000000000000000",
	} {
		rec := NewRecord("C1", "100.000", "", slack.Msg{Text: "x"})
		data, err := rec.Encode()
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(s.Path(id), data, 0o600); err != nil {
			t.Fatal(err)
		}
	}

	// Ambiguous prefix surfaces both candidates.
	_, _, err := s.FindByPrefix("ab")
	var amb *AmbiguousIDError
	if !errors.As(err, &amb) {
		t.Fatalf("expected AmbiguousIDError, got %v", err)
	}
	if len(amb.Candidates) != 2 {
		t.Errorf("expected 2 candidates, got %d", len(amb.Candidates))
	}

	// Unique prefix resolves.
	addr, rec, err := s.FindByPrefix("ab12")
	if err != nil {
		t.Fatalf("unique prefix: %v", err)
	}
	if addr != "ab12000000000000000000000000000000000000" || rec == nil {
		t.Errorf("expected unique match, got addr=%q rec=%v", addr, rec)
	}

	// No match is not an error.
	addr, rec, err = s.FindByPrefix("zz")
	if err != nil {
		t.Fatalf("no match: %v", err)
	}
	if addr != "" || rec != nil {
		t.Error("expected empty result for unmatched prefix")
	}
}

func TestFindByPrefixTruncatesCandidates(t *testing.T) {
	s := testStore(t)
	if err := s.ensureDirs(); err != nil {
		t.Fatal(err)
	}

	rec := NewRecord("C1", "100.000", "", slack.Msg{Text: "x"})
	data, err := rec.Encode()
	if err != nil {
		t.Fatal(err)
	}
	for _, suffix := range []string{"0", "1", "2", "3", "4", "5", "6"} {
		id := "cd" + suffix + "0000000000000000000000000000000000000"
		if err := os.WriteFile(s.Path(id), data, 0o600); err != nil {
			t.Fatal(err)
		}
	}

	_, _, err = s.FindByPrefix("cd")
	var amb *AmbiguousIDError
	if !errors.As(err, &amb) {
		t.Fatalf("expected AmbiguousIDError, got %v", err)
	}
	if len(amb.Candidates) != 5 {
		t.Errorf("expected candidates capped at 5, got %d", len(amb.Candidates))
	}
	if !amb.Truncated {
		t.Error("expected truncation marker")
	}
}

func TestReadStateRoundtrip(t *testing.T) {
	s := testStore(t)

	addr, _, err := s.Put("C1", "100.000", "", slack.Msg{Text: "hello"}, false)
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	ok, err := s.SetRead(addr, true)
	if err != nil || !ok {
		t.Fatalf("set read: ok=%v err=%v", ok, err)
	}
	rec, err := s.Get(addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !rec.IsRead() {
		t.Error("expected record to be read")
	}
	if rec.Offline.ReadAt == nil {
		t.Error("expected read instant to be stamped")
	}

	ok, err = s.SetRead(addr, false)
	if err != nil || !ok {
		t.Fatalf("set unread: ok=%v err=%v", ok, err)
	}
	rec, err = s.Get(addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.IsRead() {
		t.Error("expected record to be unread")
	}
	if rec.Offline.ReadAt != nil {
		t.Error("expected read instant to be cleared")
	}
}

func TestSetReadUnknownAddress(t *testing.T) {
	s := testStore(t)
	ok, err := s.SetRead("ffffffffffffffffffffffffffffffffffffffff", true)
	if err != nil {
		t.Fatalf("set read: %v", err)
	}
	if ok {
		t.Error("expected false for unknown address")
	}
}

func TestListSortedAndSkipsCorrupt(t *testing.T) {
	s := testStore(t)

	if _, _, err := s.Put("C1", "100.000", "", slack.Msg{Text: "older"}, false); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Put("C1", "200.000", "", slack.Msg{Text: "newer"}, false); err != nil {
		t.Fatal(err)
	}

	// A corrupt record and an internal file must both be skipped.
	if err := os.WriteFile(filepath.Join(s.Root(), "deadbeef00000000000000000000000000000000.md"), []byte("not a record"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Root(), "_internal.md"), []byte("internal"), 0o600); err != nil {
		t.Fatal(err)
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 records, got %d", len(list))
	}
	if list[0].Record.Text != "newer" || list[1].Record.Text != "older" {
		t.Errorf("expected newest-first ordering, got %q then %q", list[0].Record.Text, list[1].Record.Text)
	}
}

func TestRecordFrontmatterRoundtrip(t *testing.T) {
	rec := NewRecord("C1", "100.000", "50.000", slack.Msg{
		Text:    "body text",
		User:    "U0123456789",
		SubType: "",
		Reactions: []slack.ItemReaction{
			{Name: "tada", Count: 2, Users: []string{"U1", "U2"}},
		},
	})

	data, err := rec.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeRecord(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.ChannelID != "C1" || got.Timestamp != "100.000" || got.ThreadTS != "50.000" {
		t.Errorf("identity fields lost: %+v", got)
	}
	if got.UserID != "U0123456789" || got.Text != "body text" {
		t.Errorf("payload fields lost: %+v", got)
	}
	if len(got.Reactions) != 1 || got.Reactions[0].Name != "tada" {
		t.Errorf("reactions lost: %+v", got.Reactions)
	}
	if got.StoredID != rec.StoredID {
		t.Errorf("stored ID mismatch: %q vs %q", got.StoredID, rec.StoredID)
	}
}
