package pull

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mikesmullin/slack/pkg/bridge"
	"github.com/mikesmullin/slack/pkg/store"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)

	cases := []struct {
		in   string
		want time.Time
		err  bool
	}{
		{"2026-03-01", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), false},
		{"yesterday", time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), false},
		{"3 days ago", time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), false},
		{"1 day ago", time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), false},
		{"  Yesterday  ", time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), false},
		{"last tuesday", time.Time{}, true},
		{"days ago", time.Time{}, true},
	}
	for _, tc := range cases {
		got, err := ParseSince(tc.in, now)
		if tc.err {
			if err == nil {
				t.Errorf("ParseSince(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSince(%q): %v", tc.in, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("ParseSince(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestTsTime(t *testing.T) {
	got := tsTime("1700000000.000100")
	want := time.Unix(1700000000, 0).UTC()
	if !got.Equal(want) {
		t.Errorf("tsTime = %v, want %v", got, want)
	}
	if !tsTime("garbage").IsZero() {
		t.Error("expected zero time for malformed timestamp")
	}
}

func fakeAPI(t *testing.T, responses map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Endpoint string `json:"endpoint"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request: %v", err)
			return
		}
		resp, ok := responses[req.Endpoint]
		if !ok {
			json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "unknown_method"})
			return
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestPullChannelStoresAndSkips(t *testing.T) {
	srv := fakeAPI(t, map[string]any{
		"conversations.history": map[string]any{
			"ok": true,
			"messages": []any{
				map[string]any{"type": "message", "ts": "1700000100.000100", "user": "U1", "text": "fresh"},
				map[string]any{"type": "message", "ts": "900.000100", "user": "U1", "text": "ancient"},
			},
		},
	})
	defer srv.Close()

	st := store.New(t.TempDir())
	p := New(bridge.NewClient(srv.URL), st)

	opts := Options{
		Since:   time.Unix(1000, 0).UTC(),
		Limit:   50,
		Channel: "C0000000001",
	}
	res, err := p.Pull(context.Background(), opts)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if res.Fetched != 2 || res.Stored != 1 {
		t.Errorf("result = %+v, want fetched 2 stored 1", res)
	}

	// Second run finds the same message already on disk.
	res, err = p.Pull(context.Background(), opts)
	if err != nil {
		t.Fatalf("second pull: %v", err)
	}
	if res.Stored != 0 || res.Skipped != 1 {
		t.Errorf("second result = %+v, want stored 0 skipped 1", res)
	}
}

func TestPullChannelExpandsThreadRoots(t *testing.T) {
	srv := fakeAPI(t, map[string]any{
		"conversations.history": map[string]any{
			"ok": true,
			"messages": []any{
				map[string]any{
					"type": "message", "ts": "1700000000.000100",
					"thread_ts": "1700000000.000100", "reply_count": 1, "text": "root",
				},
			},
		},
		"conversations.replies": map[string]any{
			"ok": true,
			"messages": []any{
				map[string]any{"type": "message", "ts": "1700000000.000100", "thread_ts": "1700000000.000100", "text": "root"},
				map[string]any{"type": "message", "ts": "1700000050.000200", "thread_ts": "1700000000.000100", "text": "reply"},
			},
		},
	})
	defer srv.Close()

	st := store.New(t.TempDir())
	p := New(bridge.NewClient(srv.URL), st)

	res, err := p.Pull(context.Background(), Options{Limit: 50, Channel: "C0000000001"})
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	// Root stored once (the replies response repeats it), reply stored
	// under its parent.
	if res.Stored != 2 || res.Skipped != 1 {
		t.Errorf("result = %+v, want stored 2 skipped 1", res)
	}
	rec, err := st.Get(store.AddressOf("C0000000001", "1700000050.000200", "1700000000.000100"))
	if err != nil || rec == nil {
		t.Fatalf("reply record missing: %v", err)
	}
}

func TestPullThreadsUsesParentTS(t *testing.T) {
	srv := fakeAPI(t, map[string]any{
		"subscriptions.thread.getView": map[string]any{
			"ok": true,
			"threads": []any{
				map[string]any{"root_msg": map[string]any{
					"channel": "C0000000001", "ts": "1700000000.000100",
				}},
			},
		},
		"conversations.replies": map[string]any{
			"ok": true,
			"messages": []any{
				map[string]any{"type": "message", "ts": "1700000000.000100", "text": "root"},
				map[string]any{"type": "message", "ts": "1700000050.000200", "text": "reply"},
			},
		},
	})
	defer srv.Close()

	st := store.New(t.TempDir())
	p := New(bridge.NewClient(srv.URL), st)

	res, err := p.Pull(context.Background(), Options{Type: TypeThreads, Limit: 10})
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if res.Stored != 2 {
		t.Fatalf("result = %+v, want 2 stored", res)
	}

	// The root is addressed plain; the reply under its parent thread.
	rootAddr := store.AddressOf("C0000000001", "1700000000.000100", "")
	replyAddr := store.AddressOf("C0000000001", "1700000050.000200", "1700000000.000100")
	for _, addr := range []string{rootAddr, replyAddr} {
		rec, err := st.Get(addr)
		if err != nil || rec == nil {
			t.Errorf("missing record %s: %v", addr[:8], err)
		}
	}
}

func TestPullMentionsChannelObject(t *testing.T) {
	srv := fakeAPI(t, map[string]any{
		"search.messages": map[string]any{
			"ok": true,
			"messages": map[string]any{
				"matches": []any{
					map[string]any{
						"type": "message",
						"ts":   "1700000000.000300",
						"text": "hey <@U2>",
						"user": "U1",
						"channel": map[string]any{
							"id": "C0000000002", "name": "general",
						},
					},
				},
			},
		},
	})
	defer srv.Close()

	st := store.New(t.TempDir())
	p := New(bridge.NewClient(srv.URL), st)

	res, err := p.Pull(context.Background(), Options{Type: TypeMentions, Limit: 10})
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if res.Stored != 1 {
		t.Fatalf("result = %+v, want 1 stored", res)
	}
	rec, err := st.Get(store.AddressOf("C0000000002", "1700000000.000300", ""))
	if err != nil || rec == nil {
		t.Fatalf("mention record missing: %v", err)
	}
	if rec.Text != "hey <@U2>" {
		t.Errorf("unexpected text %q", rec.Text)
	}
}

func TestPullUnreadConversations(t *testing.T) {
	srv := fakeAPI(t, map[string]any{
		"users.counts": map[string]any{
			"ok": true,
			"channels": []any{
				map[string]any{"id": "C0000000001", "unread_count_display": 2},
				map[string]any{"id": "C0000000009", "unread_count_display": 0},
			},
		},
		"conversations.history": map[string]any{
			"ok": true,
			"messages": []any{
				map[string]any{"type": "message", "ts": "1700000000.000400", "text": "unread"},
			},
		},
	})
	defer srv.Close()

	st := store.New(t.TempDir())
	p := New(bridge.NewClient(srv.URL), st)

	res, err := p.Pull(context.Background(), Options{Type: TypeChannels, Limit: 10})
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	// Only the channel with unreads gets fetched once.
	if res.Fetched != 1 || res.Stored != 1 {
		t.Errorf("result = %+v, want fetched 1 stored 1", res)
	}
}

func TestNewSchedulerRejectsBadCron(t *testing.T) {
	if _, err := NewScheduler(nil, "not a cron", nil, 10); err == nil {
		t.Error("expected error for invalid cron expression")
	}
	if _, err := NewScheduler(nil, "*/5 * * * *", nil, 10); err != nil {
		t.Errorf("valid cron rejected: %v", err)
	}
}
