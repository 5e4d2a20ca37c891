package watch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mikesmullin/slack/pkg/bus"
	"github.com/mikesmullin/slack/pkg/cache"
	"github.com/mikesmullin/slack/pkg/config"
)

// postRecorder captures PostMessage calls from workflows.
type postRecorder struct {
	mu    sync.Mutex
	calls []postCall
}

type postCall struct {
	channel, text, threadTS string
}

func (p *postRecorder) post(_ context.Context, channel, text, threadTS string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, postCall{channel, text, threadTS})
	return true, nil
}

func (p *postRecorder) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *postRecorder) last() postCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[len(p.calls)-1]
}

func testEngine(t *testing.T, collab Collaborators) *Engine {
	t.Helper()
	dir := t.TempDir()
	return NewEngine(Options{
		Cache:       cache.New(filepath.Join(dir, "_cache")),
		BufferPath:  filepath.Join(dir, "buffer.json"),
		WorkDir:     dir,
		ExecTimeout: 30 * time.Second,
	}, collab)
}

func loadSingleRule(t *testing.T, e *Engine, channel, pattern, shell string, reply bool) {
	t.Helper()
	n := e.LoadRules(context.Background(), map[string][]config.WatchRule{
		channel: {{Pattern: pattern, Shell: shell, Reply: reply}},
	})
	if n != 1 {
		t.Fatalf("expected 1 rule loaded, got %d", n)
	}
}

// waitFor polls until cond is true or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestProcessMessageMatching(t *testing.T) {
	e := testEngine(t, Collaborators{})
	loadSingleRule(t, e, "C0000000001", "deploy", "true", false)
	e.Start()

	tests := []struct {
		name string
		ev   bus.Event
		want bool
	}{
		{"matching channel and text", bus.Event{Type: "message", Channel: "C0000000001", TS: "1.0", Text: "deploy now"}, true},
		{"wrong channel", bus.Event{Type: "message", Channel: "C0000000002", TS: "2.0", Text: "deploy now"}, false},
		{"no pattern match", bus.Event{Type: "message", Channel: "C0000000001", TS: "3.0", Text: "nothing here"}, false},
		{"subtyped event", bus.Event{Type: "message", SubType: "message_changed", Channel: "C0000000001", TS: "4.0", Text: "deploy now"}, false},
		{"non-message type", bus.Event{Type: "reaction_added", Channel: "C0000000001", TS: "5.0", Text: "deploy now"}, false},
	}

	for _, tt := range tests {
		if got := e.ProcessMessage(context.Background(), tt.ev); got != tt.want {
			t.Errorf("%s: ProcessMessage = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestProcessMessageCaseInsensitiveByDefault(t *testing.T) {
	e := testEngine(t, Collaborators{})
	loadSingleRule(t, e, "C0000000001", "DEPLOY", "true", false)
	e.Start()

	ev := bus.Event{Type: "message", Channel: "C0000000001", TS: "1.0", Text: "deploy now"}
	if !e.ProcessMessage(context.Background(), ev) {
		t.Error("expected case-insensitive match by default")
	}
}

func TestProcessMessageWhileStopped(t *testing.T) {
	e := testEngine(t, Collaborators{})
	loadSingleRule(t, e, "C0000000001", "deploy", "true", false)

	ev := bus.Event{Type: "message", Channel: "C0000000001", TS: "1.0", Text: "deploy now"}
	if e.ProcessMessage(context.Background(), ev) {
		t.Error("stopped engine must ignore events")
	}
	if got := e.Stats().Processed; got != 0 {
		t.Errorf("stopped engine must not count events, processed = %d", got)
	}
}

func TestProcessMessageDeduplicates(t *testing.T) {
	e := testEngine(t, Collaborators{})
	loadSingleRule(t, e, "C0000000001", "deploy", "true", false)
	e.Start()

	ev := bus.Event{Type: "message", Channel: "C0000000001", TS: "1.0", Text: "deploy now"}
	if !e.ProcessMessage(context.Background(), ev) {
		t.Fatal("first delivery should match")
	}
	if e.ProcessMessage(context.Background(), ev) {
		t.Error("duplicate delivery must short-circuit")
	}

	stats := e.Stats()
	if stats.DuplicatesSkipped != 1 {
		t.Errorf("duplicates_skipped = %d, want 1", stats.DuplicatesSkipped)
	}
	if stats.Matched != 1 {
		t.Errorf("matched = %d, want 1", stats.Matched)
	}
}

func TestFirstMatchWins(t *testing.T) {
	e := testEngine(t, Collaborators{})
	n := e.LoadRules(context.Background(), map[string][]config.WatchRule{
		"C0000000001": {
			{Pattern: "deploy", Shell: "echo first"},
			{Pattern: "deploy", Shell: "echo second"},
		},
	})
	if n != 2 {
		t.Fatalf("expected 2 rules, got %d", n)
	}
	e.Start()

	ev := bus.Event{Type: "message", Channel: "C0000000001", TS: "1.0", Text: "deploy"}
	e.ProcessMessage(context.Background(), ev)
	waitFor(t, func() bool { return e.Stats().CommandsExecuted == 1 })

	if got := e.Stats().Matched; got != 1 {
		t.Errorf("matched = %d, want 1 (first match only)", got)
	}
}

func TestLoadRulesDropsBadRules(t *testing.T) {
	resolver := func(_ context.Context, name string) (string, error) {
		if name == "good" {
			return "C0000000009", nil
		}
		return "", nil
	}
	e := testEngine(t, Collaborators{ResolveChannel: resolver})

	n := e.LoadRules(context.Background(), map[string][]config.WatchRule{
		"good": {
			{Pattern: "ok", Shell: "true"},
			{Pattern: "([", Shell: "true"}, // malformed pattern
			{Pattern: "ok", Shell: ""},     // no command
		},
		"unresolvable": {
			{Pattern: "ok", Shell: "true"},
		},
	})
	if n != 1 {
		t.Errorf("expected only the valid rule to survive, got %d", n)
	}
}

func TestLoadRulesChannelIDPassthrough(t *testing.T) {
	e := testEngine(t, Collaborators{})
	loadSingleRule(t, e, "C0123456789", "x", "true", false)

	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	if e.rules[0].ChannelID != "C0123456789" {
		t.Errorf("raw channel ID should pass through, got %q", e.rules[0].ChannelID)
	}
}

func TestReplySuppressedOnEmptyOutput(t *testing.T) {
	posts := &postRecorder{}
	e := testEngine(t, Collaborators{PostMessage: posts.post})
	loadSingleRule(t, e, "C0000000001", "ping", "true", true) // `true` prints nothing
	e.Start()

	ev := bus.Event{Type: "message", Channel: "C0000000001", TS: "1.0", Text: "ping"}
	e.ProcessMessage(context.Background(), ev)
	waitFor(t, func() bool { return e.Stats().CommandsExecuted == 1 })

	if posts.count() != 0 {
		t.Errorf("empty output must suppress the reply, got %d posts", posts.count())
	}
	if got := e.Stats().RepliesPosted; got != 0 {
		t.Errorf("replies_posted = %d, want 0", got)
	}
}

func TestFailedCommandCountsError(t *testing.T) {
	posts := &postRecorder{}
	e := testEngine(t, Collaborators{PostMessage: posts.post})
	loadSingleRule(t, e, "C0000000001", "ping", "exit 3", true)
	e.Start()

	ev := bus.Event{Type: "message", Channel: "C0000000001", TS: "1.0", Text: "ping"}
	e.ProcessMessage(context.Background(), ev)
	waitFor(t, func() bool { return e.Stats().Errors == 1 })

	if posts.count() != 0 {
		t.Error("failed command must not post a reply")
	}
	if got := e.Stats().CommandsExecuted; got != 0 {
		t.Errorf("commands_executed = %d, want 0", got)
	}
}

func TestEndToEndReply(t *testing.T) {
	posts := &postRecorder{}
	fetchContext := func(_ context.Context, channel, ts, threadTS string) ([]map[string]any, error) {
		return []map[string]any{
			{"ts": "0.5", "user": "U0000000042", "text": "earlier message"},
		}, nil
	}

	e := testEngine(t, Collaborators{PostMessage: posts.post, FetchContext: fetchContext})
	loadSingleRule(t, e, "C0000000001", "ping", "echo pong", true)
	e.Start()

	ev := bus.Event{Type: "message", Channel: "C0000000001", User: "U0000000001", TS: "1.0", Text: "ping"}
	if !e.ProcessMessage(context.Background(), ev) {
		t.Fatal("event should match")
	}
	waitFor(t, func() bool { return e.Stats().RepliesPosted == 1 })

	call := posts.last()
	if call.channel != "C0000000001" || call.text != "pong" || call.threadTS != "1.0" {
		t.Errorf("unexpected reply: %+v", call)
	}

	// The hand-off buffer was written atomically and carries the
	// trigger plus its surrounding context.
	data, err := os.ReadFile(e.bufferPath)
	if err != nil {
		t.Fatalf("read buffer: %v", err)
	}
	var payload handoffPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("parse buffer: %v", err)
	}
	if payload.Channel != "C0000000001" || payload.TS != "1.0" || payload.Text != "ping" {
		t.Errorf("unexpected buffer payload: %+v", payload)
	}
	if len(payload.SurroundingContext) != 1 {
		t.Errorf("expected surrounding context in buffer, got %+v", payload.SurroundingContext)
	}
}

func TestReplyTargetsExistingThread(t *testing.T) {
	posts := &postRecorder{}
	e := testEngine(t, Collaborators{PostMessage: posts.post})
	loadSingleRule(t, e, "C0000000001", "ping", "echo pong", true)
	e.Start()

	ev := bus.Event{Type: "message", Channel: "C0000000001", TS: "2.0", ThreadTS: "1.0", Text: "ping"}
	e.ProcessMessage(context.Background(), ev)
	waitFor(t, func() bool { return posts.count() == 1 })

	if call := posts.last(); call.threadTS != "1.0" {
		t.Errorf("thread reply must target the thread root, got %q", call.threadTS)
	}
}

func TestCommandEnvironment(t *testing.T) {
	posts := &postRecorder{}
	e := testEngine(t, Collaborators{PostMessage: posts.post})
	loadSingleRule(t, e, "C0000000001", "ping", `echo "$_CHANNEL $_TS $_TEXT"`, true)
	e.Start()

	ev := bus.Event{Type: "message", Channel: "C0000000001", TS: "1.0", Text: "ping"}
	e.ProcessMessage(context.Background(), ev)
	waitFor(t, func() bool { return posts.count() == 1 })

	if call := posts.last(); call.text != "C0000000001 1.0 ping" {
		t.Errorf("env vars not exposed to command: %q", call.text)
	}
}
