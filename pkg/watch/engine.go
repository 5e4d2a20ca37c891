// Package watch matches live message events against configured rules
// and hands matches off to external commands.
//
// Event ingestion is serialized: ProcessMessage filters, deduplicates,
// and scans rules inline, then spawns one detached workflow goroutine
// per match. Workflows never block ingestion and never retry; their
// failures are contained and visible only through counters and logs.
package watch

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mikesmullin/slack/pkg/bus"
	"github.com/mikesmullin/slack/pkg/cache"
	"github.com/mikesmullin/slack/pkg/config"
	"github.com/mikesmullin/slack/pkg/logger"
)

// Collaborators are the external functions the engine depends on.
// Any of them may be nil; the engine degrades instead of failing.
type Collaborators struct {
	// ResolveChannel maps a configured channel name to its ID.
	ResolveChannel func(ctx context.Context, name string) (string, error)
	// PostMessage publishes a reply, threaded under threadTS.
	PostMessage func(ctx context.Context, channel, text, threadTS string) (bool, error)
	// ResolveUser fetches user metadata on cache miss.
	ResolveUser func(ctx context.Context, userID string) (map[string]any, error)
	// FetchContext returns prior messages around the trigger,
	// chronological, excluding the trigger itself.
	FetchContext func(ctx context.Context, channel, ts, threadTS string) ([]map[string]any, error)
}

// Options configures an Engine.
type Options struct {
	Cache         *cache.Cache
	BufferPath    string
	WorkDir       string
	ExecTimeout   time.Duration
	DedupCapacity int
}

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	Processed         uint64 `json:"messages_processed"`
	Matched           uint64 `json:"messages_matched"`
	DuplicatesSkipped uint64 `json:"duplicates_skipped"`
	CommandsExecuted  uint64 `json:"commands_executed"`
	RepliesPosted     uint64 `json:"replies_posted"`
	Errors            uint64 `json:"errors"`
	Running           bool   `json:"running"`
	RulesLoaded       int    `json:"rules_loaded"`
}

type counters struct {
	processed  atomic.Uint64
	matched    atomic.Uint64
	duplicates atomic.Uint64
	executed   atomic.Uint64
	replies    atomic.Uint64
	errors     atomic.Uint64
}

// Engine consumes live message events and runs matching rules.
type Engine struct {
	collab      Collaborators
	cache       *cache.Cache
	dedup       *dedupWindow
	bufferPath  string
	workDir     string
	execTimeout time.Duration
	log         logger.Logger

	rulesMu sync.RWMutex
	rules   []Rule

	nameMu     sync.Mutex
	channelIDs map[string]string

	running atomic.Bool
	stats   counters
}

// NewEngine builds a stopped engine. Call LoadRules then Start.
func NewEngine(opts Options, collab Collaborators) *Engine {
	timeout := opts.ExecTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	c := opts.Cache
	if c == nil {
		c = cache.New("")
	}
	return &Engine{
		collab:      collab,
		cache:       c,
		dedup:       newDedupWindow(opts.DedupCapacity),
		bufferPath:  opts.BufferPath,
		workDir:     opts.WorkDir,
		execTimeout: timeout,
		log:         logger.Component("watch"),
		channelIDs:  map[string]string{},
	}
}

// Start begins dispatching events. Events arriving while stopped are
// ignored, not buffered.
func (e *Engine) Start() {
	e.running.Store(true)
	e.log.Info().Msg("watch engine started")
}

// Stop prevents new events from being dispatched. In-flight workflows
// run to completion.
func (e *Engine) Stop() {
	e.running.Store(false)
	e.log.Info().Msg("watch engine stopped")
}

// IsRunning reports the engine state.
func (e *Engine) IsRunning() bool { return e.running.Load() }

// Stats snapshots the engine counters.
func (e *Engine) Stats() Stats {
	e.rulesMu.RLock()
	loaded := len(e.rules)
	e.rulesMu.RUnlock()

	return Stats{
		Processed:         e.stats.processed.Load(),
		Matched:           e.stats.matched.Load(),
		DuplicatesSkipped: e.stats.duplicates.Load(),
		CommandsExecuted:  e.stats.executed.Load(),
		RepliesPosted:     e.stats.replies.Load(),
		Errors:            e.stats.errors.Load(),
		Running:           e.running.Load(),
		RulesLoaded:       loaded,
	}
}

// LoadRules compiles the configured rules into the active set,
// replacing any previous set. A rule with an unresolvable channel or
// a malformed pattern is dropped individually; the load continues.
// Returns the number of active rules.
func (e *Engine) LoadRules(ctx context.Context, watch map[string][]config.WatchRule) int {
	var rules []Rule

	for channelName, channelRules := range watch {
		channelID, err := e.resolveChannelName(ctx, channelName)
		if err != nil || channelID == "" {
			e.log.Warn().Str("channel", channelName).Err(err).Msg("could not resolve channel, dropping its rules")
			continue
		}

		for _, rc := range channelRules {
			if rc.Shell == "" {
				e.log.Warn().Str("channel", channelName).Msg("rule has no shell command, dropping")
				continue
			}

			patternStr := rc.Pattern
			if patternStr == "" {
				patternStr = ".*"
			}
			if rc.IsCaseInsensitive() {
				patternStr = "(?i)" + patternStr
			}
			pattern, err := regexp.Compile(patternStr)
			if err != nil {
				e.log.Error().Str("pattern", rc.Pattern).Err(err).Msg("invalid rule pattern, dropping")
				continue
			}

			rules = append(rules, Rule{
				Pattern:     pattern,
				Shell:       rc.Shell,
				ChannelID:   channelID,
				ChannelName: channelName,
				Reply:       rc.Reply,
			})
			e.log.Info().
				Str("channel", channelName).
				Str("channel_id", channelID).
				Str("pattern", rc.Pattern).
				Bool("reply", rc.Reply).
				Msg("loaded rule")
		}
	}

	e.rulesMu.Lock()
	e.rules = rules
	e.rulesMu.Unlock()

	e.log.Info().Int("rules", len(rules)).Msg("rules loaded")
	return len(rules)
}

// resolveChannelName maps a configured name to a channel ID: memoized
// result, raw ID passthrough, cache lookup, then the external
// resolver.
func (e *Engine) resolveChannelName(ctx context.Context, name string) (string, error) {
	e.nameMu.Lock()
	if id, ok := e.channelIDs[name]; ok {
		e.nameMu.Unlock()
		return id, nil
	}
	e.nameMu.Unlock()

	var id string
	if looksLikeChannelID(name) {
		id = name
	} else if ch := e.cache.FindChannelByName(name); ch != nil {
		id, _ = ch["id"].(string)
	}

	if id == "" && e.collab.ResolveChannel != nil {
		resolved, err := e.collab.ResolveChannel(ctx, name)
		if err != nil {
			return "", err
		}
		id = resolved
	}

	if id != "" {
		e.nameMu.Lock()
		e.channelIDs[name] = id
		e.nameMu.Unlock()
	}
	return id, nil
}

// ProcessMessage runs one inbound event through the engine. Returns
// true when the event matched a rule and a workflow was dispatched.
func (e *Engine) ProcessMessage(ctx context.Context, ev bus.Event) bool {
	if !e.running.Load() {
		return false
	}

	// Only literal new messages are eligible; edits, deletions, and
	// other subtyped events are rejected outright.
	if ev.Type != "message" || ev.SubType != "" {
		return false
	}

	if e.dedup.Seen(ev.Channel, ev.TS) {
		e.stats.duplicates.Add(1)
		return false
	}
	e.stats.processed.Add(1)

	e.rulesMu.RLock()
	rules := e.rules
	e.rulesMu.RUnlock()

	for _, rule := range rules {
		if rule.ChannelID != ev.Channel {
			continue
		}
		if !rule.Matches(ev.Text) {
			continue
		}

		e.stats.matched.Add(1)
		e.log.Info().
			Str("channel", rule.ChannelName).
			Str("pattern", rule.Pattern.String()).
			Msg("message matched rule")

		// First match wins; the workflow detaches from ingestion.
		go e.runWorkflow(rule, ev)
		return true
	}
	return false
}

// runWorkflow executes the matched rule: context fetch, identifier
// resolution, hand-off write, command execution, optional reply. Every
// failure is terminal for this event and counted, never propagated.
func (e *Engine) runWorkflow(rule Rule, ev bus.Event) {
	ctx := context.Background()
	log := e.log.With().Str("workflow", uuid.NewString()[:8]).Str("channel", ev.Channel).Str("ts", ev.TS).Logger()

	payload := &handoffPayload{
		Type:     "message",
		Channel:  ev.Channel,
		User:     ev.User,
		Text:     ev.Text,
		TS:       ev.TS,
		ThreadTS: ev.ThreadTS,
		Raw:      ev.Raw,
	}

	// Context first, so identifiers inside it get resolved too.
	if e.collab.FetchContext != nil {
		surrounding, err := e.collab.FetchContext(ctx, ev.Channel, ev.TS, ev.ThreadTS)
		if err != nil {
			log.Warn().Err(err).Msg("failed to fetch surrounding context")
		} else {
			payload.SurroundingContext = surrounding
		}
	}

	if ids := extractIDs(payload); len(ids) > 0 {
		if resolutions := e.resolveIDs(ctx, ids); len(resolutions) > 0 {
			payload.Resolutions = resolutions
		}
	}

	if err := writeHandoff(e.bufferPath, payload); err != nil {
		e.stats.errors.Add(1)
		log.Error().Err(err).Msg("failed to write hand-off buffer")
		return
	}

	execCtx, cancel := context.WithTimeout(ctx, e.execTimeout)
	defer cancel()

	log.Info().Str("shell", truncate(rule.Shell, 50)).Msg("executing command")
	stdout, stderr, err := runShell(execCtx, rule.Shell, e.workDir, map[string]string{
		"_BUFFER":    e.bufferPath,
		"_CHANNEL":   ev.Channel,
		"_USER":      ev.User,
		"_TS":        ev.TS,
		"_TEXT":      ev.Text,
		"_THREAD_TS": ev.ThreadTS,
	})
	if err != nil {
		e.stats.errors.Add(1)
		log.Error().Err(err).Str("stderr", truncate(stderr, 500)).Msg("command failed")
		return
	}
	e.stats.executed.Add(1)

	if !rule.Reply || e.collab.PostMessage == nil {
		return
	}

	output := strings.TrimSpace(stdout)
	if s := strings.TrimSpace(stderr); s != "" {
		output = strings.TrimSpace(output + "\n" + s)
	}
	if output == "" {
		log.Debug().Msg("command produced no output, skipping reply")
		return
	}

	// Reply in the trigger's thread, or root a new thread at it.
	replyThreadTS := ev.ThreadTS
	if replyThreadTS == "" {
		replyThreadTS = ev.TS
	}

	ok, err := e.collab.PostMessage(ctx, ev.Channel, output, replyThreadTS)
	if err != nil || !ok {
		e.stats.errors.Add(1)
		log.Error().Err(err).Msg("failed to post reply")
		return
	}
	e.stats.replies.Add(1)
	log.Info().Str("thread_ts", replyThreadTS).Msg("posted reply")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
