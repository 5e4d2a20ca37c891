// Package pull fetches recent Slack history through the bridge and
// files each message into the local store.
package pull

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/mikesmullin/slack/pkg/bridge"
	"github.com/mikesmullin/slack/pkg/logger"
	"github.com/mikesmullin/slack/pkg/store"
)

// Type filters for Pull. TypeAll fetches every category.
const (
	TypeAll      = "all"
	TypeChannels = "channels"
	TypeDMs      = "dms"
	TypeThreads  = "threads"
	TypeMentions = "mentions"
)

var (
	daysAgoPattern = regexp.MustCompile(`^(\d+)\s+days?\s+ago$`)
	isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// ParseSince turns a human date cutoff into midnight UTC of that day.
// Accepted forms: YYYY-MM-DD, "yesterday", "N days ago".
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	now = now.UTC()

	if s == "yesterday" {
		return midnight(now.AddDate(0, 0, -1)), nil
	}
	if m := daysAgoPattern.FindStringSubmatch(s); m != nil {
		days, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
		}
		return midnight(now.AddDate(0, 0, -days)), nil
	}
	if isoDatePattern.MatchString(s) {
		t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD, yesterday, or 'N days ago'", s)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// tsTime converts a Slack timestamp ("1727000000.000100") to UTC time.
// Malformed timestamps sort before any real cutoff.
func tsTime(ts string) time.Time {
	sec, _, _ := strings.Cut(ts, ".")
	unix, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}

// Options controls a single Pull run.
type Options struct {
	Since   time.Time
	Limit   int    // max items per category
	Type    string // one of the Type* constants; empty means all
	Channel string // when set, pull only this channel ID
}

// Result reports what a Pull run did. Errors collects per-category
// failures without aborting the run.
type Result struct {
	Fetched int      `json:"fetched"`
	Stored  int      `json:"stored"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// Puller drives history ingestion: bridge for the API, store for
// persistence.
type Puller struct {
	client *bridge.Client
	store  *store.Store
	log    logger.Logger
}

func New(client *bridge.Client, st *store.Store) *Puller {
	return &Puller{
		client: client,
		store:  st,
		log:    logger.Component("pull"),
	}
}

// Pull fetches messages per opts and stores anything at or after the
// cutoff. Existing records are left alone and counted as skipped.
func (p *Puller) Pull(ctx context.Context, opts Options) (*Result, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	res := &Result{}

	if opts.Channel != "" {
		p.pullChannel(ctx, opts.Channel, opts.Since, opts.Limit, res)
		return res, nil
	}

	all := opts.Type == "" || opts.Type == TypeAll
	if all || opts.Type == TypeChannels {
		p.pullUnreadConversations(ctx, opts.Since, opts.Limit, res, false)
	}
	if all || opts.Type == TypeDMs {
		p.pullUnreadConversations(ctx, opts.Since, opts.Limit, res, true)
	}
	if all || opts.Type == TypeThreads {
		p.pullThreads(ctx, opts.Since, opts.Limit, res)
	}
	if all || opts.Type == TypeMentions {
		p.pullMentions(ctx, opts.Since, opts.Limit, res)
	}
	return res, nil
}

type historyResponse struct {
	Messages []json.RawMessage `json:"messages"`
}

// pullChannel fetches one channel's recent history and files every
// message at or after the cutoff. Thread roots with replies get their
// replies pulled too.
func (p *Puller) pullChannel(ctx context.Context, channelID string, since time.Time, limit int, res *Result) {
	data, err := p.client.Call(ctx, "conversations.history", map[string]any{
		"channel": channelID,
		"limit":   min(limit, 100),
	})
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("history %s: %v", channelID, err))
		return
	}
	var hist historyResponse
	if err := json.Unmarshal(data, &hist); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("history %s: %v", channelID, err))
		return
	}
	for _, raw := range hist.Messages {
		msg := p.storeRaw(channelID, "", raw, since, res)
		if msg == nil || msg.ReplyCount == 0 || msg.ThreadTimestamp != msg.Timestamp {
			continue
		}
		p.pullReplies(ctx, channelID, msg.Timestamp, since, limit, res)
	}
}

// pullReplies files the replies under one thread root.
func (p *Puller) pullReplies(ctx context.Context, channelID, threadTS string, since time.Time, limit int, res *Result) {
	data, err := p.client.Call(ctx, "conversations.replies", map[string]any{
		"channel": channelID,
		"ts":      threadTS,
		"limit":   min(limit, 100),
	})
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("replies %s:%s: %v", channelID, threadTS, err))
		return
	}
	var hist historyResponse
	if err := json.Unmarshal(data, &hist); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("replies %s:%s: %v", channelID, threadTS, err))
		return
	}
	for _, raw := range hist.Messages {
		p.storeRaw(channelID, threadTS, raw, since, res)
	}
}

// storeRaw decodes one message frame and writes it through the store,
// returning the decoded message. forceThreadTS overrides the
// message's own thread_ts (used for thread replies, where the parent
// ts is known from the request).
func (p *Puller) storeRaw(channelID, forceThreadTS string, raw json.RawMessage, since time.Time, res *Result) *slack.Msg {
	res.Fetched++

	var msg slack.Msg
	if err := json.Unmarshal(raw, &msg); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("decode message in %s: %v", channelID, err))
		return nil
	}
	if msg.Timestamp == "" || tsTime(msg.Timestamp).Before(since) {
		return nil
	}

	threadTS := forceThreadTS
	if threadTS == "" {
		threadTS = msg.ThreadTimestamp
	}
	// A thread root carries its own ts as thread_ts; store it plain.
	if threadTS == msg.Timestamp {
		threadTS = ""
	}

	addr, written, err := p.store.Put(channelID, msg.Timestamp, threadTS, msg, false)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("store %s:%s: %v", channelID, msg.Timestamp, err))
		return nil
	}
	if written {
		res.Stored++
		p.log.Debug().Str("id", addr[:8]).Str("channel", channelID).Msg("stored message")
	} else {
		res.Skipped++
	}
	return &msg
}

type countEntry struct {
	ID                 string `json:"id"`
	UnreadCountDisplay int    `json:"unread_count_display"`
	HasUnreads         bool   `json:"has_unreads"`
	DMCount            int    `json:"dm_count"`
}

func (e countEntry) unread(dm bool) bool {
	if dm {
		return e.DMCount > 0 || e.HasUnreads
	}
	return e.UnreadCountDisplay > 0 || e.HasUnreads
}

type countsResponse struct {
	Channels []countEntry `json:"channels"`
	Groups   []countEntry `json:"groups"`
	IMs      []countEntry `json:"ims"`
}

// pullUnreadConversations finds conversations with unreads via the
// counts API and pulls each one's recent history. The enterprise
// variant of the endpoint is tried when the plain one fails.
func (p *Puller) pullUnreadConversations(ctx context.Context, since time.Time, limit int, res *Result, dms bool) {
	data, err := p.client.Call(ctx, "users.counts", nil)
	if err != nil {
		data, err = p.client.Call(ctx, "client.counts", nil)
	}
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("counts: %v", err))
		return
	}
	var counts countsResponse
	if err := json.Unmarshal(data, &counts); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("counts: %v", err))
		return
	}

	var entries []countEntry
	if dms {
		entries = counts.IMs
	} else {
		entries = append(counts.Channels, counts.Groups...)
	}

	pulled := 0
	for _, e := range entries {
		if pulled >= limit {
			break
		}
		if e.ID == "" || !e.unread(dms) {
			continue
		}
		p.pullChannel(ctx, e.ID, since, limit, res)
		pulled++
	}
}

type threadsResponse struct {
	Threads []struct {
		RootMsg struct {
			Channel  string `json:"channel"`
			TS       string `json:"ts"`
			ThreadTS string `json:"thread_ts"`
		} `json:"root_msg"`
	} `json:"threads"`
}

// pullThreads fetches replies for every subscribed thread.
func (p *Puller) pullThreads(ctx context.Context, since time.Time, limit int, res *Result) {
	data, err := p.client.Call(ctx, "subscriptions.thread.getView", nil)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("threads: %v", err))
		return
	}
	var view threadsResponse
	if err := json.Unmarshal(data, &view); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("threads: %v", err))
		return
	}

	pulled := 0
	for _, t := range view.Threads {
		if pulled >= limit {
			break
		}
		channelID := t.RootMsg.Channel
		threadTS := t.RootMsg.ThreadTS
		if threadTS == "" {
			threadTS = t.RootMsg.TS
		}
		if channelID == "" || threadTS == "" {
			continue
		}
		pulled++

		replies, err := p.client.Call(ctx, "conversations.replies", map[string]any{
			"channel": channelID,
			"ts":      threadTS,
			"limit":   min(limit, 100),
		})
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("thread %s:%s: %v", channelID, threadTS, err))
			continue
		}
		var hist historyResponse
		if err := json.Unmarshal(replies, &hist); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("thread %s:%s: %v", channelID, threadTS, err))
			continue
		}
		for _, raw := range hist.Messages {
			p.storeRaw(channelID, threadTS, raw, since, res)
		}
	}
}

// searchMatch covers search.messages results, where channel may be an
// object rather than a bare ID.
type searchMatch struct {
	Type      string          `json:"type"`
	User      string          `json:"user"`
	Text      string          `json:"text"`
	TS        string          `json:"ts"`
	ThreadTS  string          `json:"thread_ts"`
	Permalink string          `json:"permalink"`
	Channel   json.RawMessage `json:"channel"`
}

func (m searchMatch) channelID() string {
	var id string
	if json.Unmarshal(m.Channel, &id) == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(m.Channel, &obj) == nil {
		return obj.ID
	}
	return ""
}

// pullMentions searches for messages addressed to the authed user.
func (p *Puller) pullMentions(ctx context.Context, since time.Time, limit int, res *Result) {
	data, err := p.client.Call(ctx, "search.messages", map[string]any{
		"query": "to:me",
		"sort":  "timestamp",
		"count": limit,
	})
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("mentions: %v", err))
		return
	}
	var search struct {
		Messages struct {
			Matches []searchMatch `json:"matches"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(data, &search); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("mentions: %v", err))
		return
	}

	for _, match := range search.Messages.Matches {
		res.Fetched++
		channelID := match.channelID()
		if channelID == "" || match.TS == "" {
			continue
		}
		if tsTime(match.TS).Before(since) {
			continue
		}

		threadTS := match.ThreadTS
		if threadTS == match.TS {
			threadTS = ""
		}
		msg := slack.Msg{
			Type:            match.Type,
			User:            match.User,
			Text:            match.Text,
			Timestamp:       match.TS,
			ThreadTimestamp: threadTS,
			Permalink:       match.Permalink,
		}
		addr, written, err := p.store.Put(channelID, match.TS, threadTS, msg, false)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("store mention %s:%s: %v", channelID, match.TS, err))
			continue
		}
		if written {
			res.Stored++
			p.log.Debug().Str("id", addr[:8]).Str("channel", channelID).Msg("stored mention")
		} else {
			res.Skipped++
		}
	}
}
