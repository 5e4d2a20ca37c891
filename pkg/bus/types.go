package bus

import (
	"encoding/json"

	"github.com/slack-go/slack"
)

// Event is one live message event from the platform stream. Raw keeps
// the full decoded frame so downstream consumers (the watch engine's
// hand-off buffer) can pass everything through.
type Event struct {
	Type     string         `json:"type"`
	SubType  string         `json:"subtype,omitempty"`
	Channel  string         `json:"channel"`
	User     string         `json:"user"`
	Text     string         `json:"text"`
	TS       string         `json:"ts"`
	ThreadTS string         `json:"thread_ts,omitempty"`
	Raw      map[string]any `json:"raw,omitempty"`
}

// ParseEvent decodes a wire frame into an Event. The typed fields come
// from the platform message shape; the full frame is retained in Raw.
func ParseEvent(data []byte) (Event, error) {
	var msg slack.Msg
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, err
	}

	return Event{
		Type:     msg.Type,
		SubType:  msg.SubType,
		Channel:  msg.Channel,
		User:     msg.User,
		Text:     msg.Text,
		TS:       msg.Timestamp,
		ThreadTS: msg.ThreadTimestamp,
		Raw:      raw,
	}, nil
}
