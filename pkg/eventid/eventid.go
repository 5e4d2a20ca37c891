// Package eventid encodes and decodes event references, the compact
// textual form channel:timestamp or channel:timestamp@thread used to
// address a message without going through the storage layer.
package eventid

import "strings"

// Format renders an event reference. With an empty timestamp the
// result is just the channel ID.
func Format(channel, ts, threadTS string) string {
	if ts == "" {
		return channel
	}
	ref := channel + ":" + ts
	if threadTS != "" {
		ref += "@" + threadTS
	}
	return ref
}

// Parse splits an event reference into its components. It is the
// exact inverse of Format for every field combination.
func Parse(ref string) (channel, ts, threadTS string) {
	channel, rest, ok := strings.Cut(ref, ":")
	if !ok {
		return ref, "", ""
	}
	ts, threadTS, _ = strings.Cut(rest, "@")
	return channel, ts, threadTS
}
