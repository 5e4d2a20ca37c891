package store

import (
	"crypto/sha1"
	"encoding/hex"
)

// AddressOf derives the content address for a message identity triple:
// the sha1 hex digest of "channel:timestamp", or
// "channel:timestamp@thread" when the message lives in a thread.
// The digest is stable across runs and doubles as the storage filename,
// abbreviable git-style via FindByPrefix.
func AddressOf(channel, ts, threadTS string) string {
	key := channel + ":" + ts
	if threadTS != "" {
		key += "@" + threadTS
	}
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}
