package watch

import "regexp"

// channelIDPattern recognizes raw channel/DM/group identifiers so
// they bypass name resolution.
var channelIDPattern = regexp.MustCompile(`^[CDG][A-Z0-9]{8,}$`)

// Rule is a compiled, resolved watch rule. Rules whose channel could
// not be resolved or whose pattern failed to compile never make it
// into the active set.
type Rule struct {
	Pattern     *regexp.Regexp
	Shell       string
	ChannelID   string
	ChannelName string
	Reply       bool
}

// Matches reports whether the rule's pattern matches anywhere in text.
func (r Rule) Matches(text string) bool {
	return r.Pattern.MatchString(text)
}
