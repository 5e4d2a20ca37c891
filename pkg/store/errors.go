package store

import (
	"fmt"
	"strings"
)

// maxAmbiguousCandidates caps how many matching addresses an
// AmbiguousIDError reports before truncating.
const maxAmbiguousCandidates = 5

// AmbiguousIDError is returned when a partial address matches more
// than one stored record. Callers must surface the candidates rather
// than picking one.
type AmbiguousIDError struct {
	Prefix     string
	Candidates []string
	Truncated  bool
}

func (e *AmbiguousIDError) Error() string {
	list := strings.Join(e.Candidates, ", ")
	if e.Truncated {
		list += "..."
	}
	return fmt.Sprintf("ambiguous ID %q matches: %s", e.Prefix, list)
}
