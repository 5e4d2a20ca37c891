// Package migrate moves legacy flat read tracking into per-record
// read state. Earlier versions recorded reads only as event references
// in read_events.yaml; current records carry their own offline block.
package migrate

import (
	"fmt"

	"github.com/mikesmullin/slack/pkg/eventid"
	"github.com/mikesmullin/slack/pkg/store"
)

type Options struct {
	StorageDir string
	DryRun     bool
}

type Result struct {
	Scanned     int
	Marked      int
	AlreadyRead int
	TrackedRefs int
}

// Run stamps offline read state onto every stored record whose event
// reference (or a thread variant of it) appears in the legacy tracking
// file. The tracking file itself is left in place; it still answers
// for records that were pruned from storage.
func Run(opts Options) (*Result, error) {
	st := store.New(opts.StorageDir)

	tracked := st.LoadReadEvents()
	res := &Result{TrackedRefs: len(tracked)}
	if len(tracked) == 0 {
		return res, nil
	}

	messages, err := st.List()
	if err != nil {
		return nil, err
	}

	for _, m := range messages {
		res.Scanned++
		if m.Record.IsRead() {
			res.AlreadyRead++
			continue
		}
		ref := eventid.Format(m.Record.ChannelID, m.Record.Timestamp, m.Record.ThreadTS)
		if !st.IsEventRead(ref) {
			continue
		}
		if !opts.DryRun {
			if _, err := st.SetRead(m.Addr, true); err != nil {
				return nil, fmt.Errorf("mark %s: %w", m.Addr[:8], err)
			}
		}
		res.Marked++
	}
	return res, nil
}

func PrintSummary(res *Result) {
	fmt.Printf("Read-state migration complete:\n")
	fmt.Printf("  tracked refs:  %d\n", res.TrackedRefs)
	fmt.Printf("  scanned:       %d\n", res.Scanned)
	fmt.Printf("  marked read:   %d\n", res.Marked)
	fmt.Printf("  already read:  %d\n", res.AlreadyRead)
}
