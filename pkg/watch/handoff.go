package watch

import (
	"encoding/json"
	"os"
)

// handoffPayload is the document written to the hand-off buffer for
// the external command: the triggering message, its surrounding
// context, and the identifier resolution map.
type handoffPayload struct {
	Type               string                    `json:"type"`
	Channel            string                    `json:"channel"`
	User               string                    `json:"user"`
	Text               string                    `json:"text"`
	TS                 string                    `json:"ts"`
	ThreadTS           string                    `json:"thread_ts,omitempty"`
	Raw                map[string]any            `json:"raw,omitempty"`
	SurroundingContext []map[string]any          `json:"surrounding_context,omitempty"`
	Resolutions        map[string]map[string]any `json:"resolutions,omitempty"`
}

// writeHandoff writes the payload to path via temp-file-then-rename
// so the consuming command never reads a partial document.
func writeHandoff(path string, payload *handoffPayload) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
