package eventid

import "testing"

func TestFormat(t *testing.T) {
	tests := []struct {
		channel, ts, threadTS string
		want                  string
	}{
		{"C0123456789", "", "", "C0123456789"},
		{"C0123456789", "1700000000.000100", "", "C0123456789:1700000000.000100"},
		{"C0123456789", "1700000000.000200", "1700000000.000100", "C0123456789:1700000000.000200@1700000000.000100"},
	}

	for _, tt := range tests {
		got := Format(tt.channel, tt.ts, tt.threadTS)
		if got != tt.want {
			t.Errorf("Format(%q, %q, %q) = %q, want %q", tt.channel, tt.ts, tt.threadTS, got, tt.want)
		}
	}
}

func TestParseRoundtrip(t *testing.T) {
	tests := []struct {
		channel, ts, threadTS string
	}{
		{"C0123456789", "", ""},
		{"C0123456789", "1700000000.000100", ""},
		{"C0123456789", "1700000000.000200", "1700000000.000100"},
	}

	for _, tt := range tests {
		ref := Format(tt.channel, tt.ts, tt.threadTS)
		channel, ts, threadTS := Parse(ref)
		if channel != tt.channel || ts != tt.ts || threadTS != tt.threadTS {
			t.Errorf("Parse(%q) = (%q, %q, %q), want (%q, %q, %q)",
				ref, channel, ts, threadTS, tt.channel, tt.ts, tt.threadTS)
		}
	}
}

func TestParseBareChannel(t *testing.T) {
	channel, ts, threadTS := Parse("D024BE91L")
	if channel != "D024BE91L" || ts != "" || threadTS != "" {
		t.Errorf("expected bare channel, got (%q, %q, %q)", channel, ts, threadTS)
	}
}
