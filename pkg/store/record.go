package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"gopkg.in/yaml.v3"
)

// Record is the persisted form of a single message. It is written as
// YAML frontmatter followed by a rendered Markdown body in one .md
// file named after the content address.
type Record struct {
	ChannelID       string       `yaml:"channel_id"`
	Timestamp       string       `yaml:"timestamp"`
	ThreadTS        string       `yaml:"thread_ts,omitempty"`
	UserID          string       `yaml:"user_id"`
	Type            string       `yaml:"type"`
	Text            string       `yaml:"text"`
	Permalink       string       `yaml:"permalink"`
	Reactions       []Reaction   `yaml:"reactions"`
	Attachments     []Attachment `yaml:"attachments"`
	Files           []File       `yaml:"files"`
	ReplyCount      int          `yaml:"reply_count,omitempty"`
	ReplyUsersCount int          `yaml:"reply_users_count,omitempty"`
	LatestReply     string       `yaml:"latest_reply,omitempty"`
	SubType         string       `yaml:"subtype,omitempty"`
	StoredID        string       `yaml:"_stored_id"`
	StoredAt        time.Time    `yaml:"_stored_at"`
	Offline         Offline      `yaml:"offline"`

	// Body is the rendered Markdown section below the frontmatter.
	// It is regenerated on write and kept out of the YAML block.
	Body string `yaml:"-"`
}

// Offline tracks local read state, independent of anything the
// platform knows about.
type Offline struct {
	Read   bool       `yaml:"read"`
	ReadAt *time.Time `yaml:"read_at,omitempty"`
}

// Reaction is an emoji reaction attached to a message.
type Reaction struct {
	Name  string   `yaml:"name"`
	Count int      `yaml:"count"`
	Users []string `yaml:"users,omitempty"`
}

// Attachment is a legacy-style message attachment.
type Attachment struct {
	Title    string `yaml:"title,omitempty"`
	Fallback string `yaml:"fallback,omitempty"`
	ImageURL string `yaml:"image_url,omitempty"`
	ThumbURL string `yaml:"thumb_url,omitempty"`
	FromURL  string `yaml:"from_url,omitempty"`
}

// File is an uploaded file referenced by a message.
type File struct {
	Name       string `yaml:"name,omitempty"`
	Title      string `yaml:"title,omitempty"`
	Mimetype   string `yaml:"mimetype,omitempty"`
	URLPrivate string `yaml:"url_private,omitempty"`
	Permalink  string `yaml:"permalink,omitempty"`
}

// NewRecord builds a Record from a platform message. The identity
// triple comes from the caller, not the message, because history and
// reply payloads do not always carry their own channel.
func NewRecord(channel, ts, threadTS string, msg slack.Msg) *Record {
	msgType := msg.Type
	if msgType == "" {
		msgType = "message"
	}

	rec := &Record{
		ChannelID:       channel,
		Timestamp:       ts,
		ThreadTS:        threadTS,
		UserID:          msg.User,
		Type:            msgType,
		Text:            msg.Text,
		Permalink:       msg.Permalink,
		ReplyCount:      msg.ReplyCount,
		ReplyUsersCount: len(msg.ReplyUsers),
		LatestReply:     msg.LatestReply,
		SubType:         msg.SubType,
		StoredID:        AddressOf(channel, ts, threadTS),
		StoredAt:        time.Now().UTC(),
		Reactions:       make([]Reaction, 0, len(msg.Reactions)),
		Attachments:     make([]Attachment, 0, len(msg.Attachments)),
		Files:           make([]File, 0, len(msg.Files)),
	}

	for _, r := range msg.Reactions {
		rec.Reactions = append(rec.Reactions, Reaction{Name: r.Name, Count: r.Count, Users: r.Users})
	}
	for _, a := range msg.Attachments {
		rec.Attachments = append(rec.Attachments, Attachment{
			Title:    a.Title,
			Fallback: a.Fallback,
			ImageURL: a.ImageURL,
			ThumbURL: a.ThumbURL,
			FromURL:  a.FromURL,
		})
	}
	for _, f := range msg.Files {
		rec.Files = append(rec.Files, File{
			Name:       f.Name,
			Title:      f.Title,
			Mimetype:   f.Mimetype,
			URLPrivate: f.URLPrivate,
			Permalink:  f.Permalink,
		})
	}

	return rec
}

// IsRead reports the local read state.
func (r *Record) IsRead() bool {
	return r != nil && r.Offline.Read
}

// Encode renders the full file content: frontmatter, separator, body.
func (r *Record) Encode() ([]byte, error) {
	front, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal frontmatter: %w", err)
	}

	body := r.Body
	if body == "" {
		body = r.renderBody()
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(front)
	b.WriteString("---\n\n")
	b.WriteString(body)
	b.WriteString("\n")
	return []byte(b.String()), nil
}

// DecodeRecord parses a stored .md file back into a Record. Content
// without a parseable frontmatter block is a corrupt record.
func DecodeRecord(content []byte) (*Record, error) {
	s := string(content)
	if !strings.HasPrefix(s, "---\n") {
		return nil, fmt.Errorf("missing frontmatter delimiter")
	}
	end := strings.Index(s[4:], "\n---")
	if end < 0 {
		return nil, fmt.Errorf("unterminated frontmatter block")
	}

	var rec Record
	if err := yaml.Unmarshal([]byte(s[4:4+end]), &rec); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	rec.Body = strings.TrimSpace(s[4+end+4:])
	return &rec, nil
}

// renderBody builds the human-readable Markdown section for a record.
func (r *Record) renderBody() string {
	var lines []string

	if r.ThreadTS != "" {
		lines = append(lines, fmt.Sprintf("# Thread Reply in %s", r.ChannelID))
	} else {
		lines = append(lines, fmt.Sprintf("# Message in %s", r.ChannelID))
	}
	lines = append(lines, "")

	lines = append(lines, fmt.Sprintf("**From:** %s", r.UserID))
	lines = append(lines, fmt.Sprintf("**Channel:** %s", r.ChannelID))
	lines = append(lines, fmt.Sprintf("**Timestamp:** %s", r.Timestamp))
	if r.ThreadTS != "" {
		lines = append(lines, fmt.Sprintf("**Thread:** %s", r.ThreadTS))
	}
	if r.Permalink != "" {
		lines = append(lines, fmt.Sprintf("**Permalink:** [%s](%s)", r.Permalink, r.Permalink))
	}

	lines = append(lines, "", "---", "")

	if r.Text != "" {
		lines = append(lines, r.Text)
	} else {
		lines = append(lines, "(no text)")
	}

	if len(r.Reactions) > 0 {
		lines = append(lines, "", "---", "", "## Reactions", "")
		for _, re := range r.Reactions {
			lines = append(lines, fmt.Sprintf("- :%s: (%d)", re.Name, re.Count))
		}
	}

	if len(r.Attachments) > 0 || len(r.Files) > 0 {
		lines = append(lines, "", "---", "", "## Attachments", "")
		for _, a := range r.Attachments {
			title := a.Title
			if title == "" {
				title = a.Fallback
			}
			if title == "" {
				title = "Attachment"
			}
			url := a.ImageURL
			if url == "" {
				url = a.ThumbURL
			}
			if url == "" {
				url = a.FromURL
			}
			if url != "" {
				lines = append(lines, fmt.Sprintf("- [%s](%s)", title, url))
			} else {
				lines = append(lines, fmt.Sprintf("- %s", title))
			}
		}
		for _, f := range r.Files {
			name := f.Name
			if name == "" {
				name = f.Title
			}
			if name == "" {
				name = "File"
			}
			url := f.URLPrivate
			if url == "" {
				url = f.Permalink
			}
			switch {
			case url != "" && strings.HasPrefix(f.Mimetype, "image/"):
				lines = append(lines, fmt.Sprintf("- ![%s](%s)", name, url))
			case url != "":
				lines = append(lines, fmt.Sprintf("- [%s](%s)", name, url))
			default:
				lines = append(lines, fmt.Sprintf("- %s", name))
			}
		}
	}

	return strings.Join(lines, "\n")
}
