// Package ingest loads raw chat messages and normalizes them for embedding.
// Normalization is a pure function of the raw text: no side effects, same
// input always yields the same output.
package ingest

import (
	"strings"
	"unicode"
)

// Message is an immutable ingested message. It is created once at ingestion
// and referenced (never copied or mutated) by downstream stages.
type Message struct {
	// Index is the position in the source collection. Vectors and group
	// assignments refer to messages by this index.
	Index int

	// Raw is the original text as read from the source.
	Raw string

	// Normalized is the cleaned text handed to the embedding provider.
	Normalized string

	// ConversationID is optional source metadata.
	ConversationID string
}

// Normalize cleans a raw message string: newlines collapse to spaces, runs of
// whitespace collapse to one space, control characters are dropped, and the
// result is trimmed.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	var sb strings.Builder
	sb.Grow(len(raw))

	lastSpace := false
	for _, r := range raw {
		if r == '\n' || r == '\r' || r == '\t' || unicode.IsSpace(r) {
			if !lastSpace {
				sb.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		sb.WriteRune(r)
		lastSpace = false
	}

	return strings.TrimSpace(sb.String())
}

// NewMessages builds the message set from raw records, assigning source
// indices and normalizing each text. Records whose text normalizes to the
// empty string are kept (they still occupy an index) so that vector and
// assignment indices line up with the source collection.
func NewMessages(records []Record) []Message {
	messages := make([]Message, len(records))
	for i, rec := range records {
		messages[i] = Message{
			Index:          i,
			Raw:            rec.Text,
			Normalized:     Normalize(rec.Text),
			ConversationID: rec.ConversationID,
		}
	}
	return messages
}

// NormalizedTexts extracts the normalized strings in source order, the shape
// the embedding batch call expects.
func NormalizedTexts(messages []Message) []string {
	texts := make([]string, len(messages))
	for i, m := range messages {
		texts[i] = m.Normalized
	}
	return texts
}
