package ingest

import (
	"encoding/json"
	"fmt"
	"os"

	"intentminer/internal/logging"
)

// Record is one raw message record as read from the input collection.
type Record struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// inputFile mirrors the on-disk input collection. Two shapes are accepted:
// the canonical {"messages":[...]} form and the legacy export form where each
// record carries the text under "current_human_message" or "current_message".
type inputFile struct {
	Messages         []json.RawMessage `json:"messages"`
	CustomerMessages []json.RawMessage `json:"customer_messages"`
}

type legacyRecord struct {
	Text                string `json:"text"`
	CurrentHumanMessage string `json:"current_human_message"`
	CurrentMessage      string `json:"current_message"`
	ConversationID      string `json:"conversation_id"`
	SessionID           string `json:"session_id"`
}

// LoadFile reads a message collection from a JSON file.
func LoadFile(path string) ([]Message, error) {
	timer := logging.StartTimer(logging.CategoryIngest, "LoadFile")
	defer timer.Stop()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}

	records, err := parseRecords(data)
	if err != nil {
		return nil, err
	}

	messages := NewMessages(records)
	logging.Ingest("Loaded %d messages from %s", len(messages), path)
	return messages, nil
}

// parseRecords decodes the supported input shapes into records.
func parseRecords(data []byte) ([]Record, error) {
	var file inputFile
	if err := json.Unmarshal(data, &file); err != nil {
		// Fall back to a bare top-level array of records.
		var raw []json.RawMessage
		if arrErr := json.Unmarshal(data, &raw); arrErr != nil {
			return nil, fmt.Errorf("failed to parse input collection: %w", err)
		}
		return decodeRecords(raw)
	}

	raw := file.Messages
	if len(raw) == 0 {
		raw = file.CustomerMessages
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("input collection contains no messages")
	}
	return decodeRecords(raw)
}

func decodeRecords(raw []json.RawMessage) ([]Record, error) {
	records := make([]Record, 0, len(raw))
	for i, r := range raw {
		// Records may be bare strings or objects.
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			records = append(records, Record{Text: s})
			continue
		}

		var lr legacyRecord
		if err := json.Unmarshal(r, &lr); err != nil {
			return nil, fmt.Errorf("failed to parse message record %d: %w", i, err)
		}

		text := lr.Text
		if text == "" {
			text = lr.CurrentHumanMessage
		}
		if text == "" {
			text = lr.CurrentMessage
		}
		convID := lr.ConversationID
		if convID == "" {
			convID = lr.SessionID
		}
		records = append(records, Record{Text: text, ConversationID: convID})
	}
	return records, nil
}
