package rooms

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestMessageKeepsMistypedAndUnknownFields(t *testing.T) {
	var message Message
	raw := `{"author":"a","type":"text","text":"hi","datetime":1700000000,"edited":true}`
	if err := json.Unmarshal([]byte(raw), &message); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if message.Author != "a" || message.Text != "hi" || message.Datetime != "" {
		t.Fatalf("unexpected decoded message %#v", message)
	}
	extra := message.Extra()
	if string(extra["datetime"]) != "1700000000" || string(extra["edited"]) != "true" {
		t.Fatalf("unexpected overflow %v", extra)
	}

	encoded, err := json.Marshal(message)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var roundTrip map[string]any
	if err := json.Unmarshal(encoded, &roundTrip); err != nil {
		t.Fatalf("re-decode failed: %v", err)
	}
	if roundTrip["datetime"] != float64(1700000000) || roundTrip["edited"] != true || roundTrip["text"] != "hi" {
		t.Fatalf("unexpected re-encoded message %s", encoded)
	}
}

func TestModelledValueOverridesStoredValue(t *testing.T) {
	var message Message
	if err := json.Unmarshal([]byte(`{"type":"text","text":"hi","pinned":"yes"}`), &message); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	message.setPinned(false)
	encoded, err := json.Marshal(message)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(encoded), "pinned") {
		t.Fatalf("expected stale pin value to be dropped, got %s", encoded)
	}

	message.extra = map[string]json.RawMessage{"text": json.RawMessage(`42`)}
	message.Text = "replaced"
	encoded, err = json.Marshal(message)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(encoded), `"text":"replaced"`) {
		t.Fatalf("expected modelled text to win, got %s", encoded)
	}
}

func TestNonObjectEntriesRoundTrip(t *testing.T) {
	var messages []Message
	if err := json.Unmarshal([]byte(`["notice",7,{"type":"text","text":"hi"},null]`), &messages); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(messages) != 4 || messages[2].Text != "hi" {
		t.Fatalf("unexpected messages %#v", messages)
	}
	encoded, err := json.Marshal(messages)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(encoded) != `["notice",7,{"author":"","type":"text","text":"hi"},null]` {
		t.Fatalf("unexpected encoding %s", encoded)
	}
}

func TestNormalizeRejectsMistypedFields(t *testing.T) {
	var message Message
	if err := json.Unmarshal([]byte(`{"type":"text","text":5}`), &message); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, err := normalizeMessage(message, testNow); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}

	if err := json.Unmarshal([]byte(`{"type":"text","text":"ok","mood":"happy"}`), &message); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	normalized, err := normalizeMessage(message, testNow)
	if err != nil {
		t.Fatalf("expected unknown keys to be accepted, got %v", err)
	}
	if string(normalized.Extra()["mood"]) != `"happy"` {
		t.Fatalf("expected unknown key to be kept, got %v", normalized.Extra())
	}
}
