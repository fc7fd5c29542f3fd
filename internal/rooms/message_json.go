package rooms

import (
	"bytes"
	"encoding/json"
	"errors"
	"maps"
	"math"
	"time"
)

// epochMillisThreshold separates unix seconds from unix milliseconds in numeric timestamps.
const epochMillisThreshold = 1e12

var (
	errInvalidEntry = errors.New("rooms: message entry is not valid JSON")

	zeroJSONValues = [][]byte{[]byte(`""`), []byte("false"), []byte("0"), []byte("null"), []byte("[]"), []byte("{}")}
)

// messageFields is the JSON shape of the modelled Message fields.
type messageFields struct {
	ID        string      `json:"id,omitempty"`
	Author    string      `json:"author"`
	Datetime  string      `json:"datetime,omitempty"`
	Type      MessageType `json:"type"`
	Text      string      `json:"text,omitempty"`
	Formatted bool        `json:"formatted,omitempty"`
	SVG       string      `json:"svg,omitempty"`
	Filename  string      `json:"filename,omitempty"`
	MimeType  string      `json:"mimetype,omitempty"`
	Data      string      `json:"data,omitempty"`
	Question  string      `json:"question,omitempty"`
	Options   []string    `json:"options,omitempty"`
	Votes     []int       `json:"votes,omitempty"`
	Pinned    bool        `json:"pinned,omitempty"`
}

// UnmarshalJSON decodes one stored entry without failing on loosely typed data. Unknown keys
// and known keys whose value has an unexpected type are kept verbatim in the overflow set.
// Entries that are not JSON objects, null included, are kept whole.
func (m *Message) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if !json.Valid(trimmed) {
			return errInvalidEntry
		}
		*m = Message{opaque: bytes.Clone(trimmed)}
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return err
	}

	var decoded Message
	for key, raw := range fields {
		if decoded.decodeKnown(key, raw) {
			continue
		}
		if decoded.extra == nil {
			decoded.extra = make(map[string]json.RawMessage)
		}
		decoded.extra[key] = raw
	}
	*m = decoded
	return nil
}

func (m *Message) decodeKnown(key string, raw json.RawMessage) bool {
	switch key {
	case "id":
		return decodeField(raw, &m.ID)
	case "author":
		return decodeField(raw, &m.Author)
	case "datetime":
		return decodeField(raw, &m.Datetime)
	case "type":
		return decodeField(raw, &m.Type)
	case "text":
		return decodeField(raw, &m.Text)
	case "formatted":
		return decodeField(raw, &m.Formatted)
	case "svg":
		return decodeField(raw, &m.SVG)
	case "filename":
		return decodeField(raw, &m.Filename)
	case "mimetype":
		return decodeField(raw, &m.MimeType)
	case "data":
		return decodeField(raw, &m.Data)
	case "question":
		return decodeField(raw, &m.Question)
	case "options":
		return decodeField(raw, &m.Options)
	case "votes":
		return decodeField(raw, &m.Votes)
	case "pinned":
		return decodeField(raw, &m.Pinned)
	default:
		return false
	}
}

func decodeField[T any](raw json.RawMessage, target *T) bool {
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return false
	}
	*target = value
	return true
}

// MarshalJSON re-emits overflow keys next to the modelled fields. A modelled field wins unless
// it holds its zero value.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.opaque != nil {
		return m.opaque, nil
	}
	encoded, err := json.Marshal(messageFields{
		ID:        m.ID,
		Author:    m.Author,
		Datetime:  m.Datetime,
		Type:      m.Type,
		Text:      m.Text,
		Formatted: m.Formatted,
		SVG:       m.SVG,
		Filename:  m.Filename,
		MimeType:  m.MimeType,
		Data:      m.Data,
		Question:  m.Question,
		Options:   m.Options,
		Votes:     m.Votes,
		Pinned:    m.Pinned,
	})
	if err != nil || len(m.extra) == 0 {
		return encoded, err
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &merged); err != nil {
		return nil, err
	}
	for key, raw := range m.extra {
		if current, ok := merged[key]; ok && !isZeroJSON(current) {
			continue
		}
		merged[key] = raw
	}
	return json.Marshal(merged)
}

func isZeroJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	for _, zero := range zeroJSONValues {
		if bytes.Equal(trimmed, zero) {
			return true
		}
	}
	return false
}

// Extra returns a copy of the keys carried through without being modelled.
func (m Message) Extra() map[string]json.RawMessage {
	return maps.Clone(m.extra)
}

// malformedField names the first modelled key whose stored value has the wrong type.
func (m Message) malformedField() (string, bool) {
	if m.opaque != nil {
		return "message", true
	}
	for key := range m.extra {
		if isKnownKey(key) {
			return key, true
		}
	}
	return "", false
}

func isKnownKey(key string) bool {
	switch key {
	case "id", "author", "datetime", "type", "text", "formatted", "svg", "filename",
		"mimetype", "data", "question", "options", "votes", "pinned":
		return true
	default:
		return false
	}
}

// setPinned updates the pin flag and drops any stored pin value it supersedes.
func (m *Message) setPinned(pinned bool) {
	m.Pinned = pinned
	if _, ok := m.extra["pinned"]; ok {
		extra := maps.Clone(m.extra)
		delete(extra, "pinned")
		m.extra = extra
	}
}

// sentAt returns the creation time from datetime, or from a numeric or string datetime or
// timestamp kept in the overflow set.
func (m Message) sentAt() (time.Time, bool) {
	if m.Datetime != "" {
		if sent, err := time.Parse(time.RFC3339, m.Datetime); err == nil {
			return sent, true
		}
	}
	for _, key := range []string{"datetime", "timestamp"} {
		raw, ok := m.extra[key]
		if !ok {
			continue
		}
		if sent, ok := parseLooseTime(raw); ok {
			return sent, true
		}
	}
	return time.Time{}, false
}

func parseLooseTime(raw json.RawMessage) (time.Time, bool) {
	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		if number <= 0 || math.IsInf(number, 0) {
			return time.Time{}, false
		}
		if number >= epochMillisThreshold {
			return time.UnixMilli(int64(number)).UTC(), true
		}
		return time.Unix(int64(number), 0).UTC(), true
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if sent, err := time.Parse(time.RFC3339, text); err == nil {
			return sent, true
		}
	}
	return time.Time{}, false
}
