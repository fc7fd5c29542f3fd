package rooms

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxTextRunes   = 500
	maxSVGBytes    = 100 * 1024
	minPollOptions = 2
	defaultAuthor  = "anonymous"
)

var scriptBlockPattern = regexp.MustCompile(`(?is)<script.*?>.*?</script>`)

// normalizeMessage validates an incoming message and fills server-assigned fields.
func normalizeMessage(message Message, now time.Time) (Message, error) {
	if field, malformed := message.malformedField(); malformed {
		return Message{}, fmt.Errorf("%w: field %q has the wrong type", ErrInvalidMessage, field)
	}
	switch message.Type {
	case MessageTypeText:
		if message.Text == "" {
			return Message{}, fmt.Errorf("%w: text message without text", ErrInvalidMessage)
		}
		message.Text = truncateRunes(message.Text, maxTextRunes)
	case MessageTypeSVG:
		if message.SVG == "" {
			return Message{}, fmt.Errorf("%w: svg message without svg", ErrInvalidMessage)
		}
		if len(message.SVG) > maxSVGBytes {
			return Message{}, fmt.Errorf("%w: svg is %d bytes, limit %d", ErrMessageTooLarge, len(message.SVG), maxSVGBytes)
		}
		message.SVG = scriptBlockPattern.ReplaceAllString(message.SVG, "")
	case MessageTypeFile, MessageTypeAudio:
		if _, err := base64.StdEncoding.DecodeString(message.Data); err != nil {
			return Message{}, fmt.Errorf("%w: %s data is not base64", ErrInvalidMessage, message.Type)
		}
	case MessageTypePoll:
		if err := normalizePoll(&message); err != nil {
			return Message{}, err
		}
	case "":
		return Message{}, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	default:
		return Message{}, fmt.Errorf("%w: unsupported type %q", ErrInvalidMessage, message.Type)
	}

	if strings.TrimSpace(message.Author) == "" {
		message.Author = defaultAuthor
	}
	if message.Datetime == "" {
		message.Datetime = now.UTC().Format(time.RFC3339)
	}
	message.setPinned(false)
	return message, nil
}

func normalizePoll(message *Message) error {
	if strings.TrimSpace(message.Question) == "" {
		return fmt.Errorf("%w: poll without question", ErrInvalidMessage)
	}
	if len(message.Options) < minPollOptions {
		return fmt.Errorf("%w: poll needs at least %d options", ErrInvalidMessage, minPollOptions)
	}
	if len(message.Votes) == 0 {
		message.Votes = make([]int, len(message.Options))
		return nil
	}
	if len(message.Votes) != len(message.Options) {
		return fmt.Errorf("%w: %d votes for %d options", ErrInvalidMessage, len(message.Votes), len(message.Options))
	}
	for _, count := range message.Votes {
		if count < 0 {
			return fmt.Errorf("%w: negative vote count", ErrInvalidMessage)
		}
	}
	return nil
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}

// keepLastPin clears every pin except the last one in list order.
func keepLastPin(messages []Message) {
	pinned := -1
	for index := range messages {
		if messages[index].Pinned {
			pinned = index
		}
		messages[index].setPinned(false)
	}
	if pinned >= 0 {
		messages[pinned].setPinned(true)
	}
}

// pruneExpired drops messages dated before cutoff. Undated or unparseable messages stay.
func pruneExpired(messages []Message, cutoff time.Time) ([]Message, int) {
	kept := make([]Message, 0, len(messages))
	for _, message := range messages {
		sent, dated := message.sentAt()
		if dated && sent.Before(cutoff) {
			continue
		}
		kept = append(kept, message)
	}
	return kept, len(messages) - len(kept)
}
