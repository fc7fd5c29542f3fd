package rooms

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Submission is a decoded send_message payload: either one message to append or a full
// replacement list.
type Submission struct {
	Message *Message
	Replace []Message
}

// IsReplace reports whether the submission overwrites the message list.
func (s Submission) IsReplace() bool {
	return s.Message == nil
}

// ParseSubmission decodes the JSON message sent by the browser client. A "__replace__" message
// whose data is an array becomes a replacement; anything else is treated as a single message.
func ParseSubmission(raw []byte) (Submission, error) {
	var probe struct {
		Type MessageType     `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Submission{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	data := bytes.TrimSpace(probe.Data)
	if probe.Type == MessageTypeReplace && len(data) > 0 && data[0] == '[' {
		var messages []Message
		if err := json.Unmarshal(data, &messages); err != nil {
			return Submission{}, fmt.Errorf("%w: replacement list: %v", ErrInvalidMessage, err)
		}
		for index, message := range messages {
			if message.opaque != nil {
				return Submission{}, fmt.Errorf("%w: replacement entry %d is not an object", ErrInvalidMessage, index)
			}
		}
		if messages == nil {
			messages = []Message{}
		}
		return Submission{Replace: messages}, nil
	}

	var message Message
	if err := json.Unmarshal(raw, &message); err != nil {
		return Submission{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if field, malformed := message.malformedField(); malformed {
		return Submission{}, fmt.Errorf("%w: field %q has the wrong type", ErrInvalidMessage, field)
	}
	return Submission{Message: &message}, nil
}
