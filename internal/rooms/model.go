package rooms

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

const maxRoomNameLength = 128

var (
	// ErrInvalidName indicates a room name outside [A-Za-z0-9_-] or longer than the storage bound.
	ErrInvalidName = errors.New("rooms: invalid room name")
	// ErrRoomAlreadyExists indicates that CreateRoom found an existing room.
	ErrRoomAlreadyExists = errors.New("rooms: room already exists")
	// ErrRoomNotFound indicates that no blob is stored for the room.
	ErrRoomNotFound = errors.New("rooms: room not found")
	// ErrDecryptionFailed indicates a wrong passphrase or a corrupted blob.
	ErrDecryptionFailed = errors.New("rooms: decryption failed")
	// ErrCorruptRoom indicates an authenticated plaintext that is not a message list.
	ErrCorruptRoom = errors.New("rooms: room payload is not a message list")
	// ErrMessageTooLarge indicates a payload over its per-type limit.
	ErrMessageTooLarge = errors.New("rooms: message too large")
	// ErrInvalidMessage indicates a malformed message or an out of range index.
	ErrInvalidMessage = errors.New("rooms: invalid message")
	// ErrStorageIO indicates that the blob backend failed.
	ErrStorageIO = errors.New("rooms: storage failure")
	// ErrVersionConflict indicates that a replace was based on a stale version.
	ErrVersionConflict = errors.New("rooms: version conflict")

	roomNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// RoomName is a validated room identifier, safe to use as a storage key.
type RoomName string

// NewRoomName validates raw input and returns a RoomName.
func NewRoomName(rawInput string) (RoomName, error) {
	if rawInput == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(rawInput) > maxRoomNameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, maxRoomNameLength)
	}
	if !roomNamePattern.MatchString(rawInput) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, rawInput)
	}
	return RoomName(rawInput), nil
}

// String returns the underlying room name.
func (name RoomName) String() string {
	return string(name)
}

// MessageType enumerates the message kinds a room can hold.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeSVG   MessageType = "svg"
	MessageTypeFile  MessageType = "file"
	MessageTypeAudio MessageType = "audio"
	MessageTypePoll  MessageType = "poll"
)

// MessageTypeReplace marks a submission whose data is the complete new message list.
const MessageTypeReplace MessageType = "__replace__"

// Message is one chat entry. Field names match the JSON the browser client reads and writes.
// Keys the struct does not model survive a decode and re-encode unchanged.
type Message struct {
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

	extra  map[string]json.RawMessage
	opaque json.RawMessage
}

// Snapshot is a decrypted message list together with the version of the blob it came from.
type Snapshot struct {
	Messages []Message
	Version  string
}

// Cipher is the stored blob text of a room, returned without decryption.
type Cipher struct {
	Blob    string
	Version string
}
