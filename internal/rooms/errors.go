package rooms

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/crypto"
	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/storage"
)

// ServiceError carries a stable code of the form rooms.<operation>.<reason>.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opStoreNew        = "rooms.store.new"
	opCreateRoom      = "rooms.create_room"
	opImportCipher    = "rooms.import_cipher"
	opGetRoomCipher   = "rooms.get_room_cipher"
	opGetRoomMessages = "rooms.get_room_messages"
	opAppendMessage   = "rooms.append_message"
	opReplaceMessages = "rooms.replace_messages"
	opDeleteMessage   = "rooms.delete_message"
	opPinMessage      = "rooms.pin_message"
	opVote            = "rooms.vote"
)

// newServiceError wraps kind, and cause when present, so errors.Is matches either.
func newServiceError(operation, reason string, kind, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	err := kind
	if cause != nil {
		err = fmt.Errorf("%w: %w", kind, cause)
	}
	return &ServiceError{code: code, err: err}
}

// classifyStorageError maps a backend failure onto the room taxonomy.
func classifyStorageError(err error) (string, error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "room_not_found", ErrRoomNotFound
	case errors.Is(err, storage.ErrAlreadyExists):
		return "room_already_exists", ErrRoomAlreadyExists
	case errors.Is(err, storage.ErrInvalidKey):
		return "invalid_name", ErrInvalidName
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "context_done", ErrStorageIO
	default:
		return "storage_failed", ErrStorageIO
	}
}

func classifyCryptoError(err error) string {
	switch {
	case errors.Is(err, crypto.ErrMalformedBlob):
		return "malformed_blob"
	case errors.Is(err, crypto.ErrInvalidPayload):
		return "invalid_payload"
	default:
		return "authentication_failed"
	}
}

func classifyMessageError(err error) string {
	switch {
	case errors.Is(err, ErrMessageTooLarge):
		return "message_too_large"
	case errors.Is(err, ErrVersionConflict):
		return "version_conflict"
	default:
		return "invalid_message"
	}
}
