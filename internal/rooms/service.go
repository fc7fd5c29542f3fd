package rooms

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/crypto"
	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/storage"
	"go.uber.org/zap"
)

// DefaultMessageLifetime is how long a message survives before a server-side read prunes it.
const DefaultMessageLifetime = 7 * 24 * time.Hour

var (
	errMissingBlobStore = errors.New("blob store is required")
	errNegativeLifetime = errors.New("message lifetime must not be negative")
	errReplaceViaAppend = errors.New("replacement lists are not appendable")
	noOpLogger          = zap.NewNop()
)

type StoreConfig struct {
	Blobs           storage.BlobStore
	Keys            *crypto.KeyDeriver
	Clock           func() time.Time
	IDProvider      IDProvider
	MessageLifetime time.Duration
	Logger          *zap.Logger
}

// Store keeps every room as one sealed blob and serialises read-modify-write cycles per room.
type Store struct {
	blobs      storage.BlobStore
	keys       *crypto.KeyDeriver
	clock      func() time.Time
	idProvider IDProvider
	lifetime   time.Duration
	locks      *lockTable
	logger     *zap.Logger
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Blobs == nil {
		return nil, newServiceError(opStoreNew, "missing_blob_store", errMissingBlobStore, nil)
	}
	if cfg.MessageLifetime < 0 {
		return nil, newServiceError(opStoreNew, "negative_lifetime", errNegativeLifetime, nil)
	}

	keys := cfg.Keys
	if keys == nil {
		keys = crypto.NewKeyDeriver(-1)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Store{
		blobs:      cfg.Blobs,
		keys:       keys,
		clock:      clock,
		idProvider: idProvider,
		lifetime:   cfg.MessageLifetime,
		locks:      newLockTable(),
		logger:     logger,
	}, nil
}

// VersionOf returns the version token of a stored blob text.
func VersionOf(blob string) string {
	sum := sha256.Sum256([]byte(blob))
	return hex.EncodeToString(sum[:16])
}

// CreateRoom seals an empty message list under the passphrase and stores it exclusively.
func (s *Store) CreateRoom(ctx context.Context, rawName, passphrase string) error {
	name, err := s.roomName(opCreateRoom, rawName)
	if err != nil {
		return err
	}
	release, err := s.lock(ctx, opCreateRoom, name)
	if err != nil {
		return err
	}
	defer release()

	sealed, err := crypto.SealJSON(s.keys.Derive(passphrase), []Message{})
	if err != nil {
		s.logError(opCreateRoom, "seal_failed", err, zap.String("room", name.String()))
		return newServiceError(opCreateRoom, "seal_failed", ErrStorageIO, err)
	}
	if err := s.blobs.Create(ctx, name.String(), []byte(sealed)); err != nil {
		return s.storageError(opCreateRoom, name, err)
	}
	s.logger.Info("room created", zap.String("room", name.String()))
	return nil
}

// ImportCipher stores an already sealed blob under a new room name, for migrating legacy files.
func (s *Store) ImportCipher(ctx context.Context, rawName, blob string) error {
	name, err := s.roomName(opImportCipher, rawName)
	if err != nil {
		return err
	}
	trimmed := strings.TrimSpace(blob)
	if _, err := crypto.ParseBlob(trimmed); err != nil {
		return newServiceError(opImportCipher, "malformed_blob", ErrDecryptionFailed, err)
	}
	release, err := s.lock(ctx, opImportCipher, name)
	if err != nil {
		return err
	}
	defer release()

	if err := s.blobs.Create(ctx, name.String(), []byte(trimmed)); err != nil {
		return s.storageError(opImportCipher, name, err)
	}
	return nil
}

// GetRoomCipher returns the stored blob without decrypting it.
func (s *Store) GetRoomCipher(ctx context.Context, rawName string) (Cipher, error) {
	name, err := s.roomName(opGetRoomCipher, rawName)
	if err != nil {
		return Cipher{}, err
	}
	blob, err := s.readBlob(ctx, opGetRoomCipher, name)
	if err != nil {
		return Cipher{}, err
	}
	return Cipher{Blob: blob, Version: VersionOf(blob)}, nil
}

// GetRoomMessages decrypts the room and prunes expired messages, persisting the pruned list
// when anything was dropped.
func (s *Store) GetRoomMessages(ctx context.Context, rawName, passphrase string) (Snapshot, error) {
	name, err := s.roomName(opGetRoomMessages, rawName)
	if err != nil {
		return Snapshot{}, err
	}
	if s.lifetime > 0 {
		release, err := s.lock(ctx, opGetRoomMessages, name)
		if err != nil {
			return Snapshot{}, err
		}
		defer release()
	}

	blob, err := s.readBlob(ctx, opGetRoomMessages, name)
	if err != nil {
		return Snapshot{}, err
	}
	key := s.keys.Derive(passphrase)
	messages, err := s.openMessages(opGetRoomMessages, name, key, blob)
	if err != nil {
		return Snapshot{}, err
	}
	if s.lifetime <= 0 {
		return Snapshot{Messages: messages, Version: VersionOf(blob)}, nil
	}

	kept, dropped := pruneExpired(messages, s.clock().Add(-s.lifetime))
	if dropped == 0 {
		return Snapshot{Messages: messages, Version: VersionOf(blob)}, nil
	}
	s.logger.Debug("expired messages pruned", zap.String("room", name.String()), zap.Int("dropped", dropped))
	return s.persist(ctx, opGetRoomMessages, name, key, kept)
}

// AppendMessage validates message, appends it and rewrites the room.
func (s *Store) AppendMessage(ctx context.Context, rawName, passphrase string, message Message) (Snapshot, error) {
	name, err := s.roomName(opAppendMessage, rawName)
	if err != nil {
		return Snapshot{}, err
	}
	if message.Type == MessageTypeReplace {
		return Snapshot{}, newServiceError(opAppendMessage, "invalid_message", ErrInvalidMessage, errReplaceViaAppend)
	}
	normalized, err := normalizeMessage(message, s.clock())
	if err != nil {
		return Snapshot{}, newServiceError(opAppendMessage, classifyMessageError(err), err, nil)
	}
	if normalized.ID == "" {
		id, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opAppendMessage, "id_generation_failed", err, zap.String("room", name.String()))
			return Snapshot{}, newServiceError(opAppendMessage, "id_generation_failed", ErrStorageIO, err)
		}
		normalized.ID = id
	}

	return s.mutate(ctx, opAppendMessage, name, passphrase, "", func(messages []Message) ([]Message, error) {
		return append(messages, normalized), nil
	})
}

// ReplaceMessages overwrites the whole list. A non-empty expectedVersion must match the
// current blob. The current blob must decrypt under the passphrase.
func (s *Store) ReplaceMessages(ctx context.Context, rawName, passphrase string, messages []Message, expectedVersion string) (Snapshot, error) {
	name, err := s.roomName(opReplaceMessages, rawName)
	if err != nil {
		return Snapshot{}, err
	}
	replacement := make([]Message, len(messages))
	copy(replacement, messages)
	keepLastPin(replacement)

	return s.mutate(ctx, opReplaceMessages, name, passphrase, expectedVersion, func([]Message) ([]Message, error) {
		return replacement, nil
	})
}

// Send applies a parsed client submission.
func (s *Store) Send(ctx context.Context, rawName, passphrase string, submission Submission) (Snapshot, error) {
	if submission.IsReplace() {
		return s.ReplaceMessages(ctx, rawName, passphrase, submission.Replace, "")
	}
	return s.AppendMessage(ctx, rawName, passphrase, *submission.Message)
}

// DeleteMessage removes the message at index.
func (s *Store) DeleteMessage(ctx context.Context, rawName, passphrase string, index int) (Snapshot, error) {
	name, err := s.roomName(opDeleteMessage, rawName)
	if err != nil {
		return Snapshot{}, err
	}
	return s.mutate(ctx, opDeleteMessage, name, passphrase, "", func(messages []Message) ([]Message, error) {
		if err := checkIndex(messages, index); err != nil {
			return nil, err
		}
		return append(messages[:index], messages[index+1:]...), nil
	})
}

// PinMessage pins the message at index and unpins every other message.
func (s *Store) PinMessage(ctx context.Context, rawName, passphrase string, index int) (Snapshot, error) {
	name, err := s.roomName(opPinMessage, rawName)
	if err != nil {
		return Snapshot{}, err
	}
	return s.mutate(ctx, opPinMessage, name, passphrase, "", func(messages []Message) ([]Message, error) {
		if err := checkIndex(messages, index); err != nil {
			return nil, err
		}
		if messages[index].opaque != nil {
			return nil, fmt.Errorf("%w: message %d is not an object", ErrInvalidMessage, index)
		}
		for i := range messages {
			messages[i].setPinned(i == index)
		}
		return messages, nil
	})
}

// Vote adds one vote to option of the poll at index.
func (s *Store) Vote(ctx context.Context, rawName, passphrase string, index, option int) (Snapshot, error) {
	name, err := s.roomName(opVote, rawName)
	if err != nil {
		return Snapshot{}, err
	}
	return s.mutate(ctx, opVote, name, passphrase, "", func(messages []Message) ([]Message, error) {
		if err := checkIndex(messages, index); err != nil {
			return nil, err
		}
		poll := &messages[index]
		if poll.Type != MessageTypePoll {
			return nil, fmt.Errorf("%w: message %d is not a poll", ErrInvalidMessage, index)
		}
		if option < 0 || option >= len(poll.Options) {
			return nil, fmt.Errorf("%w: option %d out of range", ErrInvalidMessage, option)
		}
		if len(poll.Votes) == 0 {
			poll.Votes = make([]int, len(poll.Options))
		}
		if len(poll.Votes) != len(poll.Options) {
			return nil, fmt.Errorf("%w: poll %d has %d votes for %d options", ErrInvalidMessage, index, len(poll.Votes), len(poll.Options))
		}
		poll.Votes[option]++
		return messages, nil
	})
}

// mutate runs one locked read-modify-write cycle.
func (s *Store) mutate(ctx context.Context, operation string, name RoomName, passphrase, expectedVersion string, apply func([]Message) ([]Message, error)) (Snapshot, error) {
	release, err := s.lock(ctx, operation, name)
	if err != nil {
		return Snapshot{}, err
	}
	defer release()

	blob, err := s.readBlob(ctx, operation, name)
	if err != nil {
		return Snapshot{}, err
	}
	if expectedVersion != "" && expectedVersion != VersionOf(blob) {
		return Snapshot{}, newServiceError(operation, "version_conflict", ErrVersionConflict, nil)
	}

	key := s.keys.Derive(passphrase)
	messages, err := s.openMessages(operation, name, key, blob)
	if err != nil {
		return Snapshot{}, err
	}
	updated, err := apply(messages)
	if err != nil {
		return Snapshot{}, newServiceError(operation, classifyMessageError(err), err, nil)
	}
	return s.persist(ctx, operation, name, key, updated)
}

func (s *Store) persist(ctx context.Context, operation string, name RoomName, key crypto.Key, messages []Message) (Snapshot, error) {
	if messages == nil {
		messages = []Message{}
	}
	sealed, err := crypto.SealJSON(key, messages)
	if err != nil {
		s.logError(operation, "seal_failed", err, zap.String("room", name.String()))
		return Snapshot{}, newServiceError(operation, "seal_failed", ErrStorageIO, err)
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, newServiceError(operation, "context_done", ErrStorageIO, err)
	}
	if err := s.blobs.Write(ctx, name.String(), []byte(sealed)); err != nil {
		return Snapshot{}, s.storageError(operation, name, err)
	}
	return Snapshot{Messages: messages, Version: VersionOf(sealed)}, nil
}

func (s *Store) readBlob(ctx context.Context, operation string, name RoomName) (string, error) {
	data, err := s.blobs.Read(ctx, name.String())
	if err != nil {
		return "", s.storageError(operation, name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *Store) openMessages(operation string, name RoomName, key crypto.Key, blob string) ([]Message, error) {
	var messages []Message
	if err := crypto.OpenJSON(key, blob, &messages); err != nil {
		reason := classifyCryptoError(err)
		kind := ErrDecryptionFailed
		switch reason {
		case "malformed_blob":
			s.logError(operation, reason, err, zap.String("room", name.String()))
		case "invalid_payload":
			kind = ErrCorruptRoom
			s.logError(operation, reason, err, zap.String("room", name.String()))
		}
		return nil, newServiceError(operation, reason, kind, err)
	}
	if messages == nil {
		messages = []Message{}
	}
	return messages, nil
}

func (s *Store) roomName(operation, rawName string) (RoomName, error) {
	name, err := NewRoomName(rawName)
	if err != nil {
		return "", newServiceError(operation, "invalid_name", err, nil)
	}
	return name, nil
}

func (s *Store) lock(ctx context.Context, operation string, name RoomName) (func(), error) {
	release, err := s.locks.acquire(ctx, name)
	if err != nil {
		return nil, newServiceError(operation, "lock_cancelled", ErrStorageIO, err)
	}
	return release, nil
}

func (s *Store) storageError(operation string, name RoomName, err error) error {
	reason, kind := classifyStorageError(err)
	if kind == ErrStorageIO && reason == "storage_failed" {
		s.logError(operation, reason, err, zap.String("room", name.String()))
	}
	return newServiceError(operation, reason, kind, err)
}

func checkIndex(messages []Message, index int) error {
	if index < 0 || index >= len(messages) {
		return fmt.Errorf("%w: index %d out of range for %d messages", ErrInvalidMessage, index, len(messages))
	}
	return nil
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("rooms store error", attrs...)
}
