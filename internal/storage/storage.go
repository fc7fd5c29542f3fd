package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Backend names accepted by New.
const (
	BackendFilesystem = "filesystem"
	BackendSQLite     = "sqlite"
	BackendS3         = "s3"
	BackendMemory     = "memory"
)

const maxKeyLength = 128

var (
	// ErrNotFound indicates that no blob is stored under the key.
	ErrNotFound = errors.New("storage: blob not found")
	// ErrAlreadyExists indicates that an exclusive create found an existing blob.
	ErrAlreadyExists = errors.New("storage: blob already exists")
	// ErrInvalidKey indicates that a key could escape the backend namespace.
	ErrInvalidKey = errors.New("storage: invalid key")
	// ErrUnknownBackend indicates an unsupported backend name.
	ErrUnknownBackend = errors.New("storage: unknown backend")

	keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// BlobStore persists one opaque blob per key. Write replaces the whole blob atomically.
type BlobStore interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Create(ctx context.Context, key string, data []byte) error
	Write(ctx context.Context, key string, data []byte) error
	Close() error
}

// S3Config describes the bucket used by the s3 backend.
type S3Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

// Config selects and parameterises a backend.
type Config struct {
	Backend      string
	Path         string
	DatabasePath string
	S3           S3Config
	Clock        func() time.Time
}

// ValidKey reports an error unless key is a safe single path segment.
func ValidKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if len(key) > maxKeyLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidKey, maxKeyLength)
	}
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// New constructs the backend named by cfg.Backend.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (BlobStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))

	var (
		store BlobStore
		err   error
	)
	fields := []zap.Field{zap.String("backend", backend)}
	switch backend {
	case BackendFilesystem, "":
		backend = BackendFilesystem
		store, err = NewFilesystemStore(cfg.Path)
		fields = append(fields, zap.String("path", cfg.Path))
	case BackendSQLite:
		store, err = OpenSQLiteStore(cfg.DatabasePath, cfg.Clock, logger)
		fields = append(fields, zap.String("database_path", cfg.DatabasePath))
	case BackendS3:
		store, err = NewS3Store(ctx, cfg.S3)
		fields = append(fields, zap.String("bucket", cfg.S3.Bucket), zap.String("prefix", cfg.S3.Prefix))
	case BackendMemory:
		store = NewMemoryStore()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open %s backend: %w", backend, err)
	}

	logger.Info("storage backend ready", fields...)
	return store, nil
}
