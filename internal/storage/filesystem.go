package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	blobExtension  = ".json"
	blobFileMode   = 0o640
	blobFolderMode = 0o750
)

// FilesystemStore keeps each blob in <dir>/<key>.json, the layout of the legacy chats/ directory.
type FilesystemStore struct {
	dir     string
	syncDir func(dir string) error
}

// NewFilesystemStore ensures dir exists and returns a store rooted there.
func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage: filesystem path is required")
	}
	if err := os.MkdirAll(dir, blobFolderMode); err != nil {
		return nil, fmt.Errorf("storage: create directory: %w", err)
	}
	return &FilesystemStore{dir: dir, syncDir: syncDirectory}, nil
}

func (s *FilesystemStore) blobPath(key string) string {
	return filepath.Join(s.dir, key+blobExtension)
}

func (s *FilesystemStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.blobPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}
	return data, nil
}

// Create links a fully written temp file into place so the blob appears complete or not at all.
func (s *FilesystemStore) Create(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidKey(key); err != nil {
		return err
	}
	tempPath, err := s.writeTemp(key, data)
	if err != nil {
		return err
	}

	linkErr := os.Link(tempPath, s.blobPath(key))
	os.Remove(tempPath)
	if linkErr != nil {
		if errors.Is(linkErr, fs.ErrExist) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("storage: link %s: %w", key, linkErr)
	}
	return s.commit(key)
}

func (s *FilesystemStore) Write(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidKey(key); err != nil {
		return err
	}
	tempPath, err := s.writeTemp(key, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tempPath, s.blobPath(key)); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("storage: rename %s: %w", key, err)
	}
	return s.commit(key)
}

// commit makes the directory entry written by a link or rename durable.
func (s *FilesystemStore) commit(key string) error {
	if err := s.syncDir(s.dir); err != nil {
		return fmt.Errorf("storage: sync directory for %s: %w", key, err)
	}
	return nil
}

func syncDirectory(dir string) error {
	handle, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer handle.Close()
	return handle.Sync()
}

// List returns the keys of every blob in the directory, sorted.
func (s *FilesystemStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", s.dir, err)
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, blobExtension) {
			continue
		}
		key := strings.TrimSuffix(name, blobExtension)
		if ValidKey(key) != nil {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FilesystemStore) Close() error {
	return nil
}

func (s *FilesystemStore) writeTemp(key string, data []byte) (string, error) {
	file, err := os.CreateTemp(s.dir, "."+key+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("storage: create temp for %s: %w", key, err)
	}
	tempPath := file.Name()

	fail := func(step string, cause error) (string, error) {
		file.Close()
		os.Remove(tempPath)
		return "", fmt.Errorf("storage: %s temp for %s: %w", step, key, cause)
	}
	if _, err := file.Write(data); err != nil {
		return fail("write", err)
	}
	if err := file.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := file.Chmod(blobFileMode); err != nil {
		return fail("chmod", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("storage: close temp for %s: %w", key, err)
	}
	return tempPath, nil
}
