package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
)

func newTestFilesystemStore(t *testing.T) (*FilesystemStore, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "chats")
	store, err := NewFilesystemStore(dir)
	if err != nil {
		t.Fatalf("failed to create filesystem store: %v", err)
	}
	return store, dir
}

func TestFilesystemStoreContract(t *testing.T) {
	store, _ := newTestFilesystemStore(t)
	exerciseBlobStore(t, store)
}

func TestFilesystemStoreUsesLegacyLayout(t *testing.T) {
	store, dir := newTestFilesystemStore(t)
	if err := store.Create(context.Background(), "room-1_A", []byte("nonce:body")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "room-1_A.json"))
	if err != nil {
		t.Fatalf("expected blob at legacy path: %v", err)
	}
	if string(data) != "nonce:body" {
		t.Fatalf("unexpected file content %q", data)
	}
}

func TestFilesystemStoreLeavesNoTempFiles(t *testing.T) {
	store, dir := newTestFilesystemStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, "lobby", []byte("v0")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := store.Write(ctx, "lobby", []byte(strings.Repeat("x", i+1))); err != nil {
				t.Errorf("write %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	_ = store.Create(ctx, "lobby", []byte("dup"))

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "lobby.json" {
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		t.Fatalf("expected only lobby.json, found %v", names)
	}

	data, err := store.Read(ctx, "lobby")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if strings.Trim(string(data), "x") != "" || len(data) == 0 {
		t.Fatalf("expected one complete write to win, got %q", data)
	}
}

func TestFilesystemStoreList(t *testing.T) {
	store, dir := newTestFilesystemStore(t)
	ctx := context.Background()
	for _, key := range []string{"beta", "alpha"} {
		if err := store.Create(ctx, key, []byte("x")); err != nil {
			t.Fatalf("create %s failed: %v", key, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600); err != nil {
		t.Fatalf("write stray file failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad name.json"), []byte("ignored"), 0o600); err != nil {
		t.Fatalf("write stray file failed: %v", err)
	}

	keys, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"alpha", "beta"}) {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestNewFilesystemStoreRequiresPath(t *testing.T) {
	if _, err := NewFilesystemStore("  "); err == nil {
		t.Fatalf("expected empty path to be rejected")
	}
}

func TestFilesystemStoreSyncsDirectoryAfterCommit(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFilesystemStore(dir)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	var synced []string
	store.syncDir = func(path string) error {
		synced = append(synced, path)
		return nil
	}

	ctx := context.Background()
	if err := store.Create(ctx, "lobby", []byte("a:b")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := store.Create(ctx, "lobby", []byte("a:b")); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if err := store.Write(ctx, "lobby", []byte("c:d")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if !reflect.DeepEqual(synced, []string{dir, dir}) {
		t.Fatalf("expected one directory sync per committed blob, got %v", synced)
	}

	store.syncDir = func(string) error { return errors.New("sync refused") }
	if err := store.Write(ctx, "lobby", []byte("e:f")); err == nil || !strings.Contains(err.Error(), "sync refused") {
		t.Fatalf("expected directory sync failure to surface, got %v", err)
	}
}

func TestSyncDirectoryOnRealDirectory(t *testing.T) {
	if err := syncDirectory(t.TempDir()); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
}
