package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/database"
	"go.uber.org/zap"
)

func TestSQLiteStoreContract(t *testing.T) {
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "rooms.db"), nil, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	exerciseBlobStore(t, store)
}

func TestSQLiteStoreKeepsCreationTime(t *testing.T) {
	current := time.Unix(1700000000, 0)
	clock := func() time.Time { return current }
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "rooms.db"), clock, nil)
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	if err := store.Create(ctx, "lobby", []byte("v1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	current = current.Add(time.Hour)
	if err := store.Write(ctx, "lobby", []byte("v2")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var blob database.RoomBlob
	if err := store.db.Where("name = ?", "lobby").Take(&blob).Error; err != nil {
		t.Fatalf("failed to load row: %v", err)
	}
	if blob.Cipher != "v2" {
		t.Fatalf("expected cipher v2, got %q", blob.Cipher)
	}
	if blob.CreatedAtSeconds != 1700000000 {
		t.Fatalf("expected creation time to be preserved, got %d", blob.CreatedAtSeconds)
	}
	if blob.UpdatedAtSeconds != 1700003600 {
		t.Fatalf("expected update time to advance, got %d", blob.UpdatedAtSeconds)
	}
}
