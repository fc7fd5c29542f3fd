package rooms

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/crypto"
	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/storage"
)

var testNow = time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)

type sequenceIDProvider struct {
	mu   sync.Mutex
	next int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("msg-%03d", p.next), nil
}

func newTestStore(t *testing.T, lifetime time.Duration) (*Store, *storage.MemoryStore) {
	t.Helper()
	blobs := storage.NewMemoryStore()
	store, err := NewStore(StoreConfig{
		Blobs:           blobs,
		Keys:            crypto.NewKeyDeriver(8),
		Clock:           func() time.Time { return testNow },
		IDProvider:      &sequenceIDProvider{},
		MessageLifetime: lifetime,
	})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return store, blobs
}

func mustCreateRoom(t *testing.T, store *Store, name, passphrase string) {
	t.Helper()
	if err := store.CreateRoom(context.Background(), name, passphrase); err != nil {
		t.Fatalf("failed to create room %s: %v", name, err)
	}
}

func mustAppend(t *testing.T, store *Store, name, passphrase string, message Message) Snapshot {
	t.Helper()
	snapshot, err := store.AppendMessage(context.Background(), name, passphrase, message)
	if err != nil {
		t.Fatalf("failed to append message: %v", err)
	}
	return snapshot
}

func textMessage(author, text string) Message {
	return Message{Author: author, Type: MessageTypeText, Text: text}
}

func serviceErrorCode(t *testing.T, err error) string {
	t.Helper()
	serviceErr, ok := err.(*ServiceError)
	if !ok {
		t.Fatalf("expected *ServiceError, got %T (%v)", err, err)
	}
	return serviceErr.Code()
}

func seedPlaintext(t *testing.T, blobs *storage.MemoryStore, name, passphrase, plaintext string) {
	t.Helper()
	sealed, err := crypto.Seal(crypto.DeriveKey(passphrase), []byte(plaintext))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if err := blobs.Create(context.Background(), name, []byte(sealed)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func storedEntries(t *testing.T, blobs *storage.MemoryStore, name, passphrase string) []map[string]any {
	t.Helper()
	blob, err := blobs.Read(context.Background(), name)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var entries []map[string]any
	if err := crypto.OpenJSON(crypto.DeriveKey(passphrase), string(blob), &entries); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	return entries
}
