package crypto

import (
	"crypto/sha256"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the derived AES-256 key length in bytes.
	KeySize = 32
	// PBKDF2Iterations is the iteration count used by every room key.
	PBKDF2Iterations = 100000

	defaultKeyCacheSize = 256
)

// fixedSalt is shared by every room so blobs stay readable by existing clients.
// Two rooms with the same passphrase therefore derive the same key.
var fixedSalt = []byte("mhcn_salt")

// Key is a derived room key.
type Key [KeySize]byte

// DeriveKey stretches a passphrase into a room key with PBKDF2-HMAC-SHA256.
func DeriveKey(passphrase string) Key {
	var key Key
	copy(key[:], pbkdf2.Key([]byte(passphrase), fixedSalt, PBKDF2Iterations, KeySize, sha256.New))
	return key
}

// KeyDeriver memoizes DeriveKey in process memory. Entries are indexed by a
// SHA-256 digest of the passphrase and evicted in insertion order.
type KeyDeriver struct {
	mu       sync.Mutex
	capacity int
	entries  map[[sha256.Size]byte]Key
	order    [][sha256.Size]byte
}

// NewKeyDeriver builds a deriver holding up to capacity keys. A negative
// capacity selects the default; zero disables caching.
func NewKeyDeriver(capacity int) *KeyDeriver {
	if capacity < 0 {
		capacity = defaultKeyCacheSize
	}
	return &KeyDeriver{
		capacity: capacity,
		entries:  make(map[[sha256.Size]byte]Key),
	}
}

// Derive returns the key for passphrase, computing it at most once while cached.
func (d *KeyDeriver) Derive(passphrase string) Key {
	if d == nil || d.capacity == 0 {
		return DeriveKey(passphrase)
	}

	digest := sha256.Sum256([]byte(passphrase))
	d.mu.Lock()
	key, ok := d.entries[digest]
	d.mu.Unlock()
	if ok {
		return key
	}

	key = DeriveKey(passphrase)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.entries[digest]; exists {
		return key
	}
	if len(d.order) >= d.capacity {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.entries, oldest)
	}
	d.entries[digest] = key
	d.order = append(d.order, digest)
	return key
}

// Len reports the number of cached keys.
func (d *KeyDeriver) Len() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
