package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// NonceSize is the AES-GCM nonce length stored in front of every blob.
	NonceSize = 12
	// TagSize is the GCM authentication tag length appended to the ciphertext.
	TagSize = 16

	blobSeparator = ":"
)

var (
	// ErrMalformedBlob indicates that a stored blob does not follow the nonce:ciphertext framing.
	ErrMalformedBlob = errors.New("crypto: malformed blob")
	// ErrAuthenticationFailed indicates a wrong key or tampered ciphertext.
	ErrAuthenticationFailed = errors.New("crypto: message authentication failed")
	// ErrInvalidPayload indicates that an authenticated plaintext is not the expected JSON document.
	ErrInvalidPayload = errors.New("crypto: invalid payload")
)

// Blob is the decoded framing of a stored room object.
type Blob struct {
	Nonce      []byte
	Ciphertext []byte // ciphertext with the GCM tag appended
}

// ParseBlob splits base64(nonce) ":" base64(ciphertext||tag) without decrypting.
func ParseBlob(encoded string) (Blob, error) {
	trimmed := strings.TrimSpace(encoded)
	parts := strings.Split(trimmed, blobSeparator)
	if len(parts) != 2 {
		return Blob{}, fmt.Errorf("%w: expected 2 fields, got %d", ErrMalformedBlob, len(parts))
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return Blob{}, fmt.Errorf("%w: nonce: %v", ErrMalformedBlob, err)
	}
	if len(nonce) != NonceSize {
		return Blob{}, fmt.Errorf("%w: nonce length %d", ErrMalformedBlob, len(nonce))
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return Blob{}, fmt.Errorf("%w: ciphertext: %v", ErrMalformedBlob, err)
	}
	if len(ciphertext) < TagSize {
		return Blob{}, fmt.Errorf("%w: ciphertext shorter than tag", ErrMalformedBlob)
	}
	return Blob{Nonce: nonce, Ciphertext: ciphertext}, nil
}

// String renders the blob in its textual transport form.
func (b Blob) String() string {
	return base64.StdEncoding.EncodeToString(b.Nonce) + blobSeparator + base64.StdEncoding.EncodeToString(b.Ciphertext)
}

// Seal encrypts plaintext under key with a fresh random nonce.
func Seal(key Key, plaintext []byte) (string, error) {
	return sealWithReader(key, plaintext, rand.Reader)
}

func sealWithReader(key Key, plaintext []byte, random io.Reader) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(random, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	blob := Blob{
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
	}
	return blob.String(), nil
}

// Open authenticates and decrypts an encoded blob.
func Open(key Key, encoded string) ([]byte, error) {
	blob, err := ParseBlob(encoded)
	if err != nil {
		return nil, err
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, blob.Nonce, blob.Ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// SealJSON marshals value and seals the resulting document.
func SealJSON(key Key, value any) (string, error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return Seal(key, plaintext)
}

// OpenJSON opens an encoded blob and unmarshals the plaintext into target.
func OpenJSON(key Key, encoded string, target any) error {
	plaintext, err := Open(key, encoded)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func newAEAD(key Key) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}
