// Package keyring is a local Encrypter backed by XChaCha20-Poly1305.
//
// Each key reference URL maps to one 32-byte key. The key URL is bound as
// associated data, so ciphertext opened under a different reference fails.
// It stands in for a key management service in development and tests.
package keyring

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/boardsync/internal/board"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrUnknownKey     = errors.New("keyring: unknown key url")
	ErrInvalidKey     = errors.New("keyring: invalid key")
	ErrInvalidCipher  = errors.New("keyring: invalid ciphertext")
	ErrAuthentication = errors.New("keyring: message authentication failed")
)

// Keyring holds symmetric keys by key reference URL.
type Keyring struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

func New() *Keyring {
	return &Keyring{keys: make(map[string][]byte)}
}

// Add installs a 32-byte key for keyURL.
func (k *Keyring) Add(keyURL string, key []byte) error {
	keyURL = strings.TrimSpace(keyURL)
	if keyURL == "" {
		return fmt.Errorf("%w: empty key url", ErrInvalidKey)
	}
	if len(key) != chacha20poly1305.KeySize {
		return fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, chacha20poly1305.KeySize, len(key))
	}
	cp := make([]byte, len(key))
	copy(cp, key)
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[keyURL] = cp
	return nil
}

// Generate creates and installs a random key for keyURL.
func (k *Keyring) Generate(keyURL string) error {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	return k.Add(keyURL, key)
}

type keyFile struct {
	Keys map[string]string `toml:"keys"`
}

// LoadFile reads a TOML file with a [keys] table of key URL -> hex key.
func LoadFile(path string) (*Keyring, error) {
	var raw keyFile
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("load key file: %w", err)
	}
	k := New()
	for keyURL, hexKey := range raw.Keys {
		key, err := hex.DecodeString(strings.TrimSpace(hexKey))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidKey, keyURL, err)
		}
		if err := k.Add(keyURL, key); err != nil {
			return nil, err
		}
	}
	return k, nil
}

func (k *Keyring) EncryptText(ctx context.Context, keyURL, plaintext string) (string, error) {
	return k.seal(ctx, keyURL, []byte(plaintext))
}

func (k *Keyring) DecryptText(ctx context.Context, keyURL, ciphertext string) (string, error) {
	raw, err := k.open(ctx, keyURL, ciphertext)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (k *Keyring) EncryptSCR(ctx context.Context, keyURL string, scr board.SCR) (string, error) {
	raw, err := json.Marshal(scr)
	if err != nil {
		return "", err
	}
	return k.seal(ctx, keyURL, raw)
}

func (k *Keyring) DecryptSCR(ctx context.Context, keyURL, ciphertext string) (board.SCR, error) {
	raw, err := k.open(ctx, keyURL, ciphertext)
	if err != nil {
		return board.SCR{}, err
	}
	var scr board.SCR
	if err := json.Unmarshal(raw, &scr); err != nil {
		return board.SCR{}, fmt.Errorf("%w: scr: %v", ErrInvalidCipher, err)
	}
	return scr, nil
}

func (k *Keyring) seal(ctx context.Context, keyURL string, plaintext []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	aead, err := k.aead(keyURL)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, plaintext, []byte(keyURL))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (k *Keyring) open(ctx context.Context, keyURL, ciphertext string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	aead, err := k.aead(keyURL)
	if err != nil {
		return nil, err
	}
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCipher, err)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrInvalidCipher
	}
	nonce, body := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, body, []byte(keyURL))
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

func (k *Keyring) aead(keyURL string) (cipher.AEAD, error) {
	k.mu.RLock()
	key, ok := k.keys[strings.TrimSpace(keyURL)]
	k.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, keyURL)
	}
	return chacha20poly1305.NewX(key)
}
