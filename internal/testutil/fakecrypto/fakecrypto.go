// Package fakecrypto provides a reversible, call-counting Encrypter for tests.
package fakecrypto

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/danmuck/boardsync/internal/board"
)

var ErrInjected = errors.New("fakecrypto: injected failure")

// Encrypter wraps plaintext as "<op>:<key>:<base64>". FailOn makes any operation whose
// plaintext equals the given value fail with ErrInjected.
type Encrypter struct {
	mu     sync.Mutex
	calls  map[string]int
	FailOn string
}

func New() *Encrypter {
	return &Encrypter{calls: make(map[string]int)}
}

func (e *Encrypter) Calls(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[op]
}

func (e *Encrypter) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = make(map[string]int)
}

func (e *Encrypter) record(op string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.calls == nil {
		e.calls = make(map[string]int)
	}
	e.calls[op]++
}

func (e *Encrypter) EncryptText(ctx context.Context, keyURL, plaintext string) (string, error) {
	e.record("encryptText")
	if e.FailOn != "" && plaintext == e.FailOn {
		return "", ErrInjected
	}
	return seal("text", keyURL, []byte(plaintext)), nil
}

func (e *Encrypter) DecryptText(ctx context.Context, keyURL, ciphertext string) (string, error) {
	e.record("decryptText")
	raw, err := open("text", keyURL, ciphertext)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (e *Encrypter) EncryptSCR(ctx context.Context, keyURL string, scr board.SCR) (string, error) {
	e.record("encryptScr")
	if e.FailOn != "" && scr.Loc == e.FailOn {
		return "", ErrInjected
	}
	raw, err := json.Marshal(scr)
	if err != nil {
		return "", err
	}
	return seal("scr", keyURL, raw), nil
}

func (e *Encrypter) DecryptSCR(ctx context.Context, keyURL, ciphertext string) (board.SCR, error) {
	e.record("decryptScr")
	raw, err := open("scr", keyURL, ciphertext)
	if err != nil {
		return board.SCR{}, err
	}
	var scr board.SCR
	if err := json.Unmarshal(raw, &scr); err != nil {
		return board.SCR{}, err
	}
	return scr, nil
}

func seal(op, keyURL string, raw []byte) string {
	return op + ":" + keyURL + ":" + base64.StdEncoding.EncodeToString(raw)
}

func open(op, keyURL, ciphertext string) ([]byte, error) {
	prefix := op + ":" + keyURL + ":"
	if !strings.HasPrefix(ciphertext, prefix) {
		return nil, fmt.Errorf("fakecrypto: %s ciphertext not sealed under %q", op, keyURL)
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, prefix))
}
