package codec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/danmuck/boardsync/internal/board"
	"golang.org/x/sync/errgroup"
)

const defaultParallelism = 8

// Encrypter is the cryptographic collaborator. Key references are opaque URLs.
type Encrypter interface {
	EncryptText(ctx context.Context, keyURL, plaintext string) (string, error)
	DecryptText(ctx context.Context, keyURL, ciphertext string) (string, error)
	EncryptSCR(ctx context.Context, keyURL string, scr board.SCR) (string, error)
	DecryptSCR(ctx context.Context, keyURL, ciphertext string) (board.SCR, error)
}

// Codec applies the board content encoding rules shared by realtime and persistence.
type Codec struct {
	enc         Encrypter
	device      string
	parallelism int
}

type Option func(*Codec)

// WithParallelism bounds concurrent per-item operations; n < 1 means sequential.
func WithParallelism(n int) Option {
	return func(c *Codec) {
		if n < 1 {
			n = 1
		}
		c.parallelism = n
	}
}

// New builds a Codec stamping device on every encrypted item.
func New(enc Encrypter, device string, opts ...Option) *Codec {
	c := &Codec{
		enc:         enc,
		device:      strings.TrimSpace(device),
		parallelism: defaultParallelism,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Device returns the device label stamped on encrypted items.
func (c *Codec) Device() string {
	return c.device
}

// EncryptItems encrypts every item under keyURL. The first failure cancels the rest and is
// returned as a *board.EncryptionError carrying the failing index.
func (c *Codec) EncryptItems(ctx context.Context, keyURL string, items []board.Item) ([]board.Content, error) {
	if strings.TrimSpace(keyURL) == "" {
		return nil, board.ErrMissingEncryptionKey
	}
	out := make([]board.Content, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for i := range items {
		i := i
		g.Go(func() error {
			content, err := c.EncryptItem(gctx, keyURL, items[i])
			if err != nil {
				return &board.EncryptionError{Index: i, Op: "encrypt", Err: err}
			}
			out[i] = content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EncryptItem encrypts one item under keyURL.
func (c *Codec) EncryptItem(ctx context.Context, keyURL string, item board.Item) (board.Content, error) {
	if strings.TrimSpace(keyURL) == "" {
		return board.Content{}, board.ErrMissingEncryptionKey
	}
	content := board.Content{
		EncryptionKeyURL: keyURL,
		Device:           c.device,
	}
	if item.IsFile() {
		payload, err := c.EncryptFile(ctx, keyURL, *item.File)
		if err != nil {
			return board.Content{}, err
		}
		content.Type = board.ContentTypeFile
		content.Payload = payload
		return content, nil
	}
	ciphertext, err := c.enc.EncryptText(ctx, keyURL, item.Payload)
	if err != nil {
		return board.Content{}, err
	}
	content.Type = board.ContentTypeString
	content.Payload = ciphertext
	return content, nil
}

// EncryptFile encrypts the SCR and display name as two independent operations and
// assembles the FILE payload.
func (c *Codec) EncryptFile(ctx context.Context, keyURL string, file board.FileRef) (string, error) {
	var encSCR, encName string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		encSCR, err = c.enc.EncryptSCR(gctx, keyURL, file.SCR)
		return err
	})
	if file.DisplayName != "" {
		g.Go(func() error {
			var err error
			encName, err = c.enc.EncryptText(gctx, keyURL, file.DisplayName)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	raw, err := json.Marshal(board.FilePayload{
		Type:        file.Type,
		SCR:         encSCR,
		DisplayName: encName,
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// EncryptText encrypts a free-form payload, as used for realtime activity.
func (c *Codec) EncryptText(ctx context.Context, keyURL, plaintext string) (string, error) {
	if strings.TrimSpace(keyURL) == "" {
		return "", board.ErrMissingEncryptionKey
	}
	return c.enc.EncryptText(ctx, keyURL, plaintext)
}

// DecryptItems decrypts a page of contents, each under its own key reference.
func (c *Codec) DecryptItems(ctx context.Context, contents []board.Content) ([]board.Item, error) {
	out := make([]board.Item, len(contents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for i := range contents {
		i := i
		g.Go(func() error {
			item, err := c.DecryptItem(gctx, contents[i])
			if err != nil {
				return &board.EncryptionError{Index: i, Op: "decrypt", Err: err}
			}
			out[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// DecryptItem decrypts one content. FILE contents rebuild the file reference; any other
// declared type is a single text decryption; a missing type is an error.
func (c *Codec) DecryptItem(ctx context.Context, content board.Content) (board.Item, error) {
	if strings.TrimSpace(string(content.Type)) == "" {
		return board.Item{}, fmt.Errorf("%w: missing type", board.ErrUnknownContentType)
	}
	if strings.TrimSpace(content.EncryptionKeyURL) == "" {
		return board.Item{}, board.ErrMissingEncryptionKey
	}
	item := board.Item{
		ContentID:        content.ContentID,
		ContentURL:       content.ContentURL,
		EncryptionKeyURL: content.EncryptionKeyURL,
		Device:           content.Device,
	}
	if content.Type == board.ContentTypeFile {
		file, err := c.DecryptFile(ctx, content.EncryptionKeyURL, content.Payload)
		if err != nil {
			return board.Item{}, err
		}
		item.File = &file
		return item, nil
	}
	plaintext, err := c.enc.DecryptText(ctx, content.EncryptionKeyURL, content.Payload)
	if err != nil {
		return board.Item{}, err
	}
	item.Payload = plaintext
	return item, nil
}

// DecryptFile parses a FILE payload and decrypts its SCR and display name independently.
func (c *Codec) DecryptFile(ctx context.Context, keyURL, payload string) (board.FileRef, error) {
	var fp board.FilePayload
	if err := json.Unmarshal([]byte(payload), &fp); err != nil {
		return board.FileRef{}, fmt.Errorf("codec: parse file payload: %w", err)
	}
	if strings.TrimSpace(fp.SCR) == "" {
		return board.FileRef{}, fmt.Errorf("codec: file payload missing scr")
	}
	file := board.FileRef{Type: fp.Type}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scr, err := c.enc.DecryptSCR(gctx, keyURL, fp.SCR)
		file.SCR = scr
		return err
	})
	if fp.DisplayName != "" {
		g.Go(func() error {
			name, err := c.enc.DecryptText(gctx, keyURL, fp.DisplayName)
			file.DisplayName = name
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return board.FileRef{}, err
	}
	return file, nil
}

// DecryptText decrypts a single text payload.
func (c *Codec) DecryptText(ctx context.Context, keyURL, ciphertext string) (string, error) {
	if strings.TrimSpace(keyURL) == "" {
		return "", board.ErrMissingEncryptionKey
	}
	return c.enc.DecryptText(ctx, keyURL, ciphertext)
}
