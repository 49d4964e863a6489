package persistence

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/danmuck/boardsync/internal/board"
	"github.com/danmuck/boardsync/internal/observability"
	"github.com/rs/zerolog/log"
)

// Page is one decrypted page of channel content and its Link relations.
type Page struct {
	Items []board.Item
	Links map[string]string
}

// Next returns the "next" link, if any.
func (p Page) Next() string {
	return p.Links["next"]
}

type contentList struct {
	Items []board.Content `json:"items"`
}

// Image is a local image to upload and attach to a channel.
type Image struct {
	Name     string
	MimeType string
	Size     int64
	Data     io.Reader
}

// Uploader stores encrypted file bytes out of band and returns their SCR.
type Uploader interface {
	Upload(ctx context.Context, channel board.Channel, image Image) (board.SCR, error)
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

// AddContent encrypts and writes items in batches of MaxBatchSize. A batch is sent only
// after the previous one has been acknowledged; the first failure stops the write and is
// reported as *board.PartialBatchError with the number of acknowledged batches.
func (c *Client) AddContent(ctx context.Context, channel board.Channel, items []board.Item) ([]board.Content, error) {
	target, err := c.channelURL(channel)
	if err != nil {
		return nil, err
	}
	keyURL := strings.TrimSpace(channel.DefaultEncryptionKeyURL)
	if keyURL == "" {
		return nil, board.ErrMissingEncryptionKey
	}
	batches := Chunk(items, MaxBatchSize)
	written := make([]board.Content, 0, len(items))
	for i, batch := range batches {
		out, err := c.addBatch(ctx, target, keyURL, batch)
		observability.RecordPersistenceBatch(err == nil)
		if err != nil {
			log.Warn().
				Str("channel", channel.ChannelID).
				Int("batch", i+1).
				Int("batches", len(batches)).
				Err(err).
				Msg("content batch failed")
			return written, &board.PartialBatchError{Completed: i, Total: len(batches), Err: err}
		}
		written = append(written, out...)
	}
	return written, nil
}

func (c *Client) addBatch(ctx context.Context, target, keyURL string, batch []board.Item) ([]board.Content, error) {
	contents, err := c.codec.EncryptItems(ctx, keyURL, batch)
	if err != nil {
		return nil, err
	}
	var out contentList
	if _, err := c.do(ctx, request{method: http.MethodPost, target: target + "/contents", body: contents}, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// AddImage uploads the image and adds a single FILE item referencing it.
func (c *Client) AddImage(ctx context.Context, channel board.Channel, image Image) ([]board.Content, error) {
	if c.uploader == nil {
		return nil, ErrMissingUploader
	}
	scr, err := c.uploader.Upload(ctx, channel, image)
	if err != nil {
		return nil, fmt.Errorf("persistence: upload image: %w", err)
	}
	if scr.MimeType == "" {
		scr.MimeType = image.MimeType
	}
	if scr.Size == 0 {
		scr.Size = image.Size
	}
	return c.AddContent(ctx, channel, []board.Item{{
		File: &board.FileRef{Type: "image", DisplayName: image.Name, SCR: scr},
	}})
}

// GetContents fetches and decrypts one page. A zero ContentsLimit uses the configured page size.
func (c *Client) GetContents(ctx context.Context, channel board.Channel, query ContentQuery) (Page, error) {
	target, err := c.channelURL(channel)
	if err != nil {
		return Page{}, err
	}
	if query.ContentsLimit <= 0 {
		query.ContentsLimit = c.cfg.ContentsPerPage
	}
	return c.fetchPage(ctx, request{method: http.MethodGet, target: target + "/contents", query: query.values()})
}

// GetAllContent follows the next-link chain until it ends and returns every decrypted item
// in service order. The first page defaults to MaxBatchSize items.
func (c *Client) GetAllContent(ctx context.Context, channel board.Channel, query ContentQuery) ([]board.Item, error) {
	if query.ContentsLimit <= 0 {
		query.ContentsLimit = MaxBatchSize
	}
	page, err := c.GetContents(ctx, channel, query)
	if err != nil {
		return nil, err
	}
	items := page.Items
	seen := make(map[string]struct{})
	for pages := 1; page.Next() != ""; pages++ {
		next := page.Next()
		if _, dup := seen[next]; dup {
			return items, fmt.Errorf("%w: next link %s repeated", board.ErrPaginationInconsistency, next)
		}
		if pages >= c.cfg.MaxPages {
			return items, fmt.Errorf("%w: exceeded %d pages", board.ErrPaginationInconsistency, c.cfg.MaxPages)
		}
		seen[next] = struct{}{}
		page, err = c.fetchPage(ctx, request{method: http.MethodGet, target: next})
		if err != nil {
			return items, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

func (c *Client) fetchPage(ctx context.Context, r request) (Page, error) {
	var list contentList
	header, err := c.do(ctx, r, &list)
	if err != nil {
		return Page{}, err
	}
	items, err := c.codec.DecryptItems(ctx, list.Items)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Links: ParseLinkHeader(header.Get("Link"))}, nil
}

// DeleteContent removes a single content item by its contentUrl.
func (c *Client) DeleteContent(ctx context.Context, channel board.Channel, content board.Content) error {
	target := strings.TrimSpace(content.ContentURL)
	if target == "" {
		base, err := c.channelURL(channel)
		if err != nil {
			return err
		}
		if content.ContentID == "" {
			return fmt.Errorf("persistence: content missing id and url")
		}
		target = base + "/contents/" + content.ContentID
	}
	_, err := c.do(ctx, request{method: http.MethodDelete, target: target}, nil)
	return err
}

// DeleteAllContent clears every content item of the channel.
func (c *Client) DeleteAllContent(ctx context.Context, channel board.Channel) error {
	target, err := c.channelURL(channel)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, request{method: http.MethodDelete, target: target + "/contents"}, nil)
	return err
}
