package persistence

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/danmuck/boardsync/internal/board"
)

// ChannelList is one page of channels with its parsed Link header.
type ChannelList struct {
	Items []board.Channel   `json:"items"`
	Links map[string]string `json:"-"`
}

type ListChannelsOptions struct {
	ChannelsLimit int
}

// CreateChannel creates a channel bound to the conversation's ACL and key resource.
func (c *Client) CreateChannel(ctx context.Context, conversation board.Conversation, channel board.Channel) (board.Channel, error) {
	if strings.TrimSpace(conversation.ACLURL) == "" {
		return board.Channel{}, errors.New("persistence: conversation missing aclUrl")
	}
	channel.ACLURLLink = conversation.ACLURL
	channel.KMSMessage = &board.KMSMessage{
		Method:  "create",
		URI:     "/resources",
		UserIDs: []string{conversation.KMSResourceObjectURL},
		KeyURIs: []string{},
	}
	var out board.Channel
	if _, err := c.do(ctx, request{method: http.MethodPost, target: "/channels", body: channel}, &out); err != nil {
		return board.Channel{}, err
	}
	return out, nil
}

func (c *Client) GetChannel(ctx context.Context, channel board.Channel) (board.Channel, error) {
	target, err := c.channelURL(channel)
	if err != nil {
		return board.Channel{}, err
	}
	var out board.Channel
	if _, err := c.do(ctx, request{method: http.MethodGet, target: target}, &out); err != nil {
		return board.Channel{}, err
	}
	return out, nil
}

// ListChannels lists the conversation's channels, one page at a time.
func (c *Client) ListChannels(ctx context.Context, conversation board.Conversation, opts ListChannelsOptions) (ChannelList, error) {
	if strings.TrimSpace(conversation.ACLURL) == "" {
		return ChannelList{}, errors.New("persistence: conversation is required")
	}
	q := url.Values{}
	q.Set("aclUrlLink", conversation.ACLURL)
	if opts.ChannelsLimit > 0 {
		q.Set("channelsLimit", strconv.Itoa(opts.ChannelsLimit))
	}
	var out ChannelList
	header, err := c.do(ctx, request{method: http.MethodGet, target: "/channels", query: q}, &out)
	if err != nil {
		return ChannelList{}, err
	}
	out.Links = ParseLinkHeader(header.Get("Link"))
	return out, nil
}

func (c *Client) DeleteChannel(ctx context.Context, channel board.Channel) error {
	target, err := c.channelURL(channel)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, request{method: http.MethodDelete, target: target}, nil)
	return err
}
