package persistence

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/boardsync/internal/auth"
	"github.com/danmuck/boardsync/internal/board"
	"github.com/danmuck/boardsync/internal/codec"
	"github.com/danmuck/boardsync/internal/protocol/session"
	"github.com/danmuck/boardsync/internal/testutil/boardtest"
	"github.com/danmuck/boardsync/internal/testutil/fakecrypto"
	"github.com/danmuck/boardsync/internal/testutil/testlog"
)

const testToken = "token-1"

type fixture struct {
	srv    *boardtest.Server
	client *Client
	crypto *fakecrypto.Encrypter
	codec  *codec.Codec
}

func newFixture(t *testing.T, cfg Config, opts ...Option) fixture {
	t.Helper()
	srv := boardtest.New(t, auth.StaticToken{Token: testToken})
	crypto := fakecrypto.New()
	cd := codec.New(crypto, "TEST")
	cfg.ServiceURL = srv.URL()
	client, err := New(cfg, auth.StaticToken{Token: testToken}, cd, opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return fixture{srv: srv, client: client, crypto: crypto, codec: cd}
}

func textItems(n int) []board.Item {
	items := make([]board.Item, n)
	for i := range items {
		items[i] = board.Item{Payload: fmt.Sprintf(`{"curve":%d}`, i)}
	}
	return items
}

func (f fixture) seed(t *testing.T, channel board.Channel, n int) {
	t.Helper()
	contents, err := f.codec.EncryptItems(context.Background(), channel.DefaultEncryptionKeyURL, textItems(n))
	if err != nil {
		t.Fatalf("encrypt seed: %v", err)
	}
	f.srv.Seed(channel.ChannelID, contents...)
}

func (f fixture) contentGets(channelID string) int {
	n := 0
	for _, r := range f.srv.Requests() {
		if r.Method == http.MethodGet && r.Path == "/channels/"+channelID+"/contents" {
			n++
		}
	}
	return n
}

func TestChunk(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		n     int
		sizes []int
	}{
		{0, nil},
		{1, []int{1}},
		{150, []int{150}},
		{151, []int{150, 1}},
		{400, []int{150, 150, 100}},
	}
	for _, tc := range cases {
		chunks := Chunk(textItems(tc.n), MaxBatchSize)
		if len(chunks) != len(tc.sizes) {
			t.Fatalf("n=%d: got %d chunks want %d", tc.n, len(chunks), len(tc.sizes))
		}
		next := 0
		for i, chunk := range chunks {
			if len(chunk) != tc.sizes[i] {
				t.Fatalf("n=%d chunk %d: size %d want %d", tc.n, i, len(chunk), tc.sizes[i])
			}
			for _, item := range chunk {
				if item.Payload != fmt.Sprintf(`{"curve":%d}`, next) {
					t.Fatalf("n=%d: order broken at %d", tc.n, next)
				}
				next++
			}
		}
	}
}

func TestAddContentBatchesInOrder(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, Config{})
	f.srv.ContentPostDelay = 20 * time.Millisecond
	channel := f.srv.AddChannel("board-1")

	written, err := f.client.AddContent(context.Background(), channel, textItems(400))
	if err != nil {
		t.Fatalf("add content: %v", err)
	}
	posts := f.srv.ContentPosts()
	if fmt.Sprint(posts) != "[150 150 100]" {
		t.Fatalf("unexpected batches: %v", posts)
	}
	if got := f.srv.MaxContentPostsInFlight(); got != 1 {
		t.Fatalf("a batch must wait for the previous response, saw %d posts in flight", got)
	}
	if len(written) != 400 {
		t.Fatalf("expected 400 written, got %d", len(written))
	}
	items, err := f.codec.DecryptItems(context.Background(), f.srv.Contents("board-1"))
	if err != nil {
		t.Fatalf("decrypt stored: %v", err)
	}
	for i, item := range items {
		if item.Payload != fmt.Sprintf(`{"curve":%d}`, i) {
			t.Fatalf("stored item %d out of order: %s", i, item.Payload)
		}
		if item.Device != "TEST" {
			t.Fatalf("device not stamped: %+v", item)
		}
	}
}

func TestAddContentStopsAfterFailedBatch(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, Config{})
	f.srv.FailContentPost = 2
	channel := f.srv.AddChannel("board-1")

	written, err := f.client.AddContent(context.Background(), channel, textItems(400))
	var partial *board.PartialBatchError
	if !errors.As(err, &partial) {
		t.Fatalf("expected partial batch error, got %v", err)
	}
	if partial.Completed != 1 || partial.Total != 3 {
		t.Fatalf("unexpected progress: %+v", partial)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected wrapped http error, got %v", err)
	}
	if got := len(f.srv.ContentPosts()); got != 2 {
		t.Fatalf("third batch must not be sent, saw %d posts", got)
	}
	if len(written) != 150 {
		t.Fatalf("expected first batch acknowledged, got %d", len(written))
	}
}

func TestAddContentEncryptionFailureIsPartial(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, Config{})
	f.crypto.FailOn = `{"curve":200}`
	channel := f.srv.AddChannel("board-1")

	_, err := f.client.AddContent(context.Background(), channel, textItems(400))
	var partial *board.PartialBatchError
	if !errors.As(err, &partial) || partial.Completed != 1 {
		t.Fatalf("expected failure in second batch, got %v", err)
	}
	var encErr *board.EncryptionError
	if !errors.As(err, &encErr) || encErr.Index != 50 {
		t.Fatalf("expected encryption error at batch index 50, got %v", err)
	}
	if !errors.Is(err, fakecrypto.ErrInjected) {
		t.Fatalf("expected injected cause, got %v", err)
	}
	if got := len(f.srv.ContentPosts()); got != 1 {
		t.Fatalf("expected only first batch posted, got %d", got)
	}
}

func TestAddContentRequiresKey(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, Config{})
	channel := f.srv.AddChannel("board-1")
	channel.DefaultEncryptionKeyURL = ""
	if _, err := f.client.AddContent(context.Background(), channel, textItems(1)); !errors.Is(err, board.ErrMissingEncryptionKey) {
		t.Fatalf("expected missing key, got %v", err)
	}
}

func TestGetAllContentFollowsNextLinks(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, Config{})
	channel := f.srv.AddChannel("board-1")
	f.seed(t, channel, 400)

	items, err := f.client.GetAllContent(context.Background(), channel, ContentQuery{})
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(items) != 400 {
		t.Fatalf("expected 400 items, got %d", len(items))
	}
	for i, item := range items {
		if item.Payload != fmt.Sprintf(`{"curve":%d}`, i) {
			t.Fatalf("item %d out of order: %s", i, item.Payload)
		}
	}
	if got := f.contentGets("board-1"); got != 3 {
		t.Fatalf("expected 3 page fetches, got %d", got)
	}
	if got := f.srv.Requests()[0].Query.Get("contentsLimit"); got != "150" {
		t.Fatalf("expected default contentsLimit 150, got %q", got)
	}
}

func TestGetAllContentEmptyChannel(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, Config{})
	channel := f.srv.AddChannel("empty")

	items, err := f.client.GetAllContent(context.Background(), channel, ContentQuery{})
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
	if got := f.contentGets("empty"); got != 1 {
		t.Fatalf("expected a single fetch, got %d", got)
	}
}

func TestGetAllContentRejectsRepeatedLink(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, Config{})
	f.srv.LoopNextLink = true
	channel := f.srv.AddChannel("board-1")
	f.seed(t, channel, 3)

	_, err := f.client.GetAllContent(context.Background(), channel, ContentQuery{})
	if !errors.Is(err, board.ErrPaginationInconsistency) {
		t.Fatalf("expected pagination inconsistency, got %v", err)
	}
}

func TestGetAllContentPageCeiling(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, Config{MaxPages: 2})
	channel := f.srv.AddChannel("board-1")
	f.seed(t, channel, 400)

	_, err := f.client.GetAllContent(context.Background(), channel, ContentQuery{})
	if !errors.Is(err, board.ErrPaginationInconsistency) {
		t.Fatalf("expected page ceiling error, got %v", err)
	}
	if got := f.contentGets("board-1"); got != 2 {
		t.Fatalf("expected 2 fetches before ceiling, got %d", got)
	}
}

func TestGetContentsPageSize(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, Config{})
	channel := f.srv.AddChannel("board-1")
	f.seed(t, channel, 25)

	page, err := f.client.GetContents(context.Background(), channel, ContentQuery{})
	if err != nil {
		t.Fatalf("get contents: %v", err)
	}
	if len(page.Items) != DefaultContentsPerPage || page.Next() == "" {
		t.Fatalf("unexpected first page: %d items next=%q", len(page.Items), page.Next())
	}

	page, err = f.client.GetContents(context.Background(), channel, ContentQuery{ContentsLimit: 30, SinceDate: "1459194454040"})
	if err != nil {
		t.Fatalf("get contents: %v", err)
	}
	if len(page.Items) != 25 || page.Next() != "" {
		t.Fatalf("unexpected page: %d items next=%q", len(page.Items), page.Next())
	}
	last := f.srv.Requests()[len(f.srv.Requests())-1]
	if last.Query.Get("sinceDate") != "1459194454040" || last.Query.Get("contentsLimit") != "30" {
		t.Fatalf("query not forwarded: %v", last.Query)
	}
}

func TestParseContentQueryDropsUnknownKeys(t *testing.T) {
	testlog.Start(t)
	q := ParseContentQuery(url.Values{
		"sinceDate":     {"123"},
		"contentsLimit": {"40"},
		"channelsLimit": {"9"},
		"evil":          {"1"},
	})
	if q != (ContentQuery{SinceDate: "123", ContentsLimit: 40}) {
		t.Fatalf("unexpected query: %+v", q)
	}
	if got := q.values().Encode(); got != "contentsLimit=40&sinceDate=123" {
		t.Fatalf("unexpected encoding: %s", got)
	}
	if q := ParseContentQuery(url.Values{"contentsLimit": {"abc"}}); q.ContentsLimit != 0 {
		t.Fatalf("invalid limit must be dropped: %+v", q)
	}
}

func TestParseLinkHeader(t *testing.T) {
	testlog.Start(t)
	header := `<https://board/channels/1/contents?cursor=2>; rel="next", <https://board/channels/1/contents>; rel="first prev", garbage`
	links := ParseLinkHeader(header)
	if links["next"] != "https://board/channels/1/contents?cursor=2" {
		t.Fatalf("bad next: %v", links)
	}
	if links["first"] != "https://board/channels/1/contents" || links["prev"] != links["first"] {
		t.Fatalf("bad multi rel: %v", links)
	}
	if len(ParseLinkHeader("")) != 0 {
		t.Fatalf("empty header must yield no links")
	}
}

func TestUnauthorizedIsAuthorizationError(t *testing.T) {
	testlog.Start(t)
	srv := boardtest.New(t, auth.StaticToken{Token: testToken})
	client, err := New(Config{ServiceURL: srv.URL()}, auth.StaticToken{Token: "wrong"}, codec.New(fakecrypto.New(), "TEST"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Ping(context.Background())
	if !errors.Is(err, board.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 http error, got %v", err)
	}
}

func TestRequestsCarryTrackingID(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, Config{})
	if _, err := f.client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := f.client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	reqs := f.srv.Requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	for _, r := range reqs {
		if !strings.HasPrefix(r.TrackingID, "boardsync_") {
			t.Fatalf("missing tracking id: %+v", r)
		}
	}
	if reqs[0].TrackingID == reqs[1].TrackingID {
		t.Fatalf("tracking ids must be unique per request")
	}
}

func TestChannelLifecycle(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, Config{})
	conversation := board.Conversation{ID: "conv-1", ACLURL: "https://acl/conv-1", KMSResourceObjectURL: "kms://resources/conv-1"}

	created, err := f.client.CreateChannel(context.Background(), conversation, board.Channel{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ChannelID == "" || created.ACLURLLink != conversation.ACLURL {
		t.Fatalf("unexpected channel: %+v", created)
	}
	if _, err := f.client.CreateChannel(context.Background(), conversation, board.Channel{}); err != nil {
		t.Fatalf("create second: %v", err)
	}

	got, err := f.client.GetChannel(context.Background(), board.Channel{ChannelID: created.ChannelID})
	if err != nil || got.ChannelURL != created.ChannelURL {
		t.Fatalf("get channel got=%+v err=%v", got, err)
	}

	list, err := f.client.ListChannels(context.Background(), conversation, ListChannelsOptions{ChannelsLimit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Items) != 1 || list.Links["next"] == "" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if _, err := f.client.ListChannels(context.Background(), board.Conversation{}, ListChannelsOptions{}); err == nil {
		t.Fatalf("expected conversation required error")
	}

	if err := f.client.DeleteChannel(context.Background(), created); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var httpErr *HTTPError
	if _, err := f.client.GetChannel(context.Background(), created); !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %v", err)
	}
	if _, err := f.client.GetChannel(context.Background(), board.Channel{}); !errors.Is(err, ErrMissingChannel) {
		t.Fatalf("expected missing channel, got %v", err)
	}
}

func TestDeleteContent(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, Config{})
	channel := f.srv.AddChannel("board-1")
	written, err := f.client.AddContent(context.Background(), channel, textItems(3))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := f.client.DeleteContent(context.Background(), channel, written[1]); err != nil {
		t.Fatalf("delete content: %v", err)
	}
	if got := len(f.srv.Contents("board-1")); got != 2 {
		t.Fatalf("expected 2 remaining, got %d", got)
	}
	if err := f.client.DeleteAllContent(context.Background(), channel); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if got := len(f.srv.Contents("board-1")); got != 0 {
		t.Fatalf("expected empty channel, got %d", got)
	}
}

type fakeUploader struct {
	calls int
}

func (u *fakeUploader) Upload(ctx context.Context, channel board.Channel, image Image) (board.SCR, error) {
	u.calls++
	return board.SCR{Loc: "https://files/" + channel.ChannelID + "/" + image.Name, Key: "k"}, nil
}

func TestAddImage(t *testing.T) {
	testlog.Start(t)
	up := &fakeUploader{}
	f := newFixture(t, Config{}, WithUploader(up))
	channel := f.srv.AddChannel("board-1")

	_, err := f.client.AddImage(context.Background(), channel, Image{Name: "cat.png", MimeType: "image/png", Size: 2048, Data: strings.NewReader("png")})
	if err != nil {
		t.Fatalf("add image: %v", err)
	}
	stored := f.srv.Contents("board-1")
	if len(stored) != 1 || stored[0].Type != board.ContentTypeFile {
		t.Fatalf("unexpected stored contents: %+v", stored)
	}
	item, err := f.codec.DecryptItem(context.Background(), stored[0])
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if item.File.DisplayName != "cat.png" || item.File.SCR.MimeType != "image/png" || item.File.SCR.Size != 2048 {
		t.Fatalf("unexpected file: %+v", item.File)
	}

	noUpload := newFixture(t, Config{})
	if _, err := noUpload.client.AddImage(context.Background(), channel, Image{}); !errors.Is(err, ErrMissingUploader) {
		t.Fatalf("expected missing uploader, got %v", err)
	}
}

func TestRegistrations(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, Config{})
	f.srv.WebSocketURL = "ws://socket.example/board"
	f.srv.SharedWebSocket = true

	resp, err := f.client.Register(context.Background(), session.Registration{Bindings: []string{"board.a"}})
	if err != nil || resp.WebSocketURL != "ws://socket.example/board" {
		t.Fatalf("register got=%+v err=%v", resp, err)
	}
	if _, err := f.client.Register(context.Background(), session.Registration{}); !errors.Is(err, session.ErrInvalidRegistration) {
		t.Fatalf("expected invalid registration, got %v", err)
	}

	directive, err := f.client.RegisterShared(context.Background(), session.SharedRegistration{
		ClusterURL:   "https://cluster",
		WebSocketURL: "ws://primary",
		Binding:      "board.a",
	})
	if err != nil {
		t.Fatalf("register shared: %v", err)
	}
	if !directive.SharedWebSocket || directive.Action != session.ActionReplace || directive.Binding != "board.a" {
		t.Fatalf("unexpected directive: %+v", directive)
	}
	if _, err := f.client.UnregisterShared(context.Background(), session.SharedRegistration{Binding: "board.a"}); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	regs := f.srv.Registrations()
	if len(regs) != 2 || regs[0].Action != session.ActionReplace || regs[1].Action != session.ActionRemove {
		t.Fatalf("unexpected registrations: %+v", regs)
	}
}

func TestNewRequiresServiceURL(t *testing.T) {
	testlog.Start(t)
	if _, err := New(Config{}, nil, nil); !errors.Is(err, ErrMissingServiceURL) {
		t.Fatalf("expected missing service url, got %v", err)
	}
}
