// Package boardtest is an in-memory board REST service for tests.
package boardtest

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/boardsync/internal/auth"
	"github.com/danmuck/boardsync/internal/board"
	"github.com/danmuck/boardsync/internal/observability"
	"github.com/danmuck/boardsync/internal/protocol/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// maxBatchSize mirrors the service-side content list limit.
const maxBatchSize = 150

// Request is one request observed by the service.
type Request struct {
	Method     string
	Path       string
	Query      url.Values
	TrackingID string
}

type channelState struct {
	channel  board.Channel
	contents []board.Content
	nextID   int
}

// Server is a fake board service. Exported fields configure behaviour and may be set
// before the first request.
type Server struct {
	// FailContentPost makes the n-th (1-based) content POST answer 500.
	FailContentPost int
	// LoopNextLink makes every contents page advertise the same next link.
	LoopNextLink bool
	// SharedWebSocket is answered to shared registrations.
	SharedWebSocket bool
	// WebSocketURL is answered to every registration.
	WebSocketURL string
	// ContentPostDelay holds every content POST before it is processed.
	ContentPostDelay time.Duration

	postsInFlight    atomic.Int32
	maxPostsInFlight atomic.Int32

	mu            sync.Mutex
	validator     auth.Validator
	httpServer    *httptest.Server
	channels      map[string]*channelState
	requests      []Request
	contentPosts  []int
	registrations []session.SharedRegistration
}

// New starts the service and closes it when the test ends. A nil validator accepts any token.
func New(t testing.TB, validator auth.Validator) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := &Server{
		validator:    validator,
		channels:     make(map[string]*channelState),
		WebSocketURL: "ws://127.0.0.1:0/socket",
	}
	r := gin.New()
	r.Use(gin.Recovery(), observability.RequestLogger(log.Logger), observability.RequestMetricsMiddleware("boardtest"), s.record, s.authorize)
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": "0.0.1"})
	})
	r.POST("/channels", s.createChannel)
	r.GET("/channels", s.listChannels)
	r.GET("/channels/:id", s.getChannel)
	r.DELETE("/channels/:id", s.deleteChannel)
	r.POST("/channels/:id/contents", s.addContents)
	r.GET("/channels/:id/contents", s.getContents)
	r.DELETE("/channels/:id/contents", s.deleteAllContents)
	r.DELETE("/channels/:id/contents/:contentId", s.deleteContent)
	r.POST("/registrations", s.register)

	s.httpServer = httptest.NewServer(r)
	t.Cleanup(s.httpServer.Close)
	return s
}

func (s *Server) URL() string {
	return s.httpServer.URL
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// ContentPosts returns the item count of each content POST, in arrival order.
func (s *Server) ContentPosts() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.contentPosts...)
}

// MaxContentPostsInFlight is the highest number of content POSTs seen overlapping.
func (s *Server) MaxContentPostsInFlight() int {
	return int(s.maxPostsInFlight.Load())
}

func (s *Server) Registrations() []session.SharedRegistration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]session.SharedRegistration(nil), s.registrations...)
}

// AddChannel installs a channel directly and returns it with its URL and key filled in.
func (s *Server) AddChannel(id string) board.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addChannelLocked(board.Channel{ChannelID: id})
}

// Seed appends stored contents to a channel without going through the API.
func (s *Server) Seed(channelID string, contents ...board.Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.channels[channelID]
	if !ok {
		return
	}
	for _, content := range contents {
		s.storeLocked(st, content)
	}
}

func (s *Server) Contents(channelID string) []board.Content {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.channels[channelID]
	if !ok {
		return nil
	}
	return append([]board.Content(nil), st.contents...)
}

func (s *Server) record(c *gin.Context) {
	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method:     c.Request.Method,
		Path:       c.Request.URL.Path,
		Query:      c.Request.URL.Query(),
		TrackingID: c.GetHeader("TrackingID"),
	})
	s.mu.Unlock()
	c.Next()
}

func (s *Server) authorize(c *gin.Context) {
	if s.validator == nil {
		c.Next()
		return
	}
	token, err := auth.BearerToken(c.GetHeader("Authorization"))
	if err == nil {
		err = s.validator.Validate(token)
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func (s *Server) addChannelLocked(ch board.Channel) board.Channel {
	if ch.ChannelID == "" {
		ch.ChannelID = uuid.NewString()
	}
	ch.ChannelURL = s.httpServer.URL + "/channels/" + ch.ChannelID
	if ch.DefaultEncryptionKeyURL == "" {
		ch.DefaultEncryptionKeyURL = "kms://keys/" + ch.ChannelID
	}
	ch.KMSMessage = nil
	s.channels[ch.ChannelID] = &channelState{channel: ch}
	return ch
}

func (s *Server) storeLocked(st *channelState, content board.Content) board.Content {
	st.nextID++
	content.ContentID = strconv.Itoa(st.nextID)
	content.ContentURL = st.channel.ChannelURL + "/contents/" + content.ContentID
	st.contents = append(st.contents, content)
	return content
}

func (s *Server) channel(c *gin.Context) (*channelState, bool) {
	st, ok := s.channels[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
	}
	return st, ok
}

func (s *Server) createChannel(c *gin.Context) {
	var req board.Channel
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ACLURLLink == "" || req.KMSMessage == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "aclUrlLink and kmsMessage required"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusCreated, s.addChannelLocked(req))
}

func (s *Server) listChannels(c *gin.Context) {
	acl := c.Query("aclUrlLink")
	if acl == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "aclUrlLink required"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("channelsLimit"))
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]board.Channel, 0)
	for _, st := range s.channels {
		if st.channel.ACLURLLink != acl {
			continue
		}
		items = append(items, st.channel)
		if limit > 0 && len(items) == limit {
			c.Header("Link", "<"+s.httpServer.URL+"/channels?aclUrlLink="+url.QueryEscape(acl)+">; rel=\"next\"")
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) getChannel(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.channel(c); ok {
		c.JSON(http.StatusOK, st.channel)
	}
}

func (s *Server) deleteChannel(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channel(c); ok {
		delete(s.channels, c.Param("id"))
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) addContents(c *gin.Context) {
	n := s.postsInFlight.Add(1)
	defer s.postsInFlight.Add(-1)
	for {
		peak := s.maxPostsInFlight.Load()
		if n <= peak || s.maxPostsInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	if s.ContentPostDelay > 0 {
		time.Sleep(s.ContentPostDelay)
	}

	var contents []board.Content
	if err := c.ShouldBindJSON(&contents); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.channel(c)
	if !ok {
		return
	}
	s.contentPosts = append(s.contentPosts, len(contents))
	if s.FailContentPost > 0 && len(s.contentPosts) == s.FailContentPost {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "injected failure"})
		return
	}
	if len(contents) > maxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many contents"})
		return
	}
	out := make([]board.Content, 0, len(contents))
	for _, content := range contents {
		out = append(out, s.storeLocked(st, content))
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (s *Server) getContents(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.channel(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("contentsLimit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad contentsLimit"})
		return
	}
	offset, _ := strconv.Atoi(c.Query("cursor"))
	if offset < 0 || offset > len(st.contents) {
		offset = len(st.contents)
	}
	end := min(offset+limit, len(st.contents))
	if end < len(st.contents) || s.LoopNextLink {
		q := url.Values{}
		q.Set("contentsLimit", strconv.Itoa(limit))
		q.Set("cursor", strconv.Itoa(end))
		if s.LoopNextLink {
			q.Set("cursor", "0")
		}
		c.Header("Link", "<"+st.channel.ChannelURL+"/contents?"+q.Encode()+">; rel=\"next\"")
	}
	c.JSON(http.StatusOK, gin.H{"items": st.contents[offset:end]})
}

func (s *Server) deleteAllContents(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.channel(c); ok {
		st.contents = nil
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) deleteContent(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.channel(c)
	if !ok {
		return
	}
	id := c.Param("contentId")
	for i, content := range st.contents {
		if content.ContentID == id {
			st.contents = append(st.contents[:i], st.contents[i+1:]...)
			c.Status(http.StatusNoContent)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "content not found"})
}

func (s *Server) register(c *gin.Context) {
	var req session.SharedRegistration
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.Action == "" {
		c.JSON(http.StatusOK, session.RegistrationResponse{
			WebSocketURL: s.WebSocketURL,
			Bindings:     req.Bindings,
		})
		return
	}
	s.registrations = append(s.registrations, req)
	binding := req.Binding
	if binding == "" && len(req.Bindings) > 0 {
		binding = req.Bindings[0]
	}
	c.JSON(http.StatusOK, session.BindingDirective{
		ClusterURL:      req.ClusterURL,
		Binding:         binding,
		WebSocketURL:    s.WebSocketURL,
		SharedWebSocket: s.SharedWebSocket && req.Action == session.ActionReplace,
		Action:          req.Action,
	})
}
