// Package chattest runs an in-process fake of the chat backend: the REST
// endpoints under /api/v1 and the event channel at /ws. Tests use it to
// drive the client end to end and to inspect what the client sent.
package chattest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/gochat-client/internal/chat"
)

// SessionCookie is the name of the credential cookie the fake issues.
const SessionCookie = "chat_session"

// Join records one joinRoom event.
type Join struct {
	User string
	Room string
}

type options struct {
	wrapBacklog        bool
	roomMessagesOnJoin bool
	rateBurst          int
	rateInterval       time.Duration
	logger             zerolog.Logger
}

// Option customizes a Server.
type Option func(*options)

// WithWrappedBacklog serves backlogs as {"messages": [...]} instead of a bare list.
func WithWrappedBacklog() Option {
	return func(o *options) { o.wrapBacklog = true }
}

// WithRoomMessagesOnJoin makes the channel answer every joinRoom with a
// roomMessages event carrying the room's backlog.
func WithRoomMessagesOnJoin() Option {
	return func(o *options) { o.roomMessagesOnJoin = true }
}

// WithRateLimit sets the per-connection chat message token bucket.
func WithRateLimit(burst int, interval time.Duration) Option {
	return func(o *options) {
		o.rateBurst = burst
		o.rateInterval = interval
	}
}

// WithLogger routes the fake's logs to logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

type backlogOverride struct {
	delay  time.Duration
	status int
	body   *string
}

// Server is the fake backend. The zero value is not usable; call NewServer.
type Server struct {
	*httptest.Server

	opts     options
	hub      *hub
	upgrader websocket.Upgrader

	mu            sync.Mutex
	users         map[string]string
	sessions      map[string]string
	backlogs      map[string][]chat.Message
	overrides     map[string]backlogOverride
	loginBody     *string
	logoutStatus  int
	joins         []Join
	received      []chat.OutgoingMessage
	requestIDs    []string
	backlogCalls  map[string]int
	profileCalls  int
	logoutCalls   int
	channelDenied int
	throttled     int
}

// NewServer starts a fake backend and closes it when t finishes.
func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()

	o := options{rateBurst: 100, rateInterval: time.Second, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		opts:         o,
		hub:          newHub(o.logger),
		users:        make(map[string]string),
		sessions:     make(map[string]string),
		backlogs:     make(map[string][]chat.Message),
		overrides:    make(map[string]backlogOverride),
		backlogCalls: make(map[string]int),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	go s.hub.run()
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recordRequestID)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/users/profile", s.handleProfile)
		r.Post("/users/login", s.handleLogin)
		r.Post("/users/register", s.handleRegister)
		r.Post("/users/logout", s.handleLogout)
		r.Get("/chat/messages/{room}", s.handleMessages)
	})
	r.Get("/ws", s.handleChannel)
	return r
}

// Close stops the hub, then the HTTP server.
func (s *Server) Close() {
	s.hub.shutdown()
	s.Server.Close()
}

// WSURL is the channel endpoint.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

// AddUser registers an account.
func (s *Server) AddUser(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = password
}

// SetBacklog replaces a room's stored messages.
func (s *Server) SetBacklog(room string, msgs []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backlogs[room] = append([]chat.Message(nil), msgs...)
}

// SetBacklogDelay holds a room's backlog response for d (or until the
// request is cancelled).
func (s *Server) SetBacklogDelay(room string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.overrides[room]
	o.delay = d
	s.overrides[room] = o
}

// FailBacklog answers a room's backlog requests with status.
func (s *Server) FailBacklog(room string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.overrides[room]
	o.status = status
	s.overrides[room] = o
}

// SetBacklogBody answers a room's backlog requests with a raw body.
func (s *Server) SetBacklogBody(room, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.overrides[room]
	o.body = &body
	s.overrides[room] = o
}

// SetLoginBody makes successful logins answer with a raw body.
func (s *Server) SetLoginBody(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginBody = &body
}

// FailLogout answers logout requests with status.
func (s *Server) FailLogout(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutStatus = status
}

// Push delivers one chatMessage event to every peer in room. A non-empty
// msg.Room is sent as is, so tests can push mismatched room tags.
func (s *Server) Push(room string, msg chat.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	s.hub.submit(roomBroadcast{Room: room, Payload: encodeEvent("chatMessage", msg)})
}

// PushRoomMessages delivers one roomMessages event to every peer in room.
func (s *Server) PushRoomMessages(room string, payload any) {
	s.hub.submit(roomBroadcast{Room: room, Payload: encodeEvent("roomMessages", payload)})
}

// DropConnections closes every channel connection from the server side.
func (s *Server) DropConnections() {
	s.hub.shutdownPeers()
}

// Joins returns the joinRoom events received so far.
func (s *Server) Joins() []Join {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Join(nil), s.joins...)
}

// Received returns the chatMessage events received so far.
func (s *Server) Received() []chat.OutgoingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.OutgoingMessage(nil), s.received...)
}

// RequestIDs returns the X-Request-ID header of every HTTP request seen.
func (s *Server) RequestIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requestIDs...)
}

// BacklogCalls counts backlog requests for room.
func (s *Server) BacklogCalls(room string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backlogCalls[room]
}

// ProfileCalls counts profile requests.
func (s *Server) ProfileCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileCalls
}

// LogoutCalls counts logout requests.
func (s *Server) LogoutCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logoutCalls
}

// ChannelDenied counts channel handshakes rejected for missing credentials.
func (s *Server) ChannelDenied() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelDenied
}

// OpenConnections counts channel connections currently registered.
func (s *Server) OpenConnections() int {
	open, _ := s.hub.counts()
	return open
}

// TotalConnections counts channel connections accepted since start.
func (s *Server) TotalConnections() int {
	_, total := s.hub.counts()
	return total
}

// Throttled counts chat messages discarded by the per-connection rate limit.
func (s *Server) Throttled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.throttled
}

func (s *Server) recordThrottled() {
	s.mu.Lock()
	s.throttled++
	s.mu.Unlock()
}

func (s *Server) recordJoin(j Join) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joins = append(s.joins, j)
}

func (s *Server) recordReceived(m chat.OutgoingMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, m)
}

func (s *Server) appendBacklog(room string, msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backlogs[room] = append(s.backlogs[room], msg)
}

func (s *Server) backlog(room string) []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append([]chat.Message(nil), s.backlogs[room]...)
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return msgs
}

func (s *Server) recordRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Request-ID"); id != "" {
			s.mu.Lock()
			s.requestIDs = append(s.requestIDs, id)
			s.mu.Unlock()
		}
		next.ServeHTTP(w, r)
	})
}

// sessionUser resolves the request's credential cookie.
func (s *Server) sessionUser(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.sessions[cookie.Value]
	return user, ok
}

// checkOrigin only admits handshakes whose Origin is the server itself.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin, err := url.Parse(r.Header.Get("Origin"))
	if err != nil || origin.Host == "" {
		return false
	}
	self, err := url.Parse(s.URL)
	if err != nil {
		return false
	}
	return strings.EqualFold(origin.Scheme, self.Scheme) && strings.EqualFold(origin.Host, self.Host)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func userObject(username string) map[string]string {
	return map[string]string{"_id": uuid.NewSHA1(uuid.NameSpaceOID, []byte(username)).String(), "username": username}
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.profileCalls++
	s.mu.Unlock()

	user, ok := s.sessionUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userObject(user)})
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) startSession(w http.ResponseWriter, username string) {
	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = username
	s.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: token, Path: "/", HttpOnly: true})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	password, ok := s.users[creds.Username]
	loginBody := s.loginBody
	s.mu.Unlock()
	if !ok || password != creds.Password {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	s.startSession(w, creds.Username)
	if loginBody != nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(*loginBody))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"user": userObject(creds.Username)}})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Username == "" {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	_, exists := s.users[creds.Username]
	if !exists {
		s.users[creds.Username] = creds.Password
	}
	s.mu.Unlock()
	if exists {
		writeError(w, http.StatusConflict, "username taken")
		return
	}

	s.startSession(w, creds.Username)
	writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"user": userObject(creds.Username)}})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.logoutCalls++
	status := s.logoutStatus
	s.mu.Unlock()

	if status != 0 {
		writeError(w, status, "logout failed")
		return
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, cookie.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")

	s.mu.Lock()
	s.backlogCalls[room]++
	override := s.overrides[room]
	s.mu.Unlock()

	if _, ok := s.sessionUser(r); !ok {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}

	if override.delay > 0 {
		select {
		case <-time.After(override.delay):
		case <-r.Context().Done():
			return
		}
	}
	if override.status != 0 {
		writeError(w, override.status, "backlog unavailable")
		return
	}
	if override.body != nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(*override.body))
		return
	}

	msgs := s.backlog(room)
	if s.opts.wrapBacklog {
		writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(r)
	if !ok {
		s.mu.Lock()
		s.channelDenied++
		s.mu.Unlock()
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.opts.logger.Debug().Err(err).Msg("channel upgrade failed")
		return
	}
	s.hub.join(newPeer(conn, s, user))
}
