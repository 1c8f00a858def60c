package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"khwaaish/pkg/auth"
	"khwaaish/pkg/bus"
	"khwaaish/pkg/chat"
	"khwaaish/pkg/chatlog"
	"khwaaish/pkg/config"
	"khwaaish/pkg/flow"
	"khwaaish/pkg/lifecycle"
	"khwaaish/pkg/logger"
	"khwaaish/pkg/retailers"
)

const (
	chatIdleTTL     = 2 * time.Hour
	janitorInterval = 5 * time.Minute
	laneBuffer      = 32
)

// Server is the chat gateway: login, the WebSocket chat surface and the
// development proxy to the automation service.
type Server struct {
	server   *http.Server
	config   *config.Config
	bus      *bus.MessageBus
	chats    *chat.Manager
	auth     auth.Authenticator
	tokens   *auth.Tokens
	upgrader websocket.Upgrader
	proxy    http.Handler

	dispatch *lifecycle.LoopRunner
	deliver  *lifecycle.LoopRunner
	janitor  *lifecycle.LoopRunner

	mu      sync.Mutex
	conns   map[string]*connection
	lanes   map[string]*lane
	watched map[string]*chatlog.Log
	// owners binds a chat to the bearer token that logged it in.
	owners map[string]string
}

// lane applies one chat's actions in order. busy is set while a submit or
// confirm is queued or running.
type lane struct {
	actions chan bus.InboundMessage
	busy    atomic.Bool
}

func NewServer(cfg *config.Config) *Server {
	s := &Server{
		config: cfg,
		bus:    bus.NewMessageBus(),
		chats:  chat.NewManager(chat.NewFactory(cfg), retailers.Enabled(cfg)),
		auth:   auth.FromConfig(cfg),
		tokens: auth.NewTokens(cfg.TokenTTL()),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		dispatch: lifecycle.NewLoopRunner(),
		deliver:  lifecycle.NewLoopRunner(),
		janitor:  lifecycle.NewLoopRunner(),
		conns:    make(map[string]*connection),
		lanes:    make(map[string]*lane),
		watched:  make(map[string]*chatlog.Log),
		owners:   make(map[string]string),
	}
	if proxy, err := newProxy(cfg.API.Upstream); err != nil {
		logger.WarnCF("server", "API proxy disabled", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	} else {
		s.proxy = proxy
	}
	return s
}

// Handler returns the gateway's routes wrapped with CORS headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/auth/login", s.handleLogin)
	mux.HandleFunc("/auth/logout", s.handleLogout)
	mux.HandleFunc("/ws", s.handleWS)
	if s.proxy != nil {
		for _, prefix := range s.config.API.ProxyPrefixes {
			prefix = "/" + strings.Trim(prefix, "/")
			if prefix == "/" {
				continue
			}
			mux.Handle(prefix+"/", http.StripPrefix(prefix, s.proxy))
		}
	}
	mux.HandleFunc("/", s.handleRoot)
	return s.withCORS(mux)
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Gateway.Host, s.config.Gateway.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.startLoops()

	logger.InfoCF("server", "Starting HTTP server", map[string]interface{}{
		"addr":     addr,
		"upstream": s.config.API.Upstream,
	})

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("server", "HTTP server failed", map[string]interface{}{
				logger.FieldError: err.Error(),
			})
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.server != nil {
		logger.InfoC("server", "Stopping HTTP server")
		err = s.server.Shutdown(ctx)
	}
	s.closeConnections()
	s.stopLoops()
	return err
}

// Chats exposes the chat registry, mainly for status reporting.
func (s *Server) Chats() *chat.Manager {
	return s.chats
}

func (s *Server) startLoops() {
	s.dispatch.Start(lifecycle.WithContext(s.runDispatch))
	s.deliver.Start(lifecycle.WithContext(s.runDeliver))
	s.janitor.Start(lifecycle.Every(janitorInterval, s.prune))
}

func (s *Server) stopLoops() {
	s.janitor.Stop()
	s.dispatch.Stop()
	s.deliver.Stop()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Khwaaish Gateway Running\nChats: %d\nTime: %s", s.chats.Count(), time.Now().Format(time.RFC3339))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string     `json:"token"`
	State auth.State `json:"state"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	state, err := s.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		logger.WarnCF("server", "Login rejected", map[string]interface{}{
			"email": req.Email,
		})
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: s.tokens.Issue(state), State: state})
}

// handleLogout revokes the bearer token and logs out every chat it opened.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if token := bearerToken(r); token != "" {
		s.tokens.Revoke(token)
		s.logoutToken(token)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) login(ctx context.Context, e *chat.Engine, msg bus.InboundMessage) error {
	state, err := s.auth.Authenticate(ctx, msg.Email, msg.Password)
	if err != nil {
		return err
	}
	token := s.tokens.Issue(state)
	e.SetAuth(state)
	s.bind(e.ChatID(), token)
	s.bus.PublishOutbound(bus.OutboundMessage{
		ChatID: e.ChatID(),
		Type:   bus.EventAuth,
		Token:  token,
		Email:  state.Email,
	})
	return nil
}

// mayAttach reports whether a socket presenting token may join chatID. New
// chats are open; an existing chat only accepts the token that logged it in.
func (s *Server) mayAttach(chatID, token string) bool {
	if _, ok := s.chats.Get(chatID); !ok {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	owner := s.owners[chatID]
	return owner != "" && owner == token
}

func (s *Server) bind(chatID, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[chatID] = token
}

func (s *Server) logoutToken(token string) {
	s.mu.Lock()
	var chatIDs []string
	for chatID, owner := range s.owners {
		if owner == token {
			chatIDs = append(chatIDs, chatID)
			delete(s.owners, chatID)
		}
	}
	s.mu.Unlock()

	for _, chatID := range chatIDs {
		s.logout(chatID)
	}
}

func (s *Server) logout(chatID string) {
	e, ok := s.chats.Get(chatID)
	if !ok {
		return
	}
	e.SetAuth(auth.State{})
	logger.InfoCF("server", "Chat logged out", map[string]interface{}{
		logger.FieldChatID: chatID,
	})
	s.publishState(e)
}

// expireLogin logs the chat out once the token that logged it in is revoked
// or expired.
func (s *Server) expireLogin(chatID string) {
	s.mu.Lock()
	owner, ok := s.owners[chatID]
	if ok {
		if _, err := s.tokens.Lookup(owner); err == nil {
			ok = false
		} else {
			delete(s.owners, chatID)
		}
	}
	s.mu.Unlock()
	if ok {
		s.logout(chatID)
	}
}

// runDispatch hands inbound actions to a per-chat lane so actions for one
// chat apply in order while chats proceed independently.
func (s *Server) runDispatch(ctx context.Context) {
	for {
		msg, ok := s.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		s.enqueue(ctx, msg)
	}
}

// submits marks actions that send a request; only one may be queued or in
// flight per chat.
func submits(action string) bool {
	return action == bus.ActionSubmit || action == bus.ActionConfirm
}

// interrupts marks actions that restart the chat. They run beside an
// in-flight request so its late result is discarded.
func interrupts(action string) bool {
	return action == bus.ActionNewChat || action == bus.ActionRetailer
}

func (s *Server) enqueue(ctx context.Context, msg bus.InboundMessage) {
	loading := s.loading(msg.ChatID)

	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lanes[msg.ChatID]
	if !ok {
		l = &lane{actions: make(chan bus.InboundMessage, laneBuffer)}
		s.lanes[msg.ChatID] = l
		go s.runLane(ctx, l)
	}

	busy := loading || l.busy.Load()
	switch {
	case busy && (submits(msg.Action) || msg.Action == bus.ActionText):
		s.reject(msg, flow.ErrBusy)
		return
	case busy && interrupts(msg.Action):
		go s.apply(ctx, msg, nil)
		return
	case submits(msg.Action):
		l.busy.Store(true)
	}

	select {
	case l.actions <- msg:
	default:
		if submits(msg.Action) {
			l.busy.Store(false)
		}
		logger.WarnCF("server", "Chat lane full, dropping action", map[string]interface{}{
			logger.FieldChatID: msg.ChatID,
			"action":           msg.Action,
		})
	}
}

func (s *Server) loading(chatID string) bool {
	e, ok := s.chats.Get(chatID)
	if !ok {
		return false
	}
	ctrl := e.Controller()
	return ctrl != nil && ctrl.Loading()
}

func (s *Server) reject(msg bus.InboundMessage, err error) {
	logger.DebugCF("server", "Chat action rejected", map[string]interface{}{
		logger.FieldChatID: msg.ChatID,
		"action":           msg.Action,
		logger.FieldError:  err.Error(),
	})
	s.bus.PublishOutbound(bus.OutboundMessage{ChatID: msg.ChatID, Type: bus.EventError, Error: err.Error()})
}

func (s *Server) runLane(ctx context.Context, l *lane) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-l.actions:
			if !ok {
				return
			}
			s.apply(ctx, msg, l)
		}
	}
}

// apply runs one action against the chat's engine. l is nil for actions
// applied outside the lane.
func (s *Server) apply(ctx context.Context, msg bus.InboundMessage, l *lane) {
	s.expireLogin(msg.ChatID)
	e := s.engine(msg.ChatID)

	var err error
	switch msg.Action {
	case bus.ActionLogin:
		err = s.login(ctx, e, msg)
	case bus.ActionText:
		err = e.Handle(ctx, msg.Content)
	case bus.ActionField:
		err = e.Field(ctx, msg.Name, msg.Value)
	case bus.ActionSubmit:
		for name, value := range msg.Fields {
			if err = e.Field(ctx, name, value); err != nil {
				break
			}
		}
		if err == nil {
			err = e.Submit(ctx)
		}
	case bus.ActionSelect, bus.ActionIncrement:
		err = e.Select(msg.Position, msg.Size)
	case bus.ActionDecrement:
		err = e.Decrement(msg.Position)
	case bus.ActionConfirm:
		err = e.Confirm(ctx)
	case bus.ActionCancel:
		e.Cancel()
	case bus.ActionNewChat:
		err = e.NewChat()
	case bus.ActionRetailer:
		name := msg.Name
		if name == "" {
			name = msg.Content
		}
		err = e.SelectRetailer(name)
	default:
		err = fmt.Errorf("unknown action %q", msg.Action)
	}

	if l != nil && submits(msg.Action) {
		l.busy.Store(false)
	}
	if err != nil && !errors.Is(err, flow.ErrAborted) {
		logger.DebugCF("server", "Chat action returned error", map[string]interface{}{
			logger.FieldChatID: msg.ChatID,
			"action":           msg.Action,
			logger.FieldError:  err.Error(),
		})
		s.bus.PublishOutbound(bus.OutboundMessage{ChatID: msg.ChatID, Type: bus.EventError, Error: err.Error()})
	}
	s.publishState(e)
}

// engine returns the chat's engine and makes sure its transcript and loading
// changes feed the outbound bus exactly once.
func (s *Server) engine(chatID string) *chat.Engine {
	e := s.chats.GetOrCreate(chatID)
	log := e.Log()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watched[chatID] == log {
		return e
	}
	s.watched[chatID] = log
	log.Subscribe(func(m chatlog.Message) {
		s.bus.PublishOutbound(bus.OutboundMessage{ChatID: chatID, Type: bus.EventMessage, Message: wireMessage(m)})
	})
	log.SubscribeClear(func() {
		s.bus.PublishOutbound(bus.OutboundMessage{ChatID: chatID, Type: bus.EventClear})
	})
	e.OnLoading(func(loading bool) {
		if loading {
			s.publishState(e)
		}
	})
	return e
}

func (s *Server) publishState(e *chat.Engine) {
	s.bus.PublishOutbound(bus.OutboundMessage{ChatID: e.ChatID(), Type: bus.EventState, State: stateOf(e)})
}

func (s *Server) runDeliver(ctx context.Context) {
	for {
		msg, ok := s.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		handler, ok := s.bus.GetHandler(msg.ChatID)
		if !ok {
			continue
		}
		if err := handler(msg); err != nil {
			logger.WarnCF("server", "Error delivering chat event", map[string]interface{}{
				logger.FieldChatID: msg.ChatID,
				"type":             msg.Type,
				logger.FieldError:  err.Error(),
			})
		}
	}
}

// prune logs out chats whose token lapsed, then drops idle chats without a
// socket and the gateway state attached to them.
func (s *Server) prune() {
	s.tokens.Prune()
	s.mu.Lock()
	owned := make([]string, 0, len(s.owners))
	for chatID := range s.owners {
		owned = append(owned, chatID)
	}
	s.mu.Unlock()
	for _, chatID := range owned {
		s.expireLogin(chatID)
	}

	if s.chats.PruneIdle(chatIdleTTL, s.connected) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for chatID := range s.watched {
		if s.live(chatID) {
			continue
		}
		delete(s.watched, chatID)
		delete(s.owners, chatID)
	}
	for chatID, l := range s.lanes {
		if s.live(chatID) {
			continue
		}
		close(l.actions)
		delete(s.lanes, chatID)
	}
}

func (s *Server) connected(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conns[chatID]
	return ok
}

// live must be called with s.mu held.
func (s *Server) live(chatID string) bool {
	if _, ok := s.chats.Get(chatID); ok {
		return true
	}
	_, connected := s.conns[chatID]
	return connected
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.DebugCF("server", "Failed to write JSON response", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
