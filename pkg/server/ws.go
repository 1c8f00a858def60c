package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"khwaaish/pkg/auth"
	"khwaaish/pkg/bus"
	"khwaaish/pkg/chat"
	"khwaaish/pkg/chatlog"
	"khwaaish/pkg/flow"
	"khwaaish/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// connection is one browser tab attached to a chat. Writes are serialized;
// gorilla connections allow a single concurrent writer.
type connection struct {
	conn   *websocket.Conn
	chatID string
	remote string
	mu     sync.Mutex
}

func (c *connection) send(msg bus.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

func (c *connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = c.conn.Close()
}

// handleWS attaches a socket to a chat. chat_id resumes an existing chat,
// which only the token that logged it in may do; a token from /auth/login
// carries the login over to a new chat.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	var state auth.State
	token := bearerToken(r)
	if token != "" {
		st, err := s.tokens.Lookup(token)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		state = st
	}

	chatID := strings.TrimSpace(r.URL.Query().Get("chat_id"))
	if chatID == "" {
		chatID = uuid.NewString()
	} else if !s.mayAttach(chatID, token) {
		logger.WarnCF("server", "Chat resume refused", map[string]interface{}{
			logger.FieldChatID: chatID,
			"remote":           r.RemoteAddr,
		})
		http.Error(w, "chat belongs to another session", http.StatusForbidden)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCF("server", "WebSocket upgrade failed", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
		return
	}

	e := s.engine(chatID)
	if state.Authenticated() {
		e.SetAuth(state)
		s.bind(chatID, token)
	}

	c := &connection{conn: ws, chatID: chatID, remote: r.RemoteAddr}
	s.attach(c)
	defer s.detach(c)

	logger.InfoCF("server", "Chat connected", map[string]interface{}{
		logger.FieldChatID: chatID,
		"remote":           c.remote,
	})

	for _, m := range e.Log().Messages() {
		if err := c.send(bus.OutboundMessage{ChatID: chatID, Type: bus.EventMessage, Message: wireMessage(m)}); err != nil {
			return
		}
	}
	if err := c.send(bus.OutboundMessage{ChatID: chatID, Type: bus.EventState, State: stateOf(e)}); err != nil {
		return
	}

	s.readLoop(c)
}

func (s *Server) attach(c *connection) {
	s.mu.Lock()
	old := s.conns[c.chatID]
	s.conns[c.chatID] = c
	s.mu.Unlock()

	if old != nil {
		old.close()
	}
	s.bus.RegisterHandler(c.chatID, c.send)
}

func (s *Server) detach(c *connection) {
	s.mu.Lock()
	current := s.conns[c.chatID] == c
	if current {
		delete(s.conns, c.chatID)
	}
	s.mu.Unlock()

	if current {
		s.bus.UnregisterHandler(c.chatID)
	}
	_ = c.conn.Close()
	logger.InfoCF("server", "Chat disconnected", map[string]interface{}{
		logger.FieldChatID: c.chatID,
	})
}

func (s *Server) closeConnections() {
	s.mu.Lock()
	conns := make([]*connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (s *Server) readLoop(c *connection) {
	c.conn.SetReadLimit(maxMessageSize)
	for {
		var msg bus.InboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				_ = c.send(bus.OutboundMessage{ChatID: c.chatID, Type: bus.EventError, Error: "invalid message: " + err.Error()})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WarnCF("server", "WebSocket read error", map[string]interface{}{
					logger.FieldChatID: c.chatID,
					logger.FieldError:  err.Error(),
				})
			}
			return
		}

		msg.ChatID = c.chatID
		msg.SenderID = c.remote
		logger.DebugCF("server", "Chat action received", map[string]interface{}{
			logger.FieldChatID:               c.chatID,
			"action":                         msg.Action,
			logger.FieldMessageContentLength: len(msg.Content),
		})
		if !s.bus.PublishInbound(msg) {
			_ = c.send(bus.OutboundMessage{ChatID: c.chatID, Type: bus.EventError, Error: "gateway busy, try again"})
		}
	}
}

func wireMessage(m chatlog.Message) *bus.Message {
	return &bus.Message{ID: m.ID, Role: string(m.Role), Content: m.Content, Created: m.Created}
}

func stateOf(e *chat.Engine) *bus.State {
	st := &bus.State{
		LoggedIn: e.Auth().Authenticated(),
		Retailer: e.Retailer(),
		Step:     flow.StateIdle,
		CartSize: e.Cart().Total(),
	}
	if ctrl := e.Controller(); ctrl != nil {
		st.Step = ctrl.Current()
		st.Loading = ctrl.Loading()
		if f, ok := ctrl.Pending(); ok {
			st.Pending = f.Name
		}
	}
	return st
}
