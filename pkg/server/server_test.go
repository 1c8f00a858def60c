package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"khwaaish/pkg/bus"
	"khwaaish/pkg/config"
)

type fakeAutomation struct {
	mu        sync.Mutex
	paths     []string
	cartDelay time.Duration
}

func (f *fakeAutomation) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	delay := f.cartDelay
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/login"):
		w.Write([]byte(`{"session_id":"s1","message":"OTP sent"}`))
	case strings.HasSuffix(r.URL.Path, "/submit-otp"):
		w.Write([]byte(`{"status":"success"}`))
	case strings.HasSuffix(r.URL.Path, "/search"):
		w.Write([]byte(`{"session_id":"s2","products":[{"name":"Milk","price":"32"}]}`))
	case strings.HasSuffix(r.URL.Path, "/add-to-cart"):
		time.Sleep(delay)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"cart service down"}`))
	default:
		w.Write([]byte(`{"status":"ok","path":"` + r.URL.Path + `"}`))
	}
}

func (f *fakeAutomation) seen(path string) bool {
	return f.count(path) > 0
}

func (f *fakeAutomation) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.paths {
		if p == path {
			n++
		}
	}
	return n
}

func newTestServer(t *testing.T, withCredentials bool) (*Server, *httptest.Server, *fakeAutomation) {
	t.Helper()

	api := &fakeAutomation{}
	upstream := httptest.NewServer(api)
	t.Cleanup(upstream.Close)

	cfg := config.DefaultConfig()
	cfg.API.Base = upstream.URL
	cfg.API.Upstream = upstream.URL
	cfg.API.RatePerSecond = 0
	if withCredentials {
		cfg.Auth.Email = "shopper@example.com"
		cfg.Auth.Password = "secret"
	}

	s := NewServer(cfg)
	s.startLoops()
	t.Cleanup(s.stopLoops)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.closeConnections()
		ts.Close()
	})
	return s, ts, api
}

func postLogin(t *testing.T, base, email, password string) (*http.Response, loginResponse) {
	t.Helper()
	body, _ := json.Marshal(loginRequest{Email: email, Password: password})
	resp, err := http.Post(base+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()
	var out loginResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode login: %v", err)
		}
	}
	return resp, out
}

func dial(t *testing.T, base, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(base, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil collects events until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(bus.OutboundMessage) bool) []bus.OutboundMessage {
	t.Helper()
	var got []bus.OutboundMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg bus.OutboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read after %d events: %v", len(got), err)
		}
		got = append(got, msg)
		if match(msg) {
			return got
		}
	}
}

func stateIs(step, pending string) func(bus.OutboundMessage) bool {
	return func(m bus.OutboundMessage) bool {
		return m.Type == bus.EventState && m.State != nil && m.State.Step == step && m.State.Pending == pending && !m.State.Loading
	}
}

func TestHealthAndCORS(t *testing.T) {
	t.Parallel()

	_, ts, _ := newTestServer(t, false)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Fatalf("unexpected health response: %d %q", resp.StatusCode, body)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS header")
	}

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/auth/login", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", resp.StatusCode)
	}
}

func TestLoginEndpoint(t *testing.T) {
	t.Parallel()

	_, ts, _ := newTestServer(t, true)

	resp, _ := postLogin(t, ts.URL, "shopper@example.com", "wrong")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp, out := postLogin(t, ts.URL, "Shopper@Example.com", "secret")
	if resp.StatusCode != http.StatusOK || out.Token == "" || !out.State.LoggedIn {
		t.Fatalf("expected token, got %d %+v", resp.StatusCode, out)
	}

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=bogus"
	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unknown token to be rejected")
	}
}

func TestProxyStripsPrefix(t *testing.T) {
	t.Parallel()

	_, ts, api := newTestServer(t, false)

	resp, err := http.Get(ts.URL + "/api/instamart/check-session")
	if err != nil {
		t.Fatalf("proxy: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"/instamart/check-session"`) {
		t.Fatalf("unexpected proxy response: %d %s", resp.StatusCode, body)
	}
	if !api.seen("/instamart/check-session") {
		t.Fatalf("expected upstream to see stripped path")
	}
}

func TestChatOverWebSocket(t *testing.T) {
	t.Parallel()

	_, ts, api := newTestServer(t, true)
	_, login := postLogin(t, ts.URL, "shopper@example.com", "secret")

	conn := dial(t, ts.URL, "?chat_id=chat-1&token="+login.Token)
	first := readUntil(t, conn, func(m bus.OutboundMessage) bool { return m.Type == bus.EventState })
	if st := first[len(first)-1].State; !st.LoggedIn || st.Step != "idle" {
		t.Fatalf("unexpected initial state: %+v", st)
	}

	if err := conn.WriteJSON(bus.InboundMessage{Action: bus.ActionRetailer, Name: "instamart"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	events := readUntil(t, conn, stateIs("login", "phone"))
	sawClear, sawMessage := false, false
	for _, ev := range events {
		sawClear = sawClear || ev.Type == bus.EventClear
		sawMessage = sawMessage || (ev.Type == bus.EventMessage && ev.Message.Role == "system")
	}
	if !sawClear || !sawMessage {
		t.Fatalf("expected clear and prompt events, got %+v", events)
	}

	for _, text := range []string{"9999999999", "Mumbai"} {
		if err := conn.WriteJSON(bus.InboundMessage{Action: bus.ActionText, Content: text}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	readUntil(t, conn, stateIs("otp", "otp"))
	if !api.seen("/instamart/login") {
		t.Fatalf("expected login call upstream")
	}

	conn.Close()
	again := dial(t, ts.URL, "?chat_id=chat-1&token="+login.Token)
	replay := readUntil(t, again, func(m bus.OutboundMessage) bool { return m.Type == bus.EventState })
	if len(replay) < 3 || replay[len(replay)-1].State.Step != "otp" {
		t.Fatalf("expected transcript replay on resume, got %d events", len(replay))
	}
}

func TestLoginActionOverWebSocket(t *testing.T) {
	t.Parallel()

	_, ts, _ := newTestServer(t, true)
	conn := dial(t, ts.URL, "")
	readUntil(t, conn, func(m bus.OutboundMessage) bool { return m.Type == bus.EventState })

	if err := conn.WriteJSON(bus.InboundMessage{Action: bus.ActionRetailer, Name: "instamart"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	events := readUntil(t, conn, func(m bus.OutboundMessage) bool { return m.Type == bus.EventError })
	if !strings.Contains(events[len(events)-1].Error, "not logged in") {
		t.Fatalf("expected login error, got %+v", events[len(events)-1])
	}

	if err := conn.WriteJSON(bus.InboundMessage{Action: bus.ActionLogin, Email: "shopper@example.com", Password: "secret"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	events = readUntil(t, conn, func(m bus.OutboundMessage) bool { return m.Type == bus.EventState && m.State.LoggedIn })
	token := ""
	for _, ev := range events {
		if ev.Type == bus.EventAuth {
			token = ev.Token
		}
	}
	if token == "" {
		t.Fatalf("expected auth event with token, got %+v", events)
	}

	if err := conn.WriteJSON(map[string]string{"action": "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	events = readUntil(t, conn, func(m bus.OutboundMessage) bool { return m.Type == bus.EventError })
	if !strings.Contains(events[len(events)-1].Error, "unknown action") {
		t.Fatalf("expected unknown action error, got %+v", events[len(events)-1])
	}
}

func send(t *testing.T, conn *websocket.Conn, msg bus.InboundMessage) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", msg.Action, err)
	}
}

// openCart logs in over HTTP and walks an instamart chat to its cart step
// with one item picked.
func openCart(t *testing.T, ts *httptest.Server, chatID string) (*websocket.Conn, string) {
	t.Helper()
	_, login := postLogin(t, ts.URL, "shopper@example.com", "secret")
	conn := dial(t, ts.URL, "?chat_id="+chatID+"&token="+login.Token)
	readUntil(t, conn, func(m bus.OutboundMessage) bool { return m.Type == bus.EventState })

	send(t, conn, bus.InboundMessage{Action: bus.ActionRetailer, Name: "instamart"})
	readUntil(t, conn, stateIs("login", "phone"))
	send(t, conn, bus.InboundMessage{Action: bus.ActionText, Content: "9999999999"})
	send(t, conn, bus.InboundMessage{Action: bus.ActionText, Content: "Mumbai"})
	readUntil(t, conn, stateIs("otp", "otp"))
	send(t, conn, bus.InboundMessage{Action: bus.ActionText, Content: "123456"})
	readUntil(t, conn, stateIs("search", "query"))
	send(t, conn, bus.InboundMessage{Action: bus.ActionText, Content: "milk"})
	readUntil(t, conn, stateIs("cart", ""))
	send(t, conn, bus.InboundMessage{Action: bus.ActionSelect, Position: 1})
	readUntil(t, conn, func(m bus.OutboundMessage) bool {
		return m.Type == bus.EventState && m.State.CartSize == 1
	})
	return conn, login.Token
}

func TestConfirmWhileLoadingIsRejected(t *testing.T) {
	t.Parallel()

	_, ts, api := newTestServer(t, true)
	api.mu.Lock()
	api.cartDelay = 300 * time.Millisecond
	api.mu.Unlock()
	conn, _ := openCart(t, ts, "busy-chat")

	send(t, conn, bus.InboundMessage{Action: bus.ActionConfirm})
	send(t, conn, bus.InboundMessage{Action: bus.ActionConfirm})

	sawLoading, sawBusy := false, false
	readUntil(t, conn, func(m bus.OutboundMessage) bool {
		switch {
		case m.Type == bus.EventError && strings.Contains(m.Error, "already in flight"):
			sawBusy = true
		case m.Type == bus.EventState && m.State.Loading:
			sawLoading = true
		case m.Type == bus.EventState && sawLoading:
			return sawBusy
		}
		return false
	})
	if n := api.count("/instamart/add-to-cart"); n != 1 {
		t.Fatalf("expected one add-to-cart call, got %d", n)
	}
}

func TestNewChatDiscardsInFlightResult(t *testing.T) {
	t.Parallel()

	s, ts, api := newTestServer(t, true)
	api.mu.Lock()
	api.cartDelay = 300 * time.Millisecond
	api.mu.Unlock()
	conn, _ := openCart(t, ts, "reset-chat")

	send(t, conn, bus.InboundMessage{Action: bus.ActionConfirm})
	readUntil(t, conn, func(m bus.OutboundMessage) bool { return m.Type == bus.EventState && m.State.Loading })
	send(t, conn, bus.InboundMessage{Action: bus.ActionNewChat})
	readUntil(t, conn, stateIs("login", "phone"))

	time.Sleep(500 * time.Millisecond)
	e, ok := s.Chats().Get("reset-chat")
	if !ok {
		t.Fatalf("expected chat kept")
	}
	for _, m := range e.Log().Messages() {
		if strings.Contains(m.Content, "cart service down") {
			t.Fatalf("expected late cart failure discarded after new chat")
		}
	}
	if cur := e.Controller().Current(); cur != "login" {
		t.Fatalf("expected fresh chat at login, got %s", cur)
	}
}

func TestResumeRequiresOwningToken(t *testing.T) {
	t.Parallel()

	_, ts, _ := newTestServer(t, true)
	_, owner := postLogin(t, ts.URL, "shopper@example.com", "secret")
	conn := dial(t, ts.URL, "?chat_id=owned&token="+owner.Token)
	readUntil(t, conn, func(m bus.OutboundMessage) bool { return m.Type == bus.EventState })

	_, other := postLogin(t, ts.URL, "shopper@example.com", "secret")
	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?chat_id=owned"
	for _, url := range []string{base, base + "&token=" + other.Token} {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
			t.Fatalf("%s: expected resume refused", url)
		}
	}

	again := dial(t, ts.URL, "?chat_id=owned&token="+owner.Token)
	events := readUntil(t, again, func(m bus.OutboundMessage) bool { return m.Type == bus.EventState })
	if !events[len(events)-1].State.LoggedIn {
		t.Fatalf("expected owner to resume logged in")
	}
}

func TestLogoutLogsOutBoundChats(t *testing.T) {
	t.Parallel()

	_, ts, _ := newTestServer(t, true)
	_, login := postLogin(t, ts.URL, "shopper@example.com", "secret")
	conn := dial(t, ts.URL, "?chat_id=leaving&token="+login.Token)
	readUntil(t, conn, func(m bus.OutboundMessage) bool { return m.Type == bus.EventState && m.State.LoggedIn })

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	readUntil(t, conn, func(m bus.OutboundMessage) bool { return m.Type == bus.EventState && !m.State.LoggedIn })
	send(t, conn, bus.InboundMessage{Action: bus.ActionRetailer, Name: "instamart"})
	events := readUntil(t, conn, func(m bus.OutboundMessage) bool { return m.Type == bus.EventError })
	if !strings.Contains(events[len(events)-1].Error, "not logged in") {
		t.Fatalf("expected logged-out chat to be refused, got %+v", events[len(events)-1])
	}

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + login.Token
	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected revoked token rejected")
	}
}

