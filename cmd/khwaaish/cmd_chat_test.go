package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"khwaaish/pkg/config"
)

type scriptedReader struct {
	lines   []string
	secrets []string
	prompts []string
}

func (r *scriptedReader) Readline() (string, error) {
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

func (r *scriptedReader) ReadPassword(prompt string) ([]byte, error) {
	r.prompts = append(r.prompts, prompt)
	if len(r.secrets) == 0 {
		return nil, io.EOF
	}
	s := r.secrets[0]
	r.secrets = r.secrets[1:]
	return []byte(s), nil
}

func (r *scriptedReader) SetPrompt(string) {}

type recordingAPI struct {
	mu    sync.Mutex
	paths []string
}

func (a *recordingAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.paths = append(a.paths, r.URL.Path)
	a.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/login"):
		w.Write([]byte(`{"session_id":"cli-1"}`))
	default:
		w.Write([]byte(`{"status":"success"}`))
	}
}

func (a *recordingAPI) called(path string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.paths {
		if p == path {
			return true
		}
	}
	return false
}

func testChatConfig(t *testing.T) (*config.Config, *recordingAPI) {
	t.Helper()
	api := &recordingAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.API.Base = srv.URL
	cfg.Logging.Enabled = false
	return cfg, api
}

func TestRunChatMasksOTPEntry(t *testing.T) {
	cfg, api := testChatConfig(t)
	in := &scriptedReader{
		lines:   []string{"9999999999", "Mumbai"},
		secrets: []string{"123456"},
	}
	var out bytes.Buffer

	if err := runChat(context.Background(), cfg, in, &out, "instamart"); err != nil {
		t.Fatalf("runChat: %v", err)
	}
	if !api.called("/instamart/login") || !api.called("/instamart/submit-otp") {
		t.Fatalf("expected login and otp calls, got %v", api.paths)
	}
	if len(in.prompts) != 1 || !strings.Contains(in.prompts[0], "OTP") {
		t.Fatalf("expected the OTP to be read without echo, prompts %v", in.prompts)
	}
	if strings.Contains(out.String(), "123456") {
		t.Fatalf("otp leaked into transcript output")
	}
	if !strings.Contains(out.String(), "Logged in") {
		t.Fatalf("expected login banner, got %q", out.String())
	}
}

func TestRunChatLoginGate(t *testing.T) {
	cfg, api := testChatConfig(t)
	cfg.Auth.Email = "shopper@example.com"
	cfg.Auth.Password = "secret"

	in := &scriptedReader{
		lines:   []string{"shopper@example.com", "shopper@example.com", "/quit", "never read"},
		secrets: []string{"wrong", "secret"},
	}
	var out bytes.Buffer
	if err := runChat(context.Background(), cfg, in, &out, "instamart"); err != nil {
		t.Fatalf("runChat: %v", err)
	}
	if !strings.Contains(out.String(), "(1/3)") {
		t.Fatalf("expected first attempt to be rejected, got %q", out.String())
	}
	if len(in.lines) != 1 {
		t.Fatalf("expected /quit to end the loop, remaining %v", in.lines)
	}
	if len(api.paths) != 0 {
		t.Fatalf("expected no automation calls, got %v", api.paths)
	}

	locked := &scriptedReader{
		lines:   []string{"a@b.c", "a@b.c", "a@b.c"},
		secrets: []string{"x", "y", "z"},
	}
	if err := runChat(context.Background(), cfg, locked, io.Discard, "instamart"); err == nil {
		t.Fatalf("expected login failure after three attempts")
	}
}
