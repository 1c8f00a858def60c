package automation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testRetailer() Retailer {
	return Retailer{
		Name:  "instamart",
		Label: "Instamart",
		Endpoints: map[Operation]Endpoint{
			OpCheckSession: Get("/instamart/check-session"),
			OpLogin:        Post("/instamart/login"),
			OpSearch:       Post("/instamart/search"),
		},
	}
}

func TestClientPostsJSONPayload(t *testing.T) {
	t.Parallel()

	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/instamart/search" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"session_id":"s-1","products":[{"name":"Milk","price":30}]}`))
	}))
	defer srv.Close()

	c := NewClient(testRetailer(), srv.URL+"/", 5*time.Second, nil)
	resp, err := c.Call(context.Background(), OpSearch, SearchPayload("s-0", "milk", 5))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got["query"] != "milk" || got["session_id"] != "s-0" || got["max_items"] != float64(5) {
		t.Fatalf("unexpected payload: %#v", got)
	}
	if resp.SessionID() != "s-1" || len(resp.Products("instamart")) != 1 {
		t.Fatalf("unexpected response: %s", resp.String())
	}
}

func TestClientGetEncodesQuery(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Query().Get("phone") != "9999999999" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
		}
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	c := NewClient(testRetailer(), srv.URL, time.Second, nil)
	resp, err := c.Call(context.Background(), OpCheckSession, map[string]interface{}{"phone": "9999999999"})
	if err != nil || !resp.Succeeded() {
		t.Fatalf("check session: %v %s", err, resp.String())
	}
}

func TestClientNon2xxReturnsAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"no saved session"}`))
	}))
	defer srv.Close()

	c := NewClient(testRetailer(), srv.URL, time.Second, nil)
	resp, err := c.Call(context.Background(), OpLogin, LoginPayload(map[string]string{"phone": "1"}))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound match, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected APIError, got %T", err)
	}
	if resp.Message() != "no saved session" {
		t.Fatalf("response body should survive the error, got %q", resp.Message())
	}
}

func TestClientUnsupportedOperation(t *testing.T) {
	t.Parallel()

	c := NewClient(testRetailer(), "http://unused.local", time.Second, nil)
	_, err := c.Call(context.Background(), OpPay, PayPayload("s", "me@upi"))
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
