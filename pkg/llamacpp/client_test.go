package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestQuery(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Bad request body: %v", err)
		}
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"productId\":3}"}}]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL + "/")
	answer, err := c.Query(context.Background(), "minicpm", "which product?", "aGVsbG8=")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if answer != `{"productId":3}` {
		t.Errorf("Unexpected answer %q", answer)
	}
	if got.Model != "minicpm" || len(got.Messages) != 1 {
		t.Errorf("Unexpected request %+v", got)
	}
}

func TestQueryContentParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":[{"type":"text","text":"lamp"}]}}]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	answer, err := c.Query(context.Background(), "m", "p", "")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if answer != "lamp" {
		t.Errorf("Expected lamp, got %q", answer)
	}
}

func TestQueryErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	if _, err := c.Query(context.Background(), "m", "p", ""); err == nil {
		t.Error("Expected error for non-200 response")
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer empty.Close()

	c, _ = NewClient(empty.URL)
	if _, err := c.Query(context.Background(), "m", "p", ""); err == nil {
		t.Error("Expected error for empty choices")
	}
}

func TestQueryOptions(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ChatCompletionRequest{}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{}"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := c.Query(context.Background(), "m", "p", ""); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("Expected JSON mode by default, got %+v", got.ResponseFormat)
	}

	opts := DefaultOptions()
	opts.JSONMode = false
	opts.MaxTokens = 64
	c, _ = NewClientWithOptions(srv.URL, opts)
	c.Query(context.Background(), "m", "p", "")
	if got.ResponseFormat != nil || got.MaxTokens != 64 {
		t.Errorf("Expected plain mode with 64 tokens, got %+v", got)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("localhost:8080"); err == nil {
		t.Error("Expected error for URL without scheme")
	}
}
