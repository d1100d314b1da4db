package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ollama/ollama/api"
)

func TestNewClient(t *testing.T) {
	if _, err := NewClient("http://localhost:11435/api/chat"); err != nil {
		t.Errorf("Expected valid URL to be accepted: %v", err)
	}
	if _, err := NewClient("localhost"); err == nil {
		t.Error("Expected error for URL without scheme")
	}
}

func TestModelOptions(t *testing.T) {
	if opts := modelOptions("openbmb/minicpm-v4.5"); opts["num_ctx"] != 4096 {
		t.Errorf("Expected tuned options for MiniCPM-V, got %v", opts)
	}
	if opts := modelOptions("llava"); len(opts) != 0 {
		t.Errorf("Expected no options for llava, got %v", opts)
	}
}

func TestQuery(t *testing.T) {
	var got api.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"llava","message":{"role":"assistant","content":"{\"productId\":\"7\"}"},"done":true}`))
	}))
	defer srv.Close()

	c, err := NewClientWithTimeout(srv.URL+"/api/chat", 5*time.Second)
	if err != nil {
		t.Fatalf("NewClientWithTimeout failed: %v", err)
	}
	answer, err := c.Query(context.Background(), "llava", "which product?", "aGVsbG8=")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if answer != `{"productId":"7"}` {
		t.Errorf("Unexpected answer %q", answer)
	}
	if len(got.Messages) != 1 || len(got.Messages[0].Images) != 1 {
		t.Fatalf("Expected one message with one image, got %+v", got.Messages)
	}
	if string(got.Messages[0].Images[0]) != "hello" {
		t.Errorf("Expected decoded image bytes, got %q", got.Messages[0].Images[0])
	}
	if string(got.Format) != `"json"` {
		t.Errorf("Expected json format, got %s", got.Format)
	}
}

func TestQueryBadImage(t *testing.T) {
	c, _ := NewClient("http://localhost:1")
	if _, err := c.Query(context.Background(), "m", "p", "%%%"); err == nil {
		t.Error("Expected error for invalid base64")
	}
}
