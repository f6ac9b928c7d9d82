package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewProviderErrors(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")

	if _, err := NewProvider(Config{Provider: "google"}); err == nil {
		t.Error("expected error for google without API key")
	}
	if _, err := NewProvider(Config{Provider: "openrouter"}); err == nil {
		t.Error("expected error for openrouter without API key")
	}
	if _, err := NewProvider(Config{Provider: "unknown"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := NewProvider(Config{}); err == nil {
		t.Error("expected error for empty provider")
	}
}

func TestNewProviderDefaults(t *testing.T) {
	p, err := NewProvider(Config{Provider: "google", APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.Name() != "google/gemini-2.5-flash" {
		t.Errorf("name: %q", p.Name())
	}

	p, err = NewProvider(Config{Provider: "openrouter", APIKey: "test-key", Model: "meta-llama/llama-3-8b"})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.Name() != "openrouter/meta-llama/llama-3-8b" {
		t.Errorf("name: %q", p.Name())
	}
}

func TestGoogleComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req googleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if len(req.Contents) != 1 || req.Contents[0].Parts[0].Text != "hello" {
			t.Errorf("unexpected request: %+v", req)
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"  world  "}]}}]}`))
	}))
	defer srv.Close()

	p := &googleProvider{apiKey: "k", model: "m", baseURL: srv.URL}
	got, err := p.Complete(context.Background(), "hello", CompletionOpts{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "world" {
		t.Errorf("got %q, want trimmed %q", got, "world")
	}
}

func TestOpenrouterCompleteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	p := &openrouterProvider{apiKey: "k", model: "m", baseURL: srv.URL}
	if _, err := p.Complete(context.Background(), "hello", CompletionOpts{}); err == nil {
		t.Error("expected error for non-200 response")
	}
}

func TestOpenrouterCompleteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("auth header: %q", got)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"reply text"}}]}`))
	}))
	defer srv.Close()

	p := &openrouterProvider{apiKey: "k", model: "m", baseURL: srv.URL}
	got, err := p.Complete(context.Background(), "hello", CompletionOpts{System: "sys"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "reply text" {
		t.Errorf("got %q", got)
	}
}
