package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"pkt.systems/querydesk/core"
	"pkt.systems/querydesk/schema"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, schema.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestCompleteSendsTemperatureAndMessages(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeBody(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-test",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"github_issues"}}],
			"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	out, err := client.Complete(context.Background(), core.CompletionRequest{System: "classify", User: "bug in checkout", Temperature: 0})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != "github_issues" {
		t.Fatalf("unexpected completion %q", out)
	}
	if got["model"] != "gpt-test" {
		t.Fatalf("unexpected model %v", got["model"])
	}
	if temp, ok := got["temperature"].(float64); !ok || temp != 0 {
		t.Fatalf("expected explicit zero temperature, got %v", got["temperature"])
	}
	messages, _ := got["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected system and user messages, got %v", got["messages"])
	}
}

func TestCompleteSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	if _, err := client.Complete(context.Background(), core.CompletionRequest{User: "hi"}); err == nil {
		t.Fatalf("expected completion error")
	}
}

func TestEmbedConvertsVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		writeBody(w, `{"object":"list","model":"emb-test","data":[{"object":"embedding","index":0,"embedding":[0.5,-0.25,1]}],
			"usage":{"prompt_tokens":1,"total_tokens":1}}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	vec, err := client.Embed(context.Background(), "pto policy")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.5 || vec[1] != -0.25 || vec[2] != 1 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestGenerateRequestsBase64(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeBody(w, `{"created":1,"data":[{"b64_json":"aGVsbG8=","revised_prompt":"a donut with sprinkles"}]}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	images, err := client.Generate(context.Background(), core.ImageRequest{Prompt: "donut", N: 1, Size: "1024x1024"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(images) != 1 || images[0].B64JSON != "aGVsbG8=" || images[0].RevisedPrompt != "a donut with sprinkles" {
		t.Fatalf("unexpected images %+v", images)
	}
	if got["response_format"] != "b64_json" || got["size"] != "1024x1024" || got["model"] != "img-test" {
		t.Fatalf("unexpected request %v", got)
	}
}

func newTestClient(t *testing.T, base string) *Client {
	t.Helper()
	client, err := New(Config{
		APIKey:          "sk-test",
		BaseURL:         base + "/v1/",
		CompletionModel: "gpt-test",
		EmbeddingModel:  "emb-test",
		ImageModel:      "img-test",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func writeBody(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}
