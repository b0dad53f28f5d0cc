package embedding

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pkt.systems/querydesk/schema"
)

func TestNewGenAIRequiresAPIKey(t *testing.T) {
	if _, err := NewGenAI(context.Background(), Config{}); !errors.Is(err, schema.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestEmbedUsesTaskType(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":batchEmbedContents") {
			http.NotFound(w, r)
			return
		}
		data, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(data))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"embeddings":[{"values":[0.5,0.25,-1]}]}`)
	}))
	defer srv.Close()

	emb, err := NewGenAI(context.Background(), Config{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	vec, err := emb.Embed(context.Background(), "vacation policy")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.5 || vec[2] != -1 {
		t.Fatalf("unexpected vector %v", vec)
	}
	if _, err := emb.ForDocuments().Embed(context.Background(), "section text"); err != nil {
		t.Fatalf("embed document: %v", err)
	}
	if len(bodies) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(bodies))
	}
	if !strings.Contains(bodies[0], TaskRetrievalQuery) {
		t.Fatalf("expected query task type in %s", bodies[0])
	}
	if !strings.Contains(bodies[1], TaskRetrievalDocument) {
		t.Fatalf("expected document task type in %s", bodies[1])
	}
}

func TestEmbedEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"embeddings":[]}`)
	}))
	defer srv.Close()

	emb, err := NewGenAI(context.Background(), Config{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := emb.Embed(context.Background(), "q"); !errors.Is(err, schema.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}
