package pdp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"pkt.systems/querydesk/schema"
)

type recorded struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

func newPermitServer(t *testing.T, allow bool) (*httptest.Server, *[]recorded) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()
		switch {
		case r.URL.Path == "/allowed":
			_ = json.NewEncoder(w).Encode(map[string]bool{"allow": allow})
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/users"):
			_, _ = io.WriteString(w, `{"data":[{"key":"Admin","email":"admin@example.com","roles":[{"role":"Admin","tenant":"default"}]},{"key":"Dev1"}]}`)
		case strings.Contains(r.URL.Path, "/users/Missing"):
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message":"user not found"}`)
		default:
			_, _ = io.WriteString(w, `{}`)
		}
	}))
	return srv, &reqs
}

func newTestPermit(t *testing.T, srv *httptest.Server) *Permit {
	t.Helper()
	p, err := NewPermit(PermitConfig{
		APIURL:      srv.URL,
		PDPURL:      srv.URL,
		APIKey:      "permit_key",
		Project:     "proj",
		Environment: "env",
	})
	if err != nil {
		t.Fatalf("new permit: %v", err)
	}
	return p
}

func TestPermitSyncAndCheck(t *testing.T) {
	srv, reqs := newPermitServer(t, true)
	defer srv.Close()
	p := newTestPermit(t, srv)
	ctx := context.Background()

	if err := p.SyncUser(ctx, schema.PolicySubject{Key: "Admin", Email: "admin@example.com"}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	ok, err := p.Check(ctx, "Admin", "read", "onboarding_query")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !ok {
		t.Fatalf("expected allow")
	}
	if len(*reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(*reqs))
	}
	syncReq := (*reqs)[0]
	if syncReq.Method != http.MethodPut || syncReq.Path != "/v2/facts/proj/env/users/Admin" {
		t.Fatalf("unexpected sync request %+v", syncReq)
	}
	if syncReq.Auth != "Bearer permit_key" {
		t.Fatalf("expected bearer auth, got %q", syncReq.Auth)
	}
	if syncReq.Body["email"] != "admin@example.com" {
		t.Fatalf("unexpected sync body %v", syncReq.Body)
	}
	check := (*reqs)[1]
	res, _ := check.Body["resource"].(map[string]any)
	user, _ := check.Body["user"].(map[string]any)
	if check.Body["action"] != "read" || res["type"] != "onboarding_query" || res["tenant"] != "default" || user["key"] != "Admin" {
		t.Fatalf("unexpected check body %v", check.Body)
	}
}

func TestPermitDeny(t *testing.T) {
	srv, _ := newPermitServer(t, false)
	defer srv.Close()
	ok, err := newTestPermit(t, srv).Check(context.Background(), "Test1", "create", "github_issues")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ok {
		t.Fatalf("expected deny")
	}
}

func TestPermitListUsersAndRoles(t *testing.T) {
	srv, reqs := newPermitServer(t, true)
	defer srv.Close()
	p := newTestPermit(t, srv)
	ctx := context.Background()

	users, err := p.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 2 || users[0].Roles[0].Role != "Admin" || users[1].Roles == nil {
		t.Fatalf("unexpected users %+v", users)
	}
	if err := p.AssignRole(ctx, "Dev1", "Developer", ""); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := p.UnassignRole(ctx, "Dev1", "Developer", "default"); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	assign := (*reqs)[1]
	unassign := (*reqs)[2]
	if assign.Method != http.MethodPost || assign.Path != "/v2/facts/proj/env/users/Dev1/roles" || assign.Body["tenant"] != "default" {
		t.Fatalf("unexpected assign %+v", assign)
	}
	if unassign.Method != http.MethodDelete || unassign.Body["role"] != "Developer" {
		t.Fatalf("unexpected unassign %+v", unassign)
	}
}

func TestPermitUpstreamError(t *testing.T) {
	srv, _ := newPermitServer(t, true)
	defer srv.Close()
	err := newTestPermit(t, srv).AssignRole(context.Background(), "Missing", "Admin", "")
	if !errors.Is(err, schema.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if !strings.Contains(err.Error(), "user not found") {
		t.Fatalf("expected upstream message, got %v", err)
	}
}

func TestNewPermitRequiresKey(t *testing.T) {
	if _, err := NewPermit(PermitConfig{APIURL: "http://x", PDPURL: "http://y"}); !errors.Is(err, schema.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

var (
	_ Engine = (*Permit)(nil)
	_ Engine = (*Mangle)(nil)
)
