package main

import (
	"path/filepath"
	"testing"

	"pkt.systems/querydesk/internal/appconfig"
)

func TestToHTTPConfig(t *testing.T) {
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.StateDir = "/var/lib/querydesk"
	cfg.HTTP.BasePath = "/desk"
	cfg.Policy.Tenant = "donuts"

	got := toHTTPConfig(cfg)
	if got.Addr != ":8000" || got.BasePath != "/desk" || got.Tenant != "donuts" {
		t.Fatalf("unexpected http config %+v", got)
	}
	if got.SessionsPath != filepath.Join("/var/lib/querydesk", "sessions.json") {
		t.Fatalf("unexpected sessions path %q", got.SessionsPath)
	}
	if got.SessionCookie != "querydesk_session" || got.SessionTTLHours != 24 {
		t.Fatalf("unexpected session settings %+v", got)
	}
	if len(got.AllowedOrigins) != 1 || got.AllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected origins %v", got.AllowedOrigins)
	}
}
