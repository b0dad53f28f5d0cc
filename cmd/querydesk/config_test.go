package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"pkt.systems/querydesk/internal/appconfig"
)

func TestConfigInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "querydesk", "config.yaml")

	cmd := newConfigCmd()
	cmd.SetArgs([]string{"init", "-o", path})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := appconfig.Load(path); err != nil {
		t.Fatalf("load written config: %v", err)
	}

	cmd = newConfigCmd()
	cmd.SetArgs([]string{"init", "-o", path})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected second init to fail without --force")
	}

	cmd = newConfigCmd()
	cmd.SetArgs([]string{"init", "-o", path, "--force"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init --force: %v", err)
	}
}
