package version

import (
	"runtime/debug"
	"testing"
	"time"
)

func TestCurrentPrefersBuildVersion(t *testing.T) {
	old := buildVersion
	buildVersion = "v1.2.3"
	t.Cleanup(func() { buildVersion = old })

	if got := Current(); got != "v1.2.3" {
		t.Fatalf("expected build version, got %q", got)
	}
}

func TestFromBuildInfoPseudoVersion(t *testing.T) {
	ts := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)
	info := &debug.BuildInfo{
		Main: debug.Module{Path: "pkt.systems/querydesk", Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "1234567890abcdef"},
			{Key: "vcs.time", Value: ts.Format(time.RFC3339)},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	got := fromBuildInfo(info, "")
	if got.Version != "v0.0.0-20250102030405-1234567890ab" {
		t.Fatalf("unexpected pseudo version %q", got.Version)
	}
	if !got.Dirty || got.String() != "v0.0.0-20250102030405-1234567890ab+dirty" {
		t.Fatalf("expected dirty build, got %+v (%s)", got, got)
	}
	if got.Revision != "1234567890abcdef" || got.Module != "pkt.systems/querydesk" {
		t.Fatalf("unexpected info %+v", got)
	}
}

func TestFromBuildInfoFallbacks(t *testing.T) {
	got := fromBuildInfo(nil, "")
	if got.Module != defaultModule || got.Version != "v0.0.0-unknown" {
		t.Fatalf("unexpected fallback %+v", got)
	}
	got = fromBuildInfo(&debug.BuildInfo{Main: debug.Module{Version: "v0.4.0"}}, "v0.5.0+dirty")
	if got.Version != "v0.5.0" || !got.Dirty {
		t.Fatalf("expected injected dirty version, got %+v", got)
	}
	got = fromBuildInfo(&debug.BuildInfo{Main: debug.Module{Version: "v0.4.0"}}, "")
	if got.String() != "v0.4.0" {
		t.Fatalf("expected module version, got %q", got)
	}
}
