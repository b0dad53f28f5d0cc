// Package version reports the build version of the querydesk binary.
package version

import (
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/querydesk"

// buildVersion is set via -ldflags "-X pkt.systems/querydesk/internal/version.buildVersion=...".
var buildVersion = ""

// Info describes the running build.
type Info struct {
	Module   string `json:"module"`
	Version  string `json:"version"`
	Revision string `json:"revision,omitempty"`
	Dirty    bool   `json:"dirty,omitempty"`
}

// String renders the version with a +dirty suffix for modified trees.
func (i Info) String() string {
	if i.Dirty && !strings.HasSuffix(i.Version, "+dirty") {
		return i.Version + "+dirty"
	}
	return i.Version
}

// Get returns build information, preferring the linker-injected version.
func Get() Info {
	info, _ := debug.ReadBuildInfo()
	return fromBuildInfo(info, buildVersion)
}

// Current returns the version without a dirty suffix.
func Current() string {
	return strings.TrimSuffix(Get().Version, "+dirty")
}

func fromBuildInfo(info *debug.BuildInfo, injected string) Info {
	out := Info{Module: defaultModule, Version: "v0.0.0-unknown"}
	if info != nil {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			out.Module = path
		}
		vcs := readVCS(info)
		out.Revision = vcs.revision
		out.Dirty = vcs.modified
		switch v := strings.TrimSpace(info.Main.Version); {
		case v != "" && v != "(devel)":
			out.Version = v
		case vcs.pseudo() != "":
			out.Version = vcs.pseudo()
		}
	}
	if v := strings.TrimSpace(injected); v != "" {
		out.Version = v
	}
	if strings.HasSuffix(out.Version, "+dirty") {
		out.Dirty = true
		out.Version = strings.TrimSuffix(out.Version, "+dirty")
	}
	return out
}

type vcsInfo struct {
	revision string
	time     time.Time
	modified bool
}

func readVCS(info *debug.BuildInfo) vcsInfo {
	var out vcsInfo
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			out.revision = setting.Value
		case "vcs.time":
			if parsed, err := time.Parse(time.RFC3339, setting.Value); err == nil {
				out.time = parsed
			}
		case "vcs.modified":
			out.modified = setting.Value == "true"
		}
	}
	return out
}

// pseudo formats a Go pseudo-version from the VCS stamp.
func (v vcsInfo) pseudo() string {
	if v.revision == "" || v.time.IsZero() {
		return ""
	}
	rev := v.revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return "v0.0.0-" + v.time.UTC().Format("20060102150405") + "-" + rev
}
