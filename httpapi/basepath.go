package httpapi

import (
	"path"
	"strings"
)

// normalizeBasePath returns a cleaned mount prefix, or "" for the root.
func normalizeBasePath(value string) string {
	p := strings.TrimSpace(value)
	if p == "" {
		return ""
	}
	p = path.Clean("/" + p)
	if p == "/" {
		return ""
	}
	return p
}
