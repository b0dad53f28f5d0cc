// Package ingest turns a repository into a single text digest suitable for a
// completion prompt.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"pkt.systems/pslog"
	"pkt.systems/querydesk/internal/git"
	"pkt.systems/querydesk/internal/repo"
)

const separator = "================================================"

// Config bounds the digest.
type Config struct {
	MaxFileBytes   int64
	MaxDigestBytes int64
	// TempDir holds clones; empty uses the system default.
	TempDir string
}

// Ingestor implements core.Ingestor.
type Ingestor struct {
	cfg Config
}

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"dist":         true,
	"build":        true,
	".idea":        true,
	".vscode":      true,
}

// New returns an ingestor. Zero limits fall back to 256 KiB per file and
// 400 KiB per digest.
func New(cfg Config) *Ingestor {
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = 256 << 10
	}
	if cfg.MaxDigestBytes <= 0 {
		cfg.MaxDigestBytes = 400 << 10
	}
	return &Ingestor{cfg: cfg}
}

// Digest clones (or reads) the repository named by locator and renders it.
func (i *Ingestor) Digest(ctx context.Context, locator string) (string, error) {
	loc, err := repo.ParseLocator(locator)
	if err != nil {
		return "", err
	}
	log := pslog.Ctx(ctx).With("repo", loc.Slug())
	root := loc.CloneURL
	if !loc.Local {
		tmp, err := os.MkdirTemp(i.cfg.TempDir, "querydesk-ingest-*")
		if err != nil {
			return "", err
		}
		defer func() { _ = os.RemoveAll(tmp) }()
		root = filepath.Join(tmp, loc.Name)
		log.Info("ingest clone start", "url", loc.CloneURL)
		if err := git.ShallowClone(ctx, loc.CloneURL, root); err != nil {
			return "", err
		}
	}
	commit := ""
	if git.Available() {
		if head, err := git.HeadCommit(ctx, root); err == nil {
			commit = head
		}
	}
	out, stats, err := i.render(ctx, root, loc, commit)
	if err != nil {
		return "", err
	}
	log.Info("ingest digest ok", "files", stats.files, "skipped", stats.skipped, "bytes", len(out), "truncated", stats.truncated)
	return out, nil
}

type digestStats struct {
	files     int
	skipped   int
	truncated bool
}

type entry struct {
	rel   string
	isDir bool
	depth int
}

func (i *Ingestor) render(ctx context.Context, root string, loc repo.Locator, commit string) (string, digestStats, error) {
	var (
		entries []entry
		files   []string
		stats   digestStats
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		depth := strings.Count(rel, "/")
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			entries = append(entries, entry{rel: rel, isDir: true, depth: depth})
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		entries = append(entries, entry{rel: rel, depth: depth})
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return "", stats, err
	}

	var body strings.Builder
	for _, rel := range files {
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil || info.Size() > i.cfg.MaxFileBytes {
			stats.skipped++
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil || isBinary(data) {
			stats.skipped++
			continue
		}
		chunk := fmt.Sprintf("%s\nFILE: %s\n%s\n%s\n\n", separator, rel, separator, strings.TrimRight(string(data), "\n"))
		if int64(body.Len()+len(chunk)) > i.cfg.MaxDigestBytes {
			stats.truncated = true
			break
		}
		body.WriteString(chunk)
		stats.files++
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Repository: %s\n", loc.Slug())
	if commit != "" {
		fmt.Fprintf(&out, "Commit: %s\n", commit)
	}
	fmt.Fprintf(&out, "Files analyzed: %d\n", stats.files)
	if stats.skipped > 0 {
		fmt.Fprintf(&out, "Files skipped: %d\n", stats.skipped)
	}
	if stats.truncated {
		out.WriteString("Digest truncated at size limit\n")
	}
	fmt.Fprintf(&out, "Estimated tokens: %d\n\n", body.Len()/4)
	out.WriteString("Directory structure:\n")
	out.WriteString(renderTree(loc.Name, entries))
	out.WriteString("\n")
	out.WriteString(body.String())
	return out.String(), stats, nil
}

// renderTree draws entries (in walk order) as an indented tree.
func renderTree(name string, entries []entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "└── %s/\n", name)
	for idx, e := range entries {
		last := true
		for _, next := range entries[idx+1:] {
			if next.depth < e.depth {
				break
			}
			if next.depth == e.depth {
				last = false
				break
			}
		}
		b.WriteString("    ")
		b.WriteString(strings.Repeat("│   ", e.depth))
		if last {
			b.WriteString("└── ")
		} else {
			b.WriteString("├── ")
		}
		b.WriteString(filepath.Base(e.rel))
		if e.isDir {
			b.WriteString("/")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func isBinary(data []byte) bool {
	head := data[:min(len(data), 8000)]
	return slices.Contains(head, 0)
}
