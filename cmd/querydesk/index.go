package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pkt.systems/pslog"
	"pkt.systems/querydesk"
	"pkt.systems/querydesk/core"
	"pkt.systems/querydesk/internal/appconfig"
	"pkt.systems/querydesk/internal/markdown"
	"pkt.systems/querydesk/internal/vectorindex"
)

const (
	defaultChunkChars   = 1500
	defaultIndexWorkers = 4
)

type indexOptions struct {
	maxLevel   int
	chunkChars int
	workers    int
}

func newIndexCmd() *cobra.Command {
	var cfgPath string
	var dir string
	opts := indexOptions{maxLevel: 2, chunkChars: defaultChunkChars, workers: defaultIndexWorkers}
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed onboarding documents into the vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(dir) == "" {
				return errors.New("--dir is required")
			}
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			components, err := querydesk.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = components.Close() }()
			if components.Index == nil {
				return fmt.Errorf("vector index %q is not configured", cfg.Vector.Backend)
			}
			if components.DocumentEmbedder == nil {
				return fmt.Errorf("embedding provider %q is not configured", cfg.Embedding.Provider)
			}
			files, err := collectDocuments(dir)
			if err != nil {
				return err
			}
			count, err := indexDocuments(cmd.Context(), components.DocumentEmbedder, components.Index, dir, files, opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "indexed %d passages from %d files\n", count, len(files))
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&dir, "dir", "", "directory of markdown or text documents")
	cmd.Flags().IntVar(&opts.maxLevel, "heading-level", opts.maxLevel, "deepest heading level that starts a section")
	cmd.Flags().IntVar(&opts.chunkChars, "chunk-chars", opts.chunkChars, "maximum characters per passage")
	cmd.Flags().IntVar(&opts.workers, "workers", opts.workers, "concurrent embedding requests")
	return cmd
}

// documentName is path relative to root in slash form.
func documentName(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// passageID identifies a chunk by document, section position and chunk
// position. Heading numbers are not used since they repeat.
func passageID(name string, section, chunk int) string {
	return fmt.Sprintf("%s#%d-%d", name, section, chunk)
}

func collectDocuments(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".md", ".markdown", ".txt":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no documents found under %s", root)
	}
	return files, nil
}

// indexDocuments embeds every passage of files and upserts them in one batch.
// Record ids are stable across runs so re-indexing replaces passages.
func indexDocuments(ctx context.Context, embedder core.Embedder, index vectorindex.Index, root string, files []string, opts indexOptions) (int, error) {
	log := pslog.Ctx(ctx)
	var records []vectorindex.Record
	seen := make(map[string]string)
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, err
		}
		name, err := documentName(root, path)
		if err != nil {
			return 0, err
		}
		for pos, section := range markdown.SplitSections(string(data), opts.maxLevel) {
			for i, chunk := range markdown.Chunk(section.Text, opts.chunkChars) {
				id := passageID(name, pos+1, i+1)
				if prev, dup := seen[id]; dup {
					return 0, fmt.Errorf("passage id %s produced by both %s and %s", id, prev, path)
				}
				seen[id] = path
				records = append(records, vectorindex.Record{
					ID:      id,
					Section: section.Number,
					Title:   section.Title,
					Text:    chunk,
				})
			}
		}
	}
	if len(records) == 0 {
		return 0, errors.New("documents contain no indexable text")
	}

	workers := opts.workers
	if workers <= 0 {
		workers = defaultIndexWorkers
	}
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for i := range records {
		group.Go(func() error {
			values, err := embedder.Embed(gctx, records[i].Text)
			if err != nil {
				return fmt.Errorf("embed %s: %w", records[i].ID, err)
			}
			records[i].Values = values
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return 0, err
	}
	if err := index.Upsert(ctx, records); err != nil {
		return 0, err
	}
	log.Info("index upserted", "passages", len(records), "files", len(files))
	return len(records), nil
}
