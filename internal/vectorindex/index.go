// Package vectorindex holds the vector index backends used for onboarding
// search: a hosted Pinecone index and an embedded SQLite store.
package vectorindex

import (
	"context"

	"pkt.systems/querydesk/core"
)

// Record is one embedded document section.
type Record struct {
	ID      string
	Values  []float32
	Section string
	Title   string
	Text    string
}

// Index reads and writes vectors.
type Index interface {
	core.VectorIndex
	Upsert(ctx context.Context, records []Record) error
}
