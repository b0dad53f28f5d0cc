package vectorindex

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"

	_ "modernc.org/sqlite"

	"pkt.systems/querydesk/core"
)

// SQLite is an embedded vector index. Queries are a brute-force cosine scan,
// which is adequate for a handbook-sized corpus.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) the index at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("vector index: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("vector index: open: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("vector index: pragma %q: %w", p, err)
		}
	}
	const ddl = `CREATE TABLE IF NOT EXISTS vectors (
		id      TEXT PRIMARY KEY,
		section TEXT NOT NULL DEFAULT '',
		title   TEXT NOT NULL DEFAULT '',
		body    TEXT NOT NULL DEFAULT '',
		dim     INTEGER NOT NULL,
		vec     BLOB NOT NULL
	)`
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("vector index: migrate: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Upsert inserts or replaces records in one transaction.
func (s *SQLite) Upsert(ctx context.Context, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO vectors (id, section, title, body, dim, vec)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET section = excluded.section, title = excluded.title,
			body = excluded.body, dim = excluded.dim, vec = excluded.vec`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("vector index: record id is required")
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.Section, rec.Title, rec.Text, len(rec.Values), encodeVector(rec.Values)); err != nil {
			return fmt.Errorf("vector index: upsert %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// Query implements core.VectorIndex.
func (s *SQLite) Query(ctx context.Context, vector []float32, topK int) ([]core.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, section, title, body, vec FROM vectors WHERE dim = ?`, len(vector))
	if err != nil {
		return nil, fmt.Errorf("vector index: query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var matches []core.Match
	for rows.Next() {
		var (
			m    core.Match
			blob []byte
		)
		if err := rows.Scan(&m.ID, &m.Section, &m.Title, &m.Text, &blob); err != nil {
			return nil, fmt.Errorf("vector index: scan: %w", err)
		}
		m.Score = cosine(vector, decodeVector(blob))
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector index: query: %w", err)
	}
	slices.SortStableFunc(matches, func(a, b core.Match) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
