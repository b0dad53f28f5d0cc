package vectorindex

import (
	"context"
	"errors"
	"testing"

	"github.com/pinecone-io/go-pinecone/v2/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"pkt.systems/querydesk/core"
	"pkt.systems/querydesk/schema"
)

type fakeConn struct {
	queries []*pinecone.QueryByVectorValuesRequest
	batches [][]*pinecone.Vector
	resp    *pinecone.QueryVectorsResponse
	err     error
	closed  bool

	// deadline records whether any call carried a context deadline.
	deadline bool
}

func (f *fakeConn) QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error) {
	f.queries = append(f.queries, in)
	if _, ok := ctx.Deadline(); ok {
		f.deadline = true
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeConn) UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error) {
	f.batches = append(f.batches, in)
	if _, ok := ctx.Deadline(); ok {
		f.deadline = true
	}
	if f.err != nil {
		return 0, f.err
	}
	return uint32(len(in)), nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("struct: %v", err)
	}
	return s
}

func TestPineconeQuery(t *testing.T) {
	conn := &fakeConn{resp: &pinecone.QueryVectorsResponse{Matches: []*pinecone.ScoredVector{
		{Score: 0.91, Vector: &pinecone.Vector{Id: "a", Metadata: mustStruct(t, map[string]any{
			"section_number": 4, "section_title": "Time Off", "text": "20 days",
		})}},
		{Score: 0.5, Vector: &pinecone.Vector{Id: "b", Metadata: mustStruct(t, map[string]any{"text": "misc"})}},
		{Score: 0.1},
	}}}
	pc := &Pinecone{conn: conn}
	matches, err := pc.Query(context.Background(), []float32{0.1, 0.2}, 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(conn.queries) != 1 || conn.queries[0].TopK != 5 || !conn.queries[0].IncludeMetadata {
		t.Fatalf("unexpected request %+v", conn.queries)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "a" || matches[0].Section != "4" || matches[0].Title != "Time Off" || matches[0].Text != "20 days" {
		t.Fatalf("unexpected first match %+v", matches[0])
	}
	if matches[1].Section != "" || matches[1].Text != "misc" {
		t.Fatalf("unexpected second match %+v", matches[1])
	}
	if got, err := pc.Query(context.Background(), []float32{1}, 0); err != nil || got != nil || len(conn.queries) != 1 {
		t.Fatalf("expected no call for topK 0, got %v %v", got, err)
	}
}

func TestPineconeUpsertBatches(t *testing.T) {
	conn := &fakeConn{}
	pc := &Pinecone{conn: conn}
	records := make([]Record, 150)
	for i := range records {
		records[i] = Record{ID: string(rune('a' + i%26)), Values: []float32{1}, Title: "Pay", Text: "monthly"}
	}
	records[0].Section = "2"
	if err := pc.Upsert(context.Background(), records); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if len(conn.batches) != 2 || len(conn.batches[0]) != 100 || len(conn.batches[1]) != 50 {
		t.Fatalf("unexpected batches %d", len(conn.batches))
	}
	first := conn.batches[0][0]
	if got := metadataString(first.Metadata, "section_number"); got != "2" {
		t.Fatalf("expected section metadata, got %q", got)
	}
	if _, ok := conn.batches[0][1].Metadata.GetFields()["section_number"]; ok {
		t.Fatalf("expected no section metadata for unnumbered record")
	}
	if err := pc.Close(); err != nil || !conn.closed {
		t.Fatalf("expected connection closed")
	}
}

func TestPineconeErrors(t *testing.T) {
	if _, err := NewPinecone(PineconeConfig{Host: "x"}); !errors.Is(err, schema.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured for missing key, got %v", err)
	}
	if _, err := NewPinecone(PineconeConfig{APIKey: "k", Host: " https:// "}); !errors.Is(err, schema.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured for missing host, got %v", err)
	}
	pc := &Pinecone{conn: &fakeConn{err: errors.New("unavailable")}}
	if _, err := pc.Query(context.Background(), []float32{1}, 1); !errors.Is(err, schema.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if err := pc.Upsert(context.Background(), []Record{{ID: "a", Values: []float32{1}}}); !errors.Is(err, schema.ErrUpstream) {
		t.Fatalf("expected ErrUpstream on upsert, got %v", err)
	}
}

func TestPineconeAddsNoDeadline(t *testing.T) {
	conn := &fakeConn{resp: &pinecone.QueryVectorsResponse{}}
	pc := &Pinecone{conn: conn}
	if _, err := pc.Query(context.Background(), []float32{1}, 3); err != nil {
		t.Fatalf("query: %v", err)
	}
	if err := pc.Upsert(context.Background(), []Record{{ID: "a", Values: []float32{1}}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if conn.deadline {
		t.Fatalf("expected calls without an internal deadline")
	}
}

func TestPineconeHost(t *testing.T) {
	cases := map[string]string{
		"https://idx-abc.svc.pinecone.io/": "idx-abc.svc.pinecone.io",
		"idx-abc.svc.pinecone.io":          "idx-abc.svc.pinecone.io",
		"  ":                               "",
	}
	for in, want := range cases {
		if got := pineconeHost(in); got != want {
			t.Fatalf("pineconeHost(%q) = %q, want %q", in, got, want)
		}
	}
}

var _ Index = (*Pinecone)(nil)
var _ core.VectorIndex = (*Pinecone)(nil)
var _ Index = (*SQLite)(nil)
