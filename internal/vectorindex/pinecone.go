package vectorindex

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pinecone-io/go-pinecone/v2/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"pkt.systems/pslog"
	"pkt.systems/querydesk/core"
	"pkt.systems/querydesk/schema"
)

// upsertBatch is the number of vectors sent per upsert call.
const upsertBatch = 100

// PineconeConfig configures the hosted index client.
type PineconeConfig struct {
	APIKey    string
	Host      string
	Namespace string
}

// pineconeConn is the part of the index connection the backend uses.
type pineconeConn interface {
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	Close() error
}

// Pinecone queries and upserts vectors on a Pinecone index host over the
// data plane connection. Calls are bounded only by the caller's context.
type Pinecone struct {
	conn pineconeConn
}

// NewPinecone connects to a single index host within cfg.Namespace.
func NewPinecone(cfg PineconeConfig) (*Pinecone, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("pinecone api key: %w", schema.ErrNotConfigured)
	}
	host := pineconeHost(cfg.Host)
	if host == "" {
		return nil, fmt.Errorf("pinecone index host: %w", schema.ErrNotConfigured)
	}
	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("pinecone client: %w", err)
	}
	conn, err := client.Index(pinecone.NewIndexConnParams{Host: host, Namespace: cfg.Namespace})
	if err != nil {
		return nil, fmt.Errorf("pinecone index %s: %w", host, err)
	}
	return &Pinecone{conn: conn}, nil
}

// pineconeHost strips the scheme and trailing slash from an index host.
func pineconeHost(value string) string {
	host := strings.TrimSpace(value)
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	return strings.TrimRight(host, "/")
}

// Query implements core.VectorIndex.
func (p *Pinecone) Query(ctx context.Context, vector []float32, topK int) ([]core.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	resp, err := p.conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("pinecone query: %w: %v", schema.ErrUpstream, err)
	}
	matches := make([]core.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		meta := m.Vector.Metadata
		matches = append(matches, core.Match{
			ID:      m.Vector.Id,
			Score:   float64(m.Score),
			Section: metadataString(meta, "section_number"),
			Title:   metadataString(meta, "section_title"),
			Text:    metadataString(meta, "text"),
		})
	}
	pslog.Ctx(ctx).Debug("pinecone query ok", "matches", len(matches))
	return matches, nil
}

// Upsert writes records in batches.
func (p *Pinecone) Upsert(ctx context.Context, records []Record) error {
	for start := 0; start < len(records); start += upsertBatch {
		end := min(start+upsertBatch, len(records))
		vectors := make([]*pinecone.Vector, 0, end-start)
		for _, rec := range records[start:end] {
			fields := map[string]any{"text": rec.Text, "section_title": rec.Title}
			if rec.Section != "" {
				fields["section_number"] = rec.Section
			}
			meta, err := structpb.NewStruct(fields)
			if err != nil {
				return fmt.Errorf("pinecone metadata %s: %w", rec.ID, err)
			}
			vectors = append(vectors, &pinecone.Vector{Id: rec.ID, Values: rec.Values, Metadata: meta})
		}
		n, err := p.conn.UpsertVectors(ctx, vectors)
		if err != nil {
			return fmt.Errorf("pinecone upsert: %w: %v", schema.ErrUpstream, err)
		}
		pslog.Ctx(ctx).Debug("pinecone upsert ok", "batch", len(vectors), "upserted", n)
	}
	return nil
}

// Close releases the data plane connection.
func (p *Pinecone) Close() error {
	return p.conn.Close()
}

func metadataString(meta *structpb.Struct, key string) string {
	v, ok := meta.GetFields()[key]
	if !ok {
		return ""
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return kind.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(kind.NumberValue, 'f', -1, 64)
	case *structpb.Value_BoolValue:
		return strconv.FormatBool(kind.BoolValue)
	default:
		return ""
	}
}
