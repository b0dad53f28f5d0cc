package querydesk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/querydesk/core"
	"pkt.systems/querydesk/httpapi"
	"pkt.systems/querydesk/internal/appconfig"
	"pkt.systems/querydesk/internal/auth"
	"pkt.systems/querydesk/internal/embedding"
	"pkt.systems/querydesk/internal/ingest"
	"pkt.systems/querydesk/internal/llm"
	"pkt.systems/querydesk/internal/pdp"
	"pkt.systems/querydesk/internal/persist"
	"pkt.systems/querydesk/internal/tracker"
	"pkt.systems/querydesk/internal/vectorindex"
	"pkt.systems/querydesk/schema"
)

// Components holds every collaborator built from configuration. Optional
// backends are nil when their configuration is missing.
type Components struct {
	Config    appconfig.Config
	Directory *auth.Directory
	LLM       *llm.Client
	// Embedder embeds queries; DocumentEmbedder embeds indexed passages.
	Embedder         core.Embedder
	DocumentEmbedder core.Embedder
	Index            vectorindex.Index
	Policy           pdp.Engine
	Tracker          core.IssueTracker
	Ingestor         core.Ingestor
	Hub              *httpapi.Hub
	Pipeline         core.Pipeline

	log     pslog.Logger
	closers []io.Closer
}

// Build constructs the collaborators and the pipeline from cfg.
func Build(ctx context.Context, cfg appconfig.Config) (*Components, error) {
	log := pslog.Ctx(ctx)
	perms, err := cfg.PermissionMap()
	if err != nil {
		return nil, err
	}
	dir, err := auth.NewDirectoryWithLogger(cfg.UserRecords(), log)
	if err != nil {
		return nil, err
	}
	c := &Components{Config: cfg, Directory: dir, log: log}

	client, err := llm.New(llm.Config{
		APIKey:          cfg.LLM.APIKey,
		BaseURL:         cfg.LLM.BaseURL,
		CompletionModel: cfg.LLM.CompletionModel,
		EmbeddingModel:  cfg.Embedding.ModelOrDefault(),
		ImageModel:      cfg.LLM.ImageModel,
		Timeout:         time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	c.LLM = client

	if err := c.buildEmbedder(ctx); err != nil {
		return nil, err
	}
	if err := c.buildIndex(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := c.buildPolicy(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	c.buildTracker(ctx)
	c.Ingestor = ingest.New(ingest.Config{
		MaxFileBytes:   cfg.Repository.MaxFileBytes,
		MaxDigestBytes: cfg.Repository.MaxDigestBytes,
	})
	c.Hub = httpapi.NewHubWithLogger(cfg.HTTP.StreamHistory, log)

	deps := core.PipelineDeps{
		Users:       dir,
		Permissions: perms,
		Completer:   client,
		Images:      client,
		Embedder:    c.Embedder,
		Index:       c.Index,
		Policy:      c.Policy,
		Tracker:     c.Tracker,
		Ingestor:    c.Ingestor,
		Sink:        c.Hub,
		Logger:      log,
	}
	pipeline, err := core.NewPipeline(core.PipelineConfig{
		TopK:              cfg.Vector.TopK,
		SourceLabel:       cfg.Vector.SourceLabel,
		RepositoryURL:     cfg.Repository.URL,
		AnswerTemperature: cfg.LLM.AnswerTemperature,
		ImageSize:         cfg.LLM.ImageSize,
		EmailFallback:     cfg.Policy.EmailFallback,
		LogQueries:        cfg.Logging.LogQueries,
	}, deps)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Pipeline = pipeline
	return c, nil
}

func (c *Components) buildEmbedder(ctx context.Context) error {
	cfg := c.Config.Embedding
	switch cfg.Provider {
	case "", "openai":
		c.Embedder = c.LLM
		c.DocumentEmbedder = c.LLM
	case "gemini":
		g, err := embedding.NewGenAI(ctx, embedding.Config{APIKey: cfg.APIKey, Model: cfg.ModelOrDefault()})
		if err != nil {
			if errors.Is(err, schema.ErrNotConfigured) {
				pslog.Ctx(ctx).Warn("embedding disabled", "provider", cfg.Provider, "err", err)
				return nil
			}
			return err
		}
		c.Embedder = g
		c.DocumentEmbedder = g.ForDocuments()
	default:
		return fmt.Errorf("unsupported embedding.provider %q", cfg.Provider)
	}
	return nil
}

func (c *Components) buildIndex(ctx context.Context) error {
	cfg := c.Config.Vector
	switch cfg.Backend {
	case "pinecone":
		index, err := vectorindex.NewPinecone(vectorindex.PineconeConfig{
			APIKey:    cfg.Pinecone.APIKey,
			Host:      cfg.Pinecone.Host,
			Namespace: cfg.Pinecone.Namespace,
		})
		if err != nil {
			if errors.Is(err, schema.ErrNotConfigured) {
				pslog.Ctx(ctx).Warn("vector index disabled", "backend", cfg.Backend, "err", err)
				return nil
			}
			return err
		}
		c.Index = index
		c.closers = append(c.closers, index)
	case "sqlite":
		index, err := vectorindex.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return err
		}
		c.Index = index
		c.closers = append(c.closers, index)
	default:
		return fmt.Errorf("unsupported vector.backend %q", cfg.Backend)
	}
	return nil
}

func (c *Components) buildPolicy(ctx context.Context) error {
	cfg := c.Config.Policy
	log := pslog.Ctx(ctx)
	switch cfg.Engine {
	case "permit":
		engine, err := pdp.NewPermit(pdp.PermitConfig{
			APIURL:      cfg.Permit.APIURL,
			PDPURL:      cfg.Permit.PDPURL,
			APIKey:      cfg.Permit.APIKey,
			Project:     cfg.Permit.Project,
			Environment: cfg.Permit.Environment,
			Tenant:      cfg.Tenant,
		})
		if err != nil {
			if errors.Is(err, schema.ErrNotConfigured) {
				log.Warn("policy engine disabled", "engine", cfg.Engine, "err", err)
				return nil
			}
			return err
		}
		c.Policy = engine
	case "mangle":
		rules := ""
		if path := strings.TrimSpace(cfg.Mangle.RulesPath); path != "" {
			loaded, err := pdp.LoadRules(path)
			if err != nil {
				return err
			}
			rules = loaded
		}
		var store *persist.Store
		if path := strings.TrimSpace(cfg.Mangle.RolesPath); path != "" {
			s, err := persist.NewStoreWithLogger(path, log)
			if err != nil {
				return err
			}
			store = s
		}
		grants := make([]pdp.Grant, 0, len(cfg.Mangle.Grants))
		for _, g := range cfg.Mangle.Grants {
			grants = append(grants, pdp.Grant{Role: g.Role, Action: g.Action, Resource: g.Resource})
		}
		tenant := cfg.Tenant
		if tenant == "" {
			tenant = "default"
		}
		engine, err := pdp.NewMangle(pdp.MangleConfig{
			Rules:  rules,
			Grants: grants,
			Seed:   seedAssignments(c.Directory.List(), tenant),
			Store:  store,
			Tenant: tenant,
			Logger: log,
		})
		if err != nil {
			return err
		}
		c.Policy = engine
	default:
		return fmt.Errorf("unsupported policy.engine %q", cfg.Engine)
	}
	return nil
}

// seedAssignments derives one role assignment per distinct subject key.
func seedAssignments(users []schema.User, tenant string) []persist.RoleAssignment {
	seen := make(map[persist.RoleAssignment]bool)
	out := make([]persist.RoleAssignment, 0, len(users))
	for _, u := range users {
		if strings.TrimSpace(u.Role) == "" {
			continue
		}
		a := persist.RoleAssignment{Subject: u.Subject().Key, Role: u.Role, Tenant: tenant}
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

func (c *Components) buildTracker(ctx context.Context) {
	cfg := c.Config.Issues
	gh, err := tracker.NewGitHub(tracker.Config{APIURL: cfg.APIURL, Repo: cfg.Repo, Token: cfg.Token})
	if err != nil {
		pslog.Ctx(ctx).Warn("issue tracker disabled", "err", err)
		return
	}
	c.Tracker = gh
}

// ServerDeps returns the dependencies for New.
func (c *Components) ServerDeps() ServerDeps {
	deps := ServerDeps{
		Pipeline: c.Pipeline,
		Users:    c.Directory,
		Auth:     c.Directory,
		Hub:      c.Hub,
		Logger:   c.log,
	}
	if c.Policy != nil {
		deps.Admin = c.Policy
	}
	return deps
}

// Close releases resources held by the components.
func (c *Components) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
