package appconfig

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"pkt.systems/querydesk/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int                          `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string                       `mapstructure:"state_dir" yaml:"state_dir"`
	HTTP          HTTPConfig                   `mapstructure:"http" yaml:"http"`
	LLM           LLMConfig                    `mapstructure:"llm" yaml:"llm"`
	Embedding     EmbeddingConfig              `mapstructure:"embedding" yaml:"embedding"`
	Vector        VectorConfig                 `mapstructure:"vector" yaml:"vector"`
	Issues        IssuesConfig                 `mapstructure:"issues" yaml:"issues"`
	Repository    RepositoryConfig             `mapstructure:"repository" yaml:"repository"`
	Policy        PolicyConfig                 `mapstructure:"policy" yaml:"policy"`
	Permissions   map[string]schema.Permission `mapstructure:"permissions" yaml:"permissions"`
	Users         []UserConfig                 `mapstructure:"users" yaml:"users"`
	Logging       LoggingConfig                `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr            string   `mapstructure:"addr" yaml:"addr"`
	SessionCookie   string   `mapstructure:"session_cookie" yaml:"session_cookie"`
	SessionTTLHours int      `mapstructure:"session_ttl_hours" yaml:"session_ttl_hours"`
	BasePath        string   `mapstructure:"base_path" yaml:"base_path"`
	AllowedOrigins  []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	StreamHistory   int      `mapstructure:"stream_history" yaml:"stream_history"`
}

// LLMConfig configures the completion and image generation service.
type LLMConfig struct {
	APIKey            string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url"`
	CompletionModel   string  `mapstructure:"completion_model" yaml:"completion_model"`
	AnswerTemperature float64 `mapstructure:"answer_temperature" yaml:"answer_temperature"`
	ImageModel        string  `mapstructure:"image_model" yaml:"image_model"`
	ImageSize         string  `mapstructure:"image_size" yaml:"image_size"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	Model    string `mapstructure:"model" yaml:"model"`
	// APIKey is used by the gemini provider; openai reuses llm.api_key.
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
}

// Default embedding models per provider.
const (
	DefaultOpenAIEmbeddingModel = "text-embedding-ada-002"
	DefaultGeminiEmbeddingModel = "gemini-embedding-001"
)

// ModelOrDefault returns the configured model or the provider's default.
func (e EmbeddingConfig) ModelOrDefault() string {
	if model := strings.TrimSpace(e.Model); model != "" {
		return model
	}
	if e.Provider == "gemini" {
		return DefaultGeminiEmbeddingModel
	}
	return DefaultOpenAIEmbeddingModel
}

// VectorConfig selects and configures the vector index.
type VectorConfig struct {
	Backend     string         `mapstructure:"backend" yaml:"backend"`
	TopK        int            `mapstructure:"top_k" yaml:"top_k"`
	SourceLabel string         `mapstructure:"source_label" yaml:"source_label"`
	Pinecone    PineconeConfig `mapstructure:"pinecone" yaml:"pinecone"`
	SQLite      SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
}

// PineconeConfig configures a hosted Pinecone index.
type PineconeConfig struct {
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	Host      string `mapstructure:"host" yaml:"host"`
	Index     string `mapstructure:"index" yaml:"index"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// SQLiteConfig configures the embedded vector index.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// IssuesConfig configures the issue tracker.
type IssuesConfig struct {
	APIURL string `mapstructure:"api_url" yaml:"api_url"`
	Repo   string `mapstructure:"repo" yaml:"repo"`
	Token  string `mapstructure:"token" yaml:"token"`
}

// RepositoryConfig configures repository ingestion.
type RepositoryConfig struct {
	URL            string `mapstructure:"url" yaml:"url"`
	MaxFileBytes   int64  `mapstructure:"max_file_bytes" yaml:"max_file_bytes"`
	MaxDigestBytes int64  `mapstructure:"max_digest_bytes" yaml:"max_digest_bytes"`
}

// PolicyConfig selects and configures the policy decision point.
type PolicyConfig struct {
	Engine        string `mapstructure:"engine" yaml:"engine"`
	EmailFallback bool   `mapstructure:"email_fallback" yaml:"email_fallback"`
	// Tenant scopes permission checks and role assignments.
	Tenant string       `mapstructure:"tenant" yaml:"tenant"`
	Permit PermitConfig `mapstructure:"permit" yaml:"permit"`
	Mangle MangleConfig `mapstructure:"mangle" yaml:"mangle"`
}

// PermitConfig configures the hosted Permit.io PDP.
type PermitConfig struct {
	APIURL      string `mapstructure:"api_url" yaml:"api_url"`
	PDPURL      string `mapstructure:"pdp_url" yaml:"pdp_url"`
	APIKey      string `mapstructure:"api_key" yaml:"api_key"`
	Project     string `mapstructure:"project" yaml:"project"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// MangleConfig configures the embedded Datalog PDP.
type MangleConfig struct {
	RulesPath string        `mapstructure:"rules_path" yaml:"rules_path"`
	RolesPath string        `mapstructure:"roles_path" yaml:"roles_path"`
	Grants    []GrantConfig `mapstructure:"grants" yaml:"grants"`
}

// GrantConfig allows a role to perform an operation on a resource.
type GrantConfig struct {
	Role     string `mapstructure:"role" yaml:"role"`
	Action   string `mapstructure:"action" yaml:"action"`
	Resource string `mapstructure:"resource" yaml:"resource"`
}

// UserConfig seeds a static directory entry.
type UserConfig struct {
	Username     string `mapstructure:"username" yaml:"username"`
	Name         string `mapstructure:"name" yaml:"name"`
	Email        string `mapstructure:"email" yaml:"email"`
	Role         string `mapstructure:"role" yaml:"role"`
	Key          string `mapstructure:"key" yaml:"key"`
	PasswordHash string `mapstructure:"password_hash" yaml:"password_hash"`
	TOTPSecret   string `mapstructure:"totp_secret" yaml:"totp_secret"`
}

// LoggingConfig controls query logging.
type LoggingConfig struct {
	LogQueries bool `mapstructure:"log_queries" yaml:"log_queries"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	stateDir := filepath.Join(home, ".querydesk", "state")
	perms := make(map[string]schema.Permission)
	for kind, perm := range schema.DefaultPermissions() {
		perms[string(kind)] = perm
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      stateDir,
		HTTP: HTTPConfig{
			Addr:            ":8000",
			SessionCookie:   "querydesk_session",
			SessionTTLHours: 24,
			BasePath:        "",
			AllowedOrigins:  []string{"http://localhost:3000"},
			StreamHistory:   200,
		},
		LLM: LLMConfig{
			APIKey:            "${OPENAI_API_KEY}",
			BaseURL:           "",
			CompletionModel:   "gpt-4-turbo-preview",
			AnswerTemperature: 0.7,
			ImageModel:        "dall-e-3",
			ImageSize:         "1024x1024",
			TimeoutSeconds:    0,
		},
		Embedding: EmbeddingConfig{
			Provider: "openai",
			Model:    "",
			APIKey:   "${GEMINI_API_KEY}",
		},
		Vector: VectorConfig{
			Backend:     "pinecone",
			TopK:        5,
			SourceLabel: "Donut Naturales Onboarding Guide",
			Pinecone: PineconeConfig{
				APIKey:    "${PINECONE_API_KEY}",
				Host:      "${PINECONE_INDEX_HOST}",
				Index:     "onboarding-index",
				Namespace: "",
			},
			SQLite: SQLiteConfig{
				Path: filepath.Join(stateDir, "onboarding.db"),
			},
		},
		Issues: IssuesConfig{
			APIURL: "https://api.github.com",
			Repo:   "${GITHUB_REPO}",
			Token:  "${GITHUB_TOKEN}",
		},
		Repository: RepositoryConfig{
			URL:            "${GITHUB_REPO_URL}",
			MaxFileBytes:   256 << 10,
			MaxDigestBytes: 400 << 10,
		},
		Policy: PolicyConfig{
			Engine:        "permit",
			EmailFallback: false,
			Tenant:        "default",
			Permit: PermitConfig{
				APIURL:      "https://api.permit.io",
				PDPURL:      "https://cloudpdp.api.permit.io",
				APIKey:      "${PERMIT_API_KEY}",
				Project:     "default",
				Environment: "production",
			},
			Mangle: MangleConfig{
				RulesPath: "",
				RolesPath: filepath.Join(stateDir, "roles.json"),
				Grants:    DefaultGrants(),
			},
		},
		Permissions: perms,
		Users:       DefaultUsers(),
		Logging: LoggingConfig{
			LogQueries: true,
		},
	}, nil
}

// DefaultUsers returns the stock user table. Password hashes are empty until
// set with `querydesk users hash-password`.
func DefaultUsers() []UserConfig {
	return []UserConfig{
		{Username: "admin", Name: "Admin Admin", Email: "admin@donutnaturales.com", Role: "Admin", Key: "Admin"},
		{Username: "dev1", Name: "Dev1 Dev1", Email: "dev1@donutnaturales.com", Role: "Developer", Key: "Dev1"},
		{Username: "newuser", Name: "Dev1 Dev1", Email: "dev1@donutnaturales.com", Role: "Developer", Key: "Dev1"},
		{Username: "test1", Name: "Test1 Test", Email: "test1@donutnaturales.com", Role: "Tester", Key: "Test1"},
		{Username: "prod", Name: "Prod Manager", Email: "pm@donutnaturales.com", Role: "ProductManager", Key: "Prod"},
		{Username: "pm", Name: "Prod Manager", Email: "pm@donutnaturales.com", Role: "ProductManager", Key: "Prod"},
	}
}

// DefaultGrants returns the stock role grants for the embedded policy engine.
func DefaultGrants() []GrantConfig {
	grants := []GrantConfig{}
	defaults := schema.DefaultPermissions()
	for _, kind := range schema.ActionKinds() {
		perm := defaults[kind]
		grants = append(grants, GrantConfig{Role: "Admin", Action: perm.Action, Resource: perm.Resource})
	}
	grants = append(grants,
		GrantConfig{Role: "Developer", Action: "read", Resource: "onboarding_query"},
		GrantConfig{Role: "Developer", Action: "create", Resource: "github_issues"},
		GrantConfig{Role: "Developer", Action: "read", Resource: "code_query"},
		GrantConfig{Role: "Tester", Action: "read", Resource: "onboarding_query"},
		GrantConfig{Role: "Tester", Action: "read", Resource: "code_query"},
		GrantConfig{Role: "ProductManager", Action: "read", Resource: "onboarding_query"},
		GrantConfig{Role: "ProductManager", Action: "create", Resource: "github_issues"},
		GrantConfig{Role: "ProductManager", Action: "create", Resource: "create_image"},
	)
	return grants
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".querydesk", "config.yaml"), nil
}

// PermissionMap converts the configured permissions into a validated map.
// An alias key such as code_query overrides its canonical key, since only
// the canonical keys carry defaults.
func (c Config) PermissionMap() (schema.PermissionMap, error) {
	names := slices.Sorted(maps.Keys(c.Permissions))
	perms := make(schema.PermissionMap, len(c.Permissions))
	var aliases []string
	for _, name := range names {
		kind, ok := schema.ParseActionKind(name)
		if !ok {
			return nil, fmt.Errorf("permissions: %w: %s", schema.ErrUnknownAction, name)
		}
		if strings.ToLower(strings.TrimSpace(name)) != string(kind) {
			aliases = append(aliases, name)
			continue
		}
		perms[kind] = c.Permissions[name]
	}
	for _, name := range aliases {
		kind, _ := schema.ParseActionKind(name)
		perms[kind] = c.Permissions[name]
	}
	if err := perms.Validate(); err != nil {
		return nil, fmt.Errorf("permissions: %w", err)
	}
	return perms, nil
}

// UserRecords converts the configured users into directory entries.
func (c Config) UserRecords() []schema.User {
	users := make([]schema.User, 0, len(c.Users))
	for _, u := range c.Users {
		users = append(users, schema.User{
			Username:     schema.UserID(u.Username),
			Name:         u.Name,
			Email:        u.Email,
			Role:         u.Role,
			Key:          u.Key,
			PasswordHash: u.PasswordHash,
			TOTPSecret:   u.TOTPSecret,
		})
	}
	return users
}
