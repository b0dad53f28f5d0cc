package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/querydesk/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.session_cookie", cfg.HTTP.SessionCookie)
	v.SetDefault("http.session_ttl_hours", cfg.HTTP.SessionTTLHours)
	v.SetDefault("http.base_path", cfg.HTTP.BasePath)
	v.SetDefault("http.allowed_origins", cfg.HTTP.AllowedOrigins)
	v.SetDefault("http.stream_history", cfg.HTTP.StreamHistory)
	v.SetDefault("llm.api_key", cfg.LLM.APIKey)
	v.SetDefault("llm.base_url", cfg.LLM.BaseURL)
	v.SetDefault("llm.completion_model", cfg.LLM.CompletionModel)
	v.SetDefault("llm.answer_temperature", cfg.LLM.AnswerTemperature)
	v.SetDefault("llm.image_model", cfg.LLM.ImageModel)
	v.SetDefault("llm.image_size", cfg.LLM.ImageSize)
	v.SetDefault("llm.timeout_seconds", cfg.LLM.TimeoutSeconds)
	v.SetDefault("embedding.provider", cfg.Embedding.Provider)
	v.SetDefault("embedding.model", cfg.Embedding.Model)
	v.SetDefault("embedding.api_key", cfg.Embedding.APIKey)
	v.SetDefault("vector.backend", cfg.Vector.Backend)
	v.SetDefault("vector.top_k", cfg.Vector.TopK)
	v.SetDefault("vector.source_label", cfg.Vector.SourceLabel)
	v.SetDefault("vector.pinecone.api_key", cfg.Vector.Pinecone.APIKey)
	v.SetDefault("vector.pinecone.host", cfg.Vector.Pinecone.Host)
	v.SetDefault("vector.pinecone.index", cfg.Vector.Pinecone.Index)
	v.SetDefault("vector.pinecone.namespace", cfg.Vector.Pinecone.Namespace)
	v.SetDefault("vector.sqlite.path", cfg.Vector.SQLite.Path)
	v.SetDefault("issues.api_url", cfg.Issues.APIURL)
	v.SetDefault("issues.repo", cfg.Issues.Repo)
	v.SetDefault("issues.token", cfg.Issues.Token)
	v.SetDefault("repository.url", cfg.Repository.URL)
	v.SetDefault("repository.max_file_bytes", cfg.Repository.MaxFileBytes)
	v.SetDefault("repository.max_digest_bytes", cfg.Repository.MaxDigestBytes)
	v.SetDefault("policy.engine", cfg.Policy.Engine)
	v.SetDefault("policy.email_fallback", cfg.Policy.EmailFallback)
	v.SetDefault("policy.permit.api_url", cfg.Policy.Permit.APIURL)
	v.SetDefault("policy.permit.pdp_url", cfg.Policy.Permit.PDPURL)
	v.SetDefault("policy.permit.api_key", cfg.Policy.Permit.APIKey)
	v.SetDefault("policy.permit.project", cfg.Policy.Permit.Project)
	v.SetDefault("policy.permit.environment", cfg.Policy.Permit.Environment)
	v.SetDefault("policy.tenant", cfg.Policy.Tenant)
	v.SetDefault("policy.mangle.rules_path", cfg.Policy.Mangle.RulesPath)
	v.SetDefault("policy.mangle.roles_path", cfg.Policy.Mangle.RolesPath)
	v.SetDefault("policy.mangle.grants", cfg.Policy.Mangle.Grants)
	v.SetDefault("permissions", cfg.Permissions)
	v.SetDefault("users", cfg.Users)
	v.SetDefault("logging.log_queries", cfg.Logging.LogQueries)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that defaults cannot express.
func Validate(cfg Config) error {
	if err := validateHTTPConfig(cfg.HTTP); err != nil {
		return err
	}
	switch cfg.Vector.Backend {
	case "pinecone", "sqlite":
	default:
		return fmt.Errorf("unsupported vector.backend %q", cfg.Vector.Backend)
	}
	if cfg.Vector.TopK <= 0 {
		return fmt.Errorf("vector.top_k must be positive")
	}
	switch cfg.Embedding.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unsupported embedding.provider %q", cfg.Embedding.Provider)
	}
	switch cfg.Policy.Engine {
	case "permit", "mangle":
	default:
		return fmt.Errorf("unsupported policy.engine %q", cfg.Policy.Engine)
	}
	if _, err := cfg.PermissionMap(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(cfg.Users))
	for _, user := range cfg.Users {
		if err := schema.ValidateUserID(schema.UserID(user.Username)); err != nil {
			return fmt.Errorf("users: %q: %w", user.Username, err)
		}
		if _, ok := seen[user.Username]; ok {
			return fmt.Errorf("users: duplicate username %q", user.Username)
		}
		seen[user.Username] = struct{}{}
	}
	return nil
}

func validateHTTPConfig(cfg HTTPConfig) error {
	basePath := strings.TrimSpace(cfg.BasePath)
	if basePath != "" {
		if strings.Contains(basePath, "://") {
			return fmt.Errorf("http.base_path must be a path prefix, not a URL")
		}
		if strings.ContainsAny(basePath, "?#") {
			return fmt.Errorf("http.base_path must not include query or fragment")
		}
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Vector.SQLite.Path = expandEnv(cfg.Vector.SQLite.Path)
	cfg.Policy.Mangle.RulesPath = expandEnv(cfg.Policy.Mangle.RulesPath)
	cfg.Policy.Mangle.RolesPath = expandEnv(cfg.Policy.Mangle.RolesPath)

	cfg.LLM.APIKey = expandSecret(cfg.LLM.APIKey)
	cfg.LLM.BaseURL = expandSecret(cfg.LLM.BaseURL)
	cfg.Embedding.APIKey = expandSecret(cfg.Embedding.APIKey)
	cfg.Vector.Pinecone.APIKey = expandSecret(cfg.Vector.Pinecone.APIKey)
	cfg.Vector.Pinecone.Host = expandSecret(cfg.Vector.Pinecone.Host)
	cfg.Issues.APIURL = expandSecret(cfg.Issues.APIURL)
	cfg.Issues.Repo = expandSecret(cfg.Issues.Repo)
	cfg.Issues.Token = expandSecret(cfg.Issues.Token)
	cfg.Repository.URL = expandSecret(cfg.Repository.URL)
	cfg.Policy.Permit.APIURL = expandSecret(cfg.Policy.Permit.APIURL)
	cfg.Policy.Permit.PDPURL = expandSecret(cfg.Policy.Permit.PDPURL)
	cfg.Policy.Permit.APIKey = expandSecret(cfg.Policy.Permit.APIKey)
}

// expandEnv expands path-like values, keeping unknown variables verbatim.
func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

// expandSecret expands credentials and endpoints; unknown variables become
// empty so an unset secret reads as not configured.
func expandSecret(value string) string {
	if value == "" {
		return value
	}
	return strings.TrimSpace(os.Expand(value, func(key string) string {
		val, _ := lookupEnv(key)
		return val
	}))
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
