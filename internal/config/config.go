package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider names accepted in AIConfig.Provider.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderNone   = "none"
)

// Config holds application configuration.
type Config struct {
	// PrimaryLanguage selects which summary rendering is shown as "primary".
	// Either "en" or the value of SecondaryLanguage.
	PrimaryLanguage string `json:"primary_language,omitempty"`

	// SecondaryLanguage is the BCP 47 tag of the second summary rendering.
	SecondaryLanguage string `json:"secondary_language,omitempty"`

	// HistoryLimit is the number of commits read from a project's repository.
	HistoryLimit int `json:"history_limit,omitempty"`

	// ArtifactMaxChars caps the walkthrough text included in the context (runes).
	ArtifactMaxChars int `json:"artifact_max_chars,omitempty"`

	// AnalysisTimeoutSeconds bounds each generative call. A call that runs past it
	// is treated like a provider failure.
	AnalysisTimeoutSeconds int `json:"analysis_timeout_seconds,omitempty"`

	// AbsorbParallelism limits how many projects absorb-all runs at once.
	AbsorbParallelism int `json:"absorb_parallelism,omitempty"`

	// StrictTaskTransitions rejects status updates outside the task lifecycle table.
	// Off by default: any known status is accepted.
	StrictTaskTransitions bool `json:"strict_task_transitions,omitempty"`

	// AllowedPaths is an allowlist of directories for export operations.
	// Paths outside <base>/exports require either being in this list or AllowUnsafePaths=true.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for export.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes excludes every MCP tool of a type ("project", "journal", "task", "entry").
	DisabledTypes []string `json:"disabled_types,omitempty"`

	// AI configures the generative-text provider.
	AI AIConfig `json:"ai"`
}

// AIConfig selects and configures the generative-text provider.
type AIConfig struct {
	// Provider is one of "openai", "ollama", "none".
	Provider string `json:"provider,omitempty"`

	// Model is the provider-specific model name.
	Model string `json:"model,omitempty"`

	// Endpoint overrides the provider base URL (OpenAI-compatible servers, remote Ollama).
	Endpoint string `json:"endpoint,omitempty"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `json:"api_key_env,omitempty"`
}

// APIKey reads the provider credential from the environment.
// Read on every call so a rotated key is picked up without a restart.
func (a AIConfig) APIKey() string {
	env := a.APIKeyEnv
	if env == "" {
		env = "OPENAI_API_KEY"
	}
	return strings.TrimSpace(os.Getenv(env))
}

// AnalysisTimeout returns the per-call timeout for generative analysis.
func (c *Config) AnalysisTimeout() time.Duration {
	if c.AnalysisTimeoutSeconds <= 0 {
		return time.Duration(DefaultConfig().AnalysisTimeoutSeconds) * time.Second
	}
	return time.Duration(c.AnalysisTimeoutSeconds) * time.Second
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		PrimaryLanguage:        "en",
		SecondaryLanguage:      "ja",
		HistoryLimit:           20,
		ArtifactMaxChars:       8000,
		AnalysisTimeoutSeconds: 60,
		AbsorbParallelism:      4,
		AI: AIConfig{
			Provider:  ProviderOpenAI,
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
		},
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.almanac.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.almanac) and repo (.almanac) directories.
// Repo config is found by walking upward from startDir to find the nearest .almanac/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Loader re-reads configuration on every call.
// The absorption pipeline uses it so provider settings changed between runs take effect.
type Loader func() (*Config, error)

// FileLoader returns a Loader that reads global and repo config each time it is called.
func FileLoader(globalDir, startDir string) Loader {
	return func() (*Config, error) {
		return LoadWithRepo(globalDir, startDir)
	}
}

// StaticLoader returns a Loader that always yields cfg. Used by tests.
func StaticLoader(cfg *Config) Loader {
	return func() (*Config, error) {
		return cfg, nil
	}
}

// LoadEnv loads baseDir/.env into the process environment.
// Existing variables win. A missing file is not an error.
func LoadEnv(baseDir string) error {
	path := filepath.Join(baseDir, ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// FindRepoConfig walks upward from startDir to find the nearest .almanac/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".almanac", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	merged := Merge(DefaultConfig(), cfg)
	if err := Validate(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.PrimaryLanguage = firstString(overlay.PrimaryLanguage, base.PrimaryLanguage)
	result.SecondaryLanguage = firstString(overlay.SecondaryLanguage, base.SecondaryLanguage)
	result.HistoryLimit = firstInt(overlay.HistoryLimit, base.HistoryLimit)
	result.ArtifactMaxChars = firstInt(overlay.ArtifactMaxChars, base.ArtifactMaxChars)
	result.AnalysisTimeoutSeconds = firstInt(overlay.AnalysisTimeoutSeconds, base.AnalysisTimeoutSeconds)
	result.AbsorbParallelism = firstInt(overlay.AbsorbParallelism, base.AbsorbParallelism)
	result.DBMaxOpenConns = firstInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.AI = AIConfig{
		Provider:  firstString(overlay.AI.Provider, base.AI.Provider),
		Model:     firstString(overlay.AI.Model, base.AI.Model),
		Endpoint:  firstString(overlay.AI.Endpoint, base.AI.Endpoint),
		APIKeyEnv: firstString(overlay.AI.APIKeyEnv, base.AI.APIKeyEnv),
	}

	// Booleans: overlay wins if true, else base
	result.StrictTaskTransitions = base.StrictTaskTransitions || overlay.StrictTaskTransitions
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

// Validate checks values that cannot be defaulted away.
func Validate(cfg *Config) error {
	switch strings.ToLower(cfg.AI.Provider) {
	case ProviderOpenAI, ProviderOllama, ProviderNone, "":
	default:
		return errors.New("ai.provider must be one of: openai, ollama, none")
	}
	if _, err := ParseLanguage(cfg.SecondaryLanguage); err != nil {
		return err
	}
	if _, err := ParseLanguage(cfg.PrimaryLanguage); err != nil {
		return err
	}
	if !strings.EqualFold(cfg.PrimaryLanguage, "en") && !strings.EqualFold(cfg.PrimaryLanguage, cfg.SecondaryLanguage) {
		return errors.New("primary_language must be \"en\" or match secondary_language")
	}
	return nil
}

func firstString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func firstInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
