// Package config handles configuration loading for reasonloop.
// It supports XDG config paths, project-level overrides, and REASONLOOP_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for a reasonloop run.
type Config struct {
	Loop      LoopConfig      `mapstructure:"loop"`
	LLM       LLMConfig       `mapstructure:"llm"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	WebSearch WebSearchConfig `mapstructure:"web_search"`
	PromptLog PromptLogConfig `mapstructure:"prompt_log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Templates TemplatesConfig `mapstructure:"templates"`
}

// LoopConfig holds execution loop settings.
type LoopConfig struct {
	// Objective is the default objective when none is given on the command line.
	Objective string `mapstructure:"objective"`
	// PromptTemplate selects the planning template.
	PromptTemplate string `mapstructure:"prompt_template"`
	// MaxRetries is the per-task retry budget beyond the first attempt.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// ContextLimit caps composed instruction size in characters.
	ContextLimit int `mapstructure:"context_limit"`
	// FallbackPlan substitutes a minimal plan when plan parsing fails.
	FallbackPlan bool `mapstructure:"fallback_plan"`
}

// LLMConfig holds text completion backend settings.
type LLMConfig struct {
	APIURL      string        `mapstructure:"api_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// MySQLConfig holds database ability settings.
type MySQLConfig struct {
	// DSN is the MySQL connection string. Empty disables the mysql abilities.
	DSN string `mapstructure:"dsn"`
}

// WebSearchConfig holds web search ability settings.
type WebSearchConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ResultCount int           `mapstructure:"result_count"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// PromptLogConfig holds prompt logging settings.
type PromptLogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// MetricsConfig holds run history settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// DBPath overrides the default database location when set.
	DBPath string `mapstructure:"db_path"`
}

// TemplatesConfig holds planning template settings.
type TemplatesConfig struct {
	// Dir is an optional directory of user-supplied template YAML files.
	Dir string `mapstructure:"dir"`
}

// Load loads configuration from XDG paths, project overrides, and environment
// variables. Precedence (highest to lowest):
// 1. Environment variables (REASONLOOP_*)
// 2. Project config (.reasonloop.yaml in current directory or parent)
// 3. User config (~/.config/reasonloop/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references in the DSN
	cfg.MySQL.DSN = os.ExpandEnv(cfg.MySQL.DSN)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	bindEnv(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.MySQL.DSN = os.ExpandEnv(cfg.MySQL.DSN)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("loop.objective", cfg.Loop.Objective)
	v.Set("loop.prompt_template", cfg.Loop.PromptTemplate)
	v.Set("loop.max_retries", cfg.Loop.MaxRetries)
	v.Set("loop.retry_delay", cfg.Loop.RetryDelay.String())
	v.Set("loop.context_limit", cfg.Loop.ContextLimit)
	v.Set("loop.fallback_plan", cfg.Loop.FallbackPlan)
	v.Set("llm.api_url", cfg.LLM.APIURL)
	v.Set("llm.model", cfg.LLM.Model)
	v.Set("llm.temperature", cfg.LLM.Temperature)
	v.Set("llm.max_tokens", cfg.LLM.MaxTokens)
	v.Set("llm.timeout", cfg.LLM.Timeout.String())
	v.Set("mysql.dsn", cfg.MySQL.DSN)
	v.Set("web_search.enabled", cfg.WebSearch.Enabled)
	v.Set("web_search.result_count", cfg.WebSearch.ResultCount)
	v.Set("web_search.timeout", cfg.WebSearch.Timeout.String())
	v.Set("prompt_log.enabled", cfg.PromptLog.Enabled)
	v.Set("prompt_log.dir", cfg.PromptLog.Dir)
	v.Set("metrics.enabled", cfg.Metrics.Enabled)
	v.Set("metrics.db_path", cfg.Metrics.DBPath)
	v.Set("templates.dir", cfg.Templates.Dir)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("loop.objective", "Create a 3-day itinerary for a trip to Bangkok, Thailand")
	v.SetDefault("loop.prompt_template", "default_tasks")
	v.SetDefault("loop.max_retries", 2)
	v.SetDefault("loop.retry_delay", "2s")
	v.SetDefault("loop.context_limit", 12000)
	v.SetDefault("loop.fallback_plan", false)

	v.SetDefault("llm.api_url", "http://localhost:11434/api/generate")
	v.SetDefault("llm.model", "llama3")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.timeout", "120s")

	v.SetDefault("mysql.dsn", "")

	v.SetDefault("web_search.enabled", true)
	v.SetDefault("web_search.result_count", 5)
	v.SetDefault("web_search.timeout", "30s")

	v.SetDefault("prompt_log.enabled", true)
	v.SetDefault("prompt_log.dir", "logs/prompts")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.db_path", "")

	v.SetDefault("templates.dir", "")
}

// bindEnv maps REASONLOOP_* environment variables onto config keys.
func bindEnv(v *viper.Viper) {
	v.BindEnv("loop.objective", "REASONLOOP_OBJECTIVE")
	v.BindEnv("loop.prompt_template", "REASONLOOP_PROMPT_TEMPLATE")
	v.BindEnv("loop.max_retries", "REASONLOOP_MAX_RETRIES")
	v.BindEnv("loop.retry_delay", "REASONLOOP_RETRY_DELAY")
	v.BindEnv("loop.context_limit", "REASONLOOP_CONTEXT_LIMIT")
	v.BindEnv("loop.fallback_plan", "REASONLOOP_FALLBACK_PLAN")
	v.BindEnv("llm.api_url", "REASONLOOP_LLM_API_URL")
	v.BindEnv("llm.model", "REASONLOOP_LLM_MODEL")
	v.BindEnv("llm.temperature", "REASONLOOP_LLM_TEMPERATURE")
	v.BindEnv("llm.max_tokens", "REASONLOOP_LLM_MAX_TOKENS")
	v.BindEnv("llm.timeout", "REASONLOOP_LLM_TIMEOUT")
	v.BindEnv("mysql.dsn", "REASONLOOP_MYSQL_DSN")
	v.BindEnv("web_search.enabled", "REASONLOOP_WEB_SEARCH_ENABLED")
	v.BindEnv("web_search.result_count", "REASONLOOP_WEB_SEARCH_RESULTS")
	v.BindEnv("web_search.timeout", "REASONLOOP_WEB_SEARCH_TIMEOUT")
	v.BindEnv("prompt_log.enabled", "REASONLOOP_PROMPT_LOG_ENABLED")
	v.BindEnv("prompt_log.dir", "REASONLOOP_PROMPT_LOG_DIR")
	v.BindEnv("metrics.enabled", "REASONLOOP_METRICS_ENABLED")
	v.BindEnv("metrics.db_path", "REASONLOOP_METRICS_DB")
	v.BindEnv("templates.dir", "REASONLOOP_TEMPLATES_DIR")
}

// getUserConfigDir returns the XDG config directory for reasonloop.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "reasonloop")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "reasonloop")
	}
	return filepath.Join(home, ".config", "reasonloop")
}

// findProjectConfig searches for .reasonloop.yaml in the current directory
// and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".reasonloop.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Loop: LoopConfig{
			Objective:      "Create a 3-day itinerary for a trip to Bangkok, Thailand",
			PromptTemplate: "default_tasks",
			MaxRetries:     2,
			RetryDelay:     2 * time.Second,
			ContextLimit:   12000,
		},
		LLM: LLMConfig{
			APIURL:      "http://localhost:11434/api/generate",
			Model:       "llama3",
			Temperature: 0.2,
			MaxTokens:   2000,
			Timeout:     120 * time.Second,
		},
		WebSearch: WebSearchConfig{
			Enabled:     true,
			ResultCount: 5,
			Timeout:     30 * time.Second,
		},
		PromptLog: PromptLogConfig{
			Enabled: true,
			Dir:     "logs/prompts",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
