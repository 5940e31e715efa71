package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrNoAPIKey = errors.New("api key not set (GIG_API_KEY or api_key in config)")

// Config holds all application configuration
type Config struct {
	// Gemini settings
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	UploadURL         string        `mapstructure:"upload_url"`
	ModelName         string        `mapstructure:"model"`
	Temperature       float64       `mapstructure:"temperature"`
	MaxOutputTokens   int           `mapstructure:"max_output_tokens"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	SystemPrompt      string        `mapstructure:"system_prompt"`

	// Attachment settings
	MaxAttempts      int           `mapstructure:"max_attempts"`
	MinIDLength      int           `mapstructure:"min_id_length"`
	FileValidity     time.Duration `mapstructure:"file_validity"`
	ProbeAttachments bool          `mapstructure:"probe_attachments"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	IncludeKnowledge bool          `mapstructure:"include_knowledge"`
	MaxUploadSize    int64         `mapstructure:"max_upload_size"`

	// Page fetch settings
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	MaxFetchers    int           `mapstructure:"max_fetchers"`
	MaxContentSize int64         `mapstructure:"max_content_size"`
	UserAgent      string        `mapstructure:"user_agent"`

	// Storage settings
	HistoryPath    string `mapstructure:"history_path"`
	MaxHistorySize int    `mapstructure:"max_history_size"`
	KnowledgePath  string `mapstructure:"knowledge_path"`
	TemplatesPath  string `mapstructure:"templates_path"`
	LogPath        string `mapstructure:"log_path"`

	// Feature flags
	Verbose bool `mapstructure:"verbose"`
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		// Gemini defaults
		BaseURL:           "https://generativelanguage.googleapis.com/v1beta",
		UploadURL:         "https://generativelanguage.googleapis.com/upload/v1beta",
		ModelName:         "gemini-1.5-flash",
		Temperature:       0.7,
		MaxOutputTokens:   2048,
		RequestTimeout:    120 * time.Second,
		RequestsPerMinute: 15,
		SystemPrompt:      "You are an assistant helping a freelancer write replies, summaries and proposals. Be concise and professional.",

		// Attachment defaults
		MaxAttempts:      3,
		MinIDLength:      8,
		FileValidity:     48 * time.Hour,
		ProbeAttachments: false,
		ProbeTimeout:     5 * time.Second,
		IncludeKnowledge: false,
		MaxUploadSize:    20 * 1024 * 1024, // 20 MB

		// Page fetch defaults
		FetchTimeout:   15 * time.Second,
		MaxFetchers:    3,
		MaxContentSize: 5 * 1024 * 1024, // 5 MB
		UserAgent:      "gig-copilot/1.0",

		// Storage defaults
		HistoryPath:    expandHome("~/.gig-copilot/history.json"),
		MaxHistorySize: 20,
		KnowledgePath:  expandHome("~/.gig-copilot/knowledge.db"),
		TemplatesPath:  expandHome("~/.gig-copilot/templates.yaml"),
		LogPath:        expandHome("~/.gig-copilot/logs/gig-copilot.log"),

		Verbose: false,
	}
}

// Load builds a Config from defaults, an optional YAML file, an optional
// .env file and GIG_* environment variables, in increasing precedence.
// An empty path falls back to ~/.gig-copilot/config.yaml; a missing file
// is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := NewConfig()
	setDefaults(v, cfg)

	v.SetEnvPrefix("GIG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = expandHome("~/.gig-copilot/config.yaml")
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.HistoryPath = expandHome(cfg.HistoryPath)
	cfg.KnowledgePath = expandHome(cfg.KnowledgePath)
	cfg.TemplatesPath = expandHome(cfg.TemplatesPath)
	cfg.LogPath = expandHome(cfg.LogPath)

	return cfg, nil
}

// setDefaults registers every field so AutomaticEnv and Unmarshal see them.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("api_key", cfg.APIKey)
	v.SetDefault("base_url", cfg.BaseURL)
	v.SetDefault("upload_url", cfg.UploadURL)
	v.SetDefault("model", cfg.ModelName)
	v.SetDefault("temperature", cfg.Temperature)
	v.SetDefault("max_output_tokens", cfg.MaxOutputTokens)
	v.SetDefault("request_timeout", cfg.RequestTimeout)
	v.SetDefault("requests_per_minute", cfg.RequestsPerMinute)
	v.SetDefault("system_prompt", cfg.SystemPrompt)
	v.SetDefault("max_attempts", cfg.MaxAttempts)
	v.SetDefault("min_id_length", cfg.MinIDLength)
	v.SetDefault("file_validity", cfg.FileValidity)
	v.SetDefault("probe_attachments", cfg.ProbeAttachments)
	v.SetDefault("probe_timeout", cfg.ProbeTimeout)
	v.SetDefault("include_knowledge", cfg.IncludeKnowledge)
	v.SetDefault("max_upload_size", cfg.MaxUploadSize)
	v.SetDefault("fetch_timeout", cfg.FetchTimeout)
	v.SetDefault("max_fetchers", cfg.MaxFetchers)
	v.SetDefault("max_content_size", cfg.MaxContentSize)
	v.SetDefault("user_agent", cfg.UserAgent)
	v.SetDefault("history_path", cfg.HistoryPath)
	v.SetDefault("max_history_size", cfg.MaxHistorySize)
	v.SetDefault("knowledge_path", cfg.KnowledgePath)
	v.SetDefault("templates_path", cfg.TemplatesPath)
	v.SetDefault("log_path", cfg.LogPath)
	v.SetDefault("verbose", cfg.Verbose)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	if c.ModelName == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.MaxOutputTokens < 1 {
		return fmt.Errorf("max output tokens must be at least 1")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	if c.MinIDLength < 1 {
		return fmt.Errorf("min id length must be at least 1")
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive")
	}
	if c.MaxFetchers < 1 {
		return fmt.Errorf("max fetchers must be at least 1")
	}
	return nil
}

// expandHome expands the ~ in file paths to the user's home directory
func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		return filepath.Join(getHomeDir(), path[1:])
	}
	return path
}

// getHomeDir returns the user's home directory
func getHomeDir() string {
	if home := GetEnv("HOME"); home != "" {
		return home
	}
	// Fallback for Windows
	if home := GetEnv("USERPROFILE"); home != "" {
		return home
	}
	return "."
}

// GetEnv is a wrapper around os.Getenv for easier testing
var GetEnv = os.Getenv
