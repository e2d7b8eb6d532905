package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// IMAPConfig holds the mailbox connection settings.
type IMAPConfig struct {
	Host   string `mapstructure:"host" yaml:"host"`
	Port   int    `mapstructure:"port" yaml:"port"`
	User   string `mapstructure:"user" yaml:"user"`
	Folder string `mapstructure:"folder" yaml:"folder"`
}

// TelegramConfig holds the chat surface settings. The bot token itself
// lives in the credential store, not in the config file.
type TelegramConfig struct {
	// ChatID is the only chat allowed to issue commands and the
	// destination for digests.
	ChatID int64 `mapstructure:"chat_id" yaml:"chat_id"`
}

// LLMConfig holds settings for the summarization backend
// (any OpenAI-compatible chat completions endpoint).
type LLMConfig struct {
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	Model     string `mapstructure:"model" yaml:"model"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// ScheduleConfig controls when automatic digests fire.
type ScheduleConfig struct {
	// Hours are the local hours (0-23) at which a digest runs,
	// Monday through Friday.
	Hours []int `mapstructure:"hours" yaml:"hours"`

	// Timezone is the IANA zone name the hours are interpreted in.
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
}

// LimitsConfig bounds the work done per run and the size of outputs.
type LimitsConfig struct {
	// MaxPerRun caps how many new messages one run fetches.
	MaxPerRun int `mapstructure:"max_per_run" yaml:"max_per_run"`

	// MaxBodyChars is the normalizer's per-message character budget.
	MaxBodyChars int `mapstructure:"max_body_chars" yaml:"max_body_chars"`

	// SynopsisChars is the hard character budget for one synopsis.
	SynopsisChars int `mapstructure:"synopsis_chars" yaml:"synopsis_chars"`

	// ChunkSize is the transport size limit for one digest chunk.
	ChunkSize int `mapstructure:"chunk_size" yaml:"chunk_size"`
}

// AppConfig is the top-level service configuration.
type AppConfig struct {
	IMAP     IMAPConfig     `mapstructure:"imap" yaml:"imap"`
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
	Limits   LimitsConfig   `mapstructure:"limits" yaml:"limits"`
	DBPath   string         `mapstructure:"db_path" yaml:"db_path"`
	LogLevel string         `mapstructure:"log_level" yaml:"log_level"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/maildigest/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "maildigest", "config.yaml")
}

// defaultAppConfig returns the configuration used when keys are absent.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		IMAP: IMAPConfig{
			Port:   993,
			Folder: "INBOX/ONLINE",
		},
		LLM: LLMConfig{
			BaseURL:   "https://api.groq.com/openai/v1",
			Model:     "llama-3.3-70b-versatile",
			MaxTokens: 220,
		},
		Schedule: ScheduleConfig{
			Hours:    []int{10, 12, 14, 16, 18},
			Timezone: "Europe/Moscow",
		},
		Limits: LimitsConfig{
			MaxPerRun:     80,
			MaxBodyChars:  20000,
			SynopsisChars: 400,
			ChunkSize:     3900,
		},
		DBPath:   filepath.Join(".", "maildigest.db"),
		LogLevel: "info",
	}
}

// LoadConfig reads configuration from the given YAML file path using
// Viper, with MAILDIGEST_* environment variables overriding file values
// (e.g. MAILDIGEST_IMAP_HOST). A missing file yields the defaults.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("maildigest")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultAppConfig()
	v.SetDefault("imap.port", def.IMAP.Port)
	v.SetDefault("imap.folder", def.IMAP.Folder)
	v.SetDefault("llm.base_url", def.LLM.BaseURL)
	v.SetDefault("llm.model", def.LLM.Model)
	v.SetDefault("llm.max_tokens", def.LLM.MaxTokens)
	v.SetDefault("schedule.hours", def.Schedule.Hours)
	v.SetDefault("schedule.timezone", def.Schedule.Timezone)
	v.SetDefault("limits.max_per_run", def.Limits.MaxPerRun)
	v.SetDefault("limits.max_body_chars", def.Limits.MaxBodyChars)
	v.SetDefault("limits.synopsis_chars", def.Limits.SynopsisChars)
	v.SetDefault("limits.chunk_size", def.Limits.ChunkSize)
	v.SetDefault("db_path", def.DBPath)
	v.SetDefault("log_level", def.LogLevel)

	if err := v.ReadInConfig(); err != nil {
		_, pathErr := err.(*os.PathError)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !pathErr && !notFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig rejects configurations the pipeline cannot run with.
func validateConfig(cfg *AppConfig) error {
	for _, h := range cfg.Schedule.Hours {
		if h < 0 || h > 23 {
			return fmt.Errorf("schedule hour %d out of range 0-23", h)
		}
	}
	if cfg.Limits.MaxPerRun < 1 {
		return fmt.Errorf("limits.max_per_run must be positive")
	}
	if cfg.Limits.ChunkSize < 1 {
		return fmt.Errorf("limits.chunk_size must be positive")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %s", cfg.LogLevel)
	}
	return nil
}
