// Package config loads qaflow configuration from defaults, an optional YAML file
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider identifies the generation backend.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderGroq      Provider = "groq"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderBedrock   Provider = "bedrock"
	ProviderMock      Provider = "mock"
)

// DefaultConfigFile is read when no explicit config file is given and it exists.
const DefaultConfigFile = "qaflow.yaml"

// Config holds all configuration values.
type Config struct {
	// Generation backend
	Provider   Provider
	OllamaHost string
	Model      string
	Timeout    time.Duration

	// Hosted providers
	GroqAPIKey      string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	AWSRegion       string

	// Pipeline layout
	PromptDir       string
	RequirementsDir string
	ScenarioDir     string
	TestDir         string
	ReportPath      string
	AnalysisDir     string
	LogsDir         string
	Recursive       bool

	// Concurrency is the number of items processed at once (1 = sequential).
	Concurrency int

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Provider:        ProviderOllama,
		OllamaHost:      "http://localhost:11434",
		Model:           "qwen2.5:7b-instruct",
		Timeout:         600 * time.Second,
		AWSRegion:       "us-east-1",
		PromptDir:       "ai/prompts",
		RequirementsDir: "requirements",
		ScenarioDir:     "ai/bdd",
		TestDir:         "ai/tests",
		ReportPath:      "report.json",
		AnalysisDir:     "ai/analysis",
		LogsDir:         "test-results",
		Concurrency:     1,
		LogLevel:        slog.LevelInfo,
	}
}

// Load reads configuration: defaults, then the YAML file (if any), then
// environment variables. path may be empty.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv("QAFLOW_CONFIG")
	}
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	if err := cfg.mergeFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// fileConfig mirrors Config for YAML decoding; pointer fields distinguish unset keys.
type fileConfig struct {
	Provider        *string `yaml:"provider"`
	OllamaHost      *string `yaml:"ollama_host"`
	Model           *string `yaml:"model"`
	Timeout         *string `yaml:"timeout"`
	OpenAIBaseURL   *string `yaml:"openai_base_url"`
	AWSRegion       *string `yaml:"aws_region"`
	PromptDir       *string `yaml:"prompt_dir"`
	RequirementsDir *string `yaml:"requirements_dir"`
	ScenarioDir     *string `yaml:"scenario_dir"`
	TestDir         *string `yaml:"test_dir"`
	ReportPath      *string `yaml:"report_path"`
	AnalysisDir     *string `yaml:"analysis_dir"`
	LogsDir         *string `yaml:"logs_dir"`
	Recursive       *bool   `yaml:"recursive"`
	Concurrency     *int    `yaml:"concurrency"`
	LogFile         *string `yaml:"log_file"`
	LogLevel        *string `yaml:"log_level"`
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	if fc.Provider != nil {
		c.Provider = Provider(strings.ToLower(*fc.Provider))
	}
	setString(&c.OllamaHost, fc.OllamaHost)
	setString(&c.Model, fc.Model)
	setString(&c.OpenAIBaseURL, fc.OpenAIBaseURL)
	setString(&c.AWSRegion, fc.AWSRegion)
	setString(&c.PromptDir, fc.PromptDir)
	setString(&c.RequirementsDir, fc.RequirementsDir)
	setString(&c.ScenarioDir, fc.ScenarioDir)
	setString(&c.TestDir, fc.TestDir)
	setString(&c.ReportPath, fc.ReportPath)
	setString(&c.AnalysisDir, fc.AnalysisDir)
	setString(&c.LogsDir, fc.LogsDir)
	setString(&c.LogFile, fc.LogFile)
	if fc.Timeout != nil {
		d, err := time.ParseDuration(*fc.Timeout)
		if err != nil {
			return fmt.Errorf("parse config file %s: timeout: %w", path, err)
		}
		c.Timeout = d
	}
	if fc.Recursive != nil {
		c.Recursive = *fc.Recursive
	}
	if fc.Concurrency != nil {
		c.Concurrency = *fc.Concurrency
	}
	if fc.LogLevel != nil {
		c.LogLevel = parseLogLevel(*fc.LogLevel)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Provider = Provider(strings.ToLower(getEnv("QAFLOW_PROVIDER", string(c.Provider))))
	c.OllamaHost = getEnv("OLLAMA_HOST", c.OllamaHost)
	c.Model = getEnv("OLLAMA_MODEL", c.Model)
	c.Model = getEnv("QAFLOW_MODEL", c.Model)
	c.Timeout = getEnvDuration("QAFLOW_TIMEOUT", c.Timeout)

	c.GroqAPIKey = getEnv("GROQ_API_KEY", c.GroqAPIKey)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)

	c.PromptDir = getEnv("QAFLOW_PROMPT_DIR", c.PromptDir)
	c.ScenarioDir = getEnv("QAFLOW_SCENARIO_DIR", c.ScenarioDir)
	c.TestDir = getEnv("QAFLOW_TEST_DIR", c.TestDir)
	c.AnalysisDir = getEnv("QAFLOW_ANALYSIS_DIR", c.AnalysisDir)
	c.Concurrency = getEnvInt("QAFLOW_CONCURRENCY", c.Concurrency)

	c.LogFile = getEnv("QAFLOW_LOG_FILE", c.LogFile)
	if lvl := os.Getenv("QAFLOW_LOG_LEVEL"); lvl != "" {
		c.LogLevel = parseLogLevel(lvl)
	}
}

// Validate checks that the configuration can drive a backend.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("ollama host is required")
		}
	case ProviderGroq:
		if c.GroqAPIKey == "" {
			return fmt.Errorf("GROQ_API_KEY is required for provider %q", c.Provider)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider %q", c.Provider)
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for provider %q", c.Provider)
		}
	case ProviderBedrock:
		if c.AWSRegion == "" {
			return fmt.Errorf("AWS region is required for provider %q", c.Provider)
		}
	case ProviderMock:
	default:
		return fmt.Errorf("unsupported provider: %q", c.Provider)
	}

	if c.Model == "" && c.Provider != ProviderMock {
		return fmt.Errorf("model is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("600").
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
