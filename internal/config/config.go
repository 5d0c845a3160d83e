// Package config provides configuration for agentgate.
//
// Values come from, in increasing precedence: built-in defaults, an optional
// YAML file, and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// ModeMock selects the built-in mock model.
const ModeMock = "MOCK"

// Config holds the agentgate configuration.
type Config struct {
	// Server settings
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Database
	DatabaseURL string `yaml:"database_url"`

	// Model settings
	Mode         string        `yaml:"mode"`
	LLMBaseURL   string        `yaml:"llm_base_url"`
	LLMAPIKey    string        `yaml:"llm_api_key"`
	Model        string        `yaml:"model"`
	Temperature  float64       `yaml:"temperature"`
	LLMTimeout   time.Duration `yaml:"llm_timeout"`
	SystemPrompt string        `yaml:"system_prompt"`
	MaxSteps     int           `yaml:"max_steps"`

	// Governance
	ModelCalls    LimitConfig         `yaml:"model_calls"`
	ToolCalls     LimitConfig         `yaml:"tool_calls"`
	ExitBehavior  domain.ExitBehavior `yaml:"exit_behavior"`
	Summarization SummarizationConfig `yaml:"summarization"`
	RunTimeout    time.Duration       `yaml:"run_timeout"`
	PolicyFile    string              `yaml:"policy_file"`

	// ThreadIdleTTL drops threads idle for longer. Zero keeps them forever.
	ThreadIdleTTL time.Duration `yaml:"thread_idle_ttl"`

	// MCPServers lists remote tool servers. YAML only.
	MCPServers []MCPServerConfig `yaml:"mcp_servers"`

	// Streaming
	InternalStages  []string `yaml:"internal_stages"`
	ReasoningStages []string `yaml:"reasoning_stages"`
	Annotated       bool     `yaml:"annotated"`

	// Logging
	LogLevel string `yaml:"log_level"`
	Debug    bool   `yaml:"debug"`
}

// LimitConfig is a thread and run quota. Zero means unlimited.
type LimitConfig struct {
	ThreadLimit int    `yaml:"thread_limit"`
	RunLimit    int    `yaml:"run_limit"`
	ToolName    string `yaml:"tool_name,omitempty"`
}

// MCP transports.
const (
	MCPTransportStdio = "stdio"
	MCPTransportHTTP  = "http"
	MCPTransportSSE   = "sse"
)

// MCPServerConfig describes one MCP server whose tools are offered to the
// model as "<name>.<tool>".
type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"`
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	Env       []string          `yaml:"env,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	// Timeout bounds each tool call. Zero leaves it to the run timeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Validate checks that the transport has what it needs.
func (m MCPServerConfig) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("mcp server name is required")
	}
	switch m.Transport {
	case MCPTransportStdio:
		if m.Command == "" {
			return fmt.Errorf("mcp server %q: command is required for stdio", m.Name)
		}
	case MCPTransportHTTP, MCPTransportSSE:
		if m.URL == "" {
			return fmt.Errorf("mcp server %q: url is required for %s", m.Name, m.Transport)
		}
	default:
		return fmt.Errorf("mcp server %q: unsupported transport %q", m.Name, m.Transport)
	}
	return nil
}

// SummarizationConfig configures history compaction.
type SummarizationConfig struct {
	MaxTokensBeforeSummary int `yaml:"max_tokens_before_summary"`
	MessagesToKeep         int `yaml:"messages_to_keep"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:         "127.0.0.1",
		Port:         8000,
		DatabaseURL:  "file:agentgate.db?cache=shared&mode=rwc&_busy_timeout=5000",
		Mode:         "REAL",
		LLMBaseURL:   "https://open.bigmodel.cn/api/paas/v4",
		Model:        "glm-4.5-flash",
		Temperature:  0.1,
		LLMTimeout:   60 * time.Second,
		SystemPrompt: "You are a helpful assistant. Use the available tools when they help answer the user.",
		MaxSteps:     25,
		ModelCalls:   LimitConfig{ThreadLimit: 10, RunLimit: 10},
		ToolCalls:    LimitConfig{ThreadLimit: 10, RunLimit: 10},
		ExitBehavior: domain.ExitBehaviorEnd,
		Summarization: SummarizationConfig{
			MaxTokensBeforeSummary: 4000,
			MessagesToKeep:         20,
		},
		RunTimeout:     5 * time.Minute,
		ThreadIdleTTL:  24 * time.Hour,
		InternalStages: []string{"tools"},
		LogLevel:       "info",
	}
}

// Load builds the configuration. path names an optional YAML file; when empty
// AGENTGATE_CONFIG is consulted.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("AGENTGATE_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnv() {
	c.Host = getEnv("HOST", c.Host)
	c.Port = getEnvInt("PORT", c.Port)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)

	c.Mode = strings.ToUpper(getEnv("AGENTGATE_MODE", c.Mode))
	c.LLMBaseURL = getEnv("OPENAI_API_URL", c.LLMBaseURL)
	c.LLMAPIKey = getEnv("OPENAI_API_KEY", c.LLMAPIKey)
	c.Model = getEnv("OPENAI_MODEL", c.Model)
	c.Temperature = getEnvFloat("OPENAI_TEMPERATURE", c.Temperature)
	c.LLMTimeout = time.Duration(getEnvInt("LLM_TIMEOUT_MS", int(c.LLMTimeout/time.Millisecond))) * time.Millisecond
	c.SystemPrompt = getEnv("SYSTEM_PROMPT", c.SystemPrompt)
	c.MaxSteps = getEnvInt("AGENT_MAX_STEPS", c.MaxSteps)

	c.ModelCalls.ThreadLimit = getEnvInt("MODEL_CALL_THREAD_LIMIT", c.ModelCalls.ThreadLimit)
	c.ModelCalls.RunLimit = getEnvInt("MODEL_CALL_RUN_LIMIT", c.ModelCalls.RunLimit)
	c.ToolCalls.ThreadLimit = getEnvInt("TOOL_CALL_THREAD_LIMIT", c.ToolCalls.ThreadLimit)
	c.ToolCalls.RunLimit = getEnvInt("TOOL_CALL_RUN_LIMIT", c.ToolCalls.RunLimit)
	c.ToolCalls.ToolName = getEnv("TOOL_CALL_LIMIT_TOOL", c.ToolCalls.ToolName)
	c.ExitBehavior = domain.ExitBehavior(strings.ToLower(getEnv("EXIT_BEHAVIOR", string(c.ExitBehavior))))
	c.Summarization.MaxTokensBeforeSummary = getEnvInt("SUMMARY_MAX_TOKENS", c.Summarization.MaxTokensBeforeSummary)
	c.Summarization.MessagesToKeep = getEnvInt("SUMMARY_MESSAGES_TO_KEEP", c.Summarization.MessagesToKeep)
	c.RunTimeout = time.Duration(getEnvInt("RUN_TIMEOUT_MS", int(c.RunTimeout/time.Millisecond))) * time.Millisecond
	c.PolicyFile = getEnv("POLICY_FILE", c.PolicyFile)
	c.ThreadIdleTTL = time.Duration(getEnvInt("THREAD_IDLE_TTL_MS", int(c.ThreadIdleTTL/time.Millisecond))) * time.Millisecond

	c.InternalStages = getEnvList("STAGES_INTERNAL", c.InternalStages)
	c.ReasoningStages = getEnvList("STAGES_REASONING", c.ReasoningStages)
	c.Annotated = getEnvBool("STREAM_ANNOTATED", c.Annotated)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Debug = getEnvBool("DEBUG", c.Debug)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if !c.ExitBehavior.Valid() {
		return fmt.Errorf("exit behavior must be %q or %q, got %q", domain.ExitBehaviorEnd, domain.ExitBehaviorError, c.ExitBehavior)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature %.2f out of range [0, 2]", c.Temperature)
	}
	for name, v := range map[string]int{
		"model call thread limit":  c.ModelCalls.ThreadLimit,
		"model call run limit":     c.ModelCalls.RunLimit,
		"tool call thread limit":   c.ToolCalls.ThreadLimit,
		"tool call run limit":      c.ToolCalls.RunLimit,
		"summary messages to keep": c.Summarization.MessagesToKeep,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	seen := make(map[string]bool, len(c.MCPServers))
	for _, server := range c.MCPServers {
		if err := server.Validate(); err != nil {
			return err
		}
		if seen[server.Name] {
			return fmt.Errorf("mcp server %q configured twice", server.Name)
		}
		seen[server.Name] = true
	}
	if c.Mode != ModeMock && c.LLMBaseURL == "" {
		return fmt.Errorf("llm base url is required unless mode is %s", ModeMock)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
