package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig                 `mapstructure:"app" json:"app"`
	Gateways   map[string]GatewayConfig  `mapstructure:"gateways" json:"gateways"`
	Providers  map[string]ProviderConfig `mapstructure:"providers" json:"providers"`
	LLM        LLMConfig                 `mapstructure:"llm" json:"llm"`
	Browser    BrowserConfig             `mapstructure:"browser" json:"browser"`
	Executor   ExecutorConfig            `mapstructure:"executor" json:"executor"`
	Governance GovernanceConfig          `mapstructure:"governance" json:"governance"`
	Memory     MemoryConfig              `mapstructure:"memory" json:"memory"`
	Log        LogConfig                 `mapstructure:"log" json:"log"`
	Debug      bool                      `mapstructure:"debug" json:"debug"`
}

type AppConfig struct {
	Name   string `mapstructure:"name" json:"name"`
	Listen string `mapstructure:"listen" json:"listen"`
}

// GatewayConfig configures a completion notifier. Target is the chat ID for
// telegram and the channel ID for discord.
type GatewayConfig struct {
	Token   string `mapstructure:"token" json:"token"`
	Target  string `mapstructure:"target" json:"target"`
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
}

// ProviderConfig describes one model backend. Kind selects the client
// library ("langchain" or "openai-go"); Provider selects the langchain
// backend ("ollama" or "openai").
type ProviderConfig struct {
	Kind        string  `mapstructure:"kind" json:"kind"`
	Provider    string  `mapstructure:"provider" json:"provider"`
	APIKey      string  `mapstructure:"api_key" json:"api_key"`
	Model       string  `mapstructure:"model" json:"model"`
	BaseURL     string  `mapstructure:"base_url" json:"base_url,omitempty"`
	Temperature float64 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`
	Enabled     bool    `mapstructure:"enabled" json:"enabled"`
}

type LLMConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay" json:"base_delay"`
	PromptsDir  string        `mapstructure:"prompts_dir" json:"prompts_dir"`
	// Planner is "llm" or "heuristic".
	Planner string `mapstructure:"planner" json:"planner"`
}

type BrowserConfig struct {
	Engine         string        `mapstructure:"engine" json:"engine"`
	Headless       bool          `mapstructure:"headless" json:"headless"`
	ViewportWidth  int           `mapstructure:"viewport_width" json:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height" json:"viewport_height"`
	UserAgent      string        `mapstructure:"user_agent" json:"user_agent"`
	Timeout        time.Duration `mapstructure:"timeout" json:"timeout"`
	SearchEngine   string        `mapstructure:"search_engine" json:"search_engine"`
	ScreenshotDir  string        `mapstructure:"screenshot_dir" json:"screenshot_dir"`
}

type ExecutorConfig struct {
	ScrollFraction   float64 `mapstructure:"scroll_fraction" json:"scroll_fraction"`
	CheckboxPolicy   string  `mapstructure:"checkbox_policy" json:"checkbox_policy"`
	Seed             int64   `mapstructure:"seed" json:"seed"`
	ProbeConcurrency int     `mapstructure:"probe_concurrency" json:"probe_concurrency"`
}

type GovernanceConfig struct {
	DenyURLPatterns []string `mapstructure:"deny_url_patterns" json:"deny_url_patterns"`
	DenyHosts       []string `mapstructure:"deny_hosts" json:"deny_hosts"`
}

type MemoryConfig struct {
	Type string `mapstructure:"type" json:"type"`
	Path string `mapstructure:"path" json:"path"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" json:"level"`
	Format     string `mapstructure:"format" json:"format"`
	LLMLogPath string `mapstructure:"llm_log_path" json:"llm_log_path"`
}

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "deepseek-r1:7b"
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "wayfarer")
	v.SetDefault("app.listen", ":8080")
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.base_delay", time.Second)
	v.SetDefault("llm.planner", "llm")
	v.SetDefault("browser.engine", "chromedp")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 800)
	v.SetDefault("browser.user_agent", DefaultUserAgent)
	v.SetDefault("browser.timeout", 10*time.Second)
	v.SetDefault("browser.search_engine", "google")
	v.SetDefault("browser.screenshot_dir", "screenshots")
	v.SetDefault("executor.scroll_fraction", 0.7)
	v.SetDefault("executor.checkbox_policy", "random")
	v.SetDefault("executor.probe_concurrency", 4)
	v.SetDefault("governance.deny_url_patterns", []string{`^(?i)(file|chrome|javascript|data):`})
	v.SetDefault("memory.type", "sqlite")
	v.SetDefault("memory.path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.llm_log_path", "logs/llm.jsonl")
	v.SetDefault("debug", false)
}

// Load reads the config file at path (JSON or YAML, by extension) and applies
// WAYFARER_* environment overrides. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WAYFARER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("debug", "WAYFARER_DEBUG", "DEBUG")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if len(cfg.Providers) == 0 {
		cfg.Providers = map[string]ProviderConfig{
			"ollama": {
				Kind:        "langchain",
				Provider:    "ollama",
				BaseURL:     DefaultOllamaURL,
				Model:       DefaultOllamaModel,
				Temperature: 0.7,
				MaxTokens:   2000,
				Enabled:     true,
			},
		}
	}
	applyOllamaEnv(&cfg)

	return &cfg, nil
}

// applyOllamaEnv honours the OLLAMA_* variables for the "ollama" provider.
func applyOllamaEnv(cfg *Config) {
	p, ok := cfg.Providers["ollama"]
	if !ok {
		return
	}
	if s := os.Getenv("OLLAMA_BASE_URL"); s != "" {
		p.BaseURL = s
	}
	if s := os.Getenv("OLLAMA_MODEL"); s != "" {
		p.Model = s
	}
	if s := os.Getenv("OLLAMA_MAX_TOKENS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			p.MaxTokens = n
		}
	}
	if s := os.Getenv("OLLAMA_TEMPERATURE"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			p.Temperature = f
		}
	}
	cfg.Providers["ollama"] = p
}

// GetDefaultProvider returns the first enabled provider, by name.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetGateway returns the named notifier config if enabled.
func (c *Config) GetGateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled {
		return g, true
	}
	return GatewayConfig{}, false
}
