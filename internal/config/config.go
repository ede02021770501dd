// File: internal/config/config.go
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Network() NetworkConfig
	Retry() RetryConfig
	Captcha() CaptchaConfig
	Agent() AgentConfig
	Mapping() MappingConfig
	Form() FormConfig
	Applicant() ApplicantConfig
	Database() DatabaseConfig
	Artifacts() ArtifactsConfig

	// Browser Setters
	SetBrowserHeadless(bool)

	// Applicant Setters
	SetApplicantProfilePath(string)
	SetApplicantResumePath(string)

	// Mapping Setters
	SetMappingSemanticEnabled(bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	NetworkCfg   NetworkConfig   `mapstructure:"network" yaml:"network"`
	RetryCfg     RetryConfig     `mapstructure:"retry" yaml:"retry"`
	CaptchaCfg   CaptchaConfig   `mapstructure:"captcha" yaml:"captcha"`
	AgentCfg     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	MappingCfg   MappingConfig   `mapstructure:"mapping" yaml:"mapping"`
	FormCfg      FormConfig      `mapstructure:"form" yaml:"form"`
	ApplicantCfg ApplicantConfig `mapstructure:"applicant" yaml:"applicant"`
	DatabaseCfg  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	ArtifactsCfg ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Network() NetworkConfig     { return c.NetworkCfg }
func (c *Config) Retry() RetryConfig         { return c.RetryCfg }
func (c *Config) Captcha() CaptchaConfig     { return c.CaptchaCfg }
func (c *Config) Agent() AgentConfig         { return c.AgentCfg }
func (c *Config) Mapping() MappingConfig     { return c.MappingCfg }
func (c *Config) Form() FormConfig           { return c.FormCfg }
func (c *Config) Applicant() ApplicantConfig { return c.ApplicantCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }
func (c *Config) Artifacts() ArtifactsConfig { return c.ArtifactsCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)        { c.BrowserCfg.Headless = b }
func (c *Config) SetApplicantProfilePath(p string) { c.ApplicantCfg.ProfilePath = p }
func (c *Config) SetApplicantResumePath(p string)  { c.ApplicantCfg.ResumePath = p }
func (c *Config) SetMappingSemanticEnabled(b bool) { c.MappingCfg.SemanticEnabled = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color settings for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig configures the browser engine launched for each attempt.
type BrowserConfig struct {
	Engine         string         `mapstructure:"engine" yaml:"engine"`
	ExecPath       string         `mapstructure:"exec_path" yaml:"exec_path"`
	Headless       bool           `mapstructure:"headless" yaml:"headless"`
	DisableGPU     bool           `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	UserAgent      string         `mapstructure:"user_agent" yaml:"user_agent"`
	Args           []string       `mapstructure:"args" yaml:"args"`
	Viewport       ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	DefaultTimeout time.Duration  `mapstructure:"default_timeout" yaml:"default_timeout"`
	Proxy          ProxyConfig    `mapstructure:"proxy" yaml:"proxy"`
}

// ViewportConfig is the window size used for new pages.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// ProxyConfig routes browser traffic through an upstream proxy.
type ProxyConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
	Bypass  string `mapstructure:"bypass" yaml:"bypass"`
}

// NetworkConfig holds navigation timing.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// IdleTime is how long the network must be quiet to count as idle.
	IdleTime time.Duration `mapstructure:"idle_time" yaml:"idle_time"`
	// IdleTimeout caps the wait for idleness after the load event.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// RetryConfig holds the two retry tiers: tight per-step and loose per-attempt.
type RetryConfig struct {
	Step    RetryPolicyConfig `mapstructure:"step" yaml:"step"`
	Attempt RetryPolicyConfig `mapstructure:"attempt" yaml:"attempt"`
}

// RetryPolicyConfig describes a bounded exponential backoff.
type RetryPolicyConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier" yaml:"multiplier"`
}

// Validate checks a single retry policy.
func (r RetryPolicyConfig) Validate() error {
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be a positive integer")
	}
	if r.InitialInterval < 0 || r.MaxInterval < 0 {
		return fmt.Errorf("intervals must not be negative")
	}
	if r.MaxInterval > 0 && r.InitialInterval > r.MaxInterval {
		return fmt.Errorf("initial_interval must not exceed max_interval")
	}
	if r.Multiplier != 0 && r.Multiplier < 1 {
		return fmt.Errorf("multiplier must be >= 1")
	}
	return nil
}

// CaptchaConfig configures the external solving service.
type CaptchaConfig struct {
	Provider     string        `mapstructure:"provider" yaml:"provider"`
	APIKey       string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint     string        `mapstructure:"endpoint" yaml:"endpoint"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	SolveTimeout time.Duration `mapstructure:"solve_timeout" yaml:"solve_timeout"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"`
}

// Supported captcha providers.
const (
	CaptchaProviderNone       = "none"
	CaptchaProviderTwoCaptcha = "2captcha"
)

// AgentConfig groups AI settings.
type AgentConfig struct {
	LLM LLMModelConfig `mapstructure:"llm" yaml:"llm"`
	// FastLLM, when it names a model, serves fast-tier requests. Empty
	// provider and api_key fields are taken from LLM.
	FastLLM LLMModelConfig `mapstructure:"fast_llm" yaml:"fast_llm"`
}

// LLMProvider defines the type for LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai"
)

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider      LLMProvider       `mapstructure:"provider" yaml:"provider"`
	Model         string            `mapstructure:"model" yaml:"model"`
	APIKey        string            `mapstructure:"api_key" yaml:"api_key"`
	Endpoint      string            `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout    time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature   float32           `mapstructure:"temperature" yaml:"temperature"`
	TopP          float32           `mapstructure:"top_p" yaml:"top_p"`
	TopK          int               `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens     int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	SafetyFilters map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
}

// MappingConfig controls the field mapping tiers.
type MappingConfig struct {
	SemanticEnabled bool `mapstructure:"semantic_enabled" yaml:"semantic_enabled"`
	// HeuristicOrder overrides the order in which heuristic groups are tried.
	// Groups left out keep their default relative order after the listed ones.
	HeuristicOrder []string `mapstructure:"heuristic_order" yaml:"heuristic_order"`
}

// TriggerConfig is one candidate for the "apply" control that reveals a form.
type TriggerConfig struct {
	Selector string `mapstructure:"selector" yaml:"selector"`
	Text     string `mapstructure:"text" yaml:"text"`
}

// FormConfig tunes discovery, filling and submission.
type FormConfig struct {
	ScopeSelector   string          `mapstructure:"scope_selector" yaml:"scope_selector"`
	FormTimeout     time.Duration   `mapstructure:"form_timeout" yaml:"form_timeout"`
	ApplyTriggers   []TriggerConfig `mapstructure:"apply_triggers" yaml:"apply_triggers"`
	TriggerWait     time.Duration   `mapstructure:"trigger_wait" yaml:"trigger_wait"`
	SubmitSelectors []string        `mapstructure:"submit_selectors" yaml:"submit_selectors"`
	SubmitTexts     []string        `mapstructure:"submit_texts" yaml:"submit_texts"`
	SuccessPhrases  []string        `mapstructure:"success_phrases" yaml:"success_phrases"`
	SettleTime      time.Duration   `mapstructure:"settle_time" yaml:"settle_time"`
	ComboboxWait    time.Duration   `mapstructure:"combobox_wait" yaml:"combobox_wait"`
}

// ApplicantConfig locates the applicant's data on disk.
type ApplicantConfig struct {
	ProfilePath string `mapstructure:"profile_path" yaml:"profile_path"`
	ResumeDir   string `mapstructure:"resume_dir" yaml:"resume_dir"`
	// ResumePath is used when the profile carries no resume_path of its own.
	ResumePath string `mapstructure:"resume_path" yaml:"resume_path"`
}

// DatabaseConfig holds the attempt history connection. Empty URL disables it.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// ArtifactsConfig controls confirmation screenshots.
type ArtifactsConfig struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled"`
	Dir     string   `mapstructure:"dir" yaml:"dir"`
	S3      S3Config `mapstructure:"s3" yaml:"s3"`
}

// S3Config mirrors artifacts to a bucket.
type S3Config struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Bucket  string `mapstructure:"bucket" yaml:"bucket"`
	Prefix  string `mapstructure:"prefix" yaml:"prefix"`
	Region  string `mapstructure:"region" yaml:"region"`
}

// DefaultUserAgent is the desktop Chrome user agent presented by default.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "autoapply")
	v.SetDefault("logger.log_file", "logs/application.log")
	v.SetDefault("logger.max_size", 500)
	v.SetDefault("logger.max_backups", 0)
	v.SetDefault("logger.max_age", 10)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.engine", "chromium")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.user_agent", DefaultUserAgent)
	v.SetDefault("browser.viewport.width", 1920)
	v.SetDefault("browser.viewport.height", 1080)
	v.SetDefault("browser.default_timeout", "30s")
	v.SetDefault("browser.proxy.enabled", false)

	// -- Network --
	v.SetDefault("network.navigation_timeout", "30s")
	v.SetDefault("network.idle_time", "500ms")
	v.SetDefault("network.idle_timeout", "10s")

	// -- Retry --
	v.SetDefault("retry.step.max_attempts", 3)
	v.SetDefault("retry.step.initial_interval", "4s")
	v.SetDefault("retry.step.max_interval", "10s")
	v.SetDefault("retry.step.multiplier", 2.0)
	v.SetDefault("retry.attempt.max_attempts", 3)
	v.SetDefault("retry.attempt.initial_interval", "4s")
	v.SetDefault("retry.attempt.max_interval", "10s")
	v.SetDefault("retry.attempt.multiplier", 2.0)

	// -- Captcha --
	v.SetDefault("captcha.provider", CaptchaProviderTwoCaptcha)
	v.SetDefault("captcha.endpoint", "https://2captcha.com")
	v.SetDefault("captcha.poll_interval", "5s")
	v.SetDefault("captcha.solve_timeout", "3m")
	v.SetDefault("captcha.http_timeout", "30s")

	// -- Agent --
	v.SetDefault("agent.llm.provider", string(ProviderOpenAI))
	v.SetDefault("agent.llm.model", "gpt-4o-mini")
	v.SetDefault("agent.llm.api_timeout", "60s")
	v.SetDefault("agent.llm.temperature", 0.7)

	// -- Mapping --
	v.SetDefault("mapping.semantic_enabled", true)

	// -- Form --
	v.SetDefault("form.scope_selector", "form")
	v.SetDefault("form.form_timeout", "10s")
	v.SetDefault("form.apply_triggers", []map[string]string{
		{"selector": "[data-ui='apply-button']"},
		{"selector": "button", "text": "Apply for this job"},
		{"selector": "a", "text": "Apply for this job"},
		{"selector": "button", "text": "Apply now"},
		{"selector": "a", "text": "Apply now"},
		{"selector": "button", "text": "Apply"},
		{"selector": "a", "text": "Apply"},
	})
	v.SetDefault("form.trigger_wait", "2s")
	v.SetDefault("form.submit_selectors", []string{`button[type="submit"]`, `input[type="submit"]`})
	v.SetDefault("form.submit_texts", []string{"Submit application", "Submit", "Send application"})
	v.SetDefault("form.success_phrases", []string{"Thank you", "Application submitted", "Success", "Confirmation"})
	v.SetDefault("form.settle_time", "5s")
	v.SetDefault("form.combobox_wait", "500ms")

	// -- Applicant --
	v.SetDefault("applicant.profile_path", "data/user_metadata.json")
	v.SetDefault("applicant.resume_dir", "data/resumes")

	// -- Artifacts --
	v.SetDefault("artifacts.enabled", false)
	v.SetDefault("artifacts.dir", "artifacts")
	v.SetDefault("artifacts.s3.enabled", false)
	v.SetDefault("artifacts.s3.prefix", "autoapply")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data. The unprefixed names are
	// the ones the solving and model vendors document.
	_ = v.BindEnv("captcha.api_key", "AUTOAPPLY_CAPTCHA_API_KEY", "TWOCAPTCHA_API_KEY")
	_ = v.BindEnv("agent.llm.api_key", "AUTOAPPLY_LLM_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("database.url", "AUTOAPPLY_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.RetryCfg.Step.Validate(); err != nil {
		return fmt.Errorf("retry.step: %w", err)
	}
	if err := c.RetryCfg.Attempt.Validate(); err != nil {
		return fmt.Errorf("retry.attempt: %w", err)
	}
	if c.NetworkCfg.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be a positive duration")
	}
	if c.FormCfg.FormTimeout <= 0 {
		return fmt.Errorf("form.form_timeout must be a positive duration")
	}
	if c.FormCfg.SettleTime < 0 {
		return fmt.Errorf("form.settle_time must not be negative")
	}
	if strings.TrimSpace(c.FormCfg.ScopeSelector) == "" {
		return fmt.Errorf("form.scope_selector is required")
	}
	if len(c.FormCfg.SuccessPhrases) == 0 {
		return fmt.Errorf("form.success_phrases must list at least one phrase")
	}
	switch c.CaptchaCfg.Provider {
	case "", CaptchaProviderNone, CaptchaProviderTwoCaptcha:
	default:
		return fmt.Errorf("captcha.provider %q is not supported", c.CaptchaCfg.Provider)
	}
	if c.MappingCfg.SemanticEnabled {
		switch c.AgentCfg.LLM.Provider {
		case ProviderGemini, ProviderOpenAI:
		default:
			return fmt.Errorf("agent.llm.provider %q is not supported", c.AgentCfg.LLM.Provider)
		}
	}
	if c.BrowserCfg.Proxy.Enabled && c.BrowserCfg.Proxy.Address == "" {
		return fmt.Errorf("browser.proxy.address is required when the proxy is enabled")
	}
	if c.ArtifactsCfg.S3.Enabled && c.ArtifactsCfg.S3.Bucket == "" {
		return fmt.Errorf("artifacts.s3.bucket is required when s3 upload is enabled")
	}
	return nil
}

type contextKey struct{}

// NewContext returns a context carrying cfg.
func NewContext(ctx context.Context, cfg Interface) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext returns the configuration stored by NewContext, if any.
func FromContext(ctx context.Context) (Interface, bool) {
	cfg, ok := ctx.Value(contextKey{}).(Interface)
	return cfg, ok && cfg != nil
}
