package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"voice-assist/internal/domain"
)

type Config struct {
	Audio    AudioConfig    `yaml:"audio"`
	Speech   SpeechConfig   `yaml:"speech"`
	STT      STTConfig      `yaml:"stt"`
	LLM      LLMConfig      `yaml:"llm"`
	Retry    RetryConfig    `yaml:"retry"`
	Server   ServerConfig   `yaml:"server"`
	Pushover PushoverConfig `yaml:"pushover"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

type AudioConfig struct {
	Source           string        `yaml:"source"`
	FileDir          string        `yaml:"file_dir"`
	SampleRate       int           `yaml:"sample_rate"`
	SilenceThreshold int           `yaml:"silence_threshold"`
	CompleteSilence  time.Duration `yaml:"complete_silence"`
	NoSpeechTimeout  time.Duration `yaml:"no_speech_timeout"`
	MaxUtterance     time.Duration `yaml:"max_utterance"`
}

type SpeechConfig struct {
	// Language is a BCP-47 tag. Empty means the host locale from $LC_ALL or $LANG.
	Language string `yaml:"language"`
}

type STTConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type LLMConfig struct {
	Provider           string        `yaml:"provider"`
	Fallback           []string      `yaml:"fallback"`
	SystemPrompt       string        `yaml:"system_prompt"`
	MaxContextMessages int           `yaml:"max_context_messages"`
	Temperature        float64       `yaml:"temperature"`
	MaxTokens          int           `yaml:"max_tokens"`
	Timeout            time.Duration `yaml:"timeout"`

	Gemini    ProviderConfig `yaml:"gemini"`
	OpenAI    ProviderConfig `yaml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`

	Breaker BreakerConfig `yaml:"breaker"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type BreakerConfig struct {
	MaxFailures int           `yaml:"max_failures"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

// RetryConfig overrides the recognizer retry policy per error kind, keyed by
// kind name (audio, client, server, ...).
type RetryConfig struct {
	Rules map[string]RetryRuleConfig `yaml:"rules"`
}

type RetryRuleConfig struct {
	Delay       *time.Duration `yaml:"delay"`
	MaxRestarts *int           `yaml:"max_restarts"`
}

type ServerConfig struct {
	Addr       string        `yaml:"addr"`
	AuthToken  string        `yaml:"auth_token"`
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Enabled bool   `yaml:"enabled"`
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var (
	audioSources = []string{"microphone", "file"}
	providers    = []string{"gemini", "openai", "anthropic"}
	errorKinds   = []domain.ErrorKind{
		domain.ErrorAudio,
		domain.ErrorClient,
		domain.ErrorInsufficientPermissions,
		domain.ErrorNetwork,
		domain.ErrorNetworkTimeout,
		domain.ErrorNoMatch,
		domain.ErrorRecognizerBusy,
		domain.ErrorServer,
		domain.ErrorSpeechTimeout,
		domain.ErrorUnknown,
	}
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references, decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Audio.Source == "" {
		c.Audio.Source = "microphone"
	}
	if c.Audio.FileDir == "" {
		c.Audio.FileDir = "./audio"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.SilenceThreshold == 0 {
		c.Audio.SilenceThreshold = 500
	}
	if c.Audio.CompleteSilence == 0 {
		c.Audio.CompleteSilence = 1500 * time.Millisecond
	}
	if c.Audio.NoSpeechTimeout == 0 {
		c.Audio.NoSpeechTimeout = 5 * time.Second
	}
	if c.Audio.MaxUtterance == 0 {
		c.Audio.MaxUtterance = 10 * time.Second
	}
	if c.Speech.Language == "" {
		c.Speech.Language = hostLocale()
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	if c.LLM.MaxContextMessages == 0 {
		c.LLM.MaxContextMessages = 10
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 150
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 30 * time.Second
	}
	if c.LLM.Gemini.Model == "" {
		c.LLM.Gemini.Model = "gemini-2.0-flash"
	}
	if c.LLM.OpenAI.Model == "" {
		c.LLM.OpenAI.Model = "gpt-4o-mini"
	}
	if c.LLM.Anthropic.Model == "" {
		c.LLM.Anthropic.Model = "claude-sonnet-4-20250514"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Archive.Path == "" {
		c.Archive.Path = "./data/conversation.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(audioSources, c.Audio.Source) {
		errs = append(errs, fmt.Errorf("audio.source %q is invalid; valid values: %s", c.Audio.Source, strings.Join(audioSources, ", ")))
	}
	if c.Audio.SilenceThreshold < 0 || c.Audio.SilenceThreshold > 32767 {
		errs = append(errs, fmt.Errorf("audio.silence_threshold %d is out of range [0, 32767]", c.Audio.SilenceThreshold))
	}

	if !slices.Contains(providers, c.LLM.Provider) {
		errs = append(errs, fmt.Errorf("llm.provider %q is invalid; valid values: %s", c.LLM.Provider, strings.Join(providers, ", ")))
	}
	seen := map[string]bool{c.LLM.Provider: true}
	for i, name := range c.LLM.Fallback {
		switch {
		case !slices.Contains(providers, name):
			errs = append(errs, fmt.Errorf("llm.fallback[%d] %q is invalid; valid values: %s", i, name, strings.Join(providers, ", ")))
		case seen[name]:
			errs = append(errs, fmt.Errorf("llm.fallback[%d] %q is listed twice", i, name))
		}
		seen[name] = true
	}
	for _, name := range c.LLM.Providers() {
		if p, ok := c.LLM.provider(name); ok && p.APIKey == "" {
			errs = append(errs, fmt.Errorf("llm.%s.api_key is required", name))
		}
	}
	if c.LLM.MaxContextMessages < 0 {
		errs = append(errs, fmt.Errorf("llm.max_context_messages %d must not be negative", c.LLM.MaxContextMessages))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f is out of range [0, 2]", c.LLM.Temperature))
	}

	for name, rule := range c.Retry.Rules {
		if !knownKind(name) {
			errs = append(errs, fmt.Errorf("retry.rules.%s is not a recognizer error kind", name))
			continue
		}
		if rule.Delay != nil && *rule.Delay < 0 {
			errs = append(errs, fmt.Errorf("retry.rules.%s.delay must not be negative", name))
		}
		if rule.MaxRestarts != nil && *rule.MaxRestarts < 0 {
			errs = append(errs, fmt.Errorf("retry.rules.%s.max_restarts must not be negative", name))
		}
	}

	if c.Pushover.Enabled && (c.Pushover.Token == "" || c.Pushover.UserKey == "") {
		errs = append(errs, errors.New("pushover.token and pushover.user_key are required when pushover is enabled"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", c.Log.Level))
	}

	return errors.Join(errs...)
}

// Providers returns the primary provider followed by its fallbacks.
func (c LLMConfig) Providers() []string {
	return append([]string{c.Provider}, c.Fallback...)
}

func (c LLMConfig) provider(name string) (ProviderConfig, bool) {
	switch name {
	case "gemini":
		return c.Gemini, true
	case "openai":
		return c.OpenAI, true
	case "anthropic":
		return c.Anthropic, true
	}
	return ProviderConfig{}, false
}

func knownKind(name string) bool {
	for _, k := range errorKinds {
		if string(k) == name {
			return true
		}
	}
	return false
}

// hostLocale turns a POSIX locale such as "en_US.UTF-8" into "en-US".
func hostLocale() string {
	for _, env := range []string{"LC_ALL", "LANG"} {
		v := os.Getenv(env)
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		v, _, _ = strings.Cut(v, ".")
		v, _, _ = strings.Cut(v, "@")
		return strings.ReplaceAll(v, "_", "-")
	}
	return "en-US"
}
