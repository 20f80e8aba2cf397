// Package config provides the configuration schema, loader, and provider
// registry for the voicedesk relay server.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a [time.Duration] that unmarshals from YAML duration strings
// such as "300ms" or "15s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like %q", "15s")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// LogLevel controls log verbosity for the voicedesk server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for voicedesk.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Assistant AssistantConfig `yaml:"assistant"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
}

// ServerConfig holds network and logging settings for the voicedesk server.
type ServerConfig struct {
	// Port is the TCP port the server listens on. When the port is already
	// bound, the server retries on successive ports.
	Port int `yaml:"port"`

	// MaxPortRetries bounds how many successive ports are tried when Port is
	// already bound. Zero means the default of 10.
	MaxPortRetries int `yaml:"max_port_retries"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// StaticDir, when non-empty, is a directory of client assets served for
	// paths not claimed by the API.
	StaticDir string `yaml:"static_dir"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "anyllm").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// When empty, the OPENAI_API_KEY environment variable is used as fallback.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4-turbo", "whisper-1").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// AssistantConfig tunes the conversation pipeline and the simulated assistant
// callee.
type AssistantConfig struct {
	// SystemPrompt is the instruction pinned at the start of every
	// conversation history. When empty, [DefaultSystemPrompt] is used.
	SystemPrompt string `yaml:"system_prompt"`

	// HistoryLimit caps the conversation history length including the pinned
	// system message. Zero means the default of 10.
	HistoryLimit int `yaml:"history_limit"`

	// Temperature is passed to the completion provider. Zero means the
	// default of 0.7.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps the completion length. Zero means the default of 150.
	MaxTokens int `yaml:"max_tokens"`

	// ReplyTimeout bounds each transcription and completion call. Zero means
	// the default of 15s.
	ReplyTimeout Duration `yaml:"reply_timeout"`

	// PickupDelay is how long the simulated assistant "rings" before
	// accepting a call. Zero means the default of 1s.
	PickupDelay Duration `yaml:"pickup_delay"`

	// CalleeID is the reserved destination identifier that routes a call to
	// the assistant instead of another user. Zero means the default "assistant".
	CalleeID string `yaml:"callee_id"`
}

// SegmenterConfig tunes the client-side audio segmenter. All durations are
// defaulted by the segmenter package when zero.
type SegmenterConfig struct {
	// Interval is the automatic capture-restart period.
	Interval Duration `yaml:"interval"`

	// SettleDelay is the pause between stopping one capture and starting the
	// next.
	SettleDelay Duration `yaml:"settle_delay"`

	// DebounceDelay is the push-to-talk release debounce before the forced
	// flush.
	DebounceDelay Duration `yaml:"debounce_delay"`

	// MinSegmentBytes is the minimum segment size sent without a forced flush.
	MinSegmentBytes int `yaml:"min_segment_bytes"`

	// SendResetDelay is how long the in-flight send guard stays set after a
	// segment is handed off.
	SendResetDelay Duration `yaml:"send_reset_delay"`
}

// DefaultSystemPrompt is the assistant instruction used when the config does
// not override it.
const DefaultSystemPrompt = "You are an HR assistant for AI, a company that provides HR services. " +
	"Answer questions about HR policies, benefits, and other work-related topics concisely and professionally."

// Defaults for the assistant section.
const (
	DefaultHistoryLimit = 10
	DefaultTemperature  = 0.7
	DefaultMaxTokens    = 150
	DefaultReplyTimeout = 15 * time.Second
	DefaultPickupDelay  = time.Second
	DefaultCalleeID     = "assistant"
)

// ApplyDefaults fills zero-valued assistant fields with their defaults.
func (a *AssistantConfig) ApplyDefaults() {
	if a.SystemPrompt == "" {
		a.SystemPrompt = DefaultSystemPrompt
	}
	if a.HistoryLimit == 0 {
		a.HistoryLimit = DefaultHistoryLimit
	}
	if a.Temperature == 0 {
		a.Temperature = DefaultTemperature
	}
	if a.MaxTokens == 0 {
		a.MaxTokens = DefaultMaxTokens
	}
	if a.ReplyTimeout == 0 {
		a.ReplyTimeout = Duration(DefaultReplyTimeout)
	}
	if a.PickupDelay == 0 {
		a.PickupDelay = Duration(DefaultPickupDelay)
	}
	if a.CalleeID == "" {
		a.CalleeID = DefaultCalleeID
	}
}
