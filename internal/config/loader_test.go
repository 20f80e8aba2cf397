package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  port: 3000
  log_level: info
providers:
  llm:
    name: openai
    model: gpt-4-turbo
  stt:
    name: openai
    model: whisper-1
assistant:
  temperature: 0.7
  max_tokens: 150
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Providers.LLM.Model != "gpt-4-turbo" {
		t.Errorf("llm model = %q", cfg.Providers.LLM.Model)
	}
	if cfg.Providers.STT.Model != "whisper-1" {
		t.Errorf("stt model = %q", cfg.Providers.STT.Model)
	}
}

func TestLoadFromReader_AppliesAssistantDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	a := cfg.Assistant
	if a.SystemPrompt != DefaultSystemPrompt {
		t.Errorf("system prompt not defaulted: %q", a.SystemPrompt)
	}
	if a.HistoryLimit != DefaultHistoryLimit {
		t.Errorf("history limit = %d, want %d", a.HistoryLimit, DefaultHistoryLimit)
	}
	if a.ReplyTimeout.Std() != DefaultReplyTimeout {
		t.Errorf("reply timeout = %v, want %v", a.ReplyTimeout, DefaultReplyTimeout)
	}
	if a.PickupDelay.Std() != DefaultPickupDelay {
		t.Errorf("pickup delay = %v, want %v", a.PickupDelay, DefaultPickupDelay)
	}
	if a.CalleeID != DefaultCalleeID {
		t.Errorf("callee id = %q, want %q", a.CalleeID, DefaultCalleeID)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	yaml := `
server:
  port: 3000
  bogus_field: true
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadFromReader_InvalidYAML(t *testing.T) {
	if _, err := LoadFromReader(strings.NewReader("server: [")); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "zero config is valid",
			mutate:  func(_ *Config) {},
			wantErr: false,
		},
		{
			name:    "negative port",
			mutate:  func(c *Config) { c.Server.Port = -1 },
			wantErr: true,
		},
		{
			name:    "port too large",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Server.LogLevel = "verbose" },
			wantErr: true,
		},
		{
			name:    "valid log level",
			mutate:  func(c *Config) { c.Server.LogLevel = LogDebug },
			wantErr: false,
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.Assistant.Temperature = 2.5 },
			wantErr: true,
		},
		{
			name:    "negative max tokens",
			mutate:  func(c *Config) { c.Assistant.MaxTokens = -5 },
			wantErr: true,
		},
		{
			name:    "negative reply timeout",
			mutate:  func(c *Config) { c.Assistant.ReplyTimeout = Duration(-time.Second) },
			wantErr: true,
		},
		{
			name:    "negative segmenter interval",
			mutate:  func(c *Config) { c.Segmenter.Interval = Duration(-time.Second) },
			wantErr: true,
		},
		{
			name:    "negative min segment bytes",
			mutate:  func(c *Config) { c.Segmenter.MinSegmentBytes = -1 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = -1
	cfg.Server.LogLevel = "loud"
	cfg.Assistant.MaxTokens = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected joined validation errors")
	}
	msg := err.Error()
	for _, want := range []string{"server.port", "server.log_level", "assistant.max_tokens"} {
		if !strings.Contains(msg, want) {
			t.Errorf("joined error missing %q: %s", want, msg)
		}
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	a := AssistantConfig{
		SystemPrompt: "custom prompt",
		HistoryLimit: 4,
		Temperature:  1.2,
		MaxTokens:    99,
		ReplyTimeout: Duration(3 * time.Second),
		PickupDelay:  Duration(500 * time.Millisecond),
		CalleeID:     "hr-assistant",
	}
	a.ApplyDefaults()

	if a.SystemPrompt != "custom prompt" || a.HistoryLimit != 4 || a.Temperature != 1.2 ||
		a.MaxTokens != 99 || a.ReplyTimeout.Std() != 3*time.Second ||
		a.PickupDelay.Std() != 500*time.Millisecond || a.CalleeID != "hr-assistant" {
		t.Errorf("ApplyDefaults overwrote explicit values: %+v", a)
	}
}

func TestDurationUnmarshal(t *testing.T) {
	yaml := `
assistant:
  reply_timeout: 30s
  pickup_delay: 250ms
segmenter:
  interval: 2s
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Assistant.ReplyTimeout.Std() != 30*time.Second {
		t.Errorf("reply timeout = %v", cfg.Assistant.ReplyTimeout)
	}
	if cfg.Assistant.PickupDelay.Std() != 250*time.Millisecond {
		t.Errorf("pickup delay = %v", cfg.Assistant.PickupDelay)
	}
	if cfg.Segmenter.Interval.Std() != 2*time.Second {
		t.Errorf("interval = %v", cfg.Segmenter.Interval)
	}
}

func TestDurationRejectsBareNumbers(t *testing.T) {
	yaml := `
assistant:
  reply_timeout: 15
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for a bare-number duration")
	}
}
