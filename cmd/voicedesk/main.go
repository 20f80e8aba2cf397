// Command voicedesk is the main entry point for the voicedesk relay server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/voicedesk/voicedesk/internal/assistant"
	"github.com/voicedesk/voicedesk/internal/call"
	"github.com/voicedesk/voicedesk/internal/config"
	"github.com/voicedesk/voicedesk/internal/health"
	"github.com/voicedesk/voicedesk/internal/observe"
	"github.com/voicedesk/voicedesk/internal/relay"
	"github.com/voicedesk/voicedesk/pkg/provider/llm"
	"github.com/voicedesk/voicedesk/pkg/provider/llm/anyllm"
	llmoai "github.com/voicedesk/voicedesk/pkg/provider/llm/openai"
	"github.com/voicedesk/voicedesk/pkg/provider/stt"
	sttoai "github.com/voicedesk/voicedesk/pkg/provider/stt/openai"
)

// version is stamped by the build; "dev" for local builds.
var version = "dev"

// verifyTimeout bounds the best-effort provider ping at startup.
const verifyTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	// A .env file is optional; real environment variables win either way.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "voicedesk: load .env: %v\n", err)
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicedesk: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicedesk: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voicedesk starting",
		"version", version,
		"config", *configPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	// Must happen before anything grabs the default instruments.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voicedesk",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	completer, transcriber, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	verifyProviders(ctx, completer)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	// ── Wiring ────────────────────────────────────────────────────────────────
	registry := call.NewRegistry(cfg.Assistant.SystemPrompt, cfg.Assistant.HistoryLimit)

	router := relay.NewRouter(registry, nil, nil, relay.RouterConfig{
		CalleeID:    cfg.Assistant.CalleeID,
		PickupDelay: cfg.Assistant.PickupDelay.Std(),
	})
	pipeline := assistant.NewPipeline(registry, transcriber, completer, router, nil, assistant.Config{
		Temperature:  cfg.Assistant.Temperature,
		MaxTokens:    cfg.Assistant.MaxTokens,
		ReplyTimeout: cfg.Assistant.ReplyTimeout.Std(),
	})
	router.SetSegmentHandler(pipeline)

	healthHandler := health.New(healthCheckers(completer)...)

	server := relay.NewServer(relay.ServerConfig{
		Port:           cfg.Server.Port,
		MaxPortRetries: cfg.Server.MaxPortRetries,
		StaticDir:      cfg.Server.StaticDir,
	}, router, healthHandler, nil)

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// The native OpenAI provider supports Verify; prefer it for OpenAI itself.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmoai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmoai.WithBaseURL(entry.BaseURL))
		}
		return llmoai.New(apiKey(entry), entry.Model, opts...)
	})

	// Everything else goes through the any-llm-go multi-provider backend.
	for _, providerName := range []string{
		"anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if key := apiKey(entry); key != "" {
				opts = append(opts, anyllmlib.WithAPIKey(key))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	// "anyllm" selects the backend via options, for providers without a
	// dedicated registration.
	reg.RegisterLLM("anyllm", func(entry config.ProviderEntry) (llm.Provider, error) {
		backend := optString(entry.Options, "backend")
		if backend == "" {
			backend = "openai"
		}
		var opts []anyllmlib.Option
		if key := apiKey(entry); key != "" {
			opts = append(opts, anyllmlib.WithAPIKey(key))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(backend, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		model := entry.Model
		if model == "" {
			model = "whisper-1"
		}
		var opts []sttoai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttoai.WithBaseURL(entry.BaseURL))
		}
		return sttoai.New(apiKey(entry), model, opts...)
	})
}

// buildProviders instantiates the completion and transcription providers
// named in cfg.
func buildProviders(cfg *config.Config, reg *config.Registry) (llm.Provider, stt.Provider, error) {
	completer, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model)

	transcriber, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name, "model", cfg.Providers.STT.Model)

	return completer, transcriber, nil
}

// verifyProviders pings providers that support verification. Failures are
// logged but never fatal; the first real call will surface them again.
func verifyProviders(ctx context.Context, completer llm.Provider) {
	v, ok := completer.(llm.Verifier)
	if !ok {
		return
	}

	vCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()
	if err := v.Verify(vCtx); err != nil {
		slog.Warn("completion provider verification failed", "err", err)
		return
	}
	slog.Info("completion provider verified")
}

// healthCheckers builds the readiness checkers for providers that support
// verification.
func healthCheckers(completer llm.Provider) []health.Checker {
	v, ok := completer.(llm.Verifier)
	if !ok {
		return nil
	}
	return []health.Checker{{
		Name:  "completion_provider",
		Check: v.Verify,
	}}
}

// apiKey resolves the provider API key, falling back to the OPENAI_API_KEY
// environment variable when the config leaves it empty.
func apiKey(entry config.ProviderEntry) string {
	if entry.APIKey != "" {
		return entry.APIKey
	}
	return os.Getenv("OPENAI_API_KEY")
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        voicedesk — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	fmt.Printf("║  Callee ID    : %-22s ║\n", cfg.Assistant.CalleeID)
	fmt.Printf("║  Port         : %-22d ║\n", cfg.Server.Port)
	if cfg.Server.StaticDir != "" {
		fmt.Printf("║  Static dir   : %-22s ║\n", truncate(cfg.Server.StaticDir, 22))
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	fmt.Printf("║  %-11s  : %-22s ║\n", kind, truncate(value, 22))
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-1] + "…"
	}
	return s
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
