package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pr0ta9/genesis/internal/checkpoint"
	"github.com/pr0ta9/genesis/internal/config"
	"github.com/pr0ta9/genesis/internal/embedder"
	"github.com/pr0ta9/genesis/internal/eventbus"
	"github.com/pr0ta9/genesis/internal/executor"
	"github.com/pr0ta9/genesis/internal/llm"
	"github.com/pr0ta9/genesis/internal/pathtool"
	"github.com/pr0ta9/genesis/internal/planner"
	"github.com/pr0ta9/genesis/internal/precedent"
	"github.com/pr0ta9/genesis/internal/session"
	"github.com/pr0ta9/genesis/internal/telemetry"
	"github.com/pr0ta9/genesis/internal/tools"
	"github.com/pr0ta9/genesis/internal/vector"
	"github.com/pr0ta9/genesis/server"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Config string `short:"c" help:"Path to config file." type:"path" default:"genesis.yaml"`
	Port   int    `help:"Override the configured server port."`
}

func (c *ServeCmd) Run(ctx context.Context) error {
	if err := config.LoadEnvFiles(); err != nil {
		slog.Warn("load .env files", "error", err)
	}

	cfg, err := config.Load(c.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	tracerProvider, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		Enabled:      cfg.Observability.Tracer.Enabled,
		EndpointURL:  cfg.Observability.Tracer.EndpointURL,
		SamplingRate: cfg.Observability.Tracer.SamplingRate,
		ServiceName:  cfg.Observability.Tracer.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	if shutdowner, ok := tracerProvider.(interface {
		Shutdown(context.Context) error
	}); ok {
		defer func() {
			if err := shutdowner.Shutdown(context.Background()); err != nil {
				slog.Warn("shut down tracer provider", "error", err)
			}
		}()
	}

	metrics := telemetry.NewMetrics(telemetry.MetricsConfig{
		Enabled:   cfg.Observability.Metrics.Enabled,
		Namespace: cfg.Observability.Metrics.Namespace,
	})

	provider, err := buildProvider(cfg.LLM)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}

	emb, err := embedder.New(embedder.Config{
		Provider: cfg.Embedder.Provider,
		APIKey:   cfg.Embedder.APIKey,
		Host:     cfg.Embedder.Host,
		Model:    cfg.Embedder.Model,
	})
	if err != nil {
		return fmt.Errorf("build embedder: %w", err)
	}

	vecProvider, err := buildVectorProvider(cfg.Vector)
	if err != nil {
		return fmt.Errorf("build vector provider: %w", err)
	}

	toolRegistry := pathtool.NewToolRegistry()
	if err := tools.Register(toolRegistry); err != nil {
		return fmt.Errorf("register built-in tools: %w", err)
	}

	closePlugins, err := registerPluginTools(toolRegistry, cfg.Plugins)
	if err != nil {
		return fmt.Errorf("register plugin tools: %w", err)
	}
	defer closePlugins()

	precedentStore := precedent.NewStore(vecProvider, emb, toolRegistry, precedent.Config{
		Threshold:     cfg.Precedent.Threshold,
		VectorWeight:  cfg.Precedent.VectorWeight,
		LexicalWeight: cfg.Precedent.LexicalWeight,
		TopK:          cfg.Precedent.TopK,
	})
	precedentStore.SetMetrics(metrics)

	checkpointMgr := checkpoint.NewManager(&checkpoint.Config{Enabled: cfg.Checkpoint.Enabled}, checkpoint.NewMemoryStorage())

	exec := executor.New(executor.Config{
		StepTimeout:     cfg.Executor.StepTimeout,
		MaxRetries:      cfg.Executor.MaxRetries,
		WorkspaceRoot:   cfg.Executor.WorkspaceRoot,
		RateLimitPerSec: cfg.Executor.RateLimitPerSec,
	}, nil, eventbus.New())
	exec.SetMetrics(metrics)

	sessions := session.NewMemoryService()

	srv := server.New(&cfg.Server, server.OrchestratorDeps{
		Tools:      toolRegistry,
		Precedent:  precedentStore,
		Provider:   provider,
		Checkpoint: checkpointMgr,
		Hooks:      checkpoint.NewHooks(checkpointMgr),
		Executor:   exec,
		PlanOpts:   planner.Options{MaxDepth: cfg.Planner.MaxDepth, MaxResults: cfg.Planner.MaxResults},
		Metrics:    metrics,
	}, sessions)

	slog.Info("genesis server starting", "address", srv.Address())
	return srv.Start(ctx)
}

func buildProvider(cfg config.LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		return llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:      cfg.APIKey,
			Host:        cfg.Host,
			Model:       cfg.Model,
			MaxRetries:  cfg.MaxRetries,
			Temperature: cfg.Temperature,
		}), nil
	case "anthropic":
		return llm.NewAnthropic(llm.AnthropicConfig{
			APIKey:     cfg.APIKey,
			Host:       cfg.Host,
			Model:      cfg.Model,
			MaxRetries: cfg.MaxRetries,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func buildVectorProvider(cfg config.VectorConfig) (vector.Provider, error) {
	providerCfg := &vector.ProviderConfig{Type: vector.ProviderType(cfg.Provider)}
	providerCfg.SetDefaults()

	switch providerCfg.Type {
	case vector.ProviderQdrant:
		providerCfg.Qdrant = &vector.QdrantConfig{Host: cfg.Host, APIKey: cfg.APIKey}
	case vector.ProviderPinecone:
		providerCfg.Pinecone = &vector.PineconeConfig{APIKey: cfg.APIKey, Host: cfg.Host}
	}
	return vector.NewProvider(providerCfg)
}
