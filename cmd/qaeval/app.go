package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/haasonsaas/qaevaluator/internal/config"
	"github.com/haasonsaas/qaevaluator/internal/embeddings"
	"github.com/haasonsaas/qaevaluator/internal/embeddings/huggingface"
	"github.com/haasonsaas/qaevaluator/internal/embeddings/openai"
	"github.com/haasonsaas/qaevaluator/internal/evaluator"
	"github.com/haasonsaas/qaevaluator/internal/grader"
	"github.com/haasonsaas/qaevaluator/internal/ingest"
	"github.com/haasonsaas/qaevaluator/internal/llm"
	"github.com/haasonsaas/qaevaluator/internal/observability"
	"github.com/haasonsaas/qaevaluator/internal/qagen"
	"github.com/haasonsaas/qaevaluator/internal/resultstore"
	"github.com/haasonsaas/qaevaluator/internal/vectorstore"
)

// app holds everything built from a loaded configuration.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	deps     evaluator.Deps
	store    resultstore.Store

	shutdownTracer func(context.Context) error
}

func newApp(configPath string, debug bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:     level,
		Format:    cfg.Logging.Format,
		Output:    os.Stderr,
		AddSource: cfg.Logging.AddSource,
	})
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "qaevaluator",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})

	a := &app{
		cfg:            cfg,
		logger:         logger,
		registry:       registry,
		metrics:        metrics,
		tracer:         tracer,
		shutdownTracer: shutdownTracer,
	}

	if err := a.buildDeps(); err != nil {
		a.close(context.Background())
		return nil, err
	}

	if driver := strings.TrimSpace(cfg.Store.Driver); driver != "" {
		store, err := resultstore.Open(driver, cfg.Store.DSN, nil)
		if err != nil {
			a.close(context.Background())
			return nil, fmt.Errorf("failed to open result store: %w", err)
		}
		a.store = store
	}
	return a, nil
}

func (a *app) llmSettings() llm.Settings {
	c := a.cfg.LLM
	return llm.Settings{
		OpenAIAPIKey:     c.OpenAIAPIKey,
		OpenAIBaseURL:    c.OpenAIBaseURL,
		AnthropicAPIKey:  c.AnthropicAPIKey,
		AnthropicBaseURL: c.AnthropicBaseURL,
		AnthropicModel:   c.AnthropicModel,
		MaxRetries:       c.MaxRetries,
		RetryDelay:       c.RetryDelay,
		MaxTokens:        c.MaxTokens,
	}
}

// resolveModel builds the answering model for a request's model version.
func (a *app) resolveModel(version string) (llm.Provider, string, error) {
	p, model, err := llm.NewFromModelVersion(version, a.llmSettings())
	if err != nil {
		return nil, "", err
	}
	return llm.WithMetrics(p, a.metrics), model, nil
}

func (a *app) buildDeps() error {
	settings := a.llmSettings()

	judge, judgeModel, err := llm.NewFromModelVersion(a.cfg.LLM.GraderModel, settings)
	if err != nil {
		return fmt.Errorf("grader model: %w", err)
	}
	g, err := grader.New(grader.Config{
		Provider: llm.WithMetrics(judge, a.metrics),
		Model:    judgeModel,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}

	genProvider, genModel, err := llm.NewFromModelVersion(qagen.DefaultModel, settings)
	if err != nil {
		return fmt.Errorf("question generator model: %w", err)
	}
	gen, err := qagen.New(qagen.Config{
		Provider: llm.WithMetrics(genProvider, a.metrics),
		Model:    genModel,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}

	var providers evaluator.EmbeddingProviders
	if a.cfg.LLM.OpenAIAPIKey != "" {
		p, err := openai.New(openai.Config{
			APIKey:  a.cfg.LLM.OpenAIAPIKey,
			BaseURL: a.cfg.LLM.OpenAIBaseURL,
			Model:   a.cfg.Embeddings.OpenAIModel,
		})
		if err != nil {
			return fmt.Errorf("openai embeddings: %w", err)
		}
		providers.OpenAI = embeddings.WithMetrics(p, a.metrics)
	} else {
		a.logger.Warn("OpenAI embeddings disabled: no API key configured")
	}
	hf, err := huggingface.New(huggingface.Config{
		APIKey:  a.cfg.Embeddings.HuggingFaceAPIKey,
		BaseURL: a.cfg.Embeddings.HuggingFaceURL,
		Model:   a.cfg.Embeddings.HuggingFaceModel,
	})
	if err != nil {
		return fmt.Errorf("huggingface embeddings: %w", err)
	}
	providers.HuggingFace = embeddings.WithMetrics(hf, a.metrics)

	a.deps = evaluator.Deps{
		Ingestor:         ingest.NewIngestor(nil, a.logger),
		Embeddings:       providers,
		Models:           a.resolveModel,
		Generator:        gen,
		Grader:           g,
		SampleChars:      a.cfg.Evaluation.SampleChars,
		BatchSize:        a.cfg.Embeddings.BatchSize,
		VectorStore:      vectorstore.Kind(strings.ToLower(a.cfg.Evaluation.VectorStore)),
		SVMMaxIter:       a.cfg.Evaluation.SVMMaxIter,
		IndexChunkTokens: a.cfg.Evaluation.IndexChunkTokens,
		Logger:           a.logger,
		Metrics:          a.metrics,
		Tracer:           a.tracer,
	}
	return nil
}

func (a *app) close(ctx context.Context) {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close result store", "error", err)
		}
	}
	if a.shutdownTracer != nil {
		if err := a.shutdownTracer(ctx); err != nil {
			a.logger.Warn("failed to shut down tracer", "error", err)
		}
	}
}
