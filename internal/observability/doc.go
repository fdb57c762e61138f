// Package observability provides metrics, structured logging and tracing for
// evaluation runs.
//
// # Metrics
//
// Metrics are Prometheus collectors registered on a caller-supplied registry
// so tests can use a private one:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(reg)
//
//	metrics.RecordRun("similarity-search", "ok")
//	metrics.RecordPair("graded", latency.Seconds())
//	metrics.RecordLLMRequest("openai", "success", elapsed.Seconds())
//
// All Record methods are no-ops on a nil *Metrics.
//
// # Logging
//
// Logging is built on slog. The handler redacts API keys and bearer tokens
// and attaches the request and run IDs found on the context:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	ctx = observability.AddRunID(ctx, runID)
//	logger.InfoContext(ctx, "running eval", "index", i)
//
// # Tracing
//
// Tracing uses OpenTelemetry. Without an OTLP endpoint the tracer is a no-op,
// and a nil *Tracer is safe to use:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName: "qaeval",
//	    Endpoint:    "localhost:4317",
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "evaluator.pair", "pair.index", i)
//	defer span.End()
package observability
