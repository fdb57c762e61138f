// Package server exposes evaluation runs over HTTP as a server-sent event
// stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/qaevaluator/internal/evaluator"
	"github.com/haasonsaas/qaevaluator/internal/observability"
	"github.com/haasonsaas/qaevaluator/internal/resultstore"
)

// Config controls the HTTP listener and stream behavior.
type Config struct {
	Host              string
	Port              int
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration

	// EmitSkipEvents streams a named "skip" event for every dropped slot.
	EmitSkipEvents bool

	// MaxUploadBytes bounds the multipart request body.
	MaxUploadBytes int64

	// MaxFormMemory is how much of a multipart form is held in memory
	// before file parts spill to temporary files.
	MaxFormMemory int64
}

// Options are the collaborators of a Server.
type Options struct {
	Deps    evaluator.Deps
	Store   resultstore.Store
	Metrics *observability.Metrics

	// Gatherer backs /metrics. Defaults to the Prometheus default gatherer.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// Server serves the evaluator API.
type Server struct {
	config   Config
	deps     evaluator.Deps
	store    resultstore.Store
	metrics  *observability.Metrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger

	httpServer *http.Server
}

// New creates a Server.
func New(config Config, opts Options) *Server {
	if config.ReadHeaderTimeout == 0 {
		config.ReadHeaderTimeout = 10 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 30 * time.Second
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 64 << 20
	}
	if config.MaxFormMemory <= 0 {
		config.MaxFormMemory = 32 << 20
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Deps.Logger == nil {
		opts.Deps.Logger = opts.Logger
	}
	if opts.Deps.Metrics == nil {
		opts.Deps.Metrics = opts.Metrics
	}
	return &Server{
		config:   config,
		deps:     opts.Deps,
		store:    opts.Store,
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		logger:   opts.Logger.With("component", "server"),
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("POST /evaluator-stream", s.handleEvaluatorStream)

	return s.withRequestID(s.withCORS(s.withMetrics(mux)))
}

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", listener.Addr().String())
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down http server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
		return err
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the QA Evaluator!"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEvaluatorStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := s.logger.With("request_id", observability.GetRequestID(ctx))

	req, err := parseRequest(w, r, s.config.MaxUploadBytes, s.config.MaxFormMemory)
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}
	if err != nil {
		logger.Warn("rejecting evaluation request", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	stream, err := newEventStream(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	run, err := evaluator.Prepare(ctx, req, s.deps)
	if err != nil {
		logger.Error("evaluation setup failed", "error", err)
		_ = stream.send("error", map[string]string{"error": err.Error()})
		return
	}
	defer run.Close()

	logger = logger.With("run_id", run.ID)
	logger.Info("streaming evaluation", "questions", req.NumEvalQuestions, "retriever", string(req.Retriever))

	for out := range run.Results(ctx) {
		if out.Skip != nil {
			if !s.config.EmitSkipEvents {
				continue
			}
			if err := stream.send("skip", skipEvent{
				Index:  out.Index,
				Stage:  string(out.Skip.Stage),
				Reason: out.Skip.Reason,
			}); err != nil {
				logger.Info("client went away", "error", err)
				return
			}
			continue
		}

		if s.store != nil {
			if err := s.store.Save(ctx, run.ID, out.Index, *out.Result); err != nil {
				logger.Warn("failed to persist result", "index", out.Index, "error", err)
			}
		}
		if err := stream.send("", resultEvent{Data: out.Result.Payload()}); err != nil {
			logger.Info("client went away", "error", err)
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
