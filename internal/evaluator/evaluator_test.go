package evaluator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/qaevaluator/internal/grader"
	"github.com/haasonsaas/qaevaluator/internal/ingest"
	"github.com/haasonsaas/qaevaluator/internal/llm"
	"github.com/haasonsaas/qaevaluator/internal/observability"
	"github.com/haasonsaas/qaevaluator/internal/qagen"
	"github.com/haasonsaas/qaevaluator/internal/retriever"
	"github.com/haasonsaas/qaevaluator/internal/splitter"
	"github.com/haasonsaas/qaevaluator/internal/testharness"
	"github.com/haasonsaas/qaevaluator/pkg/models"
)

const corpusText = `The Amazon river flows through Brazil and carries more water than any other river.
Mount Everest is the highest mountain above sea level and lies in the Himalayas.
The Sahara is the largest hot desert and covers much of North Africa.
Honeybees communicate the location of flowers through a waggle dance.`

type fixture struct {
	model     *testharness.LLM
	judge     *testharness.LLM
	generator *testharness.LLM
	metrics   *observability.Metrics
	deps      Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		model: testharness.Reply("model answer"),
		judge: &testharness.LLM{Respond: func(req *llm.Request) (string, error) {
			prompt := req.Messages[len(req.Messages)-1].Content
			if strings.Contains(prompt, "STUDENT ANSWER") {
				return "GRADE: CORRECT", nil
			}
			return "Context is relevant: True", nil
		}},
		generator: testharness.Reply(`[{"question": "What is the highest mountain?", "answer": "Mount Everest"}]`),
		metrics:   observability.NewMetrics(prometheus.NewRegistry()),
	}

	g, err := grader.New(grader.Config{Provider: f.judge})
	if err != nil {
		t.Fatal(err)
	}
	gen, err := qagen.New(qagen.Config{Provider: f.generator})
	if err != nil {
		t.Fatal(err)
	}

	f.deps = Deps{
		Ingestor:   ingest.NewIngestor(nil, nil),
		Embeddings: EmbeddingProviders{OpenAI: &testharness.Embedder{ProviderName: "openai"}},
		Models: func(version string) (llm.Provider, string, error) {
			if version == "unknown" {
				return nil, "", llm.ErrUnknownModel
			}
			return f.model, version, nil
		},
		Generator: gen,
		Grader:    g,
		Metrics:   f.metrics,
	}
	return f
}

func baseRequest() Request {
	return Request{
		Documents: []ingest.Document{
			{Name: "facts.txt", ContentType: "text/plain", Data: []byte(corpusText)},
		},
		NumEvalQuestions: 3,
		ChunkChars:       120,
		Overlap:          20,
		SplitMethod:      splitter.Recursive,
		Retriever:        retriever.SimilaritySearch,
		Embedding:        EmbeddingOpenAI,
		ModelVersion:     "gpt-3.5-turbo",
		GradePrompt:      grader.Fast,
		NumNeighbors:     2,
	}
}

func collect(ctx context.Context, run *Run) []Outcome {
	var out []Outcome
	for o := range run.Results(ctx) {
		out = append(out, o)
	}
	return out
}

func TestRunDatasetThenSynthesis(t *testing.T) {
	f := newFixture(t)
	req := baseRequest()
	req.Dataset = []models.EvalPair{
		{Question: "Which river carries the most water?", Answer: "The Amazon"},
		{Question: "Where is the Sahara?", Answer: "North Africa"},
	}

	ctx := context.Background()
	run, err := Prepare(ctx, req, f.deps)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	defer run.Close()

	if run.ID == "" || run.Chunks() == 0 {
		t.Fatalf("run = %+v", run)
	}

	outcomes := collect(ctx, run)
	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}

	wantQuestions := []string{
		"Which river carries the most water?",
		"Where is the Sahara?",
		"What is the highest mountain?",
	}
	for i, o := range outcomes {
		if o.Index != i {
			t.Errorf("outcome %d has index %d", i, o.Index)
		}
		if o.Skip != nil {
			t.Fatalf("outcome %d skipped: %+v", i, o.Skip)
		}
		r := o.Result
		if r.Question != wantQuestions[i] {
			t.Errorf("outcome %d question = %q, want %q", i, r.Question, wantQuestions[i])
		}
		if r.Result != "model answer" || !r.AnswerCorrect || !r.RetrievalRelevant {
			t.Errorf("outcome %d = %+v", i, r)
		}
		if !strings.HasPrefix(r.RetrievedText, "Doc 1: ") || !strings.Contains(r.RetrievedText, "Doc 2: ") {
			t.Errorf("retrieved text = %q", r.RetrievedText)
		}
		if r.LatencySeconds < 0 {
			t.Errorf("latency = %v", r.LatencySeconds)
		}
	}

	if n := len(f.generator.Requests()); n != 1 {
		t.Errorf("generator called %d times, want 1", n)
	}
	if n := len(f.judge.Requests()); n != 6 {
		t.Errorf("grader called %d times, want 6", n)
	}
	if got := testutil.ToFloat64(f.metrics.PairCounter.WithLabelValues("graded")); got != 3 {
		t.Errorf("graded pairs metric = %v, want 3", got)
	}
	if got := testutil.ToFloat64(f.metrics.RunCounter.WithLabelValues("similarity-search", "ok")); got != 1 {
		t.Errorf("run metric = %v, want 1", got)
	}

	if again := collect(ctx, run); len(again) != 0 {
		t.Errorf("second Results() yielded %d outcomes, want 0", len(again))
	}
}

func TestRunSkips(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(f *fixture, req *Request)
		wantStage Stage
	}{
		{
			name: "invalid dataset pair",
			setup: func(_ *fixture, req *Request) {
				req.Dataset = []models.EvalPair{{Question: "no answer"}}
			},
			wantStage: StageGeneration,
		},
		{
			name: "generator returns garbage",
			setup: func(f *fixture, _ *Request) {
				f.generator.Respond = func(*llm.Request) (string, error) { return "no json here", nil }
			},
			wantStage: StageGeneration,
		},
		{
			name: "model fails",
			setup: func(f *fixture, _ *Request) {
				f.model.Respond = func(*llm.Request) (string, error) { return "", errors.New("overloaded") }
			},
			wantStage: StageAnswer,
		},
		{
			name: "empty verdict",
			setup: func(f *fixture, _ *Request) {
				f.judge.Respond = func(*llm.Request) (string, error) { return "", nil }
			},
			wantStage: StageGrading,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := baseRequest()
			req.NumEvalQuestions = 1
			tt.setup(f, &req)

			run, err := Prepare(context.Background(), req, f.deps)
			if err != nil {
				t.Fatalf("Prepare() error = %v", err)
			}
			defer run.Close()

			outcomes := collect(context.Background(), run)
			if len(outcomes) != 1 {
				t.Fatalf("got %d outcomes, want 1", len(outcomes))
			}
			s := outcomes[0].Skip
			if s == nil || outcomes[0].Result != nil {
				t.Fatalf("outcome = %+v, want skip", outcomes[0])
			}
			if s.Stage != tt.wantStage || s.Reason == "" || s.Err == nil {
				t.Errorf("skip = %+v, want stage %q", s, tt.wantStage)
			}
			label := "skipped_" + string(tt.wantStage)
			if got := testutil.ToFloat64(f.metrics.PairCounter.WithLabelValues(label)); got != 1 {
				t.Errorf("%s metric = %v, want 1", label, got)
			}
		})
	}
}

func TestRunSkipDoesNotStopRun(t *testing.T) {
	f := newFixture(t)
	req := baseRequest()
	req.Dataset = []models.EvalPair{{Question: "", Answer: "x"}, {Question: "Where is Everest?", Answer: "Himalayas"}}
	req.NumEvalQuestions = 2

	run, err := Prepare(context.Background(), req, f.deps)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	defer run.Close()

	outcomes := collect(context.Background(), run)
	if len(outcomes) != 2 || outcomes[0].Skip == nil || outcomes[1].Result == nil {
		t.Fatalf("outcomes = %+v", outcomes)
	}
}

func TestRunConsumerStops(t *testing.T) {
	f := newFixture(t)
	req := baseRequest()
	req.NumEvalQuestions = 5

	run, err := Prepare(context.Background(), req, f.deps)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	defer run.Close()

	for range run.Results(context.Background()) {
		break
	}
	if n := len(f.model.Requests()); n != 1 {
		t.Errorf("model called %d times after consumer stopped, want 1", n)
	}
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t)
	run, err := Prepare(context.Background(), baseRequest(), f.deps)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	defer run.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := collect(ctx, run); len(got) != 0 {
		t.Errorf("cancelled run yielded %d outcomes", len(got))
	}
	if got := testutil.ToFloat64(f.metrics.RunCounter.WithLabelValues("similarity-search", "cancelled")); got != 1 {
		t.Errorf("cancelled run metric = %v, want 1", got)
	}
}

func TestRunIndexed(t *testing.T) {
	f := newFixture(t)
	req := baseRequest()
	req.Retriever = retriever.Indexed
	req.NumEvalQuestions = 1
	req.Dataset = []models.EvalPair{{Question: "How do honeybees communicate?", Answer: "Waggle dance"}}

	run, err := Prepare(context.Background(), req, f.deps)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	defer run.Close()

	outcomes := collect(context.Background(), run)
	if len(outcomes) != 1 || outcomes[0].Result == nil {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	r := outcomes[0].Result
	if r.Result != "model answer" {
		t.Errorf("Result = %q", r.Result)
	}
	if !strings.HasPrefix(r.RetrievedText, "Doc 1: ") || !strings.Contains(r.RetrievedText, "Doc 2: ") {
		t.Errorf("retrieved text = %q", r.RetrievedText)
	}
}

func TestPrepareErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(req *Request)
		wantIs error
	}{
		{
			name: "no usable documents",
			mutate: func(req *Request) {
				req.Documents = []ingest.Document{{Name: "a.bin", ContentType: "application/octet-stream", Data: []byte{1}}}
			},
			wantIs: ErrNoText,
		},
		{
			name:   "invalid splitter config",
			mutate: func(req *Request) { req.Overlap = req.ChunkChars },
			wantIs: splitter.ErrInvalidConfig,
		},
		{
			name:   "unknown model",
			mutate: func(req *Request) { req.ModelVersion = "unknown" },
			wantIs: llm.ErrUnknownModel,
		},
		{
			name:   "unconfigured embeddings",
			mutate: func(req *Request) { req.Embedding = EmbeddingHuggingFace },
		},
		{
			name:   "negative questions",
			mutate: func(req *Request) { req.NumEvalQuestions = -1 },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := baseRequest()
			tt.mutate(&req)

			run, err := Prepare(context.Background(), req, f.deps)
			if err == nil {
				run.Close()
				t.Fatal("Prepare() succeeded, want error")
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("Prepare() error = %v, want %v", err, tt.wantIs)
			}
			if got := testutil.ToFloat64(f.metrics.RunCounter.WithLabelValues("similarity-search", "failed")); got != 1 {
				t.Errorf("failed run metric = %v, want 1", got)
			}
		})
	}
}

func TestEmbeddingProvidersSelect(t *testing.T) {
	openai := &testharness.Embedder{ProviderName: "openai"}
	hf := &testharness.Embedder{ProviderName: "huggingface"}
	p := EmbeddingProviders{OpenAI: openai, HuggingFace: hf}

	tests := []struct {
		name         string
		wantPrimary  string
		wantFallback string
		wantErr      bool
	}{
		{"OpenAI", "openai", "huggingface", false},
		{"", "openai", "huggingface", false},
		{"HuggingFace", "huggingface", "openai", false},
		{"cohere", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary, fallback, err := p.Select(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Select() error = %v", err)
			}
			if tt.wantErr {
				return
			}
			if primary.Name() != tt.wantPrimary || fallback.Name() != tt.wantFallback {
				t.Errorf("Select() = %s, %s", primary.Name(), fallback.Name())
			}
		})
	}
}
