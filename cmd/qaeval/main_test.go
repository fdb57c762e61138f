package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/qaevaluator/internal/grader"
	"github.com/haasonsaas/qaevaluator/internal/retriever"
	"github.com/haasonsaas/qaevaluator/internal/splitter"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"serve", "run", "config", "version"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "qaeval dev") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunFlagDefaults(t *testing.T) {
	cmd := buildRunCmd()
	tests := map[string]string{
		"num-eval-questions": "5",
		"chunk-chars":        "1000",
		"overlap":            "100",
		"split-method":       "RecursiveTextSplitter",
		"retriever-type":     "similarity-search",
		"embedding-provider": "OpenAI",
		"model-version":      "gpt-3.5-turbo",
		"grade-prompt":       "Fast",
		"num-neighbors":      "3",
	}
	for name, want := range tests {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			t.Errorf("flag %q not registered", name)
			continue
		}
		if flag.DefValue != want {
			t.Errorf("--%s default = %q, want %q", name, flag.DefValue, want)
		}
	}
}

func TestBuildRunRequest(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(doc, []byte("The capital of France is Paris."), 0o600); err != nil {
		t.Fatal(err)
	}
	dataset := filepath.Join(dir, "pairs.json5")
	if err := os.WriteFile(dataset, []byte(`[
		// supplied first
		{question: 'What is the capital of France?', answer: 'Paris'},
	]`), 0o600); err != nil {
		t.Fatal(err)
	}

	base := runOptions{
		numEvalQuestions: 2,
		chunkChars:       500,
		overlap:          50,
		splitMethod:      "CharacterTextSplitter",
		retrieverType:    "SVM",
		embedding:        "HuggingFace",
		modelVersion:     "gpt-4",
		gradePrompt:      "Standard",
		numNeighbors:     4,
		datasetPath:      dataset,
	}

	t.Run("valid", func(t *testing.T) {
		req, err := buildRunRequest([]string{doc}, base)
		if err != nil {
			t.Fatalf("buildRunRequest() error = %v", err)
		}
		if req.SplitMethod != splitter.FixedWidth || req.Retriever != retriever.SVM || req.GradePrompt != grader.Standard {
			t.Errorf("parsed enums = %v/%v/%v", req.SplitMethod, req.Retriever, req.GradePrompt)
		}
		if len(req.Documents) != 1 || req.Documents[0].Name != "notes.txt" || req.Documents[0].ContentType != "text/plain" {
			t.Errorf("documents = %+v", req.Documents)
		}
		if len(req.Dataset) != 1 || req.Dataset[0].Answer != "Paris" {
			t.Errorf("dataset = %+v", req.Dataset)
		}
	})

	errs := []struct {
		name   string
		mutate func(*runOptions)
		paths  []string
	}{
		{"zero questions", func(o *runOptions) { o.numEvalQuestions = 0 }, []string{doc}},
		{"bad split method", func(o *runOptions) { o.splitMethod = "sentences" }, []string{doc}},
		{"bad retriever", func(o *runOptions) { o.retrieverType = "bm25" }, []string{doc}},
		{"missing file", func(o *runOptions) {}, []string{filepath.Join(dir, "missing.txt")}},
		{"missing dataset", func(o *runOptions) { o.datasetPath = filepath.Join(dir, "none.json") }, []string{doc}},
	}
	for _, tt := range errs {
		t.Run(tt.name, func(t *testing.T) {
			opts := base
			tt.mutate(&opts)
			if _, err := buildRunRequest(tt.paths, opts); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"report.PDF", "application/pdf"},
		{"notes.txt", "text/plain"},
		{"README", "text/plain"},
		{"guide.md", "text/plain"},
		{"blob.qaevalunknown", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := contentTypeFor(tt.path); got != tt.want {
			t.Errorf("contentTypeFor(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
