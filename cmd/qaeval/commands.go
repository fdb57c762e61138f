package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/qaevaluator/internal/config"
	"github.com/haasonsaas/qaevaluator/internal/grader"
	"github.com/haasonsaas/qaevaluator/internal/retriever"
	"github.com/haasonsaas/qaevaluator/internal/splitter"
)

// =============================================================================
// Serve Command
// =============================================================================

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the evaluator HTTP server",
		Long: `Start the HTTP server exposing POST /evaluator-stream.

Each graded question is streamed as a server-sent event. Graceful shutdown
is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with defaults and API keys from the environment
  qaeval serve

  # Start with a config file and debug logging
  qaeval serve --config /etc/qaeval/qaeval.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

// =============================================================================
// Run Command
// =============================================================================

// runOptions mirror the fields of the streaming endpoint's form.
type runOptions struct {
	configPath       string
	numEvalQuestions int
	chunkChars       int
	overlap          int
	splitMethod      string
	retrieverType    string
	embedding        string
	modelVersion     string
	gradePrompt      string
	numNeighbors     int
	datasetPath      string
	outPath          string
}

func buildRunCmd() *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run [files...]",
		Short: "Evaluate local documents and print results as JSON lines",
		Args:  cobra.MinimumNArgs(1),
		Example: `  # Grade five synthesized questions over a PDF
  qaeval run report.pdf

  # Use a supplied dataset and the SVM retriever
  qaeval run --dataset pairs.json5 --retriever-type SVM notes.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.configPath = resolveConfigPath(opts.configPath)
			return runEvaluation(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "Path to YAML configuration file")
	f.IntVarP(&opts.numEvalQuestions, "num-eval-questions", "n", 5, "Number of questions to evaluate")
	f.IntVar(&opts.chunkChars, "chunk-chars", 1000, "Chunk size in characters")
	f.IntVar(&opts.overlap, "overlap", 100, "Chunk overlap in characters")
	f.StringVar(&opts.splitMethod, "split-method", splitter.Recursive.String(), "RecursiveTextSplitter or CharacterTextSplitter")
	f.StringVar(&opts.retrieverType, "retriever-type", string(retriever.SimilaritySearch),
		fmt.Sprintf("One of %s, %s, %s, %s", retriever.SimilaritySearch, retriever.SVM, retriever.TFIDF, retriever.Indexed))
	f.StringVar(&opts.embedding, "embedding-provider", "OpenAI", "OpenAI or HuggingFace")
	f.StringVar(&opts.modelVersion, "model-version", "gpt-3.5-turbo", "gpt-3.5-turbo, gpt-4 or anthropic")
	f.StringVar(&opts.gradePrompt, "grade-prompt", string(grader.Fast), "Fast or Standard")
	f.IntVar(&opts.numNeighbors, "num-neighbors", 3, "Passages returned per query")
	f.StringVar(&opts.datasetPath, "dataset", "", "JSON or JSON5 file with question/answer pairs")
	f.StringVarP(&opts.outPath, "out", "o", "", "Write results to this file instead of stdout")
	return cmd
}

// =============================================================================
// Config Commands
// =============================================================================

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := config.JSONSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(schema))
			return err
		},
	})
	return cmd
}

// =============================================================================
// Version Command
// =============================================================================

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "qaeval %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
