// Package main provides the CLI entry point for the QA evaluator.
//
// The evaluator grades a retrieval-augmented question answering pipeline:
// it splits uploaded documents, builds a retriever, answers evaluation
// questions and asks a grading model to judge every answer and its
// retrieved context.
//
// # Basic Usage
//
// Start the streaming HTTP server:
//
//	qaeval serve --config qaeval.yaml
//
// Evaluate local documents and write JSON lines:
//
//	qaeval run --retriever-type SVM --num-eval-questions 3 docs/*.pdf
//
// # Environment Variables
//
//   - QAEVAL_CONFIG: Path to configuration file
//   - OPENAI_API_KEY: OpenAI API key for GPT models and embeddings
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - HUGGINGFACEHUB_API_TOKEN: Hugging Face inference token
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "qaeval",
		Short: "Evaluate retrieval-augmented question answering",
		Long: `qaeval grades a question answering pipeline over your documents.

Supported retrievers: similarity-search, SVM, TF-IDF, Llama-Index
Supported models: gpt-3.5-turbo, gpt-4, anthropic`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildRunCmd(),
		buildConfigCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	return os.Getenv("QAEVAL_CONFIG")
}
