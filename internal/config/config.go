package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrInvalid is wrapped by every validation failure returned from Load.
var ErrInvalid = errors.New("invalid config")

// Config is the main configuration structure for the evaluator service.
type Config struct {
	// Version is the config file format version. Zero means current.
	Version int `yaml:"version"`

	Server     ServerConfig     `yaml:"server"`
	LLM        LLMConfig        `yaml:"llm"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Store      StoreConfig      `yaml:"store"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	// EmitSkipEvents streams named "skip" events for dropped pairs.
	EmitSkipEvents *bool `yaml:"emit_skip_events"`
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// SkipEventsEnabled reports whether skip events are streamed (default true).
func (s ServerConfig) SkipEventsEnabled() bool {
	return s.EmitSkipEvents == nil || *s.EmitSkipEvents
}

type LLMConfig struct {
	OpenAIAPIKey     string        `yaml:"openai_api_key"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	AnthropicAPIKey  string        `yaml:"anthropic_api_key"`
	AnthropicModel   string        `yaml:"anthropic_model"`
	AnthropicBaseURL string        `yaml:"anthropic_base_url"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	GraderModel      string        `yaml:"grader_model"`
	MaxTokens        int           `yaml:"max_tokens"`
}

type EmbeddingsConfig struct {
	OpenAIModel       string `yaml:"openai_model"`
	HuggingFaceAPIKey string `yaml:"huggingface_api_key"`
	HuggingFaceURL    string `yaml:"huggingface_url"`
	HuggingFaceModel  string `yaml:"huggingface_model"`
	BatchSize         int    `yaml:"batch_size"`
}

type EvaluationConfig struct {
	// SampleChars is the corpus window used to synthesize one pair per slot.
	SampleChars      int `yaml:"sample_chars"`
	SVMMaxIter       int `yaml:"svm_max_iter"`
	IndexChunkTokens int `yaml:"index_chunk_tokens"`

	// VectorStore selects the similarity index: "memory" or "sqlite".
	VectorStore string `yaml:"vector_store"`
}

type StoreConfig struct {
	// Driver is "sqlite", "postgres" or empty to disable result persistence.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
	Environment  string  `yaml:"environment"`
}

// Load reads, defaults and validates a configuration file.
// An empty path yields the defaults plus environment fallbacks.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		raw, err := LoadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		cfg, err = decodeRawConfig(raw)
		if err != nil {
			return nil, err
		}
	}

	applyEnvFallbacks(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvFallbacks(cfg *Config) {
	if cfg.LLM.OpenAIAPIKey == "" {
		cfg.LLM.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.LLM.AnthropicAPIKey == "" {
		cfg.LLM.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.Embeddings.HuggingFaceAPIKey == "" {
		cfg.Embeddings.HuggingFaceAPIKey = os.Getenv("HUGGINGFACEHUB_API_TOKEN")
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 64 << 20
	}
	if cfg.LLM.AnthropicModel == "" {
		cfg.LLM.AnthropicModel = "claude-3-5-haiku-latest"
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.LLM.RetryDelay == 0 {
		cfg.LLM.RetryDelay = time.Second
	}
	if cfg.LLM.GraderModel == "" {
		cfg.LLM.GraderModel = "gpt-3.5-turbo"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.Embeddings.OpenAIModel == "" {
		cfg.Embeddings.OpenAIModel = "text-embedding-ada-002"
	}
	if cfg.Embeddings.HuggingFaceURL == "" {
		cfg.Embeddings.HuggingFaceURL = "https://api-inference.huggingface.co/pipeline/feature-extraction"
	}
	if cfg.Embeddings.HuggingFaceModel == "" {
		cfg.Embeddings.HuggingFaceModel = "sentence-transformers/all-mpnet-base-v2"
	}
	if cfg.Embeddings.BatchSize == 0 {
		cfg.Embeddings.BatchSize = 100
	}
	if cfg.Evaluation.SampleChars == 0 {
		cfg.Evaluation.SampleChars = 3000
	}
	if cfg.Evaluation.SVMMaxIter == 0 {
		cfg.Evaluation.SVMMaxIter = 10000
	}
	if cfg.Evaluation.IndexChunkTokens == 0 {
		cfg.Evaluation.IndexChunkTokens = 512
	}
	if cfg.Evaluation.VectorStore == "" {
		cfg.Evaluation.VectorStore = "memory"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks the defaulted configuration for contradictory values.
func (c *Config) Validate() error {
	var problems []string

	if err := ValidateVersion(c.Version); err != nil {
		problems = append(problems, err.Error())
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxUploadBytes < 0 {
		problems = append(problems, "server.max_upload_bytes must be positive")
	}
	if c.LLM.MaxRetries < 0 {
		problems = append(problems, "llm.max_retries must not be negative")
	}
	if c.Embeddings.BatchSize < 0 {
		problems = append(problems, "embeddings.batch_size must be positive")
	}
	if c.Evaluation.SampleChars < 0 {
		problems = append(problems, "evaluation.sample_chars must be positive")
	}
	if c.Evaluation.IndexChunkTokens < 0 {
		problems = append(problems, "evaluation.index_chunk_tokens must be positive")
	}

	switch strings.ToLower(c.Evaluation.VectorStore) {
	case "memory", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("evaluation.vector_store %q must be memory or sqlite", c.Evaluation.VectorStore))
	}

	switch strings.ToLower(c.Store.Driver) {
	case "":
	case "sqlite", "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			problems = append(problems, "store.dsn is required when store.driver is set")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be json or text", c.Logging.Format))
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		problems = append(problems, "tracing.sampling_rate must be between 0 and 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
