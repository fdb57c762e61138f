package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/qaevaluator/internal/evaluator"
	"github.com/haasonsaas/qaevaluator/internal/grader"
	"github.com/haasonsaas/qaevaluator/internal/ingest"
	"github.com/haasonsaas/qaevaluator/internal/qagen"
	"github.com/haasonsaas/qaevaluator/internal/retriever"
	"github.com/haasonsaas/qaevaluator/internal/splitter"
	"github.com/haasonsaas/qaevaluator/pkg/models"
)

// Form defaults.
const (
	defaultNumEvalQuestions = 5
	defaultChunkChars       = 1000
	defaultOverlap          = 100
	defaultModelVersion     = "gpt-3.5-turbo"
	defaultNumNeighbors     = 3
)

// formField names a form value by its camelCase name and the snake_case
// alias older clients send.
type formField struct {
	camel string
	snake string
}

var (
	fieldNumEvalQuestions = formField{"numEvalQuestions", "num_eval_questions"}
	fieldChunkChars       = formField{"chunkChars", "chunk_chars"}
	fieldOverlap          = formField{"overlap", "overlap"}
	fieldSplitMethod      = formField{"splitMethod", "split_method"}
	fieldRetrieverType    = formField{"retrieverType", "retriever_type"}
	fieldEmbedding        = formField{"embeddingProvider", "embeddings"}
	fieldModelVersion     = formField{"modelVersion", "model_version"}
	fieldGradePrompt      = formField{"gradePrompt", "grade_prompt"}
	fieldNumNeighbors     = formField{"numNeighbors", "num_neighbors"}
	fieldTestDataset      = formField{"testDataset", "test_dataset"}
)

// requestBundle is the decoded form, validated against requestSchema.
type requestBundle struct {
	NumEvalQuestions  int    `json:"numEvalQuestions"`
	ChunkChars        int    `json:"chunkChars"`
	Overlap           int    `json:"overlap"`
	SplitMethod       string `json:"splitMethod"`
	RetrieverType     string `json:"retrieverType"`
	EmbeddingProvider string `json:"embeddingProvider"`
	ModelVersion      string `json:"modelVersion"`
	GradePrompt       string `json:"gradePrompt"`
	NumNeighbors      int    `json:"numNeighbors"`
	TestDataset       any    `json:"testDataset"`
}

const requestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["numEvalQuestions", "chunkChars", "overlap", "numNeighbors", "testDataset"],
  "properties": {
    "numEvalQuestions": {"type": "integer", "minimum": 1},
    "chunkChars": {"type": "integer", "minimum": 1},
    "overlap": {"type": "integer", "minimum": 0},
    "splitMethod": {"type": "string"},
    "retrieverType": {"type": "string"},
    "embeddingProvider": {"type": "string"},
    "modelVersion": {"type": "string", "minLength": 1},
    "gradePrompt": {"type": "string"},
    "numNeighbors": {"type": "integer", "minimum": 1},
    "testDataset": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["question", "answer"],
        "properties": {
          "question": {"type": "string"},
          "answer": {"type": "string"}
        }
      }
    }
  }
}`

var (
	requestSchemaOnce     sync.Once
	requestSchemaCompiled *jsonschema.Schema
	requestSchemaErr      error
)

func compiledRequestSchema() (*jsonschema.Schema, error) {
	requestSchemaOnce.Do(func() {
		requestSchemaCompiled, requestSchemaErr = jsonschema.CompileString("evaluator-request.json", requestSchema)
	})
	return requestSchemaCompiled, requestSchemaErr
}

func validateBundle(bundle requestBundle) error {
	schema, err := compiledRequestSchema()
	if err != nil {
		return fmt.Errorf("compile request schema: %w", err)
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		return err
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// parseRequest decodes the multipart evaluation form into an evaluator
// request. Every error it returns is a client error.
func parseRequest(w http.ResponseWriter, r *http.Request, maxBytes, maxMemory int64) (evaluator.Request, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return evaluator.Request{}, fmt.Errorf("parse form: %w", err)
	}
	form := r.MultipartForm

	bundle, err := decodeBundle(form)
	if err != nil {
		return evaluator.Request{}, err
	}
	if err := validateBundle(bundle); err != nil {
		return evaluator.Request{}, err
	}
	if bundle.Overlap >= bundle.ChunkChars {
		return evaluator.Request{}, fmt.Errorf("overlap (%d) must be smaller than chunkChars (%d)", bundle.Overlap, bundle.ChunkChars)
	}

	method, err := splitter.ParseMethod(bundle.SplitMethod)
	if err != nil {
		return evaluator.Request{}, err
	}
	strategy, err := retriever.ParseStrategy(bundle.RetrieverType)
	if err != nil {
		return evaluator.Request{}, err
	}

	docs, err := readDocuments(form.File["files"])
	if err != nil {
		return evaluator.Request{}, err
	}

	return evaluator.Request{
		Documents:        docs,
		NumEvalQuestions: bundle.NumEvalQuestions,
		ChunkChars:       bundle.ChunkChars,
		Overlap:          bundle.Overlap,
		SplitMethod:      method,
		Retriever:        strategy,
		Embedding:        bundle.EmbeddingProvider,
		ModelVersion:     bundle.ModelVersion,
		GradePrompt:      grader.ParseVariant(bundle.GradePrompt),
		NumNeighbors:     bundle.NumNeighbors,
		Dataset:          datasetPairs(bundle.TestDataset),
	}, nil
}

func decodeBundle(form *multipart.Form) (requestBundle, error) {
	bundle := requestBundle{
		SplitMethod:       formValue(form, fieldSplitMethod, splitter.Recursive.String()),
		RetrieverType:     formValue(form, fieldRetrieverType, string(retriever.SimilaritySearch)),
		EmbeddingProvider: formValue(form, fieldEmbedding, evaluator.EmbeddingOpenAI),
		ModelVersion:      formValue(form, fieldModelVersion, defaultModelVersion),
		GradePrompt:       formValue(form, fieldGradePrompt, string(grader.Fast)),
	}

	ints := []struct {
		field formField
		def   int
		dst   *int
	}{
		{fieldNumEvalQuestions, defaultNumEvalQuestions, &bundle.NumEvalQuestions},
		{fieldChunkChars, defaultChunkChars, &bundle.ChunkChars},
		{fieldOverlap, defaultOverlap, &bundle.Overlap},
		{fieldNumNeighbors, defaultNumNeighbors, &bundle.NumNeighbors},
	}
	for _, f := range ints {
		raw := formValue(form, f.field, "")
		if raw == "" {
			*f.dst = f.def
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return requestBundle{}, fmt.Errorf("%s must be an integer, got %q", f.field.camel, raw)
		}
		*f.dst = n
	}

	dataset := []any{}
	if raw := formValue(form, fieldTestDataset, ""); raw != "" {
		var decoded any
		if err := qagen.UnmarshalLenient([]byte(raw), &decoded); err != nil {
			return requestBundle{}, fmt.Errorf("testDataset: %w", err)
		}
		bundle.TestDataset = decoded
	} else {
		bundle.TestDataset = dataset
	}
	return bundle, nil
}

func formValue(form *multipart.Form, f formField, def string) string {
	for _, name := range []string{f.camel, f.snake} {
		if values := form.Value[name]; len(values) > 0 {
			if v := strings.TrimSpace(values[0]); v != "" {
				return v
			}
		}
	}
	return def
}

// datasetPairs converts a validated testDataset into pairs.
func datasetPairs(v any) []models.EvalPair {
	items, _ := v.([]any)
	pairs := make([]models.EvalPair, 0, len(items))
	for _, item := range items {
		obj, _ := item.(map[string]any)
		q, _ := obj["question"].(string)
		a, _ := obj["answer"].(string)
		pairs = append(pairs, models.EvalPair{Question: q, Answer: a})
	}
	return pairs
}

func readDocuments(headers []*multipart.FileHeader) ([]ingest.Document, error) {
	if len(headers) == 0 {
		return nil, errors.New("at least one file is required")
	}
	docs := make([]ingest.Document, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		docs = append(docs, ingest.Document{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return docs, nil
}
