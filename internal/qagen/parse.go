package qagen

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/qaevaluator/pkg/models"
)

const systemPrompt = `You help teachers write reading comprehension questions.
Given a passage of text, write a question that can be answered from the passage alone, together with its answer.
Respond with JSON only, in exactly this form:
[
  {"question": "<question>", "answer": "<answer>"}
]`

const userPrompt = "Write a question/answer pair in the JSON format above for the following text:\n----------------\n%s"

const pairsSchema = `{
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["question", "answer"],
    "properties": {
      "question": {"type": "string"},
      "answer": {"type": "string"}
    }
  }
}`

var compiledPairsSchema = jsonschema.MustCompileString("qa_pairs.json", pairsSchema)

// ParsePairs extracts QA pairs from model output. The output may be fenced,
// a single object or an array, and is parsed leniently as JSON5. Pairs with
// an empty question or answer are dropped.
func ParsePairs(output string) ([]models.EvalPair, error) {
	payload := extractJSON(output)
	if payload == "" {
		return nil, fmt.Errorf("%w: no JSON in model output", ErrNoPairs)
	}

	var decoded any
	if err := UnmarshalLenient([]byte(payload), &decoded); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	if obj, ok := decoded.(map[string]any); ok {
		decoded = []any{obj}
	}
	if err := compiledPairsSchema.Validate(decoded); err != nil {
		return nil, fmt.Errorf("model output does not match schema: %w", err)
	}

	items := decoded.([]any)
	pairs := make([]models.EvalPair, 0, len(items))
	for _, item := range items {
		obj := item.(map[string]any)
		pair := models.EvalPair{
			Question: strings.TrimSpace(obj["question"].(string)),
			Answer:   strings.TrimSpace(obj["answer"].(string)),
		}
		if pair.Valid() {
			pairs = append(pairs, pair)
		}
	}
	if len(pairs) == 0 {
		return nil, ErrNoPairs
	}
	return pairs, nil
}

// extractJSON returns the first JSON object or array in s, ignoring code
// fences and surrounding prose.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "```"); start != -1 {
		rest := s[start+3:]
		if nl := strings.IndexByte(rest, '\n'); nl != -1 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end != -1 {
			s = strings.TrimSpace(rest[:end])
		}
	}

	start := strings.IndexAny(s, "[{")
	if start == -1 {
		return ""
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return ""
	}
	return s[start : end+1]
}
