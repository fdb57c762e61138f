package retriever

import (
	"cmp"
	"context"
	"math"
	"regexp"
	"slices"

	"golang.org/x/text/cases"

	"github.com/haasonsaas/qaevaluator/pkg/models"
)

// tokenPattern matches words of two or more letters, digits or underscores.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// TFIDFRetriever ranks chunks by cosine similarity of smoothed TF-IDF vectors.
type TFIDFRetriever struct {
	texts []string
	vocab map[string]int
	idf   []float64
	docs  []sparseVec
	k     int
}

type sparseVec map[int]float64

// NewTFIDF fits the vocabulary and idf weights over texts.
func NewTFIDF(texts []string, k int) *TFIDFRetriever {
	t := &TFIDFRetriever{texts: texts, vocab: make(map[string]int), k: k}

	tokenized := make([][]string, len(texts))
	var df []int
	for i, text := range texts {
		tokens := tokenize(text)
		tokenized[i] = tokens
		seen := make(map[int]bool, len(tokens))
		for _, tok := range tokens {
			id, ok := t.vocab[tok]
			if !ok {
				id = len(t.vocab)
				t.vocab[tok] = id
				df = append(df, 0)
			}
			if !seen[id] {
				seen[id] = true
				df[id]++
			}
		}
	}

	n := float64(len(texts))
	t.idf = make([]float64, len(df))
	for id, d := range df {
		t.idf[id] = math.Log((1+n)/(1+float64(d))) + 1
	}

	t.docs = make([]sparseVec, len(texts))
	for i, tokens := range tokenized {
		t.docs[i] = t.vectorize(tokens)
	}
	return t
}

// Retrieve returns the k chunks most similar to query.
func (t *TFIDFRetriever) Retrieve(_ context.Context, query string) ([]models.Passage, error) {
	q := t.vectorize(tokenize(query))

	passages := make([]models.Passage, len(t.docs))
	for i, doc := range t.docs {
		passages[i] = models.Passage{Index: i, Text: t.texts[i], Score: dot(q, doc)}
	}
	slices.SortStableFunc(passages, func(a, b models.Passage) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(passages) > t.k {
		passages = passages[:t.k]
	}
	return passages, nil
}

// vectorize builds an L2-normalized tf-idf vector. Unknown terms are ignored.
func (t *TFIDFRetriever) vectorize(tokens []string) sparseVec {
	vec := make(sparseVec)
	for _, tok := range tokens {
		if id, ok := t.vocab[tok]; ok {
			vec[id]++
		}
	}
	var norm float64
	for id, tf := range vec {
		w := tf * t.idf[id]
		vec[id] = w
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for id := range vec {
			vec[id] /= norm
		}
	}
	return vec
}

func tokenize(text string) []string {
	return tokenPattern.FindAllString(cases.Fold().String(text), -1)
}

func dot(a, b sparseVec) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	var sum float64
	for id, x := range a {
		sum += x * b[id]
	}
	return sum
}
