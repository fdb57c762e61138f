package retriever

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/haasonsaas/qaevaluator/internal/embeddings"
	"github.com/haasonsaas/qaevaluator/pkg/models"
)

const (
	svmC         = 0.1
	svmTolerance = 1e-6
	svmMaxIter   = 10000
	svmSeed      = 42
)

// SVMRetriever trains a linear SVM per query with the query as the only
// positive example and every chunk as a negative, then ranks chunks by the
// decision function.
type SVMRetriever struct {
	texts    []string
	vectors  [][]float64
	embedder embeddings.Provider
	maxIter  int
	k        int
}

func newSVM(ctx context.Context, chunks []string, opts Options, logger *slog.Logger) (*SVMRetriever, error) {
	vectors, embedder, err := embedWithFallback(ctx, chunks, opts, logger)
	if err != nil {
		return nil, err
	}
	maxIter := opts.SVMMaxIter
	if maxIter <= 0 {
		maxIter = svmMaxIter
	}
	r := &SVMRetriever{
		texts:    chunks,
		vectors:  make([][]float64, len(vectors)),
		embedder: embedder,
		maxIter:  maxIter,
		k:        FixedK,
	}
	for i, v := range vectors {
		r.vectors[i] = normalize(v)
	}
	return r, nil
}

// Retrieve returns the k chunks the trained classifier scores highest.
func (r *SVMRetriever) Retrieve(ctx context.Context, query string) ([]models.Passage, error) {
	q, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	x := make([][]float64, 0, len(r.vectors)+1)
	x = append(x, normalize(q))
	x = append(x, r.vectors...)
	y := make([]float64, len(x))
	y[0] = 1
	for i := 1; i < len(y); i++ {
		y[i] = -1
	}

	w := trainLinearSVC(x, y, svmC, svmTolerance, r.maxIter)

	passages := make([]models.Passage, len(r.vectors))
	for i, v := range r.vectors {
		passages[i] = models.Passage{Index: i, Text: r.texts[i], Score: decision(w, v)}
	}
	slices.SortStableFunc(passages, func(a, b models.Passage) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(passages) > r.k {
		passages = passages[:r.k]
	}
	return passages, nil
}

// trainLinearSVC fits an L2-regularized squared-hinge linear SVM with
// balanced class weights by dual coordinate descent. The returned weights
// carry the bias as their last element, trained against a constant feature
// of 1.
func trainLinearSVC(x [][]float64, y []float64, c, tol float64, maxIter int) []float64 {
	n := len(x)
	if n == 0 {
		return nil
	}
	dim := len(x[0]) + 1

	var pos int
	for _, yi := range y {
		if yi > 0 {
			pos++
		}
	}
	weight := func(yi float64) float64 {
		count := pos
		if yi < 0 {
			count = n - pos
		}
		if count == 0 {
			return 1
		}
		return float64(n) / (2 * float64(count))
	}

	diag := make([]float64, n)
	qd := make([]float64, n)
	for i := range x {
		diag[i] = 0.5 / (c * weight(y[i]))
		qd[i] = diag[i] + 1 // bias feature
		for _, v := range x[i] {
			qd[i] += v * v
		}
	}

	w := make([]float64, dim)
	alpha := make([]float64, n)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	rng := rand.New(rand.NewPCG(svmSeed, svmSeed))

	for iter := 0; iter < maxIter; iter++ {
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

		pgMax, pgMin := math.Inf(-1), math.Inf(1)
		for _, i := range order {
			g := y[i]*decision(w, x[i]) - 1 + alpha[i]*diag[i]

			pg := g
			if alpha[i] == 0 && g > 0 {
				pg = 0
			}
			pgMax = max(pgMax, pg)
			pgMin = min(pgMin, pg)

			if math.Abs(pg) > 1e-12 {
				old := alpha[i]
				alpha[i] = max(alpha[i]-g/qd[i], 0)
				d := (alpha[i] - old) * y[i]
				for j, v := range x[i] {
					w[j] += d * v
				}
				w[dim-1] += d
			}
		}
		if pgMax-pgMin <= tol {
			break
		}
	}
	return w
}

// decision evaluates w against v with the trailing bias term.
func decision(w, v []float64) float64 {
	sum := w[len(w)-1]
	for i, x := range v {
		sum += w[i] * x
	}
	return sum
}

func normalize(v []float32) []float64 {
	out := make([]float64, len(v))
	var norm float64
	for i, x := range v {
		out[i] = float64(x)
		norm += out[i] * out[i]
	}
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i := range out {
		out[i] /= norm
	}
	return out
}
