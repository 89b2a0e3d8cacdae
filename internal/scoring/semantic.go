package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/questboard/internal/storage"
)

// DefaultRawDifficulty is the 0-10 fallback of the semantic strategy.
const DefaultRawDifficulty = 5.0

// Embedder turns text into a vector. *ollama.Client satisfies it.
type Embedder interface {
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

type reference struct {
	text   string
	weight float64
}

// references form the difficulty ladder quests are compared against.
var references = []reference{
	{"A simple, quick task that requires minimal effort or skill.", 1.0},
	{"A straightforward task that requires basic knowledge or skills.", 3.0},
	{"A task that requires some experience and may take several hours to complete.", 5.0},
	{"A challenging task that requires specialized skills or knowledge.", 7.5},
	{"An extremely difficult task that requires expert-level skills and significant time investment.", 9.5},
}

// Semantic scores quests by embedding similarity to a fixed difficulty
// ladder. Embeddings are kept in an LRU cache keyed by text.
type Semantic struct {
	embedder Embedder
	model    string
	cache    *lru.Cache
}

// NewSemantic creates a semantic scorer using the given embedding model.
func NewSemantic(e Embedder, model string, cacheSize int) (*Semantic, error) {
	if cacheSize <= 0 {
		cacheSize = 512
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}
	return &Semantic{embedder: e, model: model, cache: cache}, nil
}

// Score implements Scorer. Raw scores are converted to the canonical scale.
func (s *Semantic) Score(ctx context.Context, quests []storage.Quest) []storage.Quest {
	if len(quests) == 0 {
		return quests
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range quests {
		g.Go(func() error {
			raw, err := s.Raw(gCtx, quests[i].Text())
			if err != nil {
				slog.Warn("scoring: semantic scoring degraded",
					"url", quests[i].URL, "error", fmt.Errorf("%w: %v", ErrScoringDegraded, err))
				quests[i].Difficulty = DefaultDifficulty
				return nil
			}
			quests[i].Difficulty = SemanticToCanonical(raw)
			return nil
		})
	}
	_ = g.Wait()
	return quests
}

// Raw returns the 0-10 difficulty of text. On failure it returns
// DefaultRawDifficulty along with the error.
func (s *Semantic) Raw(ctx context.Context, text string) (float64, error) {
	if text == "" {
		return DefaultRawDifficulty, errors.New("empty text")
	}
	vec, err := s.embed(ctx, text)
	if err != nil {
		return DefaultRawDifficulty, err
	}
	vecNorm := norm(vec)
	if vecNorm == 0 {
		return DefaultRawDifficulty, errors.New("zero embedding")
	}

	sims := make([]float64, len(references))
	var total float64
	for i, ref := range references {
		refVec, err := s.embed(ctx, ref.text)
		if err != nil {
			return DefaultRawDifficulty, fmt.Errorf("embedding reference %d: %w", i, err)
		}
		sims[i] = cosine(vec, refVec, vecNorm)
		total += sims[i]
	}

	var score float64
	for i, ref := range references {
		p := 1 / float64(len(references))
		if total > 0 {
			p = sims[i] / total
		}
		score += p * ref.weight
	}
	return round2(clamp(score, 0, 10)), nil
}

func (s *Semantic) embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := s.cache.Get(text); ok {
		return v.([]float32), nil
	}
	vec, err := s.embedder.Embed(ctx, s.model, text)
	if err != nil {
		return nil, err
	}
	s.cache.Add(text, vec)
	return vec, nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosine returns dot(a,b) / (aNorm*|b|), or 0 for mismatched or zero vectors.
func cosine(a, b []float32, aNorm float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, bSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bSq += float64(b[i]) * float64(b[i])
	}
	if bSq == 0 || aNorm == 0 {
		return 0
	}
	return dot / (aNorm * math.Sqrt(bSq))
}
