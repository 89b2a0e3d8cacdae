package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kalambet/questboard/internal/storage"
)

const (
	modelName      = "tfidf"
	curveTermLimit = 5
)

// LexicalStore is the persistence the lexical scorer needs. *storage.Store
// satisfies it.
type LexicalStore interface {
	LoadModel(name string) (storage.ModelRecord, error)
	SaveModel(m storage.ModelRecord) error
	CurveScores(category string, keywords []string) (map[string]float64, error)
	UpsertCurve(category, keyword string, score float64) (bool, error)
	GetQuests(f storage.QuestFilter) ([]storage.Quest, error)
}

// LexicalOptions tunes model freshness.
type LexicalOptions struct {
	MaxModelAge  time.Duration
	MinModelDocs int
	// CorpusLimit caps how many cached quests join the batch when refitting.
	CorpusLimit int
	Clock       storage.Clock
}

// Lexical scores quests with a TF-IDF model blended with learned
// per-source difficulty curves.
type Lexical struct {
	store LexicalStore
	opts  LexicalOptions

	mu    sync.Mutex
	model *Model
}

// NewLexical creates a lexical scorer. The model is loaded from the store on
// first use.
func NewLexical(store LexicalStore, opts LexicalOptions) *Lexical {
	if opts.CorpusLimit <= 0 {
		opts.CorpusLimit = 1000
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	return &Lexical{store: store, opts: opts}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Score implements Scorer.
func (l *Lexical) Score(ctx context.Context, quests []storage.Quest) []storage.Quest {
	if len(quests) == 0 {
		return quests
	}

	model, err := l.ensureModel(quests)
	if err != nil {
		slog.Warn("scoring: tfidf model unavailable, using default difficulty",
			"error", fmt.Errorf("%w: %v", ErrScoringDegraded, err), "quests", len(quests))
		return withDefault(quests)
	}

	for i := range quests {
		if ctx.Err() != nil {
			slog.Warn("scoring: cancelled", "error", fmt.Errorf("%w: %v", ErrScoringDegraded, ctx.Err()))
			for j := i; j < len(quests); j++ {
				quests[j].Difficulty = DefaultDifficulty
			}
			return quests
		}
		score, err := l.scoreOne(model, quests[i])
		if err != nil {
			slog.Warn("scoring: quest degraded to default difficulty",
				"url", quests[i].URL, "error", fmt.Errorf("%w: %v", ErrScoringDegraded, err))
			score = DefaultDifficulty
		}
		quests[i].Difficulty = score
	}
	return quests
}

// ensureModel returns the cached model, loading it from the store or
// refitting it over the cached corpus plus batch when missing or stale.
func (l *Lexical) ensureModel(batch []storage.Quest) (*Model, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.opts.Clock.Now()
	if l.model == nil {
		rec, err := l.store.LoadModel(modelName)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("loading model: %w", err)
		default:
			m, err := unmarshalModel(rec.Payload)
			if err != nil {
				slog.Warn("scoring: stored tfidf model is corrupt, refitting", "error", err)
			} else {
				l.model = m
			}
		}
	}

	if !l.model.Stale(now, l.opts.MaxModelAge, l.opts.MinModelDocs) {
		return l.model, nil
	}

	corpus, err := l.store.GetQuests(storage.QuestFilter{Limit: l.opts.CorpusLimit})
	if err != nil {
		return nil, fmt.Errorf("loading corpus: %w", err)
	}
	seen := make(map[string]bool, len(corpus)+len(batch))
	texts := make([]string, 0, len(corpus)+len(batch))
	for _, set := range [][]storage.Quest{batch, corpus} {
		for _, q := range set {
			if seen[q.URL] {
				continue
			}
			seen[q.URL] = true
			texts = append(texts, q.Text())
		}
	}

	m := Fit(texts, now)
	payload, err := m.marshal()
	if err != nil {
		return nil, fmt.Errorf("encoding model: %w", err)
	}
	if err := l.store.SaveModel(storage.ModelRecord{
		Name:     modelName,
		Payload:  payload,
		DocCount: m.DocCount,
		FittedAt: m.FittedAt,
	}); err != nil {
		return nil, fmt.Errorf("saving model: %w", err)
	}
	slog.Info("scoring: tfidf model fitted", "docs", m.DocCount, "terms", len(m.IDF))
	l.model = m
	return m, nil
}

type termWeight struct {
	term string
	w    float64
	wd   float64
}

func (l *Lexical) scoreOne(model *Model, q storage.Quest) (float64, error) {
	weights := model.Transform(q.Text())
	terms := make([]termWeight, 0, len(weights))
	keywords := make([]string, 0, len(weights))
	var base float64
	for term, w := range weights {
		if w == 0 {
			continue
		}
		var wd float64
		if utf8.RuneCountInString(term) > 7 {
			wd += 0.5 * w
		}
		if IsTechTerm(term) {
			wd += 1.5 * w
		}
		base += wd
		terms = append(terms, termWeight{term: term, w: w, wd: wd})
		keywords = append(keywords, term)
	}

	curves, err := l.store.CurveScores(q.Source, keywords)
	if err != nil {
		return 0, fmt.Errorf("reading curves: %w", err)
	}
	adjusted := base
	for _, tw := range terms {
		if c, ok := curves[tw.term]; ok {
			adjusted += c * tw.w
		}
	}
	final := round2(clamp(adjusted*2, MinDifficulty, MaxDifficulty))

	// Curves learn the quest's final score, not each term's own contribution.
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].wd != terms[j].wd {
			return terms[i].wd > terms[j].wd
		}
		return terms[i].term < terms[j].term
	})
	for i, tw := range terms {
		if i == curveTermLimit {
			break
		}
		if _, err := l.store.UpsertCurve(q.Source, tw.term, final); err != nil {
			slog.Warn("scoring: curve update failed", "source", q.Source, "keyword", tw.term, "error", err)
		}
	}
	return final, nil
}
