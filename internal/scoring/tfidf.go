package scoring

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"time"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// Model is a fitted TF-IDF vocabulary. It is an explicit artifact: it is
// persisted by name, loaded once and checked for staleness before reuse.
type Model struct {
	IDF      map[string]float64 `json:"idf"`
	DocCount int                `json:"doc_count"`
	FittedAt time.Time          `json:"fitted_at"`
}

// Fit builds a model over texts using smoothed inverse document frequency:
// idf(t) = ln((1+n)/(1+df(t))) + 1.
func Fit(texts []string, now time.Time) *Model {
	df := make(map[string]int)
	for _, text := range texts {
		seen := make(map[string]bool)
		for _, tok := range tokenize(text) {
			if !seen[tok] {
				seen[tok] = true
				df[tok]++
			}
		}
	}

	n := float64(len(texts))
	idf := make(map[string]float64, len(df))
	for term, d := range df {
		idf[term] = math.Log((1+n)/(1+float64(d))) + 1
	}
	return &Model{IDF: idf, DocCount: len(texts), FittedAt: now.UTC()}
}

// Transform returns the l2-normalized TF-IDF weight of every in-vocabulary
// term of text. Terms the model has never seen are dropped.
func (m *Model) Transform(text string) map[string]float64 {
	counts := make(map[string]int)
	for _, tok := range tokenize(text) {
		if _, ok := m.IDF[tok]; ok {
			counts[tok]++
		}
	}

	weights := make(map[string]float64, len(counts))
	var sumSq float64
	for term, c := range counts {
		w := float64(c) * m.IDF[term]
		weights[term] = w
		sumSq += w * w
	}
	if sumSq == 0 {
		return weights
	}
	norm := math.Sqrt(sumSq)
	for term := range weights {
		weights[term] /= norm
	}
	return weights
}

// Stale reports whether the model should be refit: it is older than maxAge
// or was fit over fewer than minDocs documents. Zero limits are ignored.
func (m *Model) Stale(now time.Time, maxAge time.Duration, minDocs int) bool {
	if m == nil || len(m.IDF) == 0 {
		return true
	}
	if maxAge > 0 && now.Sub(m.FittedAt) > maxAge {
		return true
	}
	return minDocs > 0 && m.DocCount < minDocs
}

func (m *Model) marshal() ([]byte, error) {
	return json.Marshal(m)
}

func unmarshalModel(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
