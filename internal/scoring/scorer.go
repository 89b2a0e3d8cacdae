// Package scoring assigns difficulty to quests.
//
// The canonical difficulty scale of the whole system is 1 to 5. The lexical
// strategy produces it directly; the semantic strategy works on 0 to 10 and
// converts with SemanticToCanonical before writing Quest.Difficulty.
package scoring

import (
	"context"
	"errors"
	"math"

	"github.com/kalambet/questboard/internal/storage"
)

const (
	MinDifficulty = 1.0
	MaxDifficulty = 5.0

	// DefaultDifficulty is assigned when scoring a quest fails.
	DefaultDifficulty = 3.0
)

// ErrScoringDegraded marks warnings logged when a quest fell back to
// DefaultDifficulty. It is never returned to callers.
var ErrScoringDegraded = errors.New("scoring degraded")

// Scorer fills in Quest.Difficulty. Implementations never fail: a quest that
// cannot be scored gets DefaultDifficulty and a warning is logged.
type Scorer interface {
	Score(ctx context.Context, quests []storage.Quest) []storage.Quest
}

// techVocabulary holds terms that make a listing harder.
var techVocabulary = map[string]bool{
	"python": true, "developer": true, "frontend": true, "backend": true,
	"network": true, "security": true, "automation": true, "api": true,
	"devops": true, "cloud": true, "database": true, "server": true,
	"container": true, "kubernetes": true, "docker": true, "aws": true,
	"azure": true, "gcp": true, "javascript": true, "typescript": true,
	"react": true, "node": true, "linux": true, "git": true,
}

// IsTechTerm reports whether term is part of the tech vocabulary.
func IsTechTerm(term string) bool {
	return techVocabulary[term]
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SemanticToCanonical maps a 0-10 semantic score onto the canonical 1-5 scale.
func SemanticToCanonical(s float64) float64 {
	return round2(clamp(1+s*0.4, MinDifficulty, MaxDifficulty))
}

// Rank names the tier of a canonical difficulty. Tiers are defined on the
// doubled 2-10 presentation scale.
func Rank(difficulty float64) string {
	switch d := difficulty * 2; {
	case d >= 8:
		return "Warlord"
	case d >= 5:
		return "Knight"
	case d >= 2:
		return "Adventurer"
	default:
		return "Squire"
	}
}

func withDefault(quests []storage.Quest) []storage.Quest {
	for i := range quests {
		quests[i].Difficulty = DefaultDifficulty
	}
	return quests
}
