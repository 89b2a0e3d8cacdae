package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/questboard/internal/gear"
	"github.com/kalambet/questboard/internal/pipeline"
	"github.com/kalambet/questboard/internal/scoring"
	"github.com/kalambet/questboard/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// QuestProcessor scores, tags and caches submitted quests.
type QuestProcessor interface {
	Process(ctx context.Context, quests []storage.Quest) pipeline.Report
}

// IngestTrigger requests an out-of-band pipeline run.
type IngestTrigger interface {
	Trigger()
	Last() (pipeline.Report, bool)
}

type AppDeps struct {
	Store     *storage.Store
	Processor QuestProcessor
	Ingest    IngestTrigger // optional; POST /ingest answers 503 without it
	Gear      *gear.Suggester
	Token     string
}

// NewAppHandler returns the HTTP API. /health is public; everything else
// requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/quests", handleListQuests(deps))
		r.Post("/quests", handleCreateQuests(deps))
		r.Get("/quests/{id}", handleGetQuest(deps))
		r.Get("/quests/{id}/similar", handleSimilarQuests(deps))
		r.Post("/quests/{id}/approve", handleTransition(deps, deps.Store.ApproveQuest))
		r.Post("/quests/{id}/reject", handleTransition(deps, deps.Store.RejectQuest))

		r.Get("/stats", handleStats(deps))
		r.Get("/stats/activity", handleActivity(deps))
		r.Get("/curves", handleCurves(deps))
		r.Post("/gear", handleGear(deps))
		r.Post("/ingest", handleIngest(deps))
		r.Get("/ingest", handleLastIngest(deps))

		r.Get("/users/{user}/bookmarks", handleListBookmarks(deps))
		r.Put("/users/{user}/bookmarks/{id}", handleAddBookmark(deps))
		r.Delete("/users/{user}/bookmarks/{id}", handleRemoveBookmark(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// questView adds the presentation rank to a quest.
type questView struct {
	storage.Quest
	Rank string `json:"rank"`
}

func viewOf(q storage.Quest) questView {
	return questView{Quest: q, Rank: scoring.Rank(q.Difficulty)}
}

func viewsOf(quests []storage.Quest) []questView {
	out := make([]questView, len(quests))
	for i, q := range quests {
		out[i] = viewOf(q)
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func parseFloatParam(r *http.Request, key string) (float64, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return v, nil
}
