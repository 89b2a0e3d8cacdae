package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/questboard/internal/aggregate"
	"github.com/kalambet/questboard/internal/storage"
)

// QuestInput is one quest submitted through POST /quests.
type QuestInput struct {
	URL          string   `json:"url"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Source       string   `json:"source"`
	Reward       string   `json:"reward"`
	Region       string   `json:"region"`
	GearRequired []string `json:"gear_required"`
}

type createQuestsRequest struct {
	Quests []QuestInput `json:"quests"`
}

func handleListQuests(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := parseIntParam(r, "limit", 50, 200)

		if search := q.Get("q"); search != "" {
			quests, err := deps.Store.SearchQuests(search, limit)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to search quests: %v", err)
				return
			}
			writeJSON(w, http.StatusOK, viewsOf(quests))
			return
		}

		minD, err := parseFloatParam(r, "min_difficulty")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		maxD, err := parseFloatParam(r, "max_difficulty")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		state := storage.ApprovalState(q.Get("state"))
		switch state {
		case "", storage.StatePending, storage.StateApproved, storage.StateRejected:
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid state %q", state)
			return
		}

		quests, err := deps.Store.GetQuests(storage.QuestFilter{
			Source:        q.Get("source"),
			Region:        q.Get("region"),
			State:         state,
			MinDifficulty: minD,
			MaxDifficulty: maxD,
			Limit:         limit,
			Offset:        parseIntParam(r, "offset", 0, 0),
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list quests: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, viewsOf(quests))
	}
}

func handleCreateQuests(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req createQuestsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Quests) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "quests must not be empty")
			return
		}

		batch := make([]storage.Quest, 0, len(req.Quests))
		for i, in := range req.Quests {
			if in.Source == "" {
				in.Source = "api"
			}
			q, err := aggregate.Normalize(storage.Quest{
				URL:          in.URL,
				Title:        in.Title,
				Description:  in.Description,
				Source:       in.Source,
				Reward:       in.Reward,
				Region:       in.Region,
				GearRequired: in.GearRequired,
			})
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "quest %d: %v", i, err)
				return
			}
			batch = append(batch, q)
		}

		rep := deps.Processor.Process(r.Context(), aggregate.Merge([][]storage.Quest{batch}))
		writeJSON(w, http.StatusOK, rep)
	}
}

func handleGetQuest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := deps.Store.GetQuest(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "quest not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get quest: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(q))
	}
}

func handleSimilarQuests(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quests, err := deps.Store.SimilarQuests(chi.URLParam(r, "id"), parseIntParam(r, "limit", 5, 50))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "quest not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to find similar quests: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, viewsOf(quests))
	}
}

func handleTransition(deps AppDeps, transition func(id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := transition(id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "quest not found")
			return
		case errors.Is(err, storage.ErrInvalidTransition):
			httpError(w, http.StatusConflict, "conflict", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update quest: %v", err)
			return
		}

		q, err := deps.Store.GetQuest(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to reload quest: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(q))
	}
}

func handleStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Store.Stats()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compute stats: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func handleActivity(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activity, err := deps.Store.RecentActivity(parseIntParam(r, "days", 7, 365))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load activity: %v", err)
			return
		}
		if activity == nil {
			activity = []storage.SourceActivity{}
		}
		writeJSON(w, http.StatusOK, activity)
	}
}
