package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kalambet/questboard/internal/gear"
	"github.com/kalambet/questboard/internal/storage"
)

func handleCurves(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		curves, err := deps.Store.Curves(r.URL.Query().Get("category"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list curves: %v", err)
			return
		}
		if curves == nil {
			curves = []storage.DifficultyCurve{}
		}
		writeJSON(w, http.StatusOK, curves)
	}
}

type gearRequest struct {
	Text string `json:"text"`
}

type gearResponse struct {
	Suggestions []string          `json:"suggestions"`
	Ranked      []gear.Suggestion `json:"ranked"`
}

func handleGear(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req gearRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}
		writeJSON(w, http.StatusOK, gearResponse{
			Suggestions: deps.Gear.Suggest(req.Text),
			Ranked:      deps.Gear.Rank(req.Text),
		})
	}
}

func handleIngest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Ingest == nil {
			httpError(w, http.StatusServiceUnavailable, "unavailable", "ingestion scheduler is not running")
			return
		}
		deps.Ingest.Trigger()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	}
}

func handleLastIngest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Ingest == nil {
			httpError(w, http.StatusServiceUnavailable, "unavailable", "ingestion scheduler is not running")
			return
		}
		rep, ok := deps.Ingest.Last()
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "no ingestion run has completed yet")
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}
