package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/questboard/internal/storage"
)

func handleListBookmarks(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quests, err := deps.Store.Bookmarks(chi.URLParam(r, "user"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list bookmarks: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, viewsOf(quests))
	}
}

func handleAddBookmark(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.AddBookmark(chi.URLParam(r, "user"), chi.URLParam(r, "id"))
		var verr *storage.ValidationError
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "quest not found")
			return
		case errors.As(err, &verr):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to add bookmark: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "bookmarked"})
	}
}

func handleRemoveBookmark(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.RemoveBookmark(chi.URLParam(r, "user"), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "bookmark not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to remove bookmark: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
