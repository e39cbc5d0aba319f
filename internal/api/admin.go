package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/supportqa/internal/storage"
)

type AdminDeps struct {
	Store *storage.Store
	Token string
}

// NewAdminHandler serves read and reset access to the interaction log and
// stored user facts. Every route requires the bearer token.
func NewAdminHandler(deps AdminDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(BearerAuth(deps.Token))

	r.Get("/interactions", handleListInteractions(deps))
	r.Get("/interactions/{id}", handleGetInteraction(deps))
	r.Get("/facts/{user}", handleGetFacts(deps))
	r.Delete("/facts/{user}", handleResetFacts(deps))

	return r
}

func handleListInteractions(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		interactions, err := deps.Store.ListInteractions(r.Context(), limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list interactions: %v", err)
			return
		}
		if interactions == nil {
			interactions = []storage.Interaction{}
		}
		writeJSON(w, http.StatusOK, interactions)
	}
}

func handleGetInteraction(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interaction, err := deps.Store.GetInteraction(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "interaction not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get interaction: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, interaction)
	}
}

func handleGetFacts(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		facts, err := deps.Store.GetFacts(r.Context(), chi.URLParam(r, "user"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get facts: %v", err)
			return
		}
		if facts == nil {
			facts = []storage.Fact{}
		}
		writeJSON(w, http.StatusOK, facts)
	}
}

func handleResetFacts(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Store.ResetFacts(r.Context(), chi.URLParam(r, "user"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to reset facts: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "deleted": n})
	}
}
