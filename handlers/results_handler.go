package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Dosada05/results-engine/middleware"
	"github.com/Dosada05/results-engine/models"
	"github.com/Dosada05/results-engine/services"
)

// ResultsHandler exposes the authority's results endpoints.
type ResultsHandler struct {
	results services.ResultsService
}

func NewResultsHandler(results services.ResultsService) *ResultsHandler {
	return &ResultsHandler{results: results}
}

type resultsResponse struct {
	Rounds  []models.Round `json:"rounds"`
	Version int64          `json:"version"`
}

type batchRequest struct {
	Ops []models.Op `json:"ops"`
}

type statusRequest struct {
	ResultsStatus models.ResultsStatus `json:"results_status"`
}

// GetGame returns the game metadata the client engine gates on.
func (h *ResultsHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	game, err := h.results.GetGame(r.Context(), gameID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, game, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetResults returns the authoritative tree and its head version.
func (h *ResultsHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	tree, version, err := h.results.GetResults(r.Context(), gameID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	rounds := tree.Rounds
	if rounds == nil {
		rounds = []models.Round{}
	}
	if err := writeJSON(w, http.StatusOK, resultsResponse{Rounds: rounds, Version: version}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ApplyBatch applies a queued op batch. A batch with rejected ops answers
// 409 but still carries the full result so the client can mark conflicts.
func (h *ResultsHandler) ApplyBatch(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	var input batchRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	key := r.Header.Get("X-Idempotency-Key")
	result, err := h.results.ApplyBatch(r.Context(), gameID, key, userID, input.Ops)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	status := http.StatusOK
	if len(result.Conflicts) > 0 {
		status = http.StatusConflict
	}
	if err := writeJSON(w, status, result, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SetStatus transitions the results lifecycle.
func (h *ResultsHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	var input statusRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.ResultsStatus == "" {
		badRequestResponse(w, r, errors.New("results_status is required"))
		return
	}

	game, err := h.results.SetResultsStatus(r.Context(), gameID, userID, input.ResultsStatus)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, game, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Recalculate rebuilds the per-player outcome rollups.
func (h *ResultsHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	outcomes, err := h.results.RecalculateOutcomes(r.Context(), gameID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"outcomes": outcomes}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// DeleteResults drops the game's results entirely.
func (h *ResultsHandler) DeleteResults(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	if err := h.results.DeleteResults(r.Context(), gameID, userID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
