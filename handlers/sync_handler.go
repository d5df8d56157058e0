package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"outPaceMeAPI/internal/snapshot"
	"outPaceMeAPI/services"
)

type SyncHandler struct {
	syncService *services.SyncService
}

func NewSyncHandler(syncService *services.SyncService) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
	}
}

// SubmitSnapshot ingests one cumulative health snapshot from a device and
// fans it out across the user's active races.
func (h *SyncHandler) SubmitSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var snap snapshot.HealthSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.syncService.Submit(ctx, &snap)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDuplicateSubmission):
			respondWithError(w, http.StatusConflict, "Duplicate snapshot")
		case errors.Is(err, services.ErrSyncTooSoon):
			respondWithError(w, http.StatusTooManyRequests, "Sync interval not elapsed")
		case errors.Is(err, services.ErrMalformedSnapshot):
			respondWithError(w, http.StatusBadRequest, err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to process snapshot")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
