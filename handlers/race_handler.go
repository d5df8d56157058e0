package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"outPaceMeAPI/internal/race"
	"outPaceMeAPI/services"
)

type RaceHandler struct {
	raceService *services.RaceService
}

func NewRaceHandler(raceService *services.RaceService) *RaceHandler {
	return &RaceHandler{
		raceService: raceService,
	}
}

func (h *RaceHandler) CreateRace(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req race.CreateRaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.raceService.CreateRace(ctx, &req)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *RaceHandler) GetRace(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	raceID := mux.Vars(r)["raceId"]

	found, err := h.raceService.GetRace(ctx, raceID)
	if err != nil {
		if errors.Is(err, services.ErrRaceNotFound) {
			respondWithError(w, http.StatusNotFound, "Race not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to get race")
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *RaceHandler) JoinRace(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	raceID := mux.Vars(r)["raceId"]

	var req race.JoinRaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p, err := h.raceService.JoinRace(ctx, raceID, &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRaceNotFound):
			respondWithError(w, http.StatusNotFound, "Race not found")
		case errors.Is(err, services.ErrAlreadyJoined):
			respondWithError(w, http.StatusConflict, "User already joined this race")
		default:
			respondWithError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, p)
}

func (h *RaceHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	raceID := mux.Vars(r)["raceId"]

	var req struct {
		StatusID int `json:"status_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.raceService.HandleStatusChange(ctx, raceID, req.StatusID)
	if err != nil {
		if errors.Is(err, services.ErrRaceNotFound) {
			respondWithError(w, http.StatusNotFound, "Race not found")
			return
		}
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *RaceHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	raceID := mux.Vars(r)["raceId"]
	userID := r.URL.Query().Get("user_id")

	board, err := h.raceService.GetLeaderboard(ctx, raceID, userID)
	if err != nil {
		if errors.Is(err, services.ErrRaceNotFound) {
			respondWithError(w, http.StatusNotFound, "Race not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to get leaderboard")
		return
	}

	respondWithJSON(w, http.StatusOK, board)
}
