package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"outPaceMeAPI/internal/baseline"
	"outPaceMeAPI/internal/leaderboard"
	"outPaceMeAPI/internal/notification"
	"outPaceMeAPI/internal/participant"
	"outPaceMeAPI/internal/race"
	"outPaceMeAPI/internal/snapshot"
)

// RaceService owns race lifecycle: creation, joining, status transitions and
// the leaderboard read model.
type RaceService struct {
	store    Store
	ranks    *RankService
	notifier EventNotifier
	now      func() time.Time
}

func NewRaceService(store Store, ranks *RankService, notifier EventNotifier) *RaceService {
	return &RaceService{
		store:    store,
		ranks:    ranks,
		notifier: notifier,
		now:      time.Now,
	}
}

func (s *RaceService) CreateRace(ctx context.Context, req *race.CreateRaceRequest) (*race.Race, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("race name is required")
	}
	if req.TotalDistanceKm <= 0 {
		return nil, fmt.Errorf("race distance must be positive, got %f", req.TotalDistanceKm)
	}

	now := s.now()
	r := &race.Race{
		ID:              uuid.New().String(),
		Name:            req.Name,
		StatusID:        race.StatusCreated,
		TotalDistanceKm: req.TotalDistanceKm,
		ScheduleTime:    req.ScheduleTime,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.CreateRace(ctx, r); err != nil {
		return nil, err
	}

	return r, nil
}

func (s *RaceService) GetRace(ctx context.Context, raceID string) (*race.Race, error) {
	return s.store.GetRace(ctx, raceID)
}

// JoinRace creates the participant and its baseline as one atomic pair. The
// baseline equals the device's current totals, so the join itself contributes
// zero progress.
func (s *RaceService) JoinRace(ctx context.Context, raceID string, req *race.JoinRaceRequest) (*participant.Participant, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if req.DisplayName == "" {
		return nil, fmt.Errorf("display_name is required")
	}
	// A garbled date would seed the baseline with a junk lastProcessedDate
	// and defeat the first rollover check.
	if _, err := time.Parse(snapshot.DateLayout, req.Date); err != nil {
		return nil, fmt.Errorf("invalid join date %q: %w", req.Date, err)
	}

	r, err := s.store.GetRace(ctx, raceID)
	if err != nil {
		return nil, err
	}
	if r.Terminal() || r.StatusID == race.StatusArchived {
		return nil, fmt.Errorf("race %s is no longer open for joining", raceID)
	}

	now := s.now()
	p := &participant.Participant{
		UserID:         req.UserID,
		RaceID:         raceID,
		DisplayName:    req.DisplayName,
		LastProgressAt: now,
		JoinedAt:       now,
	}
	b := &baseline.Baseline{
		UserID:            req.UserID,
		RaceID:            raceID,
		BaselineSteps:     req.CurrentSteps,
		BaselineDistance:  req.CurrentDistanceKm,
		BaselineCalories:  req.CurrentCalories,
		LastProcessedDate: req.Date,
	}

	if err := s.store.CreateMembership(ctx, p, b); err != nil {
		return nil, err
	}

	return p, nil
}

// HandleStatusChange applies one state-machine transition. Activation stamps
// the race-wide clock origin; a terminal transition runs a final rank pass
// and tells the notification collaborator the race is over.
func (s *RaceService) HandleStatusChange(ctx context.Context, raceID string, newStatus int) (*race.Race, error) {
	r, err := s.store.GetRace(ctx, raceID)
	if err != nil {
		return nil, err
	}

	if !r.ValidTransition(newStatus) {
		return nil, fmt.Errorf("invalid status transition %d -> %d for race %s", r.StatusID, newStatus, raceID)
	}

	var actualStart *time.Time
	if newStatus == race.StatusActive && r.ActualStartTime == nil {
		now := s.now()
		actualStart = &now
	}

	if err := s.store.UpdateRaceStatus(ctx, raceID, newStatus, actualStart); err != nil {
		return nil, err
	}

	r.StatusID = newStatus
	if actualStart != nil {
		r.ActualStartTime = actualStart
	}

	if r.Terminal() {
		if _, err := s.ranks.RecomputeNow(ctx, raceID); err != nil {
			return nil, fmt.Errorf("final rank pass failed: %w", err)
		}
		if s.notifier != nil && newStatus == race.StatusCompleted {
			s.notifier.Notify(ctx, &notification.RaceEvent{
				Type:       notification.NotificationRaceCompleted,
				RaceID:     raceID,
				OccurredAt: s.now(),
			})
		}
	}

	return r, nil
}

// GetLeaderboard builds the ranked read model. Unranked participants (no
// recompute has covered them yet) sort last.
func (s *RaceService) GetLeaderboard(ctx context.Context, raceID, userID string) (*leaderboard.Leaderboard, error) {
	r, err := s.store.GetRace(ctx, raceID)
	if err != nil {
		return nil, err
	}

	participants, err := s.store.ListParticipants(ctx, raceID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(participants, func(i, j int) bool {
		ri, rj := participants[i].Rank, participants[j].Rank
		if ri == 0 {
			return false
		}
		if rj == 0 {
			return true
		}
		return ri < rj
	})

	now := s.now()
	board := &leaderboard.Leaderboard{TotalParticipants: len(participants)}
	for _, p := range participants {
		entry := &leaderboard.LeaderboardEntry{
			UserID:          p.UserID,
			DisplayName:     p.DisplayName,
			DistanceKm:      p.DistanceKm,
			RemainingKm:     p.RemainingDistanceKm(r.TotalDistanceKm),
			AverageSpeedKmh: p.AverageSpeedKmh(r.ActualStartTime, now),
			Rank:            p.Rank,
			IsCompleted:     p.IsCompleted,
			FinishOrder:     p.FinishOrder,
		}
		board.Entries = append(board.Entries, entry)
		if p.UserID == userID {
			board.UserPosition = entry
		}
	}

	return board, nil
}
