package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"outPaceMeAPI/internal/leaderboard"
	"outPaceMeAPI/internal/notification"
	"outPaceMeAPI/internal/participant"
)

// RankService recomputes ordinal standings for a race whenever any
// participant's distance or completion state changes. Recomputation is
// debounced per race so a burst of near-simultaneous updates produces one
// read-all/sort/write-all pass instead of one per participant.
type RankService struct {
	store    Store
	cfg      Config
	notifier EventNotifier
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

func NewRankService(store Store, cfg Config, notifier EventNotifier) *RankService {
	return &RankService{
		store:    store,
		cfg:      cfg,
		notifier: notifier,
		now:      time.Now,
		pending:  make(map[string]*time.Timer),
	}
}

// MarkDirty schedules a debounced recompute for the race. Calls inside the
// same debounce window collapse into a single pass.
func (s *RankService) MarkDirty(raceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if _, ok := s.pending[raceID]; ok {
		return
	}

	s.pending[raceID] = time.AfterFunc(s.cfg.RankDebounce, func() {
		s.mu.Lock()
		delete(s.pending, raceID)
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, err := s.RecomputeNow(ctx, raceID); err != nil {
			log.Printf("RankService: recompute for race %s failed: %v", raceID, err)
		}
	})
}

// RecomputeNow runs a full recompute immediately: read every participant,
// sort with the tie-break rules, persist all ranks in one atomic write, and
// emit lead-change and overtake events.
func (s *RankService) RecomputeNow(ctx context.Context, raceID string) ([]*participant.Participant, error) {
	participants, err := s.store.ListParticipants(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	if len(participants) == 0 {
		return nil, nil
	}

	previousRanks := make(map[string]int, len(participants))
	var previousLeader string
	for _, p := range participants {
		previousRanks[p.UserID] = p.Rank
		if p.Rank == 1 {
			previousLeader = p.UserID
		}
	}

	leaderboard.Order(participants, s.cfg.TieEpsilonKm)
	leaderboard.AssignRanks(participants)

	updates := make([]RankUpdate, 0, len(participants))
	for _, p := range participants {
		updates = append(updates, RankUpdate{UserID: p.UserID, Rank: p.Rank})
	}

	if err := s.store.UpdateRanks(ctx, raceID, updates); err != nil {
		return nil, fmt.Errorf("failed to persist ranks: %w", err)
	}
	rankRecomputes.Inc()

	s.emitRankEvents(ctx, raceID, participants, previousRanks, previousLeader)

	return participants, nil
}

func (s *RankService) emitRankEvents(ctx context.Context, raceID string, ordered []*participant.Participant, previousRanks map[string]int, previousLeader string) {
	if s.notifier == nil {
		return
	}

	now := s.now()

	leader := ordered[0]
	if previousLeader != "" && previousLeader != leader.UserID {
		s.notifier.Notify(ctx, &notification.RaceEvent{
			Type:        notification.NotificationRankOne,
			RaceID:      raceID,
			UserID:      leader.UserID,
			DisplayName: leader.DisplayName,
			OccurredAt:  now,
		})
	}

	// An overtake notifies the participant who lost the position, naming
	// whoever sits immediately ahead of them now.
	for i, p := range ordered {
		prev, had := previousRanks[p.UserID]
		if !had || prev == 0 || p.Rank <= prev {
			continue
		}
		if i == 0 {
			continue
		}
		ahead := ordered[i-1]
		s.notifier.Notify(ctx, &notification.RaceEvent{
			Type:        notification.NotificationOvertake,
			RaceID:      raceID,
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			OvertakenBy: ahead.DisplayName,
			OccurredAt:  now,
		})
	}
}

// Stop cancels any pending debounce timers. Pending races are flushed
// synchronously so no dirty race is left unranked at shutdown.
func (s *RankService) Stop() {
	s.mu.Lock()
	s.stopped = true
	raceIDs := make([]string, 0, len(s.pending))
	for raceID, timer := range s.pending {
		timer.Stop()
		raceIDs = append(raceIDs, raceID)
	}
	s.pending = make(map[string]*time.Timer)
	s.mu.Unlock()

	for _, raceID := range raceIDs {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if _, err := s.RecomputeNow(ctx, raceID); err != nil {
			log.Printf("RankService: final recompute for race %s failed: %v", raceID, err)
		}
		cancel()
	}
}
