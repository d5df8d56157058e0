package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"outPaceMeAPI/internal/baseline"
	"outPaceMeAPI/internal/notification"
	"outPaceMeAPI/internal/participant"
	"outPaceMeAPI/internal/race"
)

// memStore is an in-memory Store for tests. Reads hand out copies so state
// only changes through commits, the same observable behavior the Postgres
// store has.
type memStore struct {
	mu           sync.Mutex
	races        map[string]*race.Race
	baselines    map[string]*baseline.Baseline
	participants map[string]*participant.Participant

	// commitFailures makes the next N CommitProgress calls fail to exercise
	// the retry path.
	commitFailures int
	commitCalls    int
	listCalls      int
	rankWrites     int
}

func newMemStore() *memStore {
	return &memStore{
		races:        make(map[string]*race.Race),
		baselines:    make(map[string]*baseline.Baseline),
		participants: make(map[string]*participant.Participant),
	}
}

func pairKey(userID, raceID string) string {
	return userID + "|" + raceID
}

func copyRace(r *race.Race) *race.Race {
	cp := *r
	if r.ActualStartTime != nil {
		t := *r.ActualStartTime
		cp.ActualStartTime = &t
	}
	return &cp
}

func copyBaseline(b *baseline.Baseline) *baseline.Baseline {
	cp := *b
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func copyParticipant(p *participant.Participant) *participant.Participant {
	cp := *p
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		cp.CompletedAt = &t
	}
	cp.ReachedMilestones = append([]int(nil), p.ReachedMilestones...)
	return &cp
}

func (s *memStore) GetRace(ctx context.Context, raceID string) (*race.Race, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.races[raceID]
	if !ok {
		return nil, ErrRaceNotFound
	}
	return copyRace(r), nil
}

func (s *memStore) CreateRace(ctx context.Context, r *race.Race) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.races[r.ID] = copyRace(r)
	return nil
}

func (s *memStore) UpdateRaceStatus(ctx context.Context, raceID string, statusID int, actualStartTime *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.races[raceID]
	if !ok {
		return ErrRaceNotFound
	}
	r.StatusID = statusID
	if actualStartTime != nil {
		t := *actualStartTime
		r.ActualStartTime = &t
	}
	return nil
}

func (s *memStore) ActiveRaces(ctx context.Context, userID string) ([]*race.Race, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var races []*race.Race
	for _, p := range s.participants {
		if p.UserID != userID {
			continue
		}
		r, ok := s.races[p.RaceID]
		if ok && r.Eligible() {
			races = append(races, copyRace(r))
		}
	}
	sort.Slice(races, func(i, j int) bool { return races[i].ID < races[j].ID })
	return races, nil
}

func (s *memStore) GetBaseline(ctx context.Context, userID, raceID string) (*baseline.Baseline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.baselines[pairKey(userID, raceID)]
	if !ok {
		return nil, nil
	}
	return copyBaseline(b), nil
}

func (s *memStore) PutBaseline(ctx context.Context, b *baseline.Baseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baselines[pairKey(b.UserID, b.RaceID)] = copyBaseline(b)
	return nil
}

func (s *memStore) DeleteBaseline(ctx context.Context, userID, raceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.baselines, pairKey(userID, raceID))
	return nil
}

func (s *memStore) GetParticipant(ctx context.Context, userID, raceID string) (*participant.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[pairKey(userID, raceID)]
	if !ok {
		return nil, ErrParticipantNotFound
	}
	return copyParticipant(p), nil
}

func (s *memStore) CreateMembership(ctx context.Context, p *participant.Participant, b *baseline.Baseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(p.UserID, p.RaceID)
	if _, ok := s.participants[key]; ok {
		return ErrAlreadyJoined
	}
	s.participants[key] = copyParticipant(p)
	s.baselines[key] = copyBaseline(b)
	return nil
}

func (s *memStore) CommitProgress(ctx context.Context, p *participant.Participant, b *baseline.Baseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitCalls++
	if s.commitFailures > 0 {
		s.commitFailures--
		return fmt.Errorf("simulated transient store failure")
	}
	if p.IsCompleted && p.FinishOrder == 0 {
		r, ok := s.races[p.RaceID]
		if !ok {
			return ErrRaceNotFound
		}
		r.FinisherCount++
		p.FinishOrder = r.FinisherCount
	}
	key := pairKey(p.UserID, p.RaceID)
	s.participants[key] = copyParticipant(p)
	s.baselines[key] = copyBaseline(b)
	return nil
}

func (s *memStore) ListParticipants(ctx context.Context, raceID string) ([]*participant.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++

	var participants []*participant.Participant
	for _, p := range s.participants {
		if p.RaceID == raceID {
			participants = append(participants, copyParticipant(p))
		}
	}
	sort.Slice(participants, func(i, j int) bool { return participants[i].UserID < participants[j].UserID })
	return participants, nil
}

func (s *memStore) UpdateRanks(ctx context.Context, raceID string, updates []RankUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rankWrites++
	for _, u := range updates {
		if p, ok := s.participants[pairKey(u.UserID, raceID)]; ok {
			p.Rank = u.Rank
		}
	}
	return nil
}

// recordingNotifier captures events synchronously for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []*notification.RaceEvent
}

func (n *recordingNotifier) Notify(ctx context.Context, ev *notification.RaceEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) byType(t notification.NotificationType) []*notification.RaceEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*notification.RaceEvent
	for _, ev := range n.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.CommitBackoff = time.Millisecond
	cfg.RankDebounce = 20 * time.Millisecond
	return cfg
}
