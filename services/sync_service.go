package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"outPaceMeAPI/internal/snapshot"
)

var (
	ErrMalformedSnapshot   = errors.New("malformed snapshot")
	ErrDuplicateSubmission = errors.New("duplicate snapshot submission")
	ErrSyncTooSoon         = errors.New("minimum sync interval not elapsed")
)

// SyncResult summarizes one accepted submission fanned out across the user's
// active races.
type SyncResult struct {
	UserID  string             `json:"user_id"`
	Races   int                `json:"races"`
	Results []*ReconcileResult `json:"results"`
}

// SyncService is the idempotency and concurrency boundary in front of the
// reconciler. It validates snapshots, rejects replayed fingerprints within a
// TTL window, enforces a per-user minimum sync interval, and fans accepted
// snapshots out once per active race membership. A rejected submission never
// touches a baseline.
type SyncService struct {
	store      Store
	reconciler *ReconcileService
	ranks      *RankService
	cfg        Config

	mu       sync.Mutex
	seen     map[string]time.Time
	limiters map[string]*syncLimiter
	stopChan chan struct{}
}

type syncLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewSyncService(store Store, reconciler *ReconcileService, ranks *RankService, cfg Config) *SyncService {
	s := &SyncService{
		store:      store,
		reconciler: reconciler,
		ranks:      ranks,
		cfg:        cfg,
		seen:       make(map[string]time.Time),
		limiters:   make(map[string]*syncLimiter),
		stopChan:   make(chan struct{}),
	}

	go s.cleanupLoop()

	return s
}

// Submit accepts or rejects a snapshot. On acceptance the snapshot is applied
// at most once per active race; on rejection nothing was applied anywhere.
func (s *SyncService) Submit(ctx context.Context, snap *snapshot.HealthSnapshot) (*SyncResult, error) {
	if err := snap.Validate(); err != nil {
		snapshotsRejected.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	if err := s.admit(snap); err != nil {
		return nil, err
	}
	snapshotsAccepted.Inc()

	races, err := s.store.ActiveRaces(ctx, snap.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active races: %w", err)
	}

	result := &SyncResult{UserID: snap.UserID, Races: len(races)}

	// One race's failure must not block the others.
	for _, r := range races {
		rr, err := s.reconciler.Reconcile(ctx, snap.UserID, r.ID, snap)
		if err != nil {
			log.Printf("Sync: reconcile failed for user %s in race %s: %v", snap.UserID, r.ID, err)
			continue
		}
		result.Results = append(result.Results, rr)

		if !rr.Skipped && !rr.RolloverReset && (rr.AppliedDelta.DistanceKm > 0 || rr.JustCompleted) {
			s.ranks.MarkDirty(r.ID)
		}
	}

	return result, nil
}

// admit performs the dedup and rate checks atomically, recording the
// fingerprint only when the submission is accepted.
func (s *SyncService) admit(snap *snapshot.HealthSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	fp := snap.Fingerprint()
	if acceptedAt, ok := s.seen[fp]; ok && now.Sub(acceptedAt) < s.cfg.DedupWindow {
		snapshotsRejected.WithLabelValues("duplicate").Inc()
		log.Printf("Sync: duplicate snapshot from user %s (fingerprint seen %s ago)", snap.UserID, now.Sub(acceptedAt))
		return ErrDuplicateSubmission
	}

	l, ok := s.limiters[snap.UserID]
	if !ok {
		l = &syncLimiter{limiter: rate.NewLimiter(rate.Every(s.cfg.MinSyncInterval), 1)}
		s.limiters[snap.UserID] = l
	}
	l.lastSeen = now

	if !l.limiter.Allow() {
		snapshotsRejected.WithLabelValues("rate_limited").Inc()
		return ErrSyncTooSoon
	}

	s.seen[fp] = now
	return nil
}

// cleanupLoop prunes expired fingerprints and idle per-user limiters so the
// dedup window stays bounded instead of growing forever.
func (s *SyncService) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopChan:
			return
		}
	}
}

func (s *SyncService) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for fp, acceptedAt := range s.seen {
		if now.Sub(acceptedAt) > s.cfg.DedupWindow {
			delete(s.seen, fp)
		}
	}
	for userID, l := range s.limiters {
		if now.Sub(l.lastSeen) > 3*s.cfg.DedupWindow {
			delete(s.limiters, userID)
		}
	}
}

func (s *SyncService) Stop() {
	close(s.stopChan)
}
