package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"outPaceMeAPI/internal/anomaly"
	"outPaceMeAPI/internal/baseline"
	"outPaceMeAPI/internal/notification"
	"outPaceMeAPI/internal/participant"
	"outPaceMeAPI/internal/snapshot"
)

// EventNotifier receives state transitions the notification collaborator
// cares about. Implementations must not block the reconciliation path.
type EventNotifier interface {
	Notify(ctx context.Context, ev *notification.RaceEvent)
}

// ReconcileResult reports what a single (user, race) reconciliation cycle did.
type ReconcileResult struct {
	RaceID        string                   `json:"race_id"`
	AppliedDelta  anomaly.Delta            `json:"applied_delta"`
	Participant   *participant.Participant `json:"participant,omitempty"`
	RolloverReset bool                     `json:"rollover_reset"`
	JustCompleted bool                     `json:"just_completed"`
	Skipped       bool                     `json:"skipped"`
	SkipReason    string                   `json:"skip_reason,omitempty"`
}

// ReconcileService turns raw cumulative health totals into per-race progress
// deltas. Reconciliations for the same (user, race) pair are strictly
// serialized through a keyed lock; different pairs run in parallel.
type ReconcileService struct {
	store    Store
	cfg      Config
	notifier EventNotifier
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewReconcileService(store Store, cfg Config, notifier EventNotifier) *ReconcileService {
	return &ReconcileService{
		store:    store,
		cfg:      cfg,
		notifier: notifier,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *ReconcileService) pairLock(userID, raceID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userID + "|" + raceID
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Reconcile applies one snapshot to one race. It never partially commits:
// either the participant and baseline advance together or neither does.
func (s *ReconcileService) Reconcile(ctx context.Context, userID, raceID string, snap *snapshot.HealthSnapshot) (*ReconcileResult, error) {
	lock := s.pairLock(userID, raceID)
	lock.Lock()
	defer lock.Unlock()

	result := &ReconcileResult{RaceID: raceID}

	b, err := s.store.GetBaseline(ctx, userID, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline: %w", err)
	}

	if b == nil {
		// First sight of this pair: record today's totals as the baseline so
		// this cycle contributes nothing.
		b = &baseline.Baseline{
			UserID:            userID,
			RaceID:            raceID,
			BaselineSteps:     snap.TotalSteps,
			BaselineDistance:  snap.TotalDistanceKm,
			BaselineCalories:  snap.TotalCalories,
			LastProcessedDate: snap.Date,
		}
		if err := s.putBaselineWithRetry(ctx, b); err != nil {
			return nil, err
		}
		result.Skipped = true
		result.SkipReason = "baseline created"
		return result, nil
	}

	if b.IsCompleted {
		result.Skipped = true
		result.SkipReason = "participant completed"
		return result, nil
	}

	r, err := s.store.GetRace(ctx, raceID)
	if err != nil {
		if errors.Is(err, ErrRaceNotFound) {
			log.Printf("Reconcile: race %s missing, skipping user %s", raceID, userID)
			result.Skipped = true
			result.SkipReason = "race not found"
			return result, nil
		}
		return nil, fmt.Errorf("failed to load race: %w", err)
	}

	if !r.Eligible() {
		// DNF guard: races naturally end while clients keep syncing. The
		// stale baseline is removed so it cannot be applied later.
		if err := s.store.DeleteBaseline(ctx, userID, raceID); err != nil {
			log.Printf("Reconcile: failed to clean up baseline for user %s in race %s: %v", userID, raceID, err)
		}
		result.Skipped = true
		result.SkipReason = "race not active"
		return result, nil
	}

	if baseline.CheckRollover(b, snap.Date, snap.TotalSteps, snap.TotalDistanceKm, snap.TotalCalories) {
		// The reset has to be durable before any delta math; a retry against
		// the pre-reset baseline would attribute yesterday's totals to today.
		if err := s.putBaselineWithRetry(ctx, b); err != nil {
			return nil, err
		}
		rolloverResets.Inc()
		log.Printf("Reconcile: rollover reset for user %s in race %s, new date %s", userID, raceID, snap.Date)
		result.RolloverReset = true
		return result, nil
	}

	p, err := s.store.GetParticipant(ctx, userID, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participant: %w", err)
	}

	raw := anomaly.Delta{
		Steps:      snap.TotalSteps - b.BaselineSteps,
		DistanceKm: snap.TotalDistanceKm - b.BaselineDistance,
		Calories:   snap.TotalCalories - b.BaselineCalories,
	}

	limits := anomaly.Limits{StepDeltaMax: s.cfg.StepDeltaMax, OvershootFactor: s.cfg.OvershootFactor}
	corrected := anomaly.ValidateAndCap(raw, r.TotalDistanceKm, p.DistanceKm, limits)
	if corrected != raw {
		deltasCapped.Inc()
	}

	now := s.now()

	// Monotonic guard: progress never regresses, even if the platform
	// corrected raw totals downward.
	newDistance := p.DistanceKm + corrected.DistanceKm
	if newDistance < p.DistanceKm {
		newDistance = p.DistanceKm
	}

	p.StepsAccumulated += corrected.Steps
	p.DistanceKm = newDistance
	p.CaloriesAccumulated += corrected.Calories
	if !corrected.IsZero() {
		p.LastProgressAt = now
	}

	crossed := p.NewMilestones(r.TotalDistanceKm)
	p.RecordMilestones(crossed)

	if !p.IsCompleted && p.MeetsCompletion(r.TotalDistanceKm, s.cfg.CompletionToleranceKm) {
		// The finish order itself is assigned by the store inside the commit,
		// so a failed commit never consumes an order.
		p.IsCompleted = true
		p.CompletedAt = &now
		b.IsCompleted = true
		b.CompletedAt = &now
		result.JustCompleted = true
	}

	// The baseline always advances to the reported totals; the date only
	// moves on rollover.
	b.BaselineSteps = snap.TotalSteps
	b.BaselineDistance = snap.TotalDistanceKm
	b.BaselineCalories = snap.TotalCalories

	if err := s.commitWithRetry(ctx, p, b); err != nil {
		return nil, err
	}

	if result.JustCompleted {
		completionsTotal.Inc()
	}

	result.AppliedDelta = corrected
	result.Participant = p

	s.emitProgressEvents(ctx, p, crossed, result, now)

	return result, nil
}

func (s *ReconcileService) emitProgressEvents(ctx context.Context, p *participant.Participant, crossed []int, result *ReconcileResult, now time.Time) {
	if s.notifier == nil {
		return
	}

	for _, m := range crossed {
		s.notifier.Notify(ctx, &notification.RaceEvent{
			Type:        notification.NotificationMilestone,
			RaceID:      p.RaceID,
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Milestone:   m,
			OccurredAt:  now,
		})
	}

	if result.JustCompleted {
		evType := notification.NotificationFinished
		if p.FinishOrder == 1 {
			evType = notification.NotificationFirstFinisher
		}
		s.notifier.Notify(ctx, &notification.RaceEvent{
			Type:        evType,
			RaceID:      p.RaceID,
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			FinishOrder: p.FinishOrder,
			OccurredAt:  now,
		})
	}
}

func (s *ReconcileService) putBaselineWithRetry(ctx context.Context, b *baseline.Baseline) error {
	return s.withRetry(ctx, "put baseline", func() error {
		return s.store.PutBaseline(ctx, b)
	})
}

func (s *ReconcileService) commitWithRetry(ctx context.Context, p *participant.Participant, b *baseline.Baseline) error {
	return s.withRetry(ctx, "commit progress", func() error {
		return s.store.CommitProgress(ctx, p, b)
	})
}

// withRetry retries transient store failures with exponential backoff. After
// the attempts are exhausted the failure surfaces as retryable: the next
// snapshot re-reads the baseline fresh, so nothing is lost, only delayed.
func (s *ReconcileService) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := s.cfg.CommitBackoff
	var lastErr error

	for attempt := 0; attempt <= s.cfg.CommitRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		log.Printf("Reconcile: %s attempt %d failed: %v", op, attempt+1, lastErr)
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, s.cfg.CommitRetries+1, lastErr)
}
