package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outPaceMeAPI/internal/baseline"
	"outPaceMeAPI/internal/notification"
	"outPaceMeAPI/internal/participant"
	"outPaceMeAPI/internal/race"
	"outPaceMeAPI/internal/snapshot"
)

func seedRace(store *memStore, raceID string, statusID int, totalKm float64) *race.Race {
	start := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	r := &race.Race{
		ID:              raceID,
		Name:            "Morning 5k",
		StatusID:        statusID,
		TotalDistanceKm: totalKm,
		ScheduleTime:    start,
		ActualStartTime: &start,
		CreatedAt:       start,
		UpdatedAt:       start,
	}
	store.races[raceID] = r
	return r
}

func seedMember(store *memStore, userID, raceID, date string, steps int, distanceKm float64, calories int) {
	joined := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	key := pairKey(userID, raceID)
	store.participants[key] = &participant.Participant{
		UserID:         userID,
		RaceID:         raceID,
		DisplayName:    userID,
		LastProgressAt: joined,
		JoinedAt:       joined,
	}
	store.baselines[key] = &baseline.Baseline{
		UserID:            userID,
		RaceID:            raceID,
		BaselineSteps:     steps,
		BaselineDistance:  distanceKm,
		BaselineCalories:  calories,
		LastProcessedDate: date,
	}
}

func snap(userID, date string, steps int, distanceKm float64, calories int) *snapshot.HealthSnapshot {
	return &snapshot.HealthSnapshot{
		UserID:          userID,
		Date:            date,
		TotalSteps:      steps,
		TotalDistanceKm: distanceKm,
		TotalCalories:   calories,
		Timestamp:       time.Date(2025, 1, 10, 14, 0, 0, 0, time.UTC),
	}
}

func TestReconcileCreatesBaselineOnFirstSight(t *testing.T) {
	store := newMemStore()
	seedRace(store, "race1", race.StatusActive, 5.0)
	svc := NewReconcileService(store, testConfig(), nil)

	result, err := svc.Reconcile(context.Background(), "u1", "race1", snap("u1", "2025-01-10", 8000, 6.2, 400))
	require.NoError(t, err)

	assert.True(t, result.Skipped)
	b := store.baselines[pairKey("u1", "race1")]
	require.NotNil(t, b)
	assert.Equal(t, 8000, b.BaselineSteps)
	assert.Equal(t, 6.2, b.BaselineDistance)
	assert.Equal(t, "2025-01-10", b.LastProcessedDate)
}

func TestReconcileAppliesDelta(t *testing.T) {
	store := newMemStore()
	seedRace(store, "race1", race.StatusActive, 5.0)
	seedMember(store, "u1", "race1", "2025-01-10", 1000, 1.0, 100)
	svc := NewReconcileService(store, testConfig(), nil)

	result, err := svc.Reconcile(context.Background(), "u1", "race1", snap("u1", "2025-01-10", 2000, 1.8, 160))
	require.NoError(t, err)

	assert.Equal(t, 1000, result.AppliedDelta.Steps)
	assert.InDelta(t, 0.8, result.AppliedDelta.DistanceKm, 1e-9)

	p := store.participants[pairKey("u1", "race1")]
	assert.Equal(t, 1000, p.StepsAccumulated)
	assert.InDelta(t, 0.8, p.DistanceKm, 1e-9)
	assert.Equal(t, 60, p.CaloriesAccumulated)
	assert.False(t, p.IsCompleted)

	b := store.baselines[pairKey("u1", "race1")]
	assert.Equal(t, 2000, b.BaselineSteps)
	assert.InDelta(t, 1.8, b.BaselineDistance, 1e-9)
}

func TestReconcileDuplicateSnapshotIsIdempotent(t *testing.T) {
	store := newMemStore()
	seedRace(store, "race1", race.StatusActive, 5.0)
	seedMember(store, "u1", "race1", "2025-01-10", 1000, 1.0, 100)
	svc := NewReconcileService(store, testConfig(), nil)

	s := snap("u1", "2025-01-10", 2000, 1.8, 160)
	_, err := svc.Reconcile(context.Background(), "u1", "race1", s)
	require.NoError(t, err)
	after := copyParticipant(store.participants[pairKey("u1", "race1")])

	// Replaying the exact totals yields a zero delta, not double credit.
	result, err := svc.Reconcile(context.Background(), "u1", "race1", s)
	require.NoError(t, err)
	assert.True(t, result.AppliedDelta.IsZero())

	p := store.participants[pairKey("u1", "race1")]
	assert.Equal(t, after.StepsAccumulated, p.StepsAccumulated)
	assert.Equal(t, after.DistanceKm, p.DistanceKm)
}

func TestReconcileRolloverEmitsZeroDelta(t *testing.T) {
	store := newMemStore()
	seedRace(store, "race1", race.StatusActive, 5.0)
	seedMember(store, "u1", "race1", "2025-01-09", 30000, 24.0, 1100)
	svc := NewReconcileService(store, testConfig(), nil)

	result, err := svc.Reconcile(context.Background(), "u1", "race1", snap("u1", "2025-01-10", 30300, 24.3, 1150))
	require.NoError(t, err)

	assert.True(t, result.RolloverReset)
	assert.True(t, result.AppliedDelta.IsZero())

	p := store.participants[pairKey("u1", "race1")]
	assert.Equal(t, 0.0, p.DistanceKm)

	b := store.baselines[pairKey("u1", "race1")]
	assert.Equal(t, 30300, b.BaselineSteps)
	assert.Equal(t, "2025-01-10", b.LastProcessedDate)

	// The next same-day snapshot contributes normally from the new baseline.
	result, err = svc.Reconcile(context.Background(), "u1", "race1", snap("u1", "2025-01-10", 31300, 25.1, 1200))
	require.NoError(t, err)
	assert.Equal(t, 1000, result.AppliedDelta.Steps)
	assert.InDelta(t, 0.8, result.AppliedDelta.DistanceKm, 1e-9)
}

func TestReconcileBackwardTotalsNeverRegress(t *testing.T) {
	store := newMemStore()
	seedRace(store, "race1", race.StatusActive, 5.0)
	seedMember(store, "u1", "race1", "2025-01-10", 1000, 1.0, 100)
	svc := NewReconcileService(store, testConfig(), nil)

	_, err := svc.Reconcile(context.Background(), "u1", "race1", snap("u1", "2025-01-10", 2000, 1.8, 160))
	require.NoError(t, err)

	// Platform corrected totals downward: zero contribution, no regression.
	result, err := svc.Reconcile(context.Background(), "u1", "race1", snap("u1", "2025-01-10", 1500, 1.4, 120))
	require.NoError(t, err)
	assert.True(t, result.AppliedDelta.IsZero())

	p := store.participants[pairKey("u1", "race1")]
	assert.InDelta(t, 0.8, p.DistanceKm, 1e-9)
}

func TestReconcileCapsAnomalousDelta(t *testing.T) {
	store := newMemStore()
	seedRace(store, "race1", race.StatusActive, 100.0)
	seedMember(store, "u1", "race1", "2025-01-10", 0, 0, 0)
	svc := NewReconcileService(store, testConfig(), nil)

	result, err := svc.Reconcile(context.Background(), "u1", "race1", snap("u1", "2025-01-10", 50000, 10.0, 1000))
	require.NoError(t, err)

	assert.Equal(t, 20000, result.AppliedDelta.Steps)
	assert.InDelta(t, 4.0, result.AppliedDelta.DistanceKm, 1e-9)
	assert.Equal(t, 400, result.AppliedDelta.Calories)

	// The baseline still advances to the reported totals, so the excess is
	// discarded rather than deferred.
	b := store.baselines[pairKey("u1", "race1")]
	assert.Equal(t, 50000, b.BaselineSteps)
}

func TestReconcileClipsOvershootAndCompletes(t *testing.T) {
	store := newMemStore()
	seedRace(store, "race1", race.StatusActive, 5.0)
	seedMember(store, "u1", "race1", "2025-01-10", 0, 0, 0)
	store.participants[pairKey("u1", "race1")].DistanceKm = 4.9
	svc := NewReconcileService(store, testConfig(), nil)

	_, err := svc.Reconcile(context.Background(), "u1", "race1", snap("u1", "2025-01-10", 7000, 5.0, 300))
	require.NoError(t, err)

	p := store.participants[pairKey("u1", "race1")]
	assert.InDelta(t, 5.5, p.DistanceKm, 1e-9)
	assert.True(t, p.IsCompleted)
}

func TestReconcileCompletionStampedOnce(t *testing.T) {
	store := newMemStore()
	seedRace(store, "race1", race.StatusActive, 5.0)
	seedMember(store, "u1", "race1", "2025-01-10", 0, 0, 0)
	store.participants[pairKey("u1", "race1")].DistanceKm = 4.5
	notifier := &recordingNotifier{}
	svc := NewReconcileService(store, testConfig(), notifier)

	// 0.46 km delta leaves 0.04 km remaining, inside the 0.05 tolerance.
	result, err := svc.Reconcile(context.Background(), "u1", "race1", snap("u1", "2025-01-10", 600, 0.46, 30))
	require.NoError(t, err)

	assert.True(t, result.JustCompleted)
	p := store.participants[pairKey("u1", "race1")]
	require.True(t, p.IsCompleted)
	require.NotNil(t, p.CompletedAt)
	assert.Equal(t, 1, p.FinishOrder)

	b := store.baselines[pairKey("u1", "race1")]
	assert.True(t, b.IsCompleted)

	assert.Len(t, notifier.byType(notification.NotificationFirstFinisher), 1)

	// Further snapshots are frozen out.
	result, err = svc.Reconcile(context.Background(), "u1", "race1", snap("u1", "2025-01-10", 5000, 4.0, 250))
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, "participant completed", result.SkipReason)

	p = store.participants[pairKey("u1", "race1")]
	assert.Equal(t, 1, p.FinishOrder)
	assert.InDelta(t, 4.96, p.DistanceKm, 1e-9)
}

func TestReconcileFinishOrderIsSequential(t *testing.T) {
	store := newMemStore()
	seedRace(store, "race1", race.StatusActive, 5.0)
	seedMember(store, "u1", "race1", "2025-01-10", 0, 0, 0)
	seedMember(store, "u2", "race1", "2025-01-10", 0, 0, 0)
	store.participants[pairKey("u1", "race1")].DistanceKm = 4.9
	store.participants[pairKey("u2", "race1")].DistanceKm = 4.9
	svc := NewReconcileService(store, testConfig(), nil)

	_, err := svc.Reconcile(context.Background(), "u1", "race1", snap("u1", "2025-01-10", 200, 0.1, 10))
	require.NoError(t, err)
	_, err = svc.Reconcile(context.Background(), "u2", "race1", snap("u2", "2025-01-10", 200, 0.1, 10))
	require.NoError(t, err)

	assert.Equal(t, 1, store.participants[pairKey("u1", "race1")].FinishOrder)
	assert.Equal(t, 2, store.participants[pairKey("u2", "race1")].FinishOrder)
}

func TestReconcileFailedCompletingCommitDoesNotConsumeFinishOrder(t *testing.T) {
	store := newMemStore()
	seedRace(store, "race1", race.StatusActive, 5.0)
	seedMember(store, "u1", "race1", "2025-01-10", 0, 0, 0)
	store.participants[pairKey("u1", "race1")].DistanceKm = 4.9
	notifier := &recordingNotifier{}
	cfg := testConfig()
	svc := NewReconcileService(store, cfg, notifier)

	// Every attempt of the completing commit fails.
	store.commitFailures = cfg.CommitRetries + 1
	_, err := svc.Reconcile(context.Background(), "u1", "race1", snap("u1", "2025-01-10", 200, 0.1, 10))
	require.Error(t, err)

	// The failure left the race's counter untouched and the participant open.
	assert.Equal(t, 0, store.races["race1"].FinisherCount)
	assert.False(t, store.participants[pairKey("u1", "race1")].IsCompleted)
	assert.Empty(t, notifier.byType(notification.NotificationFirstFinisher))

	// After the store recovers, the same snapshot completes with order 1.
	result, err := svc.Reconcile(context.Background(), "u1", "race1", snap("u1", "2025-01-10", 200, 0.1, 10))
	require.NoError(t, err)
	require.True(t, result.JustCompleted)

	p := store.participants[pairKey("u1", "race1")]
	assert.Equal(t, 1, p.FinishOrder)
	assert.Equal(t, 1, store.races["race1"].FinisherCount)
	assert.Len(t, notifier.byType(notification.NotificationFirstFinisher), 1)
}

func TestReconcileDNFGuard(t *testing.T) {
	store := newMemStore()
	seedRace(store, "race1", race.StatusCompleted, 5.0)
	seedMember(store, "u1", "race1", "2025-01-10", 1000, 1.0, 100)
	svc := NewReconcileService(store, testConfig(), nil)

	result, err := svc.Reconcile(context.Background(), "u1", "race1", snap("u1", "2025-01-10", 9000, 7.0, 500))
	require.NoError(t, err)

	assert.True(t, result.Skipped)
	assert.Equal(t, "race not active", result.SkipReason)

	// No participant mutation, stale baseline removed.
	p := store.participants[pairKey("u1", "race1")]
	assert.Equal(t, 0.0, p.DistanceKm)
	assert.Nil(t, store.baselines[pairKey("u1", "race1")])
}

func TestReconcileEmitsMilestoneEvents(t *testing.T) {
	store := newMemStore()
	seedRace(store, "race1", race.StatusActive, 5.0)
	seedMember(store, "u1", "race1", "2025-01-10", 0, 0, 0)
	notifier := &recordingNotifier{}
	svc := NewReconcileService(store, testConfig(), notifier)

	_, err := svc.Reconcile(context.Background(), "u1", "race1", snap("u1", "2025-01-10", 3500, 2.6, 150))
	require.NoError(t, err)

	milestones := notifier.byType(notification.NotificationMilestone)
	require.Len(t, milestones, 2)
	assert.Equal(t, 25, milestones[0].Milestone)
	assert.Equal(t, 50, milestones[1].Milestone)

	// Crossing the same thresholds again stays quiet.
	_, err = svc.Reconcile(context.Background(), "u1", "race1", snap("u1", "2025-01-10", 3600, 2.7, 155))
	require.NoError(t, err)
	assert.Len(t, notifier.byType(notification.NotificationMilestone), 2)
}

func TestReconcileRetriesTransientCommitFailures(t *testing.T) {
	store := newMemStore()
	seedRace(store, "race1", race.StatusActive, 5.0)
	seedMember(store, "u1", "race1", "2025-01-10", 0, 0, 0)
	store.commitFailures = 2
	svc := NewReconcileService(store, testConfig(), nil)

	result, err := svc.Reconcile(context.Background(), "u1", "race1", snap("u1", "2025-01-10", 1000, 0.8, 50))
	require.NoError(t, err)

	assert.InDelta(t, 0.8, result.AppliedDelta.DistanceKm, 1e-9)
	assert.Equal(t, 3, store.commitCalls)
	assert.InDelta(t, 0.8, store.participants[pairKey("u1", "race1")].DistanceKm, 1e-9)
}

func TestReconcileSurfacesExhaustedRetries(t *testing.T) {
	store := newMemStore()
	seedRace(store, "race1", race.StatusActive, 5.0)
	seedMember(store, "u1", "race1", "2025-01-10", 0, 0, 0)
	store.commitFailures = 10
	svc := NewReconcileService(store, testConfig(), nil)

	_, err := svc.Reconcile(context.Background(), "u1", "race1", snap("u1", "2025-01-10", 1000, 0.8, 50))
	require.Error(t, err)

	// Nothing was half-applied.
	p := store.participants[pairKey("u1", "race1")]
	assert.Equal(t, 0.0, p.DistanceKm)
	assert.Equal(t, 0, store.baselines[pairKey("u1", "race1")].BaselineSteps)
}

func TestReconcileMissingRaceIsSilentNoOp(t *testing.T) {
	store := newMemStore()
	seedMember(store, "u1", "ghost", "2025-01-10", 1000, 1.0, 100)
	svc := NewReconcileService(store, testConfig(), nil)

	result, err := svc.Reconcile(context.Background(), "u1", "ghost", snap("u1", "2025-01-10", 2000, 1.8, 160))
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, "race not found", result.SkipReason)
}
