package anomaly

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAndCapPassesSaneDeltas(t *testing.T) {
	limits := Limits{StepDeltaMax: 20000, OvershootFactor: 1.10}
	raw := Delta{Steps: 1200, DistanceKm: 0.9, Calories: 60}

	got := ValidateAndCap(raw, 5.0, 1.0, limits)

	assert.Equal(t, raw, got)
}

func TestValidateAndCapZeroesNegativeDeltas(t *testing.T) {
	limits := Limits{StepDeltaMax: 20000, OvershootFactor: 1.10}
	raw := Delta{Steps: -500, DistanceKm: -0.3, Calories: -20}

	got := ValidateAndCap(raw, 5.0, 1.0, limits)

	assert.Equal(t, Delta{}, got)
	assert.True(t, got.IsZero())
}

func TestValidateAndCapScalesAllMetricsProportionally(t *testing.T) {
	limits := Limits{StepDeltaMax: 20000, OvershootFactor: 1.10}
	raw := Delta{Steps: 50000, DistanceKm: 10.0, Calories: 1000}

	got := ValidateAndCap(raw, 100.0, 0, limits)

	// 20000/50000 = 0.4 applied to every derived metric.
	assert.Equal(t, 20000, got.Steps)
	assert.InDelta(t, 4.0, got.DistanceKm, 1e-9)
	assert.Equal(t, 400, got.Calories)
}

func TestValidateAndCapClipsResultingDistance(t *testing.T) {
	limits := Limits{StepDeltaMax: 20000, OvershootFactor: 1.10}
	raw := Delta{Steps: 6000, DistanceKm: 5.0, Calories: 300}

	got := ValidateAndCap(raw, 5.0, 4.9, limits)

	// 4.9 + 5.0 would blow past the 5.5 km ceiling; the result is clipped,
	// not the whole delta discarded.
	assert.InDelta(t, 0.6, got.DistanceKm, 1e-9)
	assert.Equal(t, 6000, got.Steps)
}

func TestValidateAndCapLeavesRoomBelowCeiling(t *testing.T) {
	limits := Limits{StepDeltaMax: 20000, OvershootFactor: 1.10}
	raw := Delta{Steps: 700, DistanceKm: 0.5, Calories: 40}

	got := ValidateAndCap(raw, 5.0, 4.9, limits)

	// 4.9 + 0.5 = 5.4 is still under the 5.5 ceiling.
	assert.InDelta(t, 0.5, got.DistanceKm, 1e-9)
}

func TestValidateAndCapAtCeilingYieldsZeroDistance(t *testing.T) {
	limits := Limits{StepDeltaMax: 20000, OvershootFactor: 1.10}
	raw := Delta{Steps: 700, DistanceKm: 0.5, Calories: 40}

	got := ValidateAndCap(raw, 5.0, 5.5, limits)

	assert.Equal(t, 0.0, got.DistanceKm)
	assert.Equal(t, 700, got.Steps)
}

func TestValidateAndCapScaleThenClip(t *testing.T) {
	limits := Limits{StepDeltaMax: 10000, OvershootFactor: 1.10}
	raw := Delta{Steps: 20000, DistanceKm: 16.0, Calories: 800}

	got := ValidateAndCap(raw, 5.0, 0, limits)

	// Scaled by 0.5 to 8.0 km, then clipped to the 5.5 km ceiling.
	assert.Equal(t, 10000, got.Steps)
	assert.InDelta(t, 5.5, got.DistanceKm, 1e-9)
	assert.Equal(t, 400, got.Calories)
}
