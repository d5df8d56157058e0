package anomaly

import "log"

// Delta is an incremental contribution since the last reconciliation.
type Delta struct {
	Steps      int
	DistanceKm float64
	Calories   int
}

func (d Delta) IsZero() bool {
	return d.Steps == 0 && d.DistanceKm == 0 && d.Calories == 0
}

// Limits bounds a single reconciliation cycle. StepDeltaMax is the largest
// believable per-sync step delta; OvershootFactor tolerates GPS/sensor
// overshoot past the race distance (1.10 = 10% past the finish line).
type Limits struct {
	StepDeltaMax    int
	OvershootFactor float64
}

// ValidateAndCap corrects a raw delta so a single corrupted health-platform
// read cannot teleport a participant to the finish line. It never fails; the
// worst outcome is a zero delta.
//
// Steps, distance and calories are internally derived from each other on the
// platform side, so when the step delta exceeds StepDeltaMax all three are
// scaled down by the same ratio rather than capping one metric independently.
// After scaling, the resulting cumulative distance is clipped so it cannot
// exceed raceTotalDistanceKm * OvershootFactor.
func ValidateAndCap(raw Delta, raceTotalDistanceKm, currentDistanceKm float64, limits Limits) Delta {
	corrected := raw

	if corrected.Steps < 0 {
		corrected.Steps = 0
	}
	if corrected.DistanceKm < 0 {
		corrected.DistanceKm = 0
	}
	if corrected.Calories < 0 {
		corrected.Calories = 0
	}

	if limits.StepDeltaMax > 0 && corrected.Steps > limits.StepDeltaMax {
		ratio := float64(limits.StepDeltaMax) / float64(corrected.Steps)
		scaled := Delta{
			Steps:      limits.StepDeltaMax,
			DistanceKm: corrected.DistanceKm * ratio,
			Calories:   int(float64(corrected.Calories) * ratio),
		}
		log.Printf("Anomaly capper: step delta %d exceeds max %d, scaling by %.4f (distance %.3f -> %.3f, calories %d -> %d)",
			corrected.Steps, limits.StepDeltaMax, ratio,
			corrected.DistanceKm, scaled.DistanceKm, corrected.Calories, scaled.Calories)
		corrected = scaled
	}

	ceiling := raceTotalDistanceKm * limits.OvershootFactor
	if raceTotalDistanceKm > 0 && currentDistanceKm+corrected.DistanceKm > ceiling {
		clipped := ceiling - currentDistanceKm
		if clipped < 0 {
			clipped = 0
		}
		log.Printf("Anomaly capper: distance delta %.3f would pass ceiling %.3f km (current %.3f), clipping to %.3f",
			corrected.DistanceKm, ceiling, currentDistanceKm, clipped)
		corrected.DistanceKm = clipped
	}

	return corrected
}
