package baseline

import "time"

// Baseline records the health totals observed the last time a (user, race)
// pair was reconciled. Deltas are always computed against it. Once the
// participant finishes, the baseline is frozen and never written again.
type Baseline struct {
	UserID            string     `json:"user_id" db:"user_id"`
	RaceID            string     `json:"race_id" db:"race_id"`
	BaselineSteps     int        `json:"baseline_steps" db:"baseline_steps"`
	BaselineDistance  float64    `json:"baseline_distance_km" db:"baseline_distance_km"`
	BaselineCalories  int        `json:"baseline_calories" db:"baseline_calories"`
	LastProcessedDate string     `json:"last_processed_date" db:"last_processed_date"`
	IsCompleted       bool       `json:"is_completed" db:"is_completed"`
	CompletedAt       *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// CheckRollover advances the baseline across a calendar-date boundary. When
// the wall-clock date has moved past lastProcessedDate, the baseline is reset
// to the day's current totals so yesterday's accumulation is not attributed
// to today's race progress. A multi-day gap still resets exactly once.
//
// Returns true when the baseline was reset; the caller must persist the reset
// and emit a zero delta for this cycle.
func CheckRollover(b *Baseline, todayDate string, currentSteps int, currentDistanceKm float64, currentCalories int) bool {
	if b.LastProcessedDate == "" {
		b.LastProcessedDate = todayDate
		return false
	}
	if b.LastProcessedDate == todayDate {
		return false
	}
	b.BaselineSteps = currentSteps
	b.BaselineDistance = currentDistanceKm
	b.BaselineCalories = currentCalories
	b.LastProcessedDate = todayDate
	return true
}
