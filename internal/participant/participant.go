package participant

import "time"

// Milestones are the progress percentages a participant is notified about.
// 100% is handled by completion, not by the milestone path.
var Milestones = []int{25, 50, 75}

// Participant is a user's race-scoped progress record. Accumulated values
// are race contributions, distinct from the raw health totals they derive
// from.
type Participant struct {
	UserID              string     `json:"user_id" db:"user_id"`
	RaceID              string     `json:"race_id" db:"race_id"`
	DisplayName         string     `json:"display_name" db:"display_name"`
	StepsAccumulated    int        `json:"steps_accumulated" db:"steps_accumulated"`
	DistanceKm          float64    `json:"distance_km" db:"distance_km"`
	CaloriesAccumulated int        `json:"calories_accumulated" db:"calories_accumulated"`
	Rank                int        `json:"rank" db:"rank"`
	IsCompleted         bool       `json:"is_completed" db:"is_completed"`
	CompletedAt         *time.Time `json:"completed_at" db:"completed_at"`
	FinishOrder         int        `json:"finish_order" db:"finish_order"`
	ReachedMilestones   []int      `json:"reached_milestones" db:"reached_milestones"`
	LastProgressAt      time.Time  `json:"last_progress_at" db:"last_progress_at"`
	JoinedAt            time.Time  `json:"joined_at" db:"joined_at"`
}

// RemainingDistanceKm never goes below zero even when the participant has
// overshot the finish line.
func (p *Participant) RemainingDistanceKm(raceTotalDistanceKm float64) float64 {
	remaining := raceTotalDistanceKm - p.DistanceKm
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AverageSpeedKmh is measured against the race's actual start time, not the
// user's join time, so late joiners are not flattered with inflated speeds.
func (p *Participant) AverageSpeedKmh(actualStartTime *time.Time, now time.Time) float64 {
	if actualStartTime == nil {
		return 0
	}
	elapsed := now.Sub(*actualStartTime).Hours()
	if elapsed <= 0 {
		return 0
	}
	return p.DistanceKm / elapsed
}

// MeetsCompletion applies the tolerance-based finish rule. Exact-zero
// comparison is too fragile against float and sensor jitter.
func (p *Participant) MeetsCompletion(raceTotalDistanceKm, toleranceKm float64) bool {
	return p.RemainingDistanceKm(raceTotalDistanceKm) <= toleranceKm
}

// NewMilestones returns the percentage thresholds crossed by the current
// distance that have not been recorded yet, in ascending order.
func (p *Participant) NewMilestones(raceTotalDistanceKm float64) []int {
	if raceTotalDistanceKm <= 0 {
		return nil
	}
	pct := p.DistanceKm / raceTotalDistanceKm * 100

	var crossed []int
	for _, m := range Milestones {
		if pct < float64(m) {
			break
		}
		if !p.hasMilestone(m) {
			crossed = append(crossed, m)
		}
	}
	return crossed
}

// RecordMilestones appends thresholds to the reached set, skipping ones
// already present.
func (p *Participant) RecordMilestones(crossed []int) {
	for _, m := range crossed {
		if !p.hasMilestone(m) {
			p.ReachedMilestones = append(p.ReachedMilestones, m)
		}
	}
}

func (p *Participant) hasMilestone(m int) bool {
	for _, r := range p.ReachedMilestones {
		if r == m {
			return true
		}
	}
	return false
}
