package snapshot

import (
	"fmt"
	"time"
)

// DateLayout is the user-local calendar date carried by every snapshot.
const DateLayout = "2006-01-02"

// HealthSnapshot is a cumulative-totals report from a client device. Totals
// are lifetime-style counters for the reported day, never deltas.
type HealthSnapshot struct {
	UserID          string    `json:"user_id"`
	Date            string    `json:"date"`
	TotalSteps      int       `json:"total_steps"`
	TotalDistanceKm float64   `json:"total_distance_km"`
	TotalCalories   int       `json:"total_calories"`
	Timestamp       time.Time `json:"timestamp"`
}

// Validate rejects malformed payloads before they reach any baseline.
func (s *HealthSnapshot) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("snapshot missing user_id")
	}
	if _, err := time.Parse(DateLayout, s.Date); err != nil {
		return fmt.Errorf("snapshot has invalid date %q: %w", s.Date, err)
	}
	if s.TotalSteps < 0 {
		return fmt.Errorf("snapshot has negative total_steps %d", s.TotalSteps)
	}
	if s.TotalDistanceKm < 0 {
		return fmt.Errorf("snapshot has negative total_distance_km %f", s.TotalDistanceKm)
	}
	if s.TotalCalories < 0 {
		return fmt.Errorf("snapshot has negative total_calories %d", s.TotalCalories)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("snapshot missing timestamp")
	}
	return nil
}

// Fingerprint identifies a logical submission for duplicate rejection. Two
// retries of the same device sync produce the same fingerprint.
func (s *HealthSnapshot) Fingerprint() string {
	return fmt.Sprintf("%s|%s|%d|%d|%.3f|%d",
		s.UserID, s.Date, s.Timestamp.Unix(), s.TotalSteps, s.TotalDistanceKm, s.TotalCalories)
}
