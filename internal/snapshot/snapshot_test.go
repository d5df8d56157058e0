package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validSnapshot() HealthSnapshot {
	return HealthSnapshot{
		UserID:          "u1",
		Date:            "2025-01-10",
		TotalSteps:      12000,
		TotalDistanceKm: 9.4,
		TotalCalories:   600,
		Timestamp:       time.Date(2025, 1, 10, 14, 30, 0, 0, time.UTC),
	}
}

func TestValidateAcceptsWellFormedSnapshot(t *testing.T) {
	s := validSnapshot()
	assert.NoError(t, s.Validate())
}

func TestValidateRejectsMalformedSnapshots(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*HealthSnapshot)
	}{
		{"missing user", func(s *HealthSnapshot) { s.UserID = "" }},
		{"bad date", func(s *HealthSnapshot) { s.Date = "10/01/2025" }},
		{"negative steps", func(s *HealthSnapshot) { s.TotalSteps = -1 }},
		{"negative distance", func(s *HealthSnapshot) { s.TotalDistanceKm = -0.1 }},
		{"negative calories", func(s *HealthSnapshot) { s.TotalCalories = -5 }},
		{"zero timestamp", func(s *HealthSnapshot) { s.Timestamp = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSnapshot()
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestFingerprintStableForRetries(t *testing.T) {
	a := validSnapshot()
	b := validSnapshot()

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.TotalSteps++
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	c := validSnapshot()
	c.Timestamp = c.Timestamp.Add(time.Minute)
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}
