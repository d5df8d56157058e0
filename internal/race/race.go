package race

import "time"

// Race status state machine. Only Active and Ending races accept progress
// writes; Completed and Cancelled are terminal.
const (
	StatusCreated   = 0
	StatusScheduled = 1
	StatusStarting  = 2
	StatusActive    = 3
	StatusCompleted = 4
	StatusCancelled = 5
	StatusEnding    = 6
	StatusArchived  = 7
)

type Race struct {
	ID              string     `json:"id" db:"id"`
	Name            string     `json:"name" db:"name"`
	StatusID        int        `json:"status_id" db:"status_id"`
	TotalDistanceKm float64    `json:"total_distance_km" db:"total_distance_km"`
	ScheduleTime    time.Time  `json:"schedule_time" db:"schedule_time"`
	ActualStartTime *time.Time `json:"actual_start_time" db:"actual_start_time"`
	FinisherCount   int        `json:"finisher_count" db:"finisher_count"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

type CreateRaceRequest struct {
	Name            string    `json:"name"`
	TotalDistanceKm float64   `json:"total_distance_km"`
	ScheduleTime    time.Time `json:"schedule_time"`
}

// JoinRaceRequest carries the device's current cumulative totals so the new
// member starts from a zero-contribution baseline.
type JoinRaceRequest struct {
	UserID            string  `json:"user_id"`
	DisplayName       string  `json:"display_name"`
	Date              string  `json:"date"`
	CurrentSteps      int     `json:"current_steps"`
	CurrentDistanceKm float64 `json:"current_distance_km"`
	CurrentCalories   int     `json:"current_calories"`
}

// Eligible reports whether the race may still receive reconciled progress.
func (r *Race) Eligible() bool {
	return r.StatusID == StatusActive || r.StatusID == StatusEnding
}

// Terminal reports whether the race has reached a final status. A terminal
// race must never again receive progress writes.
func (r *Race) Terminal() bool {
	return r.StatusID == StatusCompleted || r.StatusID == StatusCancelled
}

// ValidTransition reports whether moving from the race's current status to
// next is allowed. Completion always passes through Ending so the final grace
// window is never skipped; Cancelled is reachable from any live status;
// Archived follows a terminal status and is the end of the line.
func (r *Race) ValidTransition(next int) bool {
	if next == StatusCancelled {
		return !r.Terminal() && r.StatusID != StatusArchived
	}
	switch r.StatusID {
	case StatusCreated:
		return next == StatusScheduled
	case StatusScheduled:
		return next == StatusStarting || next == StatusActive
	case StatusStarting:
		return next == StatusActive
	case StatusActive:
		return next == StatusEnding
	case StatusEnding:
		return next == StatusCompleted
	case StatusCompleted, StatusCancelled:
		return next == StatusArchived
	}
	return false
}
