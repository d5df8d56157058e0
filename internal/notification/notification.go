package notification

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationRankOne       NotificationType = "rank_one"
	NotificationOvertake      NotificationType = "overtake"
	NotificationMilestone     NotificationType = "milestone"
	NotificationFirstFinisher NotificationType = "first_finisher"
	NotificationFinished      NotificationType = "finished"
	NotificationRaceCompleted NotificationType = "race_completed"
)

type Notification struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	UserID    string           `json:"user_id" db:"user_id"`
	Type      NotificationType `json:"type" db:"type"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	IsRead    bool             `json:"is_read" db:"is_read"`
	Data      map[string]any   `json:"data" db:"data"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

type DeviceToken struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Token     string    `json:"token" db:"token"`
	Platform  string    `json:"platform" db:"platform"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RaceEvent is a state transition produced by the reconciliation core for
// the notification collaborator.
type RaceEvent struct {
	Type        NotificationType `json:"type"`
	RaceID      string           `json:"race_id"`
	UserID      string           `json:"user_id"`
	DisplayName string           `json:"display_name"`
	OvertakenBy string           `json:"overtaken_by,omitempty"`
	Milestone   int              `json:"milestone,omitempty"`
	FinishOrder int              `json:"finish_order,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}
