package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"outPaceMeAPI/internal/notification"
)

func TestComposeMessage(t *testing.T) {
	now := time.Date(2025, 1, 10, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		ev    *notification.RaceEvent
		title string
		body  string
	}{
		{
			name:  "rank one",
			ev:    &notification.RaceEvent{Type: notification.NotificationRankOne, DisplayName: "Maya", OccurredAt: now},
			title: "New race leader",
			body:  "Maya took the lead",
		},
		{
			name:  "overtake names the passer",
			ev:    &notification.RaceEvent{Type: notification.NotificationOvertake, DisplayName: "Maya", OvertakenBy: "Jon", OccurredAt: now},
			title: "You've been overtaken",
			body:  "Jon just passed you",
		},
		{
			name:  "milestone",
			ev:    &notification.RaceEvent{Type: notification.NotificationMilestone, Milestone: 75, OccurredAt: now},
			title: "Milestone reached",
			body:  "You've covered 75% of the race distance",
		},
		{
			name:  "first finisher",
			ev:    &notification.RaceEvent{Type: notification.NotificationFirstFinisher, DisplayName: "Maya", OccurredAt: now},
			title: "We have a winner!",
			body:  "Maya crossed the finish line first",
		},
		{
			name:  "finished",
			ev:    &notification.RaceEvent{Type: notification.NotificationFinished, FinishOrder: 3, OccurredAt: now},
			title: "You finished!",
			body:  "You crossed the finish line in position 3",
		},
		{
			name:  "unknown type falls back",
			ev:    &notification.RaceEvent{Type: "something_new", OccurredAt: now},
			title: "Race update",
			body:  "Something happened in your race",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, body := composeMessage(tt.ev)
			assert.Equal(t, tt.title, title)
			assert.Equal(t, tt.body, body)
		})
	}
}
