package leaderboard

type LeaderboardEntry struct {
	UserID          string  `json:"user_id" db:"user_id"`
	DisplayName     string  `json:"display_name" db:"display_name"`
	DistanceKm      float64 `json:"distance_km" db:"distance_km"`
	RemainingKm     float64 `json:"remaining_km"`
	AverageSpeedKmh float64 `json:"average_speed_kmh"`
	Rank            int     `json:"rank" db:"rank"`
	IsCompleted     bool    `json:"is_completed" db:"is_completed"`
	FinishOrder     int     `json:"finish_order" db:"finish_order"`
}

type Leaderboard struct {
	Entries           []*LeaderboardEntry `json:"entries"`
	UserPosition      *LeaderboardEntry   `json:"user_position"`
	TotalParticipants int                 `json:"total_participants"`
}
