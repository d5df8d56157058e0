package leaderboard

import (
	"sort"

	"outPaceMeAPI/internal/participant"
)

// Order sorts participants into final standings. Distances within tieEpsilon
// km are treated as equal so GPS noise cannot flap ranks. Ties are broken by
// completion state, then finish time, then most recent progress, and finally
// by user id so the ordering is always a strict total order.
func Order(participants []*participant.Participant, tieEpsilon float64) {
	sort.SliceStable(participants, func(i, j int) bool {
		return Less(participants[i], participants[j], tieEpsilon)
	})
}

// Less reports whether a ranks strictly ahead of b.
func Less(a, b *participant.Participant, tieEpsilon float64) bool {
	diff := a.DistanceKm - b.DistanceKm
	if diff > tieEpsilon {
		return true
	}
	if diff < -tieEpsilon {
		return false
	}

	// Distances are tied within epsilon.
	switch {
	case a.IsCompleted && b.IsCompleted:
		if !a.CompletedAt.Equal(*b.CompletedAt) {
			return a.CompletedAt.Before(*b.CompletedAt)
		}
	case a.IsCompleted:
		return true
	case b.IsCompleted:
		return false
	default:
		if !a.LastProgressAt.Equal(b.LastProgressAt) {
			return a.LastProgressAt.After(b.LastProgressAt)
		}
	}

	return a.UserID < b.UserID
}

// AssignRanks stamps 1-based ordinal positions onto an already-ordered slice.
func AssignRanks(ordered []*participant.Participant) {
	for i, p := range ordered {
		p.Rank = i + 1
	}
}
