package services

import (
	"context"
	"errors"
	"time"

	"outPaceMeAPI/internal/baseline"
	"outPaceMeAPI/internal/participant"
	"outPaceMeAPI/internal/race"
)

var (
	ErrRaceNotFound        = errors.New("race not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrAlreadyJoined       = errors.New("user already joined race")
)

// RankUpdate is one participant's new ordinal position.
type RankUpdate struct {
	UserID string
	Rank   int
}

// Store is the persistence contract the engine runs against: keyed reads,
// atomic pair commits for participant+baseline, a race-scoped finish-order
// counter, and a batched write for rank assignments. PgStore implements it on
// Postgres; tests use an in-memory fake.
type Store interface {
	GetRace(ctx context.Context, raceID string) (*race.Race, error)
	CreateRace(ctx context.Context, r *race.Race) error
	UpdateRaceStatus(ctx context.Context, raceID string, statusID int, actualStartTime *time.Time) error

	// ActiveRaces returns the races the user has a membership in whose
	// status still accepts progress.
	ActiveRaces(ctx context.Context, userID string) ([]*race.Race, error)

	// GetBaseline returns (nil, nil) when no baseline exists yet.
	GetBaseline(ctx context.Context, userID, raceID string) (*baseline.Baseline, error)
	PutBaseline(ctx context.Context, b *baseline.Baseline) error
	DeleteBaseline(ctx context.Context, userID, raceID string) error

	GetParticipant(ctx context.Context, userID, raceID string) (*participant.Participant, error)

	// CreateMembership inserts the participant and its zero-contribution
	// baseline as one atomic commit.
	CreateMembership(ctx context.Context, p *participant.Participant, b *baseline.Baseline) error

	// CommitProgress persists the updated participant and baseline pair as
	// one atomic commit; a failure leaves both untouched. When the
	// participant is completing (IsCompleted with no FinishOrder yet) the
	// race's finisher counter advances inside the same commit and the
	// resulting order is stamped onto the participant, so two finishers can
	// never share an order and a failed commit never consumes one.
	CommitProgress(ctx context.Context, p *participant.Participant, b *baseline.Baseline) error

	ListParticipants(ctx context.Context, raceID string) ([]*participant.Participant, error)

	// UpdateRanks persists all rank assignments for a race in one atomic
	// write.
	UpdateRanks(ctx context.Context, raceID string, updates []RankUpdate) error
}
