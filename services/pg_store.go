package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"outPaceMeAPI/internal/baseline"
	"outPaceMeAPI/internal/participant"
	"outPaceMeAPI/internal/race"
)

// PgStore implements Store on Postgres with raw SQL. Multi-row atomicity
// comes from pgx transactions.
type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) GetRace(ctx context.Context, raceID string) (*race.Race, error) {
	query := `
	SELECT id, name, status_id, total_distance_km, schedule_time, actual_start_time, finisher_count, created_at, updated_at
	FROM races
	WHERE id = $1
	`

	r := &race.Race{}
	err := s.db.QueryRow(ctx, query, raceID).Scan(
		&r.ID,
		&r.Name,
		&r.StatusID,
		&r.TotalDistanceKm,
		&r.ScheduleTime,
		&r.ActualStartTime,
		&r.FinisherCount,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRaceNotFound
		}
		return nil, fmt.Errorf("failed to get race: %w", err)
	}

	return r, nil
}

func (s *PgStore) CreateRace(ctx context.Context, r *race.Race) error {
	query := `
	INSERT INTO races (id, name, status_id, total_distance_km, schedule_time, actual_start_time, finisher_count, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.Exec(ctx, query,
		r.ID, r.Name, r.StatusID, r.TotalDistanceKm, r.ScheduleTime, r.ActualStartTime, r.FinisherCount, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create race: %w", err)
	}
	return nil
}

func (s *PgStore) UpdateRaceStatus(ctx context.Context, raceID string, statusID int, actualStartTime *time.Time) error {
	query := `
	UPDATE races
	SET status_id = $2,
		actual_start_time = COALESCE($3, actual_start_time),
		updated_at = NOW()
	WHERE id = $1
	`

	result, err := s.db.Exec(ctx, query, raceID, statusID, actualStartTime)
	if err != nil {
		return fmt.Errorf("failed to update race status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrRaceNotFound
	}
	return nil
}

func (s *PgStore) ActiveRaces(ctx context.Context, userID string) ([]*race.Race, error) {
	query := `
	SELECT r.id, r.name, r.status_id, r.total_distance_km, r.schedule_time, r.actual_start_time, r.finisher_count, r.created_at, r.updated_at
	FROM races r
	INNER JOIN race_participants p ON p.race_id = r.id
	WHERE p.user_id = $1
	  AND r.status_id = ANY($2)
	ORDER BY r.created_at
	`

	rows, err := s.db.Query(ctx, query, userID, []int{race.StatusActive, race.StatusEnding})
	if err != nil {
		return nil, fmt.Errorf("failed to query active races: %w", err)
	}
	defer rows.Close()

	var races []*race.Race
	for rows.Next() {
		r := &race.Race{}
		err := rows.Scan(
			&r.ID,
			&r.Name,
			&r.StatusID,
			&r.TotalDistanceKm,
			&r.ScheduleTime,
			&r.ActualStartTime,
			&r.FinisherCount,
			&r.CreatedAt,
			&r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan race: %w", err)
		}
		races = append(races, r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating races: %w", err)
	}

	return races, nil
}

func (s *PgStore) GetBaseline(ctx context.Context, userID, raceID string) (*baseline.Baseline, error) {
	query := `
	SELECT user_id, race_id, baseline_steps, baseline_distance_km, baseline_calories,
		   last_processed_date, is_completed, completed_at, created_at, updated_at
	FROM race_baselines
	WHERE user_id = $1 AND race_id = $2
	`

	b := &baseline.Baseline{}
	err := s.db.QueryRow(ctx, query, userID, raceID).Scan(
		&b.UserID,
		&b.RaceID,
		&b.BaselineSteps,
		&b.BaselineDistance,
		&b.BaselineCalories,
		&b.LastProcessedDate,
		&b.IsCompleted,
		&b.CompletedAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get baseline: %w", err)
	}

	return b, nil
}

func (s *PgStore) PutBaseline(ctx context.Context, b *baseline.Baseline) error {
	query := `
	INSERT INTO race_baselines (user_id, race_id, baseline_steps, baseline_distance_km, baseline_calories,
								last_processed_date, is_completed, completed_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	ON CONFLICT (user_id, race_id) DO UPDATE SET
		baseline_steps = EXCLUDED.baseline_steps,
		baseline_distance_km = EXCLUDED.baseline_distance_km,
		baseline_calories = EXCLUDED.baseline_calories,
		last_processed_date = EXCLUDED.last_processed_date,
		is_completed = EXCLUDED.is_completed,
		completed_at = EXCLUDED.completed_at,
		updated_at = NOW()
	`

	_, err := s.db.Exec(ctx, query,
		b.UserID, b.RaceID, b.BaselineSteps, b.BaselineDistance, b.BaselineCalories,
		b.LastProcessedDate, b.IsCompleted, b.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to put baseline: %w", err)
	}
	return nil
}

func (s *PgStore) DeleteBaseline(ctx context.Context, userID, raceID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM race_baselines WHERE user_id = $1 AND race_id = $2`, userID, raceID)
	if err != nil {
		return fmt.Errorf("failed to delete baseline: %w", err)
	}
	return nil
}

func (s *PgStore) GetParticipant(ctx context.Context, userID, raceID string) (*participant.Participant, error) {
	query := `
	SELECT user_id, race_id, display_name, steps_accumulated, distance_km, calories_accumulated,
		   rank, is_completed, completed_at, finish_order, reached_milestones, last_progress_at, joined_at
	FROM race_participants
	WHERE user_id = $1 AND race_id = $2
	`

	p := &participant.Participant{}
	err := s.db.QueryRow(ctx, query, userID, raceID).Scan(
		&p.UserID,
		&p.RaceID,
		&p.DisplayName,
		&p.StepsAccumulated,
		&p.DistanceKm,
		&p.CaloriesAccumulated,
		&p.Rank,
		&p.IsCompleted,
		&p.CompletedAt,
		&p.FinishOrder,
		&p.ReachedMilestones,
		&p.LastProgressAt,
		&p.JoinedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}

	return p, nil
}

func (s *PgStore) CreateMembership(ctx context.Context, p *participant.Participant, b *baseline.Baseline) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	participantQuery := `
	INSERT INTO race_participants (user_id, race_id, display_name, steps_accumulated, distance_km, calories_accumulated,
								   rank, is_completed, completed_at, finish_order, reached_milestones, last_progress_at, joined_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (user_id, race_id) DO NOTHING
	`

	result, err := tx.Exec(ctx, participantQuery,
		p.UserID, p.RaceID, p.DisplayName, p.StepsAccumulated, p.DistanceKm, p.CaloriesAccumulated,
		p.Rank, p.IsCompleted, p.CompletedAt, p.FinishOrder, p.ReachedMilestones, p.LastProgressAt, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to create participant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAlreadyJoined
	}

	baselineQuery := `
	INSERT INTO race_baselines (user_id, race_id, baseline_steps, baseline_distance_km, baseline_calories,
								last_processed_date, is_completed, completed_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`

	_, err = tx.Exec(ctx, baselineQuery,
		b.UserID, b.RaceID, b.BaselineSteps, b.BaselineDistance, b.BaselineCalories,
		b.LastProcessedDate, b.IsCompleted, b.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to create baseline: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit membership: %w", err)
	}
	return nil
}

func (s *PgStore) CommitProgress(ctx context.Context, p *participant.Participant, b *baseline.Baseline) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if p.IsCompleted && p.FinishOrder == 0 {
		finishOrderQuery := `
		UPDATE races
		SET finisher_count = finisher_count + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING finisher_count
		`

		if err := tx.QueryRow(ctx, finishOrderQuery, p.RaceID).Scan(&p.FinishOrder); err != nil {
			return fmt.Errorf("failed to advance finish order: %w", err)
		}
	}

	participantQuery := `
	UPDATE race_participants
	SET steps_accumulated = $3,
		distance_km = $4,
		calories_accumulated = $5,
		is_completed = $6,
		completed_at = $7,
		finish_order = $8,
		reached_milestones = $9,
		last_progress_at = $10
	WHERE user_id = $1 AND race_id = $2
	`

	_, err = tx.Exec(ctx, participantQuery,
		p.UserID, p.RaceID, p.StepsAccumulated, p.DistanceKm, p.CaloriesAccumulated,
		p.IsCompleted, p.CompletedAt, p.FinishOrder, p.ReachedMilestones, p.LastProgressAt)
	if err != nil {
		return fmt.Errorf("failed to update participant: %w", err)
	}

	baselineQuery := `
	UPDATE race_baselines
	SET baseline_steps = $3,
		baseline_distance_km = $4,
		baseline_calories = $5,
		last_processed_date = $6,
		is_completed = $7,
		completed_at = $8,
		updated_at = NOW()
	WHERE user_id = $1 AND race_id = $2
	`

	_, err = tx.Exec(ctx, baselineQuery,
		b.UserID, b.RaceID, b.BaselineSteps, b.BaselineDistance, b.BaselineCalories,
		b.LastProcessedDate, b.IsCompleted, b.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update baseline: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit progress: %w", err)
	}
	return nil
}

func (s *PgStore) ListParticipants(ctx context.Context, raceID string) ([]*participant.Participant, error) {
	query := `
	SELECT user_id, race_id, display_name, steps_accumulated, distance_km, calories_accumulated,
		   rank, is_completed, completed_at, finish_order, reached_milestones, last_progress_at, joined_at
	FROM race_participants
	WHERE race_id = $1
	`

	rows, err := s.db.Query(ctx, query, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var participants []*participant.Participant
	for rows.Next() {
		p := &participant.Participant{}
		err := rows.Scan(
			&p.UserID,
			&p.RaceID,
			&p.DisplayName,
			&p.StepsAccumulated,
			&p.DistanceKm,
			&p.CaloriesAccumulated,
			&p.Rank,
			&p.IsCompleted,
			&p.CompletedAt,
			&p.FinishOrder,
			&p.ReachedMilestones,
			&p.LastProgressAt,
			&p.JoinedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}

	return participants, nil
}

func (s *PgStore) UpdateRanks(ctx context.Context, raceID string, updates []RankUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(`UPDATE race_participants SET rank = $3 WHERE user_id = $1 AND race_id = $2`,
			u.UserID, raceID, u.Rank)
	}

	results := tx.SendBatch(ctx, batch)
	for range updates {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to write rank: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close rank batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit ranks: %w", err)
	}
	return nil
}
