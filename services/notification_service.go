package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"outPaceMeAPI/internal/notification"
)

type PushNotificationProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error
}

// NotificationService turns race events into stored notifications and push
// deliveries. Events are processed by a small worker pool so the
// reconciliation path never waits on FCM.
type NotificationService struct {
	db           *pgxpool.Pool
	pushProvider PushNotificationProvider
	workers      int
	jobQueue     chan *notification.RaceEvent
	stopChan     chan struct{}
	wg           sync.WaitGroup
}

func NewNotificationService(db *pgxpool.Pool) *NotificationService {
	s := &NotificationService{
		db:       db,
		workers:  5,
		jobQueue: make(chan *notification.RaceEvent, 100),
		stopChan: make(chan struct{}),
	}

	s.startWorkers()

	return s
}

// SetPushProvider injects the real FCM provider from main.go.
func (s *NotificationService) SetPushProvider(provider PushNotificationProvider) {
	s.pushProvider = provider
}

func (s *NotificationService) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

func (s *NotificationService) worker() {
	defer s.wg.Done()
	for {
		select {
		case ev := <-s.jobQueue:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			s.processEvent(ctx, ev)
			cancel()
		case <-s.stopChan:
			return
		}
	}
}

// Notify enqueues an event without blocking the caller. A full queue drops
// the event; notifications are best-effort, race state is not.
func (s *NotificationService) Notify(ctx context.Context, ev *notification.RaceEvent) {
	select {
	case s.jobQueue <- ev:
	default:
		log.Printf("Notifications: queue full, dropping %s event for race %s", ev.Type, ev.RaceID)
	}
}

func (s *NotificationService) processEvent(ctx context.Context, ev *notification.RaceEvent) {
	if ev.Type == notification.NotificationRaceCompleted {
		s.fanOutRaceCompleted(ctx, ev)
		return
	}

	title, message := composeMessage(ev)
	if err := s.deliver(ctx, ev, ev.UserID, title, message); err != nil {
		log.Printf("Notifications: failed to deliver %s to user %s: %v", ev.Type, ev.UserID, err)
	}
}

// fanOutRaceCompleted notifies every participant of the finished race.
func (s *NotificationService) fanOutRaceCompleted(ctx context.Context, ev *notification.RaceEvent) {
	rows, err := s.db.Query(ctx, `SELECT user_id FROM race_participants WHERE race_id = $1`, ev.RaceID)
	if err != nil {
		log.Printf("Notifications: failed to list participants for race %s: %v", ev.RaceID, err)
		return
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			continue
		}
		userIDs = append(userIDs, userID)
	}

	title, message := composeMessage(ev)
	for _, userID := range userIDs {
		if err := s.deliver(ctx, ev, userID, title, message); err != nil {
			log.Printf("Notifications: failed to deliver race_completed to user %s: %v", userID, err)
		}
	}
}

func (s *NotificationService) deliver(ctx context.Context, ev *notification.RaceEvent, userID, title, message string) error {
	notif := &notification.Notification{
		ID:      uuid.New(),
		UserID:  userID,
		Type:    ev.Type,
		Title:   title,
		Message: message,
		Data: map[string]any{
			"race_id": ev.RaceID,
		},
		CreatedAt: time.Now(),
	}

	query := `
	INSERT INTO notifications (id, user_id, type, title, message, is_read, data, created_at)
	VALUES ($1, $2, $3, $4, $5, false, $6, $7)
	`

	if _, err := s.db.Exec(ctx, query,
		notif.ID, notif.UserID, notif.Type, notif.Title, notif.Message, notif.Data, notif.CreatedAt); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}

	if s.pushProvider == nil {
		return nil
	}

	tokens, err := s.deviceTokens(ctx, userID)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}

	return s.pushProvider.SendPush(ctx, tokens, title, message, notif.Data)
}

func (s *NotificationService) deviceTokens(ctx context.Context, userID string) ([]notification.DeviceToken, error) {
	rows, err := s.db.Query(ctx,
		`SELECT user_id, token, platform, created_at FROM device_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []notification.DeviceToken
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.UserID, &t.Token, &t.Platform, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, t)
	}

	return tokens, rows.Err()
}

func (s *NotificationService) RegisterDevice(ctx context.Context, userID, token, platform string) error {
	if userID == "" || token == "" {
		return fmt.Errorf("user_id and token are required")
	}

	query := `
	INSERT INTO device_tokens (user_id, token, platform, created_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (user_id, token) DO UPDATE SET platform = EXCLUDED.platform
	`

	if _, err := s.db.Exec(ctx, query, userID, token, platform); err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

func (s *NotificationService) GetNotifications(ctx context.Context, userID string, limit int) ([]*notification.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
	SELECT id, user_id, type, title, message, is_read, data, created_at
	FROM notifications
	WHERE user_id = $1
	ORDER BY created_at DESC
	LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*notification.Notification
	for rows.Next() {
		n := &notification.Notification{}
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.IsRead, &n.Data, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

func (s *NotificationService) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

func composeMessage(ev *notification.RaceEvent) (string, string) {
	switch ev.Type {
	case notification.NotificationRankOne:
		return "New race leader", fmt.Sprintf("%s took the lead", ev.DisplayName)
	case notification.NotificationOvertake:
		return "You've been overtaken", fmt.Sprintf("%s just passed you", ev.OvertakenBy)
	case notification.NotificationMilestone:
		return "Milestone reached", fmt.Sprintf("You've covered %d%% of the race distance", ev.Milestone)
	case notification.NotificationFirstFinisher:
		return "We have a winner!", fmt.Sprintf("%s crossed the finish line first", ev.DisplayName)
	case notification.NotificationFinished:
		return "You finished!", fmt.Sprintf("You crossed the finish line in position %d", ev.FinishOrder)
	case notification.NotificationRaceCompleted:
		return "Race complete", "The race has ended, check the final standings"
	}
	return "Race update", "Something happened in your race"
}

// MockPushProvider is used in tests and local runs without FCM credentials.
type MockPushProvider struct{}

func (m *MockPushProvider) SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error {
	log.Printf("MOCK PUSH: Sending to %d devices: %s - %s", len(tokens), title, body)
	return nil
}
