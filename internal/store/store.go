package store

import (
	"context"
	"fmt"
	"time"

	"storelocator-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store persists the reservation-lifecycle audit trail.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// RecordEvent inserts an audit row for a lifecycle event. Replaying the same
// event id is a no-op, so at-least-once delivery from the broker stays
// idempotent.
func (s *Store) RecordEvent(ctx context.Context, event *models.AuditEvent) error {
	query := `
		INSERT INTO reservation_events (event_id, event_type, usid, store_id, reservation_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		event.EventID, event.EventType, event.Usid, event.StoreID, event.ReservationID, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to record event %s: %w", event.EventID, err)
	}
	return nil
}

// GetEventsByUsid retrieves a session's lifecycle history, newest first.
func (s *Store) GetEventsByUsid(ctx context.Context, usid string, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	var events []models.AuditEvent
	err := s.db.SelectContext(ctx, &events,
		"SELECT * FROM reservation_events WHERE usid = $1 ORDER BY occurred_at DESC LIMIT $2",
		usid, limit)
	return events, err
}
