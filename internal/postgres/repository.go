package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scrim-lobby/internal/config"
	"github.com/scrim-lobby/internal/domain"
	"github.com/scrim-lobby/internal/eventbus"
)

// AuditRecord is one stored domain event
type AuditRecord struct {
	ID          int64           `json:"id"`
	ScrimID     string          `json:"scrim_id"`
	EventType   string          `json:"event_type"`
	OrganizerID string          `json:"organizer_id"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurred_at"`
	RecordedAt  time.Time       `json:"recorded_at"`
}

// Repository stores an append-only audit log of scrim events in PostgreSQL
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS scrim_events (
			id BIGSERIAL PRIMARY KEY,
			scrim_id VARCHAR(64) NOT NULL,
			event_type VARCHAR(64) NOT NULL,
			organizer_id VARCHAR(64) NOT NULL,
			payload JSONB NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			recorded_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scrim_events_scrim ON scrim_events(scrim_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_scrim_events_type ON scrim_events(event_type, occurred_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// Register records every published event
func (r *Repository) Register(bus *eventbus.Bus) {
	bus.SubscribeAll("audit.postgres", r.RecordEvent)
}

// RecordEvent appends an event to the audit log
func (r *Repository) RecordEvent(ctx context.Context, evt domain.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	header := evt.Header()
	query := `
		INSERT INTO scrim_events (scrim_id, event_type, organizer_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = r.pool.Exec(ctx, query,
		header.ScrimID,
		evt.Type(),
		header.OrganizerID,
		payload,
		header.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	return nil
}

// ListEvents returns the audit trail of one scrim, oldest first
func (r *Repository) ListEvents(ctx context.Context, scrimID string) ([]AuditRecord, error) {
	query := `
		SELECT id, scrim_id, event_type, organizer_id, payload, occurred_at, recorded_at
		FROM scrim_events
		WHERE scrim_id = $1
		ORDER BY occurred_at ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, scrimID)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	records := make([]AuditRecord, 0)
	for rows.Next() {
		var rec AuditRecord
		err := rows.Scan(
			&rec.ID,
			&rec.ScrimID,
			&rec.EventType,
			&rec.OrganizerID,
			&rec.Payload,
			&rec.OccurredAt,
			&rec.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return records, nil
}

// LastEvent returns the most recent event recorded for a scrim
func (r *Repository) LastEvent(ctx context.Context, scrimID string) (*AuditRecord, error) {
	query := `
		SELECT id, scrim_id, event_type, organizer_id, payload, occurred_at, recorded_at
		FROM scrim_events
		WHERE scrim_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT 1
	`
	var rec AuditRecord
	err := r.pool.QueryRow(ctx, query, scrimID).Scan(
		&rec.ID,
		&rec.ScrimID,
		&rec.EventType,
		&rec.OrganizerID,
		&rec.Payload,
		&rec.OccurredAt,
		&rec.RecordedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("%w: no events for scrim %s", domain.ErrNotFound, scrimID)
		}
		return nil, fmt.Errorf("getting last event: %w", err)
	}
	return &rec, nil
}

// CountByType returns how many events of each type have been recorded
func (r *Repository) CountByType(ctx context.Context) (map[string]int64, error) {
	query := `SELECT event_type, COUNT(*) FROM scrim_events GROUP BY event_type`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var eventType string
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[eventType] = count
	}
	return counts, rows.Err()
}
