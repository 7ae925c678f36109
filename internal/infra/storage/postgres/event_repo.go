package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/rpcgate/internal/core/domain"
)

// EventRepo implements storage.FallbackEventRepository using PostgreSQL.
type EventRepo struct {
	db *DB
}

// NewEventRepo creates a new PostgreSQL fallback event repository.
func NewEventRepo(db *DB) *EventRepo {
	return &EventRepo{db: db}
}

// Record inserts an event and fills its ID.
func (r *EventRepo) Record(ctx context.Context, ev *domain.FallbackEvent) error {
	query := `
		INSERT INTO fallback_events (network, kind, url, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	err := r.db.QueryRowxContext(
		ctx,
		query,
		string(ev.Network),
		string(ev.Kind),
		ev.URL,
		ev.Detail,
		ev.OccurredAt,
	).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("failed to record fallback event: %w", err)
	}
	return nil
}

// Recent returns the newest events for a network.
func (r *EventRepo) Recent(
	ctx context.Context,
	network domain.Network,
	limit int,
) ([]domain.FallbackEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, network, kind, url, detail, occurred_at
		FROM fallback_events
		WHERE network = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2
	`

	var events []domain.FallbackEvent
	if err := r.db.SelectContext(ctx, &events, query, string(network), limit); err != nil {
		return nil, fmt.Errorf("failed to list fallback events: %w", err)
	}
	return events, nil
}

// DeleteOlderThan prunes events that occurred before the threshold.
func (r *EventRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM fallback_events WHERE occurred_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune fallback events: %w", err)
	}
	return res.RowsAffected()
}
