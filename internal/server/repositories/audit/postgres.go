// Package audit provides the PostgreSQL-backed append-only audit log.
// Operator queries carry a variable set of filters, so they are built with
// squirrel instead of hand-assembled SQL.
package audit

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/censusconnect/authserver/internal/dbx"
	"github.com/censusconnect/authserver/internal/server/models"
)

const defaultQueryLimit = 50

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append inserts one event. There is no corresponding update or delete.
func (r *PostgresRepository) Append(ctx context.Context, e *models.AuditEvent) error {
	query := `
		INSERT INTO audit_events (id, user_id, kind, ip_address, user_agent, identifier, endpoint, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.UserID, e.Kind, e.IP, e.UserAgent, e.Identifier, e.Endpoint, e.Reason, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Query returns events matching the filter, newest first.
func (r *PostgresRepository) Query(ctx context.Context, f models.AuditFilter) ([]models.AuditEvent, error) {
	limit := f.Limit
	if limit == 0 {
		limit = defaultQueryLimit
	}

	builder := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("id", "user_id", "kind", "ip_address", "user_agent", "identifier", "endpoint", "reason", "created_at").
		From("audit_events").
		OrderBy("created_at DESC").
		Limit(limit).
		Offset(f.Offset)

	if f.UserID != nil {
		builder = builder.Where(sq.Eq{"user_id": *f.UserID})
	}
	if f.Kind != "" {
		builder = builder.Where(sq.Eq{"kind": f.Kind})
	}
	if f.Identifier != "" {
		builder = builder.Where(sq.Eq{"identifier": f.Identifier})
	}
	if f.Endpoint != "" {
		builder = builder.Where(sq.Eq{"endpoint": f.Endpoint})
	}
	if f.Since != nil {
		builder = builder.Where(sq.GtOrEq{"created_at": *f.Since})
	}
	if f.Until != nil {
		builder = builder.Where(sq.Lt{"created_at": *f.Until})
	}

	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Kind, &e.IP, &e.UserAgent,
			&e.Identifier, &e.Endpoint, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return events, nil
}
