// Package services contains server-side business logic: the auth orchestrator
// and the supporting audit, throttle, token, session, and mail services.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/censusconnect/authserver/internal/server/models"
	"github.com/censusconnect/authserver/internal/server/repositories/repomanager"
)

// AuditService writes and reads the append-only audit log.
type AuditService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	now         func() time.Time
}

func NewAuditService(db *sql.DB, m repomanager.RepositoryManager) *AuditService {
	return &AuditService{db: db, repomanager: m, now: time.Now}
}

// Append persists one event, assigning ID and CreatedAt when the caller
// left them zero.
func (s *AuditService) Append(ctx context.Context, e *models.AuditEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	repo := s.repomanager.Audit(s.db)
	if err := repo.Append(ctx, e); err != nil {
		return fmt.Errorf("error appending audit event: %w", err)
	}
	return nil
}

// Query returns events matching the filter, newest first.
func (s *AuditService) Query(ctx context.Context, f models.AuditFilter) ([]models.AuditEvent, error) {
	repo := s.repomanager.Audit(s.db)
	events, err := repo.Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("error querying audit events: %w", err)
	}
	return events, nil
}
