package audit

import (
	"context"

	"github.com/censusconnect/authserver/internal/server/models"
)

// Repository is append-and-query only. Immutability of the log is a
// security property, so no update or delete is exposed.
type Repository interface {
	Append(ctx context.Context, e *models.AuditEvent) error
	Query(ctx context.Context, f models.AuditFilter) ([]models.AuditEvent, error)
}
