package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/censusconnect/authserver/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestAppend(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	uid := int64(7)
	now := time.Now()
	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+audit_events\s*\(id,\s*user_id,\s*kind,.*\)`).
		WithArgs("evt-1", uid, models.AuditLoginFailure, "10.0.0.1", "curl/8", "10.0.0.1", "login", "invalid password", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(context.Background(), &models.AuditEvent{
		ID:         "evt-1",
		UserID:     &uid,
		Kind:       models.AuditLoginFailure,
		IP:         "10.0.0.1",
		UserAgent:  "curl/8",
		Identifier: "10.0.0.1",
		Endpoint:   "login",
		Reason:     "invalid password",
		CreatedAt:  now,
	})
	if err != nil {
		t.Fatalf("Append error: %v", err)
	}
}

func TestQuery_WithFilters(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	uid := int64(7)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "kind", "ip_address", "user_agent", "identifier", "endpoint", "reason", "created_at"}).
		AddRow("evt-2", uid, models.AuditLoginSuccess, "10.0.0.1", "curl/8", "10.0.0.1", "login", "", now).
		AddRow("evt-1", uid, models.AuditLoginFailure, "10.0.0.1", "curl/8", "10.0.0.1", "login", "invalid password", now.Add(-time.Minute))

	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*user_id,.*FROM\s+audit_events\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+endpoint\s*=\s*\$2\s+ORDER\s+BY\s+created_at\s+DESC\s+LIMIT\s+50\s+OFFSET\s+0\s*$`).
		WithArgs(uid, "login").
		WillReturnRows(rows)

	events, err := repo.Query(context.Background(), models.AuditFilter{UserID: &uid, Endpoint: "login"})
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("want 2 events, got %d", len(events))
	}
	if events[0].Kind != models.AuditLoginSuccess || events[1].Reason != "invalid password" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestQuery_NoFilters(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "user_id", "kind", "ip_address", "user_agent", "identifier", "endpoint", "reason", "created_at"})
	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*user_id,.*FROM\s+audit_events\s+ORDER\s+BY\s+created_at\s+DESC\s+LIMIT\s+10\s+OFFSET\s+20\s*$`).
		WillReturnRows(rows)

	events, err := repo.Query(context.Background(), models.AuditFilter{Limit: 10, Offset: 20})
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("want no events, got %d", len(events))
	}
}
