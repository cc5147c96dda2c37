package services

import (
	"context"
	"testing"
	"time"

	"github.com/censusconnect/authserver/internal/server/models"
)

func TestAuditAppend_FillsIDAndTimestamp(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	repo := &fakeAuditRepo{}
	s := NewAuditService(db, &fakeRepoManager{audit: repo})

	e := &models.AuditEvent{Kind: models.AuditLoginFailure, Identifier: "alice"}
	if err := s.Append(context.Background(), e); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if e.ID == "" {
		t.Fatal("expected generated ID")
	}
	if e.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be set")
	}
	if len(repo.events) != 1 {
		t.Fatalf("want 1 event, got %d", len(repo.events))
	}
}

func TestAuditAppend_KeepsProvidedValues(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	repo := &fakeAuditRepo{}
	s := NewAuditService(db, &fakeRepoManager{audit: repo})

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := &models.AuditEvent{ID: "evt-1", Kind: models.AuditRegister, CreatedAt: at}
	if err := s.Append(context.Background(), e); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if e.ID != "evt-1" || !e.CreatedAt.Equal(at) {
		t.Fatalf("provided values must be kept: %+v", e)
	}
}

func TestAuditQuery_PassesThrough(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	repo := &fakeAuditRepo{queryOut: []models.AuditEvent{{ID: "evt-1"}, {ID: "evt-2"}}}
	s := NewAuditService(db, &fakeRepoManager{audit: repo})

	events, err := s.Query(context.Background(), models.AuditFilter{Kind: models.AuditLockout})
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("want 2 events, got %d", len(events))
	}
}
