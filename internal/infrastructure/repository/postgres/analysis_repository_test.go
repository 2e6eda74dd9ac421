package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/creditlens/creditlens/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*AnalysisRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &AnalysisRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, user_id, filename, media_type").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrAnalysisNotFound) {
		t.Fatalf("expected ErrAnalysisNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDDecodesPayload(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	score := 712
	payload := domain.ReportPayload{
		Overview: domain.Overview{Score: &score, Summary: "stable"},
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "filename", "media_type", "storage_path",
		"status", "payload", "fallback", "error_message", "created_at", "updated_at",
	}).AddRow("a1", "user-1", "report.pdf", "application/pdf", "uploads/a1",
		"completed", payloadJSON, false, "", now, now)

	mock.ExpectQuery("SELECT id, user_id, filename, media_type").
		WithArgs("a1").
		WillReturnRows(rows)

	analysis, err := repo.GetByID(context.Background(), "a1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if analysis.Status != domain.StatusCompleted {
		t.Errorf("status = %s, want completed", analysis.Status)
	}
	if analysis.Payload == nil || analysis.Payload.Overview.Score == nil || *analysis.Payload.Overview.Score != 712 {
		t.Errorf("payload = %+v, want score 712", analysis.Payload)
	}
	if analysis.StoragePath != "uploads/a1" {
		t.Errorf("storage path = %q", analysis.StoragePath)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE analyses").
		WithArgs("missing", string(domain.StatusExtracting), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", domain.StatusExtracting, "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrAnalysisNotFound) {
		t.Fatalf("expected ErrAnalysisNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveResultPersistsFallbackFlag(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE analyses").
		WithArgs("a1", string(domain.StatusError), sqlmock.AnyArg(), true, "analysis timed out", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	payload := &domain.ReportPayload{Fallback: true}
	if err := repo.SaveResult(context.Background(), "a1", domain.StatusError, payload, true, "analysis timed out"); err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateWrapsPersistenceError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO analyses").
		WillReturnError(sql.ErrConnDone)

	now := time.Now().UTC()
	err := repo.Create(context.Background(), &domain.Analysis{
		ID: "a1", UserID: "user-1", MediaType: domain.MediaTypeText,
		Status: domain.StatusQueued, CreatedAt: now, UpdatedAt: now,
	})
	if !domain.IsKind(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
