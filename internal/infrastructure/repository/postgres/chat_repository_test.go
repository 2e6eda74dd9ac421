package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/creditlens/creditlens/internal/core/domain"
)

func newChatRepoWithMock(t *testing.T) (*ChatMessageRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &ChatMessageRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestAppendInsertsMessage(t *testing.T) {
	repo, mock, done := newChatRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO chat_messages").
		WithArgs("m1", "a1", "user-1", "user", "What is my score?", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(context.Background(), domain.ChatMessage{
		ID:         "m1",
		AnalysisID: "a1",
		UserID:     "user-1",
		Role:       domain.ChatRoleUser,
		Content:    "What is my score?",
		CreatedAt:  now,
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListByAnalysisReturnsMessagesInOrder(t *testing.T) {
	repo, mock, done := newChatRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "analysis_id", "user_id", "role", "content", "created_at"}).
		AddRow("m1", "a1", "user-1", "user", "question", now).
		AddRow("m2", "a1", "user-1", "assistant", "answer", now.Add(time.Second))

	mock.ExpectQuery("SELECT id, analysis_id, user_id, role, content, created_at").
		WithArgs("a1").
		WillReturnRows(rows)

	messages, err := repo.ListByAnalysis(context.Background(), "a1", 0)
	if err != nil {
		t.Fatalf("ListByAnalysis() error = %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(messages))
	}
	if messages[0].Role != domain.ChatRoleUser || messages[1].Role != domain.ChatRoleAssistant {
		t.Fatalf("roles = %s, %s", messages[0].Role, messages[1].Role)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListByAnalysisAppliesLimit(t *testing.T) {
	repo, mock, done := newChatRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"id", "analysis_id", "user_id", "role", "content", "created_at"}).
		AddRow("m2", "a1", "user-1", "assistant", "recent answer", time.Now().UTC())

	mock.ExpectQuery("SELECT id, analysis_id, user_id, role, content, created_at").
		WithArgs("a1", 1).
		WillReturnRows(rows)

	messages, err := repo.ListByAnalysis(context.Background(), "a1", 1)
	if err != nil {
		t.Fatalf("ListByAnalysis() error = %v", err)
	}
	if len(messages) != 1 || messages[0].ID != "m2" {
		t.Fatalf("messages = %+v, want just m2", messages)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
