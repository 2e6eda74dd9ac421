package postgres

import (
	"context"
	"database/sql"

	"github.com/creditlens/creditlens/internal/core/domain"
)

// ChatMessageRepository stores conversation turns. Rows are append-only:
// there is no update or delete path.
type ChatMessageRepository struct {
	db *sql.DB
}

func NewChatMessageRepository(db *sql.DB) *ChatMessageRepository {
	return &ChatMessageRepository{db: db}
}

func (r *ChatMessageRepository) Append(ctx context.Context, message domain.ChatMessage) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO chat_messages (id, analysis_id, user_id, role, content, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`,
		message.ID, message.AnalysisID, message.UserID, string(message.Role), message.Content, message.CreatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "insert chat message", err)
	}
	return nil
}

// ListByAnalysis returns messages in creation order. With a positive
// limit only the most recent messages are returned, still oldest first.
func (r *ChatMessageRepository) ListByAnalysis(ctx context.Context, analysisID string, limit int) ([]domain.ChatMessage, error) {
	query := `
SELECT id, analysis_id, user_id, role, content, created_at
FROM chat_messages
WHERE analysis_id = $1
ORDER BY created_at ASC, id ASC
`
	args := []any{analysisID}
	if limit > 0 {
		query = `
SELECT id, analysis_id, user_id, role, content, created_at
FROM (
	SELECT id, analysis_id, user_id, role, content, created_at
	FROM chat_messages
	WHERE analysis_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2
) recent
ORDER BY created_at ASC, id ASC
`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "list chat messages", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.ChatMessage
	for rows.Next() {
		var message domain.ChatMessage
		var role string
		if err := rows.Scan(&message.ID, &message.AnalysisID, &message.UserID, &role, &message.Content, &message.CreatedAt); err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "scan chat message", err)
		}
		message.Role = domain.ChatRole(role)
		out = append(out, message)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "iterate chat messages", err)
	}
	return out, nil
}
