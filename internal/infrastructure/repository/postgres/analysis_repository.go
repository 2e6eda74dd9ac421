package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/creditlens/creditlens/internal/core/domain"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *AnalysisRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS analyses (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	filename TEXT,
	media_type TEXT NOT NULL,
	storage_path TEXT,
	status TEXT NOT NULL,
	payload JSONB,
	fallback BOOLEAN NOT NULL DEFAULT FALSE,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_user_id ON analyses(user_id);
CREATE INDEX IF NOT EXISTS idx_analyses_status ON analyses(status);
CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at DESC);

CREATE TABLE IF NOT EXISTS chat_messages (
	id TEXT PRIMARY KEY,
	analysis_id TEXT NOT NULL REFERENCES analyses(id),
	user_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_analysis_id ON chat_messages(analysis_id, created_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *AnalysisRepository) Create(ctx context.Context, analysis *domain.Analysis) error {
	payloadJSON, err := marshalPayload(analysis.Payload)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO analyses (
	id, user_id, filename, media_type, storage_path, status, payload, fallback, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		analysis.ID, analysis.UserID, analysis.Filename, string(analysis.MediaType), analysis.StoragePath,
		string(analysis.Status), payloadJSON, analysis.Fallback, analysis.Error, analysis.CreatedAt, analysis.UpdatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "insert analysis", err)
	}
	return nil
}

func (r *AnalysisRepository) GetByID(ctx context.Context, id string) (*domain.Analysis, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, filename, media_type, storage_path, status, payload, fallback, error_message, created_at, updated_at
FROM analyses
WHERE id = $1
`, id)

	var analysis domain.Analysis
	var filename, storagePath, errMessage sql.NullString
	var payloadRaw []byte
	var mediaType, status string

	err := row.Scan(
		&analysis.ID, &analysis.UserID, &filename, &mediaType, &storagePath,
		&status, &payloadRaw, &analysis.Fallback, &errMessage, &analysis.CreatedAt, &analysis.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrAnalysisNotFound, "get analysis", fmt.Errorf("no analysis %s", id))
		}
		return nil, domain.WrapError(domain.ErrPersistence, "scan analysis", err)
	}

	analysis.Filename = filename.String
	analysis.StoragePath = storagePath.String
	analysis.Error = errMessage.String
	analysis.MediaType = domain.MediaType(mediaType)
	analysis.Status = domain.AnalysisStatus(status)

	if len(payloadRaw) > 0 {
		var payload domain.ReportPayload
		if err := json.Unmarshal(payloadRaw, &payload); err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "unmarshal analysis payload", err)
		}
		analysis.Payload = &payload
	}
	return &analysis, nil
}

func (r *AnalysisRepository) UpdateStatus(ctx context.Context, id string, status domain.AnalysisStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE analyses
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "update analysis status", err)
	}
	return requireRow(result, id)
}

func (r *AnalysisRepository) SaveResult(ctx context.Context, id string, status domain.AnalysisStatus, payload *domain.ReportPayload, fallback bool, errMessage string) error {
	payloadJSON, err := marshalPayload(payload)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE analyses
SET status = $2, payload = $3, fallback = $4, error_message = $5, updated_at = $6
WHERE id = $1
`, id, string(status), payloadJSON, fallback, errMessage, time.Now().UTC())
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "save analysis result", err)
	}
	return requireRow(result, id)
}

// ListByUser returns the user's analyses, newest first. Payloads are
// included so the caller can render results without a second query.
func (r *AnalysisRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Analysis, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, filename, media_type, storage_path, status, payload, fallback, error_message, created_at, updated_at
FROM analyses
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "list analyses", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.Analysis
	for rows.Next() {
		var analysis domain.Analysis
		var filename, storagePath, errMessage sql.NullString
		var payloadRaw []byte
		var mediaType, status string

		if err := rows.Scan(
			&analysis.ID, &analysis.UserID, &filename, &mediaType, &storagePath,
			&status, &payloadRaw, &analysis.Fallback, &errMessage, &analysis.CreatedAt, &analysis.UpdatedAt,
		); err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "scan analysis row", err)
		}
		analysis.Filename = filename.String
		analysis.StoragePath = storagePath.String
		analysis.Error = errMessage.String
		analysis.MediaType = domain.MediaType(mediaType)
		analysis.Status = domain.AnalysisStatus(status)
		if len(payloadRaw) > 0 {
			var payload domain.ReportPayload
			if err := json.Unmarshal(payloadRaw, &payload); err != nil {
				return nil, domain.WrapError(domain.ErrPersistence, "unmarshal analysis payload", err)
			}
			analysis.Payload = &payload
		}
		out = append(out, analysis)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "iterate analyses", err)
	}
	return out, nil
}

func marshalPayload(payload *domain.ReportPayload) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "marshal analysis payload", err)
	}
	return raw, nil
}

func requireRow(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "rows affected", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrAnalysisNotFound, "update analysis", fmt.Errorf("no analysis %s", id))
	}
	return nil
}
