package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/creditlens/creditlens/internal/core/domain"
	"github.com/creditlens/creditlens/internal/core/ports"
)

// AnalysisEnqueuer is the async intake path: it persists the upload,
// creates a queued record, and publishes the job for a worker to pick
// up. The pipeline itself never runs here.
type AnalysisEnqueuer struct {
	repo           ports.AnalysisRepository
	storage        ports.ObjectStorage
	queue          ports.JobQueue
	maxUploadBytes int64
}

func NewAnalysisEnqueuer(
	repo ports.AnalysisRepository,
	storage ports.ObjectStorage,
	queue ports.JobQueue,
	maxUploadBytes int64,
) *AnalysisEnqueuer {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 15 << 20
	}
	return &AnalysisEnqueuer{
		repo:           repo,
		storage:        storage,
		queue:          queue,
		maxUploadBytes: maxUploadBytes,
	}
}

func (e *AnalysisEnqueuer) Enqueue(ctx context.Context, req domain.AnalysisRequest, filename string) (*domain.Analysis, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "enqueue analysis", errors.New("user id is required"))
	}
	if !req.MediaType.Supported() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "enqueue analysis",
			fmt.Errorf("unsupported media type: %s", req.MediaType))
	}

	body := req.Data
	if req.MediaType.IsText() && len(body) == 0 {
		body = []byte(req.Text)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "enqueue analysis", errors.New("upload is empty"))
	}
	if int64(len(body)) > e.maxUploadBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "enqueue analysis",
			fmt.Errorf("upload of %d bytes exceeds limit of %d", len(body), e.maxUploadBytes))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("uploads/%s/%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := e.storage.Save(ctx, storageKey, bytes.NewReader(body)); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "save upload", err)
	}

	record := &domain.Analysis{
		ID:          id,
		UserID:      req.UserID,
		Filename:    filepath.Base(filename),
		MediaType:   req.MediaType,
		StoragePath: storageKey,
		Status:      domain.StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.repo.Create(ctx, record); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "create analysis record", err)
	}

	if err := e.queue.PublishAnalysisRequested(ctx, record.ID); err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "publish analysis job", err)
	}
	return record, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "report.bin"
	}
	return base
}
