package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/semanticpdf/semanticpdf-backend/pkg/db/models"
	"github.com/semanticpdf/semanticpdf-backend/pkg/enums"
	"github.com/semanticpdf/semanticpdf-backend/pkg/logger"
	"github.com/semanticpdf/semanticpdf-backend/pkg/outbox"
	"github.com/semanticpdf/semanticpdf-backend/pkg/outbox/payloads"
)

const (
	defaultCleanupMaxAge = 24 * time.Hour
	defaultCleanupLimit  = 200

	staleUploadReason = "ingestion timed out"
)

type staleUploadReader interface {
	ListStaleUploads(ctx context.Context, cutoff time.Time, limit int) ([]models.File, error)
	UpdateUploadStatus(ctx context.Context, id uuid.UUID, status enums.FileUploadStatus, failReason *string) error
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StaleFileCleanupJobParams configure the upload janitor.
type StaleFileCleanupJobParams struct {
	Logger    *logger.Logger
	FilesRepo staleUploadReader
	DB        txRunner
	Outbox    outboxEmitter
	MaxAge    time.Duration
	Limit     int
	Now       func() time.Time
}

// NewStaleFileCleanupJob builds the job that fails uploads stuck in
// pending or processing longer than the configured age.
func NewStaleFileCleanupJob(params StaleFileCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.FilesRepo == nil {
		return nil, fmt.Errorf("files repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = defaultCleanupMaxAge
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultCleanupLimit
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &staleFileCleanupJob{
		logg:   params.Logger,
		files:  params.FilesRepo,
		db:     params.DB,
		outbox: params.Outbox,
		maxAge: maxAge,
		limit:  limit,
		now:    now,
	}, nil
}

type staleFileCleanupJob struct {
	logg   *logger.Logger
	files  staleUploadReader
	db     txRunner
	outbox outboxEmitter
	maxAge time.Duration
	limit  int
	now    func() time.Time
}

func (j *staleFileCleanupJob) Name() string { return "stale-file-cleanup" }

func (j *staleFileCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.maxAge)
	stale, err := j.files.ListStaleUploads(ctx, cutoff, j.limit)
	if err != nil {
		return fmt.Errorf("list stale uploads: %w", err)
	}

	var errs error
	cleaned := 0
	for i := range stale {
		if err := j.failUpload(ctx, &stale[i]); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("fail upload %s: %w", stale[i].ID, err))
			continue
		}
		cleaned++
	}

	reportCtx := j.logg.WithFields(ctx, map[string]any{
		"stale":   len(stale),
		"cleaned": cleaned,
	})
	j.logg.Info(reportCtx, "stale upload cleanup complete")
	return errs
}

func (j *staleFileCleanupJob) failUpload(ctx context.Context, file *models.File) error {
	reason := staleUploadReason
	if err := j.files.UpdateUploadStatus(ctx, file.ID, enums.FileUploadStatusFailed, &reason); err != nil {
		return err
	}
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		return j.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFileIngestFailed,
			AggregateType: enums.AggregateFile,
			AggregateID:   file.ID,
			Version:       1,
			OccurredAt:    j.now().UTC(),
			Data: payloads.FileIngestFailedEvent{
				FileID: file.ID,
				UserID: file.UserID,
				Reason: reason,
			},
		})
	})
}
