package files

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/semanticpdf/semanticpdf-backend/pkg/config"
	"github.com/semanticpdf/semanticpdf-backend/pkg/db/models"
	"github.com/semanticpdf/semanticpdf-backend/pkg/enums"
	pkgerrors "github.com/semanticpdf/semanticpdf-backend/pkg/errors"
	"github.com/semanticpdf/semanticpdf-backend/pkg/logger"
	"github.com/semanticpdf/semanticpdf-backend/pkg/outbox"
	"github.com/semanticpdf/semanticpdf-backend/pkg/outbox/payloads"
	"github.com/semanticpdf/semanticpdf-backend/pkg/pagination"
	"github.com/semanticpdf/semanticpdf-backend/pkg/plans"
)

// Embedder turns text into vectors. Satisfied by pkg/openai.Client.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([]pgvector.Vector, error)
}

type userLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// FileDTO is the transport shape for an uploaded file.
type FileDTO struct {
	ID           uuid.UUID              `json:"id"`
	Name         string                 `json:"name"`
	SizeBytes    int64                  `json:"size_bytes"`
	PageCount    int                    `json:"page_count"`
	UploadStatus enums.FileUploadStatus `json:"upload_status"`
	FailReason   *string                `json:"fail_reason,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

func fileToDTO(f models.File) FileDTO {
	return FileDTO{
		ID:           f.ID,
		Name:         f.Name,
		SizeBytes:    f.SizeBytes,
		PageCount:    f.PageCount,
		UploadStatus: f.UploadStatus,
		FailReason:   f.FailReason,
		CreatedAt:    f.CreatedAt,
	}
}

// CreateFileInput registers an upload before its text is ingested.
type CreateFileInput struct {
	Name      string `json:"name" validate:"required"`
	SizeBytes int64  `json:"size_bytes" validate:"required,min=1"`
	PageCount int    `json:"page_count" validate:"required,min=1"`
}

// IngestInput carries extracted page text for embedding.
type IngestInput struct {
	Pages []PageText `json:"pages" validate:"required,min=1,dive"`
}

// ListResponse is a cursor page of files.
type ListResponse struct {
	Files      []FileDTO `json:"files"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type Service interface {
	Create(ctx context.Context, userID uuid.UUID, input CreateFileInput) (*FileDTO, error)
	List(ctx context.Context, userID uuid.UUID, limit int, cursor string) (*ListResponse, error)
	GetStatus(ctx context.Context, userID, fileID uuid.UUID) (*FileDTO, error)
	Delete(ctx context.Context, userID, fileID uuid.UUID) error
	Ingest(ctx context.Context, userID, fileID uuid.UUID, input IngestInput) (*FileDTO, error)
}

type ServiceParams struct {
	Repo              Repository
	Users             userLoader
	Embedder          Embedder
	TransactionRunner txRunner
	Outbox            *outbox.Service
	Logger            *logger.Logger
	Files             config.FilesConfig
}

type service struct {
	repo     Repository
	users    userLoader
	embedder Embedder
	txRunner txRunner
	outbox   *outbox.Service
	logg     *logger.Logger
	cfg      config.FilesConfig
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("files service requires a repository")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("files service requires a user loader")
	}
	if params.Embedder == nil {
		return nil, fmt.Errorf("files service requires an embedder")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("files service requires a transaction runner")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("files service requires a logger")
	}
	return &service{
		repo:     params.Repo,
		users:    params.Users,
		embedder: params.Embedder,
		txRunner: params.TransactionRunner,
		outbox:   params.Outbox,
		logg:     params.Logger,
		cfg:      params.Files,
	}, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, input CreateFileInput) (*FileDTO, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file name is required")
	}

	plan, err := s.planFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	if maxBytes := int64(s.cfg.MaxUploadMB) * 1024 * 1024; maxBytes > 0 && input.SizeBytes > maxBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("file exceeds the %d MB upload limit", s.cfg.MaxUploadMB))
	}
	if input.PageCount > plan.MaxPagesPerFile {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("file exceeds the %d page limit of the %s plan", plan.MaxPagesPerFile, plan.Name))
	}

	count, err := s.repo.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if count >= int64(plan.MaxFiles) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden,
			fmt.Sprintf("the %s plan allows at most %d files", plan.Name, plan.MaxFiles))
	}

	file := &models.File{
		UserID:       userID,
		Name:         strings.TrimSpace(input.Name),
		SizeBytes:    input.SizeBytes,
		PageCount:    input.PageCount,
		UploadStatus: enums.FileUploadStatusPending,
	}
	if err := s.repo.Create(ctx, file); err != nil {
		return nil, err
	}

	dto := fileToDTO(*file)
	return &dto, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, limit int, cursor string) (*ListResponse, error) {
	parsed, err := pagination.ParseCursor(cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}

	rows, next, err := s.repo.ListByUser(ctx, userID, limit, parsed)
	if err != nil {
		return nil, err
	}

	resp := &ListResponse{Files: make([]FileDTO, 0, len(rows))}
	for _, row := range rows {
		resp.Files = append(resp.Files, fileToDTO(row))
	}
	if next != nil {
		resp.NextCursor = pagination.EncodeCursor(*next)
	}
	return resp, nil
}

func (s *service) GetStatus(ctx context.Context, userID, fileID uuid.UUID) (*FileDTO, error) {
	file, err := s.ownedFile(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	dto := fileToDTO(*file)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, userID, fileID uuid.UUID) error {
	file, err := s.ownedFile(ctx, userID, fileID)
	if err != nil {
		return err
	}
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.DeleteChunks(ctx, file.ID); err != nil {
			return err
		}
		return txRepo.Delete(ctx, file.ID)
	})
}

func (s *service) Ingest(ctx context.Context, userID, fileID uuid.UUID, input IngestInput) (*FileDTO, error) {
	file, err := s.ownedFile(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	if file.UploadStatus == enums.FileUploadStatusSuccess {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "file already ingested")
	}

	if err := s.repo.UpdateUploadStatus(ctx, file.ID, enums.FileUploadStatusProcessing, nil); err != nil {
		return nil, err
	}

	chunks := chunkPages(input.Pages, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return nil, s.failIngest(ctx, file, "no extractable text")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		s.logg.Error(s.logg.WithFileID(ctx, file.ID.String()), "embed file chunks", err)
		return nil, s.failIngest(ctx, file, "embedding failed")
	}
	if len(vectors) != len(chunks) {
		return nil, s.failIngest(ctx, file, "embedding count mismatch")
	}

	rows := make([]models.FileChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = models.FileChunk{
			FileID:    file.ID,
			ChunkIdx:  c.Index,
			Page:      c.Page,
			Content:   c.Content,
			Embedding: vectors[i],
		}
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.DeleteChunks(ctx, file.ID); err != nil {
			return err
		}
		if err := txRepo.InsertChunks(ctx, rows); err != nil {
			return err
		}
		if err := txRepo.UpdateUploadStatus(ctx, file.ID, enums.FileUploadStatusSuccess, nil); err != nil {
			return err
		}
		if s.outbox == nil {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFileIngested,
			AggregateType: enums.AggregateFile,
			AggregateID:   file.ID,
			Actor:         &outbox.ActorRef{UserID: userID},
			Data: payloads.FileIngestedEvent{
				FileID:     file.ID,
				UserID:     userID,
				ChunkCount: len(rows),
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist ingested chunks")
	}

	file.UploadStatus = enums.FileUploadStatusSuccess
	file.FailReason = nil
	dto := fileToDTO(*file)
	return &dto, nil
}

// failIngest marks the file failed and reports the reason to the caller.
func (s *service) failIngest(ctx context.Context, file *models.File, reason string) error {
	if err := s.repo.UpdateUploadStatus(ctx, file.ID, enums.FileUploadStatusFailed, &reason); err != nil {
		return err
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "ingestion failed: "+reason)
}

func (s *service) ownedFile(ctx context.Context, userID, fileID uuid.UUID) (*models.File, error) {
	file, err := s.repo.FindByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.UserID != userID {
		// Hide other users' files entirely.
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "file not found")
	}
	return file, nil
}

func (s *service) planFor(ctx context.Context, userID uuid.UUID) (plans.Plan, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return plans.Plan{}, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return plans.Plan{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	subscribed := user.SubscriptionStatus.IsSubscribed() && user.SubscriptionID != nil
	return plans.ForSubscribed(subscribed), nil
}
