package files

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/semanticpdf/semanticpdf-backend/pkg/db/models"
	"github.com/semanticpdf/semanticpdf-backend/pkg/enums"
	pkgerrors "github.com/semanticpdf/semanticpdf-backend/pkg/errors"
	"github.com/semanticpdf/semanticpdf-backend/pkg/pagination"
)

// ScoredChunk is a retrieved chunk with its cosine similarity to the query.
type ScoredChunk struct {
	models.FileChunk
	Similarity float64 `gorm:"column:similarity"`
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, file *models.File) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.File, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.File, *pagination.Cursor, error)
	CountByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	UpdateUploadStatus(ctx context.Context, id uuid.UUID, status enums.FileUploadStatus, failReason *string) error
	Delete(ctx context.Context, id uuid.UUID) error

	InsertChunks(ctx context.Context, chunks []models.FileChunk) error
	DeleteChunks(ctx context.Context, fileID uuid.UUID) error
	SearchChunks(ctx context.Context, fileID uuid.UUID, query pgvector.Vector, limit int) ([]ScoredChunk, error)

	// ListStaleUploads returns files stuck in pending/processing since
	// before the cutoff.
	ListStaleUploads(ctx context.Context, cutoff time.Time, limit int) ([]models.File, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, file *models.File) error {
	if err := r.db.WithContext(ctx).Create(file).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create file")
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.File, error) {
	var file models.File
	err := r.db.WithContext(ctx).First(&file, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "file not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find file")
	}
	return &file, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.File, *pagination.Cursor, error) {
	limit = pagination.NormalizeLimit(limit)

	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(limit))
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.File
	if err := query.Find(&rows).Error; err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list files")
	}

	var next *pagination.Cursor
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return rows, next, nil
}

func (r *repository) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.File{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count files")
	}
	return count, nil
}

func (r *repository) UpdateUploadStatus(ctx context.Context, id uuid.UUID, status enums.FileUploadStatus, failReason *string) error {
	err := r.db.WithContext(ctx).
		Model(&models.File{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"upload_status": status,
			"fail_reason":   failReason,
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update upload status")
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).Delete(&models.File{}, "id = ?", id).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete file")
	}
	return nil
}

func (r *repository) InsertChunks(ctx context.Context, chunks []models.FileChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&chunks).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert file chunks")
	}
	return nil
}

func (r *repository) DeleteChunks(ctx context.Context, fileID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Delete(&models.FileChunk{}, "file_id = ?", fileID).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete file chunks")
	}
	return nil
}

func (r *repository) SearchChunks(ctx context.Context, fileID uuid.UUID, query pgvector.Vector, limit int) ([]ScoredChunk, error) {
	if limit <= 0 {
		limit = 5
	}
	var results []ScoredChunk
	err := r.db.WithContext(ctx).Raw(`
		SELECT *, (1 - (embedding <=> ?)) AS similarity
		FROM file_chunks
		WHERE file_id = ?
		ORDER BY embedding <=> ?
		LIMIT ?`,
		query, fileID, query, limit,
	).Scan(&results).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "search file chunks")
	}
	return results, nil
}

func (r *repository) ListStaleUploads(ctx context.Context, cutoff time.Time, limit int) ([]models.File, error) {
	var rows []models.File
	err := r.db.WithContext(ctx).
		Where("upload_status IN ?", []enums.FileUploadStatus{
			enums.FileUploadStatusPending,
			enums.FileUploadStatusProcessing,
		}).
		Where("created_at < ?", cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list stale uploads")
	}
	return rows, nil
}
