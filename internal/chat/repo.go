package chat

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/semanticpdf/semanticpdf-backend/pkg/db/models"
	pkgerrors "github.com/semanticpdf/semanticpdf-backend/pkg/errors"
	"github.com/semanticpdf/semanticpdf-backend/pkg/pagination"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, message *models.Message) error
	ListByFile(ctx context.Context, fileID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Message, *pagination.Cursor, error)
	DeleteByFile(ctx context.Context, fileID uuid.UUID) error
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

func (r *repository) Create(ctx context.Context, message *models.Message) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create message")
	}
	return nil
}

// ListByFile pages newest-first so the client can render the tail of the
// conversation and scroll backwards.
func (r *repository) ListByFile(ctx context.Context, fileID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Message, *pagination.Cursor, error) {
	limit = pagination.NormalizeLimit(limit)

	query := r.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(limit))
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Message
	if err := query.Find(&rows).Error; err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list messages")
	}

	var next *pagination.Cursor
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return rows, next, nil
}

func (r *repository) DeleteByFile(ctx context.Context, fileID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Delete(&models.Message{}, "file_id = ?", fileID).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete messages")
	}
	return nil
}
