package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/semanticpdf/semanticpdf-backend/pkg/enums"
)

// File is an uploaded PDF owned by a user.
type File struct {
	ID           uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	Name         string                 `gorm:"column:name;not null"`
	SizeBytes    int64                  `gorm:"column:size_bytes;not null"`
	PageCount    int                    `gorm:"column:page_count;not null;default:0"`
	UploadStatus enums.FileUploadStatus `gorm:"column:upload_status;type:file_upload_status_enum;not null;default:'pending'"`
	FailReason   *string                `gorm:"column:fail_reason"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
