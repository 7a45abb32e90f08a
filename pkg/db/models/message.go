package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/semanticpdf/semanticpdf-backend/pkg/enums"
)

// Message is one turn of a chat conversation scoped to a file.
type Message struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	FileID    uuid.UUID      `gorm:"column:file_id;type:uuid;not null;index"`
	UserID    uuid.UUID      `gorm:"column:user_id;type:uuid;not null;index"`
	Role      enums.ChatRole `gorm:"column:role;type:chat_role_enum;not null"`
	Content   string         `gorm:"column:content;type:text;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
}
