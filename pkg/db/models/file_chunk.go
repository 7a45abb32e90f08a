package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// FileChunk is one embedded slice of a file's extracted text.
type FileChunk struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	FileID    uuid.UUID       `gorm:"column:file_id;type:uuid;not null;index"`
	ChunkIdx  int             `gorm:"column:chunk_idx;not null"`
	Page      int             `gorm:"column:page;not null"`
	Content   string          `gorm:"column:content;type:text;not null"`
	Embedding pgvector.Vector `gorm:"column:embedding;type:vector(1536)"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}
