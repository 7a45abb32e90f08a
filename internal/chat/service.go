package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/semanticpdf/semanticpdf-backend/internal/files"
	"github.com/semanticpdf/semanticpdf-backend/pkg/db/models"
	"github.com/semanticpdf/semanticpdf-backend/pkg/enums"
	pkgerrors "github.com/semanticpdf/semanticpdf-backend/pkg/errors"
	"github.com/semanticpdf/semanticpdf-backend/pkg/logger"
	openaipkg "github.com/semanticpdf/semanticpdf-backend/pkg/openai"
	"github.com/semanticpdf/semanticpdf-backend/pkg/pagination"
)

const (
	retrievalTopK = 5

	systemPrompt = "You answer questions about a PDF document. " +
		"Use only the provided context excerpts. " +
		"If the context does not contain the answer, say so."
)

// Embedder turns the user's question into a query vector.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([]pgvector.Vector, error)
}

// Completer produces the assistant reply. Satisfied by pkg/openai.Client.
type Completer interface {
	Complete(ctx context.Context, messages []openaipkg.ChatMessage) (string, error)
}

type fileLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.File, error)
	SearchChunks(ctx context.Context, fileID uuid.UUID, query pgvector.Vector, limit int) ([]files.ScoredChunk, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// MessageDTO is the transport shape of one chat turn.
type MessageDTO struct {
	ID        uuid.UUID      `json:"id"`
	FileID    uuid.UUID      `json:"file_id"`
	Role      enums.ChatRole `json:"role"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
}

func messageToDTO(m models.Message) MessageDTO {
	return MessageDTO{
		ID:        m.ID,
		FileID:    m.FileID,
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

// SendInput is a user question about a file.
type SendInput struct {
	FileID  uuid.UUID `json:"file_id" validate:"required"`
	Content string    `json:"content" validate:"required"`
}

// SendResponse returns both sides of the exchange.
type SendResponse struct {
	UserMessage      MessageDTO `json:"user_message"`
	AssistantMessage MessageDTO `json:"assistant_message"`
}

// ListResponse is a cursor page of messages, newest first.
type ListResponse struct {
	Messages   []MessageDTO `json:"messages"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type Service interface {
	List(ctx context.Context, userID, fileID uuid.UUID, limit int, cursor string) (*ListResponse, error)
	Send(ctx context.Context, userID uuid.UUID, input SendInput) (*SendResponse, error)
}

type ServiceParams struct {
	Repo              Repository
	Files             fileLoader
	Embedder          Embedder
	Completer         Completer
	TransactionRunner txRunner
	Logger            *logger.Logger
}

type service struct {
	repo      Repository
	files     fileLoader
	embedder  Embedder
	completer Completer
	txRunner  txRunner
	logg      *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("chat service requires a repository")
	}
	if params.Files == nil {
		return nil, fmt.Errorf("chat service requires a file loader")
	}
	if params.Embedder == nil {
		return nil, fmt.Errorf("chat service requires an embedder")
	}
	if params.Completer == nil {
		return nil, fmt.Errorf("chat service requires a completer")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("chat service requires a transaction runner")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("chat service requires a logger")
	}
	return &service{
		repo:      params.Repo,
		files:     params.Files,
		embedder:  params.Embedder,
		completer: params.Completer,
		txRunner:  params.TransactionRunner,
		logg:      params.Logger,
	}, nil
}

func (s *service) List(ctx context.Context, userID, fileID uuid.UUID, limit int, cursor string) (*ListResponse, error) {
	if _, err := s.ownedFile(ctx, userID, fileID); err != nil {
		return nil, err
	}

	parsed, err := pagination.ParseCursor(cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}

	rows, next, err := s.repo.ListByFile(ctx, fileID, limit, parsed)
	if err != nil {
		return nil, err
	}

	resp := &ListResponse{Messages: make([]MessageDTO, 0, len(rows))}
	for _, row := range rows {
		resp.Messages = append(resp.Messages, messageToDTO(row))
	}
	if next != nil {
		resp.NextCursor = pagination.EncodeCursor(*next)
	}
	return resp, nil
}

func (s *service) Send(ctx context.Context, userID uuid.UUID, input SendInput) (*SendResponse, error) {
	question := strings.TrimSpace(input.Content)
	if question == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message content is required")
	}

	file, err := s.ownedFile(ctx, userID, input.FileID)
	if err != nil {
		return nil, err
	}
	if file.UploadStatus != enums.FileUploadStatusSuccess {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "file is not ready for chat")
	}

	vectors, err := s.embedder.EmbedTexts(ctx, []string{question})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "embed question")
	}
	if len(vectors) != 1 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "embedding response size mismatch")
	}

	chunks, err := s.files.SearchChunks(ctx, file.ID, vectors[0], retrievalTopK)
	if err != nil {
		return nil, err
	}

	reply, err := s.completer.Complete(ctx, buildPrompt(question, chunks))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate reply")
	}

	userMsg := &models.Message{
		FileID:  file.ID,
		UserID:  userID,
		Role:    enums.ChatRoleUser,
		Content: question,
	}
	assistantMsg := &models.Message{
		FileID:  file.ID,
		UserID:  userID,
		Role:    enums.ChatRoleAssistant,
		Content: reply,
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.Create(ctx, userMsg); err != nil {
			return err
		}
		return txRepo.Create(ctx, assistantMsg)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist chat exchange")
	}

	return &SendResponse{
		UserMessage:      messageToDTO(*userMsg),
		AssistantMessage: messageToDTO(*assistantMsg),
	}, nil
}

func buildPrompt(question string, chunks []files.ScoredChunk) []openaipkg.ChatMessage {
	var context strings.Builder
	for _, chunk := range chunks {
		fmt.Fprintf(&context, "[page %d] %s\n\n", chunk.Page, chunk.Content)
	}

	messages := []openaipkg.ChatMessage{
		{Role: openaipkg.RoleSystem, Content: systemPrompt},
	}
	if context.Len() > 0 {
		messages = append(messages, openaipkg.ChatMessage{
			Role:    openaipkg.RoleSystem,
			Content: "Context excerpts:\n\n" + context.String(),
		})
	}
	messages = append(messages, openaipkg.ChatMessage{
		Role:    openaipkg.RoleUser,
		Content: question,
	})
	return messages
}

func (s *service) ownedFile(ctx context.Context, userID, fileID uuid.UUID) (*models.File, error) {
	file, err := s.files.FindByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "file not found")
	}
	return file, nil
}
