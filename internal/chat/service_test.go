package chat

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/semanticpdf/semanticpdf-backend/internal/files"
	"github.com/semanticpdf/semanticpdf-backend/pkg/db/models"
	"github.com/semanticpdf/semanticpdf-backend/pkg/enums"
	pkgerrors "github.com/semanticpdf/semanticpdf-backend/pkg/errors"
	"github.com/semanticpdf/semanticpdf-backend/pkg/logger"
	openaipkg "github.com/semanticpdf/semanticpdf-backend/pkg/openai"
	"github.com/semanticpdf/semanticpdf-backend/pkg/pagination"
)

type stubChatRepo struct {
	messages []models.Message
}

func (s *stubChatRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubChatRepo) Create(ctx context.Context, message *models.Message) error {
	message.ID = uuid.New()
	message.CreatedAt = time.Now().UTC()
	s.messages = append(s.messages, *message)
	return nil
}

func (s *stubChatRepo) ListByFile(ctx context.Context, fileID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Message, *pagination.Cursor, error) {
	var rows []models.Message
	for _, m := range s.messages {
		if m.FileID == fileID {
			rows = append(rows, m)
		}
	}
	return rows, nil, nil
}

func (s *stubChatRepo) DeleteByFile(ctx context.Context, fileID uuid.UUID) error { return nil }

type stubFileLoader struct {
	file   *models.File
	chunks []files.ScoredChunk
}

func (s *stubFileLoader) FindByID(ctx context.Context, id uuid.UUID) (*models.File, error) {
	if s.file != nil && s.file.ID == id {
		copied := *s.file
		return &copied, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "file not found")
}

func (s *stubFileLoader) SearchChunks(ctx context.Context, fileID uuid.UUID, query pgvector.Vector, limit int) ([]files.ScoredChunk, error) {
	return s.chunks, nil
}

type stubChatEmbedder struct{}

func (stubChatEmbedder) EmbedTexts(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	vectors := make([]pgvector.Vector, len(texts))
	for i := range texts {
		vectors[i] = pgvector.NewVector([]float32{0.5, 0.5})
	}
	return vectors, nil
}

type stubCompleter struct {
	reply    string
	err      error
	captured []openaipkg.ChatMessage
}

func (s *stubCompleter) Complete(ctx context.Context, messages []openaipkg.ChatMessage) (string, error) {
	s.captured = messages
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func readyFile(userID uuid.UUID) *models.File {
	return &models.File{
		ID:           uuid.New(),
		UserID:       userID,
		Name:         "paper.pdf",
		UploadStatus: enums.FileUploadStatusSuccess,
	}
}

func newChatService(t *testing.T, repo *stubChatRepo, loader *stubFileLoader, completer *stubCompleter) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:              repo,
		Files:             loader,
		Embedder:          stubChatEmbedder{},
		Completer:         completer,
		TransactionRunner: stubTxRunner{},
		Logger:            logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("building chat service: %v", err)
	}
	return svc
}

func TestSendStoresBothTurns(t *testing.T) {
	userID := uuid.New()
	file := readyFile(userID)
	repo := &stubChatRepo{}
	loader := &stubFileLoader{
		file: file,
		chunks: []files.ScoredChunk{
			{FileChunk: models.FileChunk{Page: 3, Content: "the answer lives here"}, Similarity: 0.92},
		},
	}
	completer := &stubCompleter{reply: "It is on page 3."}
	svc := newChatService(t, repo, loader, completer)

	resp, err := svc.Send(context.Background(), userID, SendInput{
		FileID:  file.ID,
		Content: "where is the answer?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.UserMessage.Role != enums.ChatRoleUser || resp.AssistantMessage.Role != enums.ChatRoleAssistant {
		t.Fatalf("unexpected roles %+v", resp)
	}
	if resp.AssistantMessage.Content != "It is on page 3." {
		t.Fatalf("unexpected reply %q", resp.AssistantMessage.Content)
	}
	if len(repo.messages) != 2 {
		t.Fatalf("expected both turns stored, got %d", len(repo.messages))
	}

	// Retrieved context must reach the model.
	var foundContext bool
	for _, m := range completer.captured {
		if strings.Contains(m.Content, "the answer lives here") {
			foundContext = true
		}
	}
	if !foundContext {
		t.Fatal("retrieved chunks must be part of the prompt")
	}
}

func TestSendRejectsUningestedFile(t *testing.T) {
	userID := uuid.New()
	file := readyFile(userID)
	file.UploadStatus = enums.FileUploadStatusPending
	svc := newChatService(t, &stubChatRepo{}, &stubFileLoader{file: file}, &stubCompleter{})

	_, err := svc.Send(context.Background(), userID, SendInput{
		FileID:  file.ID,
		Content: "anything",
	})
	if err == nil {
		t.Fatal("expected rejection of a pending file")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestSendHidesForeignFiles(t *testing.T) {
	owner := uuid.New()
	file := readyFile(owner)
	svc := newChatService(t, &stubChatRepo{}, &stubFileLoader{file: file}, &stubCompleter{})

	_, err := svc.Send(context.Background(), uuid.New(), SendInput{
		FileID:  file.ID,
		Content: "anything",
	})
	if err == nil {
		t.Fatal("expected foreign file to be hidden")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSendCompleterFailureDoesNotStoreTurns(t *testing.T) {
	userID := uuid.New()
	file := readyFile(userID)
	repo := &stubChatRepo{}
	completer := &stubCompleter{err: pkgerrors.New(pkgerrors.CodeDependency, "model unavailable")}
	svc := newChatService(t, repo, &stubFileLoader{file: file}, completer)

	_, err := svc.Send(context.Background(), userID, SendInput{
		FileID:  file.ID,
		Content: "anything",
	})
	if err == nil {
		t.Fatal("expected completion failure to surface")
	}
	if len(repo.messages) != 0 {
		t.Fatalf("failed exchange must not be stored, got %d messages", len(repo.messages))
	}
}

func TestListRequiresOwnership(t *testing.T) {
	owner := uuid.New()
	file := readyFile(owner)
	svc := newChatService(t, &stubChatRepo{}, &stubFileLoader{file: file}, &stubCompleter{})

	_, err := svc.List(context.Background(), uuid.New(), file.ID, 10, "")
	if err == nil {
		t.Fatal("expected foreign file to be hidden")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
