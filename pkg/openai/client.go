package openai

import (
	"context"

	"github.com/pgvector/pgvector-go"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/semanticpdf/semanticpdf-backend/pkg/config"
	pkgerrors "github.com/semanticpdf/semanticpdf-backend/pkg/errors"
)

const defaultEmbeddingBatch = 64

// Client wraps the OpenAI API for embeddings and chat completions.
type Client struct {
	api       *goopenai.Client
	chatModel string
	batchSize int
}

// ChatMessage is a single turn handed to the completion endpoint.
type ChatMessage struct {
	Role    string
	Content string
}

const (
	RoleSystem    = goopenai.ChatMessageRoleSystem
	RoleUser      = goopenai.ChatMessageRoleUser
	RoleAssistant = goopenai.ChatMessageRoleAssistant
)

func NewClient(cfg config.OpenAIConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "openai api key is required")
	}
	batch := cfg.EmbeddingBatch
	if batch <= 0 {
		batch = defaultEmbeddingBatch
	}
	return &Client{
		api:       goopenai.NewClient(cfg.APIKey),
		chatModel: cfg.ChatModel,
		batchSize: batch,
	}, nil
}

// EmbedTexts converts the inputs into vectors, batching requests to stay
// under the API's input limits. Output order matches input order.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([]pgvector.Vector, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		resp, err := c.api.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
			Input: texts[start:end],
			Model: goopenai.SmallEmbedding3,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create embeddings")
		}
		if len(resp.Data) != end-start {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "embedding response size mismatch")
		}
		for _, item := range resp.Data {
			vectors = append(vectors, pgvector.NewVector(item.Embedding))
		}
	}
	return vectors, nil
}

// Complete runs a chat completion over the provided turns and returns the
// assistant's reply.
func (c *Client) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	turns := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, goopenai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: turns,
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
