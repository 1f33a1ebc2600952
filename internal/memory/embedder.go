package memory

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const defaultEmbedModel = "gemini-embedding-001"

// Embedding task types per the Gemini API.
const (
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// Embedder turns text into vectors. Documents and queries use different
// task types; mixing them degrades retrieval.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// GenAIEmbedder embeds via Google's Gemini embedding API.
type GenAIEmbedder struct {
	client *genai.Client
	model  string
}

// NewGenAIEmbedder builds an embedder. Model defaults to
// gemini-embedding-001.
func NewGenAIEmbedder(ctx context.Context, apiKey, model string) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("memory: embedding API key is required")
	}
	if model == "" {
		model = defaultEmbedModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("memory: genai client: %w", err)
	}
	return &GenAIEmbedder{client: client, model: model}, nil
}

// EmbedDocument embeds text for storage.
func (e *GenAIEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text, taskRetrievalDocument)
}

// EmbedQuery embeds text for lookup.
func (e *GenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text, taskRetrievalQuery)
}

func (e *GenAIEmbedder) embed(ctx context.Context, text, task string) ([]float32, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents,
		&genai.EmbedContentConfig{TaskType: task})
	if err != nil {
		return nil, fmt.Errorf("memory: embed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("memory: embed: no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}
