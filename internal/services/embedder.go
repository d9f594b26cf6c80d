package services

import (
	"context"
	"fmt"

	"github.com/docvault/docvault-backend/internal/clients/openai"
	apperrors "github.com/docvault/docvault-backend/internal/pkg/errors"
	"github.com/docvault/docvault-backend/internal/platform/logger"
)

// Embedder turns chunk text into fixed-dimension vectors. The pipeline only
// depends on this interface; the OpenAI client is the production backing.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

type openAIEmbedder struct {
	log    *logger.Logger
	client openai.Client
	dim    int
}

func NewOpenAIEmbedder(baseLog *logger.Logger, client openai.Client, dim int) Embedder {
	return &openAIEmbedder{
		log:    baseLog.With("service", "OpenAIEmbedder"),
		client: client,
		dim:    dim,
	}
}

func (e *openAIEmbedder) Dim() int { return e.dim }

func (e *openAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.client.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i, v := range vecs {
		if len(v) != e.dim {
			return nil, fmt.Errorf("%w: embedding %d has dimension %d, want %d", apperrors.ErrValidation, i, len(v), e.dim)
		}
	}
	return vecs, nil
}
