package services

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docvault/docvault-backend/internal/data/repos"
	types "github.com/docvault/docvault-backend/internal/domain"
	domvec "github.com/docvault/docvault-backend/internal/domain/vectors"
	apperrors "github.com/docvault/docvault-backend/internal/pkg/errors"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
	"github.com/docvault/docvault-backend/internal/platform/logger"
)

const (
	defaultSearchThreshold = 0.8
	defaultSearchK         = 10
	defaultCandidateLimit  = 1200
)

type SearchQuery struct {
	Embedding  []float32 `json:"embedding,omitempty"`
	Text       string    `json:"text,omitempty"`
	SourceType string    `json:"source_type,omitempty"`
	Threshold  *float64  `json:"threshold,omitempty"`
	K          int       `json:"k,omitempty"`
}

type SearchHit struct {
	Chunk      *types.DocumentChunk `json:"chunk"`
	Similarity float64              `json:"similarity"`
}

type SearchService interface {
	Search(dbc dbctx.Context, ownerUserID uuid.UUID, q SearchQuery) ([]SearchHit, error)
}

type searchService struct {
	db             *gorm.DB
	log            *logger.Logger
	chunks         repos.DocumentChunkRepo
	embeddingDim   int
	candidateLimit int
}

func NewSearchService(db *gorm.DB, baseLog *logger.Logger, chunks repos.DocumentChunkRepo, embeddingDim, candidateLimit int) SearchService {
	if candidateLimit <= 0 {
		candidateLimit = defaultCandidateLimit
	}
	return &searchService{
		db:             db,
		log:            baseLog.With("service", "SearchService"),
		chunks:         chunks,
		embeddingDim:   embeddingDim,
		candidateLimit: candidateLimit,
	}
}

// Search runs dense retrieval when a query embedding is present and falls
// back to keyword retrieval over registry titles/tags when it is not. Owner
// scoping for user_document chunks is enforced in the candidate SQL; this
// layer never widens it.
func (s *searchService) Search(dbc dbctx.Context, ownerUserID uuid.UUID, q SearchQuery) ([]SearchHit, error) {
	switch q.SourceType {
	case "", types.SourceTypeUserDocument, types.SourceTypeRegulatoryDocument:
	default:
		return nil, fmt.Errorf("%w: unknown source_type %q", apperrors.ErrValidation, q.SourceType)
	}
	k := q.K
	if k <= 0 {
		k = defaultSearchK
	}
	threshold := defaultSearchThreshold
	if q.Threshold != nil {
		threshold = *q.Threshold
	}
	if threshold < -1 || threshold > 1 {
		return nil, fmt.Errorf("%w: threshold must be in [-1, 1]", apperrors.ErrValidation)
	}

	var owner *uuid.UUID
	if ownerUserID != uuid.Nil {
		owner = &ownerUserID
	}
	if q.SourceType == types.SourceTypeUserDocument && owner == nil {
		return nil, fmt.Errorf("%w: user_document search requires an owner", apperrors.ErrUnauthorized)
	}

	if len(q.Embedding) == 0 {
		return s.keywordSearch(dbc, q.Text, q.SourceType, owner, k)
	}
	if len(q.Embedding) != s.embeddingDim {
		return nil, fmt.Errorf("%w: query embedding dimension %d, want %d", apperrors.ErrValidation, len(q.Embedding), s.embeddingDim)
	}

	candidates, err := s.chunks.ActiveCandidates(dbc, q.SourceType, owner, s.candidateLimit)
	if err != nil {
		return nil, err
	}
	if len(candidates) == s.candidateLimit {
		s.log.Warn("Dense search candidate cap reached, older chunks excluded",
			"limit", s.candidateLimit, "source_type", q.SourceType)
	}

	hits := make([]SearchHit, 0, len(candidates))
	for _, c := range candidates {
		vec, dErr := domvec.DecodeEmbedding(c.Embedding)
		if dErr != nil || len(vec) != s.embeddingDim {
			continue
		}
		sim := cosine(q.Embedding, vec)
		if sim < threshold {
			continue
		}
		hits = append(hits, SearchHit{Chunk: c, Similarity: sim})
	}
	// Equal scores break toward the newer chunk.
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Chunk.CreatedAt.After(hits[j].Chunk.CreatedAt)
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	s.log.Debug("Dense search served",
		"candidates", len(candidates),
		"hits", len(hits),
		"source_type", q.SourceType,
	)
	return hits, nil
}

func (s *searchService) keywordSearch(dbc dbctx.Context, text, sourceType string, owner *uuid.UUID, k int) ([]SearchHit, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: query needs an embedding or text", apperrors.ErrValidation)
	}
	chunks, err := s.chunks.KeywordCandidates(dbc, text, sourceType, owner, k)
	if err != nil {
		return nil, err
	}
	hits := make([]SearchHit, 0, len(chunks))
	for _, c := range chunks {
		hits = append(hits, SearchHit{Chunk: c})
	}
	return hits, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := 0; i < len(a); i++ {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
