package services

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/vivavoce/defense-backend/internal/chunker"
	"github.com/vivavoce/defense-backend/internal/data/repos"
	types "github.com/vivavoce/defense-backend/internal/domain"
	"github.com/vivavoce/defense-backend/internal/pkg/dbctx"
	pkgerrors "github.com/vivavoce/defense-backend/internal/pkg/errors"
	"github.com/vivavoce/defense-backend/internal/pkg/logger"
	"github.com/vivavoce/defense-backend/internal/platform/qdrant"
	"github.com/vivavoce/defense-backend/internal/platform/vector"
)

// fallbackScore marks results served from the degraded path so callers
// can tell a real similarity score from an insertion-order scan.
const fallbackScore = 0.5

const defaultTopK = 5

// StoreScope identifies who owns the chunks being stored and which
// session they belong to.
type StoreScope struct {
	DocumentID  uuid.UUID
	OwnerUserID uuid.UUID
	SessionID   uuid.UUID
}

type VectorService interface {
	// StoreChunks persists chunk rows and indexes their vectors,
	// returning the stored chunk ids in order.
	StoreChunks(dbc dbctx.Context, scope StoreScope, chunks []chunker.Chunk, vectors [][]float32) ([]uuid.UUID, error)
	// Search runs a session-scoped similarity query. When the index
	// cannot serve, it degrades to an insertion-order scan of the
	// session's chunks instead of failing the caller.
	Search(dbc dbctx.Context, sessionID uuid.UUID, queryVec []float32, topK int) ([]types.RetrievalResult, error)
	// SearchByText embeds the query text, then searches.
	SearchByText(dbc dbctx.Context, sessionID uuid.UUID, query string, topK int) ([]types.RetrievalResult, error)
	// DeleteSession removes the session's chunks from both stores and
	// reports how many rows were deleted. Safe to retry.
	DeleteSession(dbc dbctx.Context, sessionID uuid.UUID) (int64, error)
}

type vectorService struct {
	log       *logger.Logger
	chunkRepo repos.DocumentChunkRepo
	store     vector.VectorStore
	embedder  EmbeddingService
}

func NewVectorService(
	log *logger.Logger,
	chunkRepo repos.DocumentChunkRepo,
	store vector.VectorStore,
	embedder EmbeddingService,
) (VectorService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if chunkRepo == nil {
		return nil, fmt.Errorf("chunk repo required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedding service required")
	}
	return &vectorService{
		log:       log.With("service", "VectorService"),
		chunkRepo: chunkRepo,
		store:     store,
		embedder:  embedder,
	}, nil
}

func (s *vectorService) StoreChunks(dbc dbctx.Context, scope StoreScope, chunks []chunker.Chunk, vectors [][]float32) ([]uuid.UUID, error) {
	if scope.DocumentID == uuid.Nil || scope.OwnerUserID == uuid.Nil || scope.SessionID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("store chunks: %w: %d chunks vs %d vectors", pkgerrors.ErrInvalidArgument, len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return []uuid.UUID{}, nil
	}

	ids := make([]uuid.UUID, len(chunks))
	rows := make([]*types.DocumentChunk, len(chunks))
	points := make([]vector.Vector, len(chunks))
	for i, c := range chunks {
		id := uuid.New()
		raw, err := json.Marshal(vectors[i])
		if err != nil {
			return nil, fmt.Errorf("store chunks: marshal embedding %d: %w", i, err)
		}
		ids[i] = id
		rows[i] = &types.DocumentChunk{
			ID:          id,
			DocumentID:  scope.DocumentID,
			SessionID:   scope.SessionID,
			OwnerUserID: scope.OwnerUserID,
			ChunkIndex:  i,
			Content:     c.Content,
			SpanStart:   c.SpanStart,
			SpanEnd:     c.SpanEnd,
			Embedding:   raw,
		}
		points[i] = vector.Vector{
			ID:     id.String(),
			Values: vectors[i],
			Metadata: map[string]any{
				"content":       c.Content,
				"chunk_index":   i,
				"document_id":   scope.DocumentID.String(),
				"owner_user_id": scope.OwnerUserID.String(),
			},
		}
	}

	if err := s.chunkRepo.CreateBatch(dbc, rows); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}

	if err := s.store.Upsert(dbc.Ctx, scope.SessionID, points); err != nil {
		if !qdrant.IsUnavailable(err) {
			return nil, fmt.Errorf("store chunks: index vectors: %w", err)
		}
		// Rows are the durable copy; retrieval degrades until the index
		// comes back.
		s.log.Warn("vector index unavailable during store, continuing degraded",
			"session_id", scope.SessionID.String(),
			"chunks", len(chunks),
			"error", err,
		)
	}

	return ids, nil
}

func (s *vectorService) Search(dbc dbctx.Context, sessionID uuid.UUID, queryVec []float32, topK int) ([]types.RetrievalResult, error) {
	if sessionID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	matches, err := s.store.QueryMatches(dbc.Ctx, sessionID, queryVec, topK)
	if err != nil {
		if !qdrant.IsUnavailable(err) {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		s.log.Warn("vector index unavailable, falling back to chunk scan",
			"session_id", sessionID.String(),
			"error", err,
		)
		return s.fallbackScan(dbc, sessionID, topK)
	}

	out := make([]types.RetrievalResult, 0, len(matches))
	for _, m := range matches {
		content, _ := m.Payload["content"].(string)
		if content == "" {
			continue
		}
		out = append(out, types.RetrievalResult{Content: content, Score: m.Score})
	}
	return out, nil
}

func (s *vectorService) SearchByText(dbc dbctx.Context, sessionID uuid.UUID, query string, topK int) ([]types.RetrievalResult, error) {
	queryVec, err := s.embedder.EmbedOne(dbc.Ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search by text: %w", err)
	}
	return s.Search(dbc, sessionID, queryVec, topK)
}

func (s *vectorService) DeleteSession(dbc dbctx.Context, sessionID uuid.UUID) (int64, error) {
	if sessionID == uuid.Nil {
		return 0, pkgerrors.ErrInvalidArgument
	}

	if err := s.store.DeleteSession(dbc.Ctx, sessionID); err != nil {
		if !qdrant.IsUnavailable(err) {
			return 0, fmt.Errorf("delete session vectors: %w", err)
		}
		s.log.Warn("vector index unavailable during delete, removing rows only",
			"session_id", sessionID.String(),
			"error", err,
		)
	}

	deleted, err := s.chunkRepo.DeleteBySession(dbc, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete session chunks: %w", err)
	}
	return deleted, nil
}

func (s *vectorService) fallbackScan(dbc dbctx.Context, sessionID uuid.UUID, topK int) ([]types.RetrievalResult, error) {
	rows, err := s.chunkRepo.ListBySession(dbc, sessionID, topK)
	if err != nil {
		return nil, fmt.Errorf("fallback scan: %w", err)
	}
	out := make([]types.RetrievalResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.RetrievalResult{Content: r.Content, Score: fallbackScore})
	}
	return out, nil
}
