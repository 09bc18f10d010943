package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	pkgerrors "github.com/vivavoce/defense-backend/internal/pkg/errors"
	"github.com/vivavoce/defense-backend/internal/pkg/logger"
	"github.com/vivavoce/defense-backend/internal/platform/openai"
)

const (
	// embedBatchSize bounds in-flight embedding calls; the delay between
	// batches keeps the request rate under the provider limit.
	embedBatchSize  = 5
	embedBatchDelay = 100 * time.Millisecond
)

type EmbeddingService interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	// EmbedMany returns one vector per input, order-preserving.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

type embeddingService struct {
	log *logger.Logger
	ai  openai.Client
}

func NewEmbeddingService(log *logger.Logger, ai openai.Client) (EmbeddingService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ai == nil {
		return nil, fmt.Errorf("openai client required")
	}
	return &embeddingService{
		log: log.With("service", "EmbeddingService"),
		ai:  ai,
	}, nil
}

func (s *embeddingService) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.ai.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w: %w", pkgerrors.ErrUpstream, err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embed text: empty vector returned: %w", pkgerrors.ErrUpstream)
	}
	return vecs[0], nil
}

func (s *embeddingService) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				vec, err := s.EmbedOne(gctx, texts[i])
				if err != nil {
					return fmt.Errorf("input %d: %w", i, err)
				}
				out[i] = vec
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		if end < len(texts) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(embedBatchDelay):
			}
		}
	}

	s.log.Debug("embedded texts", "count", len(texts))
	return out, nil
}
