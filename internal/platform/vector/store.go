// Package vector defines the provider-neutral contract for the
// similarity index. Adapters live in sibling packages.
package vector

import (
	"context"

	"github.com/google/uuid"
)

type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

type VectorMatch struct {
	ID      string
	Score   float64
	Payload map[string]any
}

type VectorStore interface {
	// Upsert writes vectors under the given session scope. Point IDs are
	// deterministic per (session, vector id), so re-ingesting the same
	// document overwrites rather than duplicates.
	Upsert(ctx context.Context, sessionID uuid.UUID, vectors []Vector) error
	// QueryMatches runs an ANN search hard-filtered to the session.
	QueryMatches(ctx context.Context, sessionID uuid.UUID, q []float32, topK int) ([]VectorMatch, error)
	// DeleteSession removes every point belonging to the session.
	// Deleting a session with no points is a no-op.
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error
}
