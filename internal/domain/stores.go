package domain

import (
	"context"

	"github.com/google/uuid"
)

// RunStore persists archived runs.
type RunStore interface {
	Create(ctx context.Context, r *Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*Run, error)
	List(ctx context.Context, limit int) ([]Run, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// FindSimilar returns the runs whose fingerprints are closest to the
	// query by cosine similarity, best first.
	FindSimilar(ctx context.Context, fingerprint []float32, topK int) ([]RunWithScore, error)
}
