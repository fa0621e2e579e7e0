package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run is an archived filtering run: the model it came from, how many
// observations it ingested, and a fixed-size fingerprint of its surprise
// trajectory used for similarity search.
type Run struct {
	ID            uuid.UUID      `json:"id"`
	Model         string         `json:"model"`
	Steps         int            `json:"steps"`
	TotalSurprise float64        `json:"total_surprise"`
	Fingerprint   []float32      `json:"-"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// RunWithScore is a Run annotated with a cosine similarity score against a
// query fingerprint.
type RunWithScore struct {
	Run
	Score float32 `json:"score"`
}
