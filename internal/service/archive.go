package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/velle-lab/gohgf/internal/domain"
	"github.com/velle-lab/gohgf/internal/fingerprint"
	"github.com/velle-lab/gohgf/internal/store"
	"go.uber.org/zap"
)

var (
	ErrRunNotFound   = errors.New("run not found")
	ErrNothingToSave = errors.New("session has no committed steps")
)

// ArchiveService persists finished runs and answers similarity queries
// over their surprise fingerprints.
type ArchiveService struct {
	runs     domain.RunStore
	sessions *SessionService
	encoder  *fingerprint.Encoder
	logger   *zap.Logger
}

func NewArchiveService(runs domain.RunStore, sessions *SessionService, encoder *fingerprint.Encoder, logger *zap.Logger) *ArchiveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveService{
		runs:     runs,
		sessions: sessions,
		encoder:  encoder,
		logger:   logger,
	}
}

// Archive snapshots a live session into the run archive.
func (s *ArchiveService) Archive(ctx context.Context, sessionID uuid.UUID, metadata map[string]any) (*domain.Run, error) {
	info, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if info.Steps == 0 {
		return nil, ErrNothingToSave
	}

	surprises, err := s.sessions.Surprises(sessionID)
	if err != nil {
		return nil, err
	}

	run := &domain.Run{
		Model:         info.Model,
		Steps:         info.Steps,
		TotalSurprise: info.TotalSurprise,
		Fingerprint:   s.encoder.Encode(surprises),
		Metadata:      metadata,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	s.logger.Info("run archived",
		zap.String("run_id", run.ID.String()),
		zap.String("model", run.Model),
		zap.Int("steps", run.Steps),
		zap.Float64("total_surprise", run.TotalSurprise))
	return run, nil
}

func (s *ArchiveService) Get(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

func (s *ArchiveService) List(ctx context.Context, limit int) ([]domain.Run, error) {
	return s.runs.List(ctx, limit)
}

func (s *ArchiveService) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.runs.Delete(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrRunNotFound
	}
	return err
}

// Similar finds the archived runs whose surprise profiles most resemble
// the given run's.
func (s *ArchiveService) Similar(ctx context.Context, id uuid.UUID, topK int) ([]domain.RunWithScore, error) {
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(run.Fingerprint) == 0 {
		return nil, nil
	}

	matches, err := s.runs.FindSimilar(ctx, run.Fingerprint, topK+1)
	if err != nil {
		return nil, err
	}

	// The query run is its own best match.
	out := matches[:0]
	for _, m := range matches {
		if m.ID == run.ID {
			continue
		}
		out = append(out, m)
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}
