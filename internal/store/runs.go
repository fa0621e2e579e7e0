package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/velle-lab/gohgf/internal/domain"
)

type RunStore struct {
	db *pgxpool.Pool
}

func NewRunStore(db *pgxpool.Pool) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) Create(ctx context.Context, r *domain.Run) error {
	var fp *pgvector.Vector
	if len(r.Fingerprint) > 0 {
		v := pgvector.NewVector(r.Fingerprint)
		fp = &v
	}

	return s.db.QueryRow(ctx,
		`INSERT INTO runs (model, steps, total_surprise, fingerprint, metadata)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		r.Model, r.Steps, r.TotalSurprise, fp, r.Metadata,
	).Scan(&r.ID, &r.CreatedAt)
}

func (s *RunStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	r := &domain.Run{}
	var fp pgvector.Vector
	err := s.db.QueryRow(ctx,
		`SELECT id, model, steps, total_surprise, fingerprint, metadata, created_at
		 FROM runs WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.Model, &r.Steps, &r.TotalSurprise, &fp, &r.Metadata, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.Fingerprint = fp.Slice()
	return r, nil
}

func (s *RunStore) List(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, model, steps, total_surprise, metadata, created_at
		 FROM runs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		var r domain.Run
		if err := rows.Scan(&r.ID, &r.Model, &r.Steps, &r.TotalSurprise, &r.Metadata, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *RunStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM runs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RunStore) FindSimilar(ctx context.Context, fingerprint []float32, topK int) ([]domain.RunWithScore, error) {
	if topK <= 0 {
		topK = 10
	}
	vec := pgvector.NewVector(fingerprint)

	rows, err := s.db.Query(ctx,
		`SELECT id, model, steps, total_surprise, metadata, created_at,
		        1 - (fingerprint <=> $1) AS score
		 FROM runs
		 WHERE fingerprint IS NOT NULL
		 ORDER BY fingerprint <=> $1
		 LIMIT $2`,
		vec, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("find similar query: %w", err)
	}
	defer rows.Close()

	var results []domain.RunWithScore
	for rows.Next() {
		var rs domain.RunWithScore
		if err := rows.Scan(&rs.ID, &rs.Model, &rs.Steps, &rs.TotalSurprise, &rs.Metadata, &rs.CreatedAt, &rs.Score); err != nil {
			return nil, fmt.Errorf("scan find similar row: %w", err)
		}
		results = append(results, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find similar rows: %w", err)
	}
	return results, nil
}
