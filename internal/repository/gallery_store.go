package repository

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/gallery"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/vector"
)

// GalleryStore persists gallery templates in Postgres. Templates are kept
// as pgvector columns, which store single precision.
type GalleryStore struct {
	pool PgxPool
}

func NewGalleryStore(pool PgxPool) *GalleryStore {
	return &GalleryStore{pool: pool}
}

func (s *GalleryStore) Load(ctx context.Context) ([]gallery.Record, error) {
	query := `
		SELECT space, identity_key, embedding, sample_count
		FROM gallery_templates
		ORDER BY space, identity_key
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	defer rows.Close()

	var records []gallery.Record
	for rows.Next() {
		var r gallery.Record
		var embedding *pgvector.Vector

		if err := rows.Scan(&r.Space, &r.Key, &embedding, &r.SampleCount); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		if embedding != nil {
			r.Vector = vector.Float64(embedding.Slice())
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}

	return records, nil
}

// Save replaces the table contents in one transaction
func (s *GalleryStore) Save(ctx context.Context, records []gallery.Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM gallery_templates`); err != nil {
		return fmt.Errorf("clear templates: %w", err)
	}

	query := `
		INSERT INTO gallery_templates (space, identity_key, embedding, sample_count, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	for _, r := range records {
		vec := pgvector.NewVector(vector.Float32(r.Vector))
		if _, err := tx.Exec(ctx, query, r.Space, r.Key, vec, r.SampleCount); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert template %s/%s: duplicate identity: %w", r.Space, r.Key, err)
			}
			return fmt.Errorf("insert template %s/%s: %w", r.Space, r.Key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Quantize rounds v through float32, the precision of the vector column
func (s *GalleryStore) Quantize(v []float64) []float64 {
	return vector.Float64(vector.Float32(v))
}

var (
	_ gallery.Store     = (*GalleryStore)(nil)
	_ gallery.Quantizer = (*GalleryStore)(nil)
)
