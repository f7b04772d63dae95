package storage

import (
	"context"
	"fmt"

	"github.com/GhostScientist/assay/internal/models"
)

// DefaultSearchLimit caps SearchSamples when the caller passes limit <= 0.
const DefaultSearchLimit = 50

// SearchSamples runs an FTS5 query over sample inputs and outputs and returns
// the best matches first. The query accepts FTS5 syntax (AND, OR, NOT, prefix*).
func (s *Store) SearchSamples(ctx context.Context, query string, limit int) ([]models.SampleHit, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.run_id, s.index_num, s.input_json, s.output_json, s.scores_json, s.trajectory_json,
		        s.status, s.latency_ms, s.tokens_input, s.tokens_output, r.eval_id, r.model_id
		 FROM samples_fts
		 JOIN samples s ON s.rowid = samples_fts.rowid
		 JOIN eval_runs r ON r.id = s.run_id
		 WHERE samples_fts MATCH ?
		 ORDER BY samples_fts.rank
		 LIMIT ?`,
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search samples fts: %w", err)
	}
	defer rows.Close()

	var hits []models.SampleHit
	for rows.Next() {
		var hit models.SampleHit
		sample, err := scanSample(scanFunc(func(dest ...any) error {
			return rows.Scan(append(dest, &hit.EvalID, &hit.ModelID)...)
		}))
		if err != nil {
			return nil, err
		}
		hit.Sample = *sample
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// RebuildSearchIndex re-derives samples_fts from the samples table. The
// triggers keep the index current; this is for stores whose index drifted,
// for example after a VACUUM renumbered rowids.
func (s *Store) RebuildSearchIndex(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO samples_fts(samples_fts) VALUES ('delete-all')`); err != nil {
		return fmt.Errorf("clear search index: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO samples_fts(rowid, input_text, output_text)
		 SELECT rowid, input_json, coalesce(output_json, '') FROM samples`,
	); err != nil {
		return fmt.Errorf("fill search index: %w", err)
	}
	return tx.Commit()
}

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }
