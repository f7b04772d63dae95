package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GhostScientist/assay/internal/models"
)

// timeLayout is fixed width so DATETIME columns sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// Store is an open handle on one project's run/sample/annotation database.
// Callers open it for the duration of an operation and close it afterwards.
type Store struct {
	db *sql.DB
}

// Open opens an existing store created by Schema.Init.
func Open(ctx context.Context, storePath string) (*Store, error) {
	if _, err := os.Stat(storePath); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrStoreOpen, storePath, err)
	}
	db, err := openDB(storePath)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrStoreOpen, storePath, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w %s: %w", ErrStoreOpen, storePath, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run. ID, StartedAt and Status are filled in when empty.
func (s *Store) CreateRun(ctx context.Context, run models.EvalRun) (*models.EvalRun, error) {
	if run.EvalID == "" || run.ModelID == "" {
		return nil, fmt.Errorf("run requires eval_id and model_id")
	}
	if run.ConfigJSON == "" {
		return nil, fmt.Errorf("run requires a config snapshot")
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}

	var completedAt any
	if run.CompletedAt != nil {
		completedAt = formatTime(*run.CompletedAt)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO eval_runs (id, project_id, eval_id, model_id, started_at, completed_at, status, config_json, metrics_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ProjectID, run.EvalID, run.ModelID, formatTime(run.StartedAt),
		completedAt, run.Status, run.ConfigJSON, nullString(run.MetricsJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return s.GetRun(ctx, run.ID)
}

// CompleteRun records the terminal status and metrics of a run. The config
// snapshot is left untouched.
func (s *Store) CompleteRun(ctx context.Context, id, status string, metricsJSON *string) (*models.EvalRun, error) {
	if status == "" {
		status = models.RunStatusCompleted
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE eval_runs SET completed_at = ?, status = ?, metrics_json = ? WHERE id = ?`,
		formatTime(time.Now()), status, nullString(metricsJSON), id,
	)
	if err != nil {
		return nil, fmt.Errorf("complete run: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return nil, fmt.Errorf("run %q: %w", id, ErrNotFound)
	}
	return s.GetRun(ctx, id)
}

const runColumns = `id, project_id, eval_id, model_id, started_at, completed_at, status, config_json, metrics_json`

// GetRun loads a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*models.EvalRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM eval_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %q: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns runs newest first, optionally restricted to one eval.
func (s *Store) ListRuns(ctx context.Context, evalID string) ([]models.EvalRun, error) {
	var rows *sql.Rows
	var err error
	if evalID == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+runColumns+` FROM eval_runs ORDER BY started_at DESC`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+runColumns+` FROM eval_runs WHERE eval_id = ? ORDER BY started_at DESC`, evalID)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.EvalRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// InsertSample adds a sample to an existing run.
func (s *Store) InsertSample(ctx context.Context, sample models.Sample) (*models.Sample, error) {
	if sample.RunID == "" {
		return nil, fmt.Errorf("sample requires run_id")
	}
	if sample.ID == "" {
		sample.ID = uuid.New().String()
	}
	if sample.InputJSON == "" {
		sample.InputJSON = "null"
	}
	if sample.Status == "" {
		sample.Status = "pending"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO samples (id, run_id, index_num, input_json, output_json, scores_json, trajectory_json, status, latency_ms, tokens_input, tokens_output)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sample.ID, sample.RunID, sample.Index, sample.InputJSON,
		nullString(sample.OutputJSON), nullString(sample.ScoresJSON), nullString(sample.TrajectoryJSON),
		sample.Status, nullInt(sample.LatencyMS), nullInt(sample.TokensInput), nullInt(sample.TokensOutput),
	)
	if err != nil {
		return nil, fmt.Errorf("insert sample %d of run %q: %w", sample.Index, sample.RunID, err)
	}
	return s.GetSample(ctx, sample.ID)
}

// UpdateSampleResult stores the outcome of a sample.
func (s *Store) UpdateSampleResult(ctx context.Context, id string, res models.SampleResult) (*models.Sample, error) {
	if res.Status == "" {
		res.Status = "completed"
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE samples SET output_json = ?, scores_json = ?, trajectory_json = ?, status = ?,
		        latency_ms = ?, tokens_input = ?, tokens_output = ?
		 WHERE id = ?`,
		nullString(res.OutputJSON), nullString(res.ScoresJSON), nullString(res.TrajectoryJSON), res.Status,
		nullInt(res.LatencyMS), nullInt(res.TokensInput), nullInt(res.TokensOutput), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update sample: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return nil, fmt.Errorf("sample %q: %w", id, ErrNotFound)
	}
	return s.GetSample(ctx, id)
}

const sampleColumns = `id, run_id, index_num, input_json, output_json, scores_json, trajectory_json, status, latency_ms, tokens_input, tokens_output`

// GetSample loads a sample by id.
func (s *Store) GetSample(ctx context.Context, id string) (*models.Sample, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sampleColumns+` FROM samples WHERE id = ?`, id)
	sample, err := scanSample(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sample %q: %w", id, ErrNotFound)
	}
	return sample, err
}

// ListSamples returns the samples of a run in index order.
func (s *Store) ListSamples(ctx context.Context, runID string) ([]models.Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sampleColumns+` FROM samples WHERE run_id = ? ORDER BY index_num`, runID)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	var samples []models.Sample
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, *sample)
	}
	return samples, rows.Err()
}

// AddAnnotation attaches a note to an existing sample.
func (s *Store) AddAnnotation(ctx context.Context, a models.Annotation) (*models.Annotation, error) {
	if a.SampleID == "" || strings.TrimSpace(a.Author) == "" {
		return nil, fmt.Errorf("annotation requires sample_id and author")
	}
	if a.Type == "" {
		a.Type = "note"
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO annotations (id, sample_id, author, created_at, annotation_type, content) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.SampleID, a.Author, formatTime(a.CreatedAt), a.Type, a.Content,
	)
	if err != nil {
		return nil, fmt.Errorf("insert annotation on sample %q: %w", a.SampleID, err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

// ListAnnotations returns a sample's annotations oldest first.
func (s *Store) ListAnnotations(ctx context.Context, sampleID string) ([]models.Annotation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sample_id, author, created_at, annotation_type, content
		 FROM annotations WHERE sample_id = ? ORDER BY created_at`, sampleID)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()

	var out []models.Annotation
	for rows.Next() {
		var a models.Annotation
		var createdAt string
		if err := rows.Scan(&a.ID, &a.SampleID, &a.Author, &createdAt, &a.Type, &a.Content); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("annotation %q created_at: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.EvalRun, error) {
	var r models.EvalRun
	var startedAt string
	var completedAt, metrics sql.NullString
	err := row.Scan(&r.ID, &r.ProjectID, &r.EvalID, &r.ModelID, &startedAt, &completedAt, &r.Status, &r.ConfigJSON, &metrics)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if r.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("run %q started_at: %w", r.ID, err)
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("run %q completed_at: %w", r.ID, err)
		}
		r.CompletedAt = &t
	}
	r.MetricsJSON = stringPtr(metrics)
	return &r, nil
}

func scanSample(row rowScanner) (*models.Sample, error) {
	var sm models.Sample
	var output, scores, trajectory sql.NullString
	var latency, tokensIn, tokensOut sql.NullInt64
	err := row.Scan(&sm.ID, &sm.RunID, &sm.Index, &sm.InputJSON, &output, &scores, &trajectory,
		&sm.Status, &latency, &tokensIn, &tokensOut)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan sample: %w", err)
	}
	sm.OutputJSON = stringPtr(output)
	sm.ScoresJSON = stringPtr(scores)
	sm.TrajectoryJSON = stringPtr(trajectory)
	sm.LatencyMS = intPtr(latency)
	sm.TokensInput = intPtr(tokensIn)
	sm.TokensOutput = intPtr(tokensOut)
	return &sm, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	return &n.String
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return &n.Int64
}
