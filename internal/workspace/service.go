// Package workspace is the operation surface shared by the CLI and the MCP
// server. Every operation runs on the dispatch pool and opens whatever it
// needs for that call only.
package workspace

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GhostScientist/assay/internal/dispatch"
	"github.com/GhostScientist/assay/internal/evaldef"
	"github.com/GhostScientist/assay/internal/models"
	"github.com/GhostScientist/assay/internal/project"
	"github.com/GhostScientist/assay/internal/storage"
)

// Service routes host requests to projects, eval definitions and stores.
type Service struct {
	projects *project.Store
	schema   *storage.Schema
	evals    *evaldef.Loader
	pool     *dispatch.Pool
	logger   *zap.Logger
}

// New wires a Service. schema must be the one projects initializes stores
// with.
func New(projects *project.Store, schema *storage.Schema, evals *evaldef.Loader, pool *dispatch.Pool, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{projects: projects, schema: schema, evals: evals, pool: pool, logger: logger}
}

// NewDefault wires a Service with the standard project store, loader and a
// pool of the given size.
func NewDefault(workers int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	schema := storage.NewSchema(logger)
	return New(
		project.NewStore(schema, logger),
		schema,
		evaldef.NewLoader(logger),
		dispatch.NewPool(workers, logger),
		logger,
	)
}

// Wait blocks until in-flight jobs finish.
func (s *Service) Wait() { s.pool.Wait() }

func (s *Service) CreateProject(ctx context.Context, path, name string) (*models.ProjectInfo, error) {
	return dispatch.Do(ctx, s.pool, "create_project", func() (*models.ProjectInfo, error) {
		return s.projects.Create(ctx, path, name)
	})
}

func (s *Service) OpenProject(ctx context.Context, path string) (*models.ProjectInfo, error) {
	return dispatch.Do(ctx, s.pool, "open_project", func() (*models.ProjectInfo, error) {
		return s.projects.Open(ctx, path)
	})
}

// ListProjects never returns a nil slice so hosts always see a JSON array.
func (s *Service) ListProjects(ctx context.Context, root string) ([]models.ProjectInfo, error) {
	return dispatch.Do(ctx, s.pool, "list_projects", func() ([]models.ProjectInfo, error) {
		projects, err := s.projects.List(ctx, root)
		if err != nil {
			return nil, err
		}
		if projects == nil {
			projects = []models.ProjectInfo{}
		}
		return projects, nil
	})
}

func (s *Service) ListEvals(ctx context.Context, projectPath string) ([]evaldef.EvalSummary, error) {
	return dispatch.Do(ctx, s.pool, "list_evals", func() ([]evaldef.EvalSummary, error) {
		return s.evals.ListSummaries(projectPath)
	})
}

// WatchEvals re-lists definitions after each change under evals/ until ctx
// ends. It runs on the caller's goroutine rather than the pool since it
// lives as long as ctx does.
func (s *Service) WatchEvals(ctx context.Context, projectPath string, fn func([]evaldef.EvalSummary, error)) error {
	return s.evals.Watch(ctx, projectPath, evaldef.DefaultDebounce, fn)
}

// EvalDetail is a full definition with the file it came from.
type EvalDetail struct {
	Path       string                  `json:"path"`
	Definition *evaldef.EvalDefinition `json:"definition"`
}

func (s *Service) GetEval(ctx context.Context, projectPath, id string) (*EvalDetail, error) {
	return dispatch.Do(ctx, s.pool, "get_eval", func() (*EvalDetail, error) {
		def, path, err := s.evals.Find(projectPath, id)
		if err != nil {
			return nil, err
		}
		return &EvalDetail{Path: path, Definition: def}, nil
	})
}

func (s *Service) SearchSamples(ctx context.Context, projectPath, query string, limit int) ([]models.SampleHit, error) {
	return withStore(ctx, s, "search_samples", projectPath, func(st *storage.Store) ([]models.SampleHit, error) {
		hits, err := st.SearchSamples(ctx, query, limit)
		if hits == nil && err == nil {
			hits = []models.SampleHit{}
		}
		return hits, err
	})
}

func (s *Service) ListRuns(ctx context.Context, projectPath, evalID string) ([]models.EvalRun, error) {
	return withStore(ctx, s, "list_runs", projectPath, func(st *storage.Store) ([]models.EvalRun, error) {
		runs, err := st.ListRuns(ctx, evalID)
		if runs == nil && err == nil {
			runs = []models.EvalRun{}
		}
		return runs, err
	})
}

// AnnotationRequest is the host-facing input of AnnotateSample.
type AnnotationRequest struct {
	SampleID string
	Author   string
	Type     string
	Content  string
}

func (s *Service) AnnotateSample(ctx context.Context, projectPath string, req AnnotationRequest) (*models.Annotation, error) {
	return withStore(ctx, s, "annotate_sample", projectPath, func(st *storage.Store) (*models.Annotation, error) {
		return st.AddAnnotation(ctx, models.Annotation{
			SampleID: req.SampleID,
			Author:   req.Author,
			Type:     req.Type,
			Content:  req.Content,
		})
	})
}

func (s *Service) ListAnnotations(ctx context.Context, projectPath, sampleID string) ([]models.Annotation, error) {
	return withStore(ctx, s, "list_annotations", projectPath, func(st *storage.Store) ([]models.Annotation, error) {
		annotations, err := st.ListAnnotations(ctx, sampleID)
		if annotations == nil && err == nil {
			annotations = []models.Annotation{}
		}
		return annotations, err
	})
}

// StoreVersion reports the newest schema migration applied to the project's
// store. Opening the project brings the schema current first.
func (s *Service) StoreVersion(ctx context.Context, projectPath string) (string, error) {
	return dispatch.Do(ctx, s.pool, "store_version", func() (string, error) {
		info, err := s.projects.Open(ctx, projectPath)
		if err != nil {
			return "", err
		}
		return s.schema.Version(ctx, info.DBPath)
	})
}

// ReindexSamples rebuilds the project's sample search index.
func (s *Service) ReindexSamples(ctx context.Context, projectPath string) error {
	_, err := withStore(ctx, s, "reindex_samples", projectPath, func(st *storage.Store) (struct{}, error) {
		return struct{}{}, st.RebuildSearchIndex(ctx)
	})
	return err
}

// withStore opens the project (bringing its schema current), then opens
// its store for the duration of fn.
func withStore[T any](ctx context.Context, s *Service, name, projectPath string, fn func(*storage.Store) (T, error)) (T, error) {
	return dispatch.Do(ctx, s.pool, name, func() (T, error) {
		var zero T
		info, err := s.projects.Open(ctx, projectPath)
		if err != nil {
			return zero, err
		}
		st, err := storage.Open(ctx, info.DBPath)
		if err != nil {
			return zero, err
		}
		defer func() {
			if err := st.Close(); err != nil {
				s.logger.Warn("close store", zap.String("path", info.DBPath), zap.Error(err))
			}
		}()
		v, err := fn(st)
		if err != nil {
			return zero, fmt.Errorf("%s: %w", name, err)
		}
		return v, nil
	})
}
