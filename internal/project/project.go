// Package project manages assay project roots: the Assay.toml manifest, the
// fixed directory layout and the per-project store location.
package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GhostScientist/assay/internal/models"
)

const (
	// ManifestFile is the manifest name at every project root.
	ManifestFile = "Assay.toml"
	// InternalDir holds state the user never edits.
	InternalDir = ".assay"
	// StoreFile is the SQLite store inside InternalDir.
	StoreFile = "assay.db"
)

// Layout lists the user-facing directories created with every project.
var Layout = []string{"evals", "datasets", "results", "models", "plugins"}

var (
	ErrNameRequired       = errors.New("project name is required")
	ErrAlreadyInitialized = errors.New(ManifestFile + " already exists in this directory")
	ErrManifestUnreadable = errors.New("read " + ManifestFile)
	ErrManifestMalformed  = errors.New("parse " + ManifestFile)
	ErrManifestWrite      = errors.New("write " + ManifestFile)
	ErrDirectoryCreate    = errors.New("create directory")
	ErrEnumeration        = errors.New("read projects directory")
)

// SchemaInitializer prepares the store at a project's db path.
type SchemaInitializer interface {
	Init(ctx context.Context, storePath string) error
}

// Store creates, opens and lists projects on the local filesystem.
type Store struct {
	schema SchemaInitializer
	logger *zap.Logger

	// ListPolicy decides what List does with a project whose manifest
	// cannot be loaded. It defaults to models.SkipAndContinue.
	ListPolicy models.ErrorPolicy

	now func() time.Time
}

// NewStore returns a Store that initializes project stores through schema.
func NewStore(schema SchemaInitializer, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		schema:     schema,
		logger:     logger,
		ListPolicy: models.SkipAndContinue,
		now:        time.Now,
	}
}

// DBPath returns the store location for a project path.
func DBPath(projectPath string) string {
	return filepath.Join(projectPath, InternalDir, StoreFile)
}

// Create initializes a new project at root. Directory creation is not rolled
// back if a later step fails.
func (s *Store) Create(ctx context.Context, root, name string) (*models.ProjectInfo, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project path: %w", err)
	}

	manifestPath := filepath.Join(root, ManifestFile)
	if _, err := os.Stat(manifestPath); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInitialized, root)
	}

	dirs := []string{root}
	for _, dir := range Layout {
		dirs = append(dirs, filepath.Join(root, dir))
	}
	dirs = append(dirs, filepath.Join(root, InternalDir))
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrDirectoryCreate, dir, err)
		}
	}

	manifest := models.ProjectManifest{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: s.now().UTC(),
		Version:   models.InitialProjectVersion,
	}
	data, err := encodeManifest(manifest)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestWrite, err)
	}
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrManifestWrite, manifestPath, err)
	}

	info := projectInfo(root, manifest)
	if err := s.initStore(ctx, info); err != nil {
		return nil, err
	}

	s.logger.Info("project created",
		zap.String("project_id", info.ID.String()),
		zap.String("name", info.Name),
		zap.String("path", info.Path))
	return info, nil
}

// Open reads the manifest at path, restores the internal directory if it
// went missing and makes sure the store schema is current.
func (s *Store) Open(ctx context.Context, path string) (*models.ProjectInfo, error) {
	info, err := s.load(path)
	if err != nil {
		return nil, err
	}
	if err := s.initStore(ctx, info); err != nil {
		return nil, err
	}
	s.logger.Debug("project opened", zap.String("project_id", info.ID.String()), zap.String("path", info.Path))
	return info, nil
}

// List returns the projects found in the immediate subdirectories of root,
// oldest first. Subdirectories without a manifest are ignored; ones whose
// manifest fails to load are handled according to ListPolicy. Listing does
// not touch project stores.
func (s *Store) List(ctx context.Context, root string) ([]models.ProjectInfo, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrEnumeration, root, err)
	}

	projects := make([]models.ProjectInfo, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, ManifestFile)); err != nil {
			continue
		}

		info, err := s.load(dir)
		if err != nil {
			if s.ListPolicy == models.FailFast {
				return nil, err
			}
			s.logger.Warn("skipping project",
				zap.String("path", dir),
				zap.Stringer("policy", s.ListPolicy),
				zap.Error(err))
			continue
		}
		projects = append(projects, *info)
	}

	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].CreatedAt.Before(projects[j].CreatedAt)
	})
	return projects, nil
}

// load reads the manifest and recreates the internal directory.
func (s *Store) load(path string) (*models.ProjectInfo, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve project path: %w", err)
	}
	manifest, err := readManifest(filepath.Join(root, ManifestFile))
	if err != nil {
		return nil, err
	}
	internal := filepath.Join(root, InternalDir)
	if err := os.MkdirAll(internal, 0o755); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrDirectoryCreate, internal, err)
	}
	return projectInfo(root, manifest), nil
}

func (s *Store) initStore(ctx context.Context, info *models.ProjectInfo) error {
	if s.schema == nil {
		return nil
	}
	if err := s.schema.Init(ctx, info.DBPath); err != nil {
		return fmt.Errorf("initialize store for %s: %w", info.Path, err)
	}
	return nil
}

func projectInfo(root string, m models.ProjectManifest) *models.ProjectInfo {
	return &models.ProjectInfo{
		ID:        m.ID,
		Name:      m.Name,
		Path:      root,
		CreatedAt: m.CreatedAt,
		Version:   m.Version,
		DBPath:    DBPath(root),
	}
}
