package evaldef

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/GhostScientist/assay/internal/models"
)

// Dir is the definitions directory under a project root.
const Dir = "evals"

var (
	ErrRead     = errors.New("read eval definition")
	ErrParse    = errors.New("parse eval definition")
	ErrNotFound = errors.New("eval definition not found")
)

// Loader reads definitions from disk. It holds no state between calls.
type Loader struct {
	logger *zap.Logger

	// Policy decides what listing does with a file that fails to load.
	// It defaults to models.FailFast: one bad file fails the whole listing.
	Policy models.ErrorPolicy
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger, Policy: models.FailFast}
}

// IsDefinitionFile reports whether name has a .yaml or .yml extension.
// The match is case-sensitive.
func IsDefinitionFile(name string) bool {
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadOne reads and validates the definition at path.
func (l *Loader) LoadOne(path string) (*EvalDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrRead, path, err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrParse, path, err)
	}
	return def, nil
}

// Parse decodes one definition document.
func Parse(data []byte) (*EvalDefinition, error) {
	var def EvalDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if def.Execution.Model.Kind == ModelUnset {
		return nil, errors.New("execution.model is required")
	}
	return &def, nil
}

// ListSummaries loads every definition under <projectPath>/evals and
// returns their summaries sorted by name, ignoring case. A missing evals
// directory yields an empty list.
func (l *Loader) ListSummaries(projectPath string) ([]EvalSummary, error) {
	files, err := definitionFiles(projectPath)
	if err != nil {
		return nil, err
	}

	summaries := make([]EvalSummary, 0, len(files))
	for _, path := range files {
		def, err := l.LoadOne(path)
		if err != nil {
			if l.Policy == models.FailFast {
				return nil, err
			}
			l.logger.Warn("skipping eval definition",
				zap.String("path", path),
				zap.Stringer("policy", l.Policy),
				zap.Error(err))
			continue
		}
		summaries = append(summaries, def.Summary(path))
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return strings.ToLower(summaries[i].Name) < strings.ToLower(summaries[j].Name)
	})
	return summaries, nil
}

// Find returns the definition whose id matches. Files are tried in
// directory order and load failures follow Policy.
func (l *Loader) Find(projectPath, id string) (*EvalDefinition, string, error) {
	files, err := definitionFiles(projectPath)
	if err != nil {
		return nil, "", err
	}
	for _, path := range files {
		def, err := l.LoadOne(path)
		if err != nil {
			if l.Policy == models.FailFast {
				return nil, "", err
			}
			l.logger.Warn("skipping eval definition", zap.String("path", path), zap.Error(err))
			continue
		}
		if def.ID == id {
			return def, path, nil
		}
	}
	return nil, "", fmt.Errorf("%w: %s", ErrNotFound, id)
}

// definitionFiles lists regular .yaml/.yml files directly under evals/.
// Symlinks and subdirectories are ignored.
func definitionFiles(projectPath string) ([]string, error) {
	dir := filepath.Join(projectPath, Dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: list %s: %w", ErrRead, dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !IsDefinitionFile(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}
