package project

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/GhostScientist/assay/internal/models"
)

// manifestFile is the on-disk shape of Assay.toml. created_at is kept as an
// RFC 3339 string rather than a TOML datetime.
type manifestFile struct {
	ID        string `toml:"id"`
	Name      string `toml:"name"`
	CreatedAt string `toml:"created_at"`
	Version   string `toml:"version"`
}

func encodeManifest(m models.ProjectManifest) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	err := enc.Encode(manifestFile{
		ID:        m.ID.String(),
		Name:      m.Name,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
		Version:   m.Version,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeManifest(data []byte) (models.ProjectManifest, error) {
	var f manifestFile
	if _, err := toml.Decode(string(data), &f); err != nil {
		return models.ProjectManifest{}, err
	}

	id, err := uuid.Parse(f.ID)
	if err != nil {
		return models.ProjectManifest{}, fmt.Errorf("id %q: %w", f.ID, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, f.CreatedAt)
	if err != nil {
		return models.ProjectManifest{}, fmt.Errorf("created_at %q: %w", f.CreatedAt, err)
	}
	if strings.TrimSpace(f.Name) == "" {
		return models.ProjectManifest{}, fmt.Errorf("name is empty")
	}
	return models.ProjectManifest{
		ID:        id,
		Name:      f.Name,
		CreatedAt: createdAt,
		Version:   f.Version,
	}, nil
}

// readManifest loads and validates the manifest at path.
func readManifest(path string) (models.ProjectManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ProjectManifest{}, fmt.Errorf("%w %s: %w", ErrManifestUnreadable, path, err)
	}
	m, err := decodeManifest(data)
	if err != nil {
		return models.ProjectManifest{}, fmt.Errorf("%w %s: %w", ErrManifestMalformed, path, err)
	}
	return m, nil
}
