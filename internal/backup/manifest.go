package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// RenameRecord is one executed volume rename, as recorded in the manifest.
type RenameRecord struct {
	Pool    string `yaml:"pool"`
	OldName string `yaml:"old_name"`
	NewName string `yaml:"new_name"`
	Backend string `yaml:"backend"`
	// Reverted is true when the rename was undone by best-effort reversal
	// after a later failure.
	Reverted bool `yaml:"reverted,omitempty"`
}

// Relocation records a moved local filesystem subtree, old path first so the
// move can be reversed by hand.
type Relocation struct {
	OldPath string `yaml:"old_path"`
	NewPath string `yaml:"new_path"`
}

// Manifest is the machine-readable record of a renumber operation, written
// next to the plain-text mapping log.
type Manifest struct {
	OperationID string         `yaml:"operation_id"`
	OldID       int            `yaml:"old_id"`
	NewID       int            `yaml:"new_id"`
	UnitKind    string         `yaml:"unit_kind"`
	StartedAt   time.Time      `yaml:"started_at"`
	Renames     []RenameRecord `yaml:"renames,omitempty"`
	Relocations []Relocation   `yaml:"relocations,omitempty"`
}

// WriteManifest serializes the manifest into the backup directory,
// replacing any previous version.
func (d *Dir) WriteManifest(m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	path := filepath.Join(d.path, ManifestFileName)
	if err := os.WriteFile(path, data, filePermissions); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest from a backup directory.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return &m, nil
}
