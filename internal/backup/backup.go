// Package backup produces the audit artifacts of a renumber operation: an
// immutable copy of the original configuration, an append-only rename
// mapping log, and a machine-readable manifest. The backup directory is the
// operator's single source of truth for manual recovery.
package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultBaseDir is where backup directories are created by default.
	DefaultBaseDir = "/var/lib/vz/renumber-backups"

	// ConfigFileName is the name of the original config copy inside a backup.
	ConfigFileName = "config.orig"

	// MappingFileName is the name of the rename mapping log.
	MappingFileName = "rename-mapping.txt"

	// ManifestFileName is the name of the YAML manifest.
	ManifestFileName = "manifest.yaml"

	dirPermissions  = 0750
	filePermissions = 0640
)

// Dir is one backup directory for a single renumber operation.
type Dir struct {
	path    string
	mapping *os.File
}

// Create makes a uniquely named backup directory under baseDir. The name
// carries the identifiers, a timestamp and a short random suffix so repeated
// attempts never collide.
func Create(baseDir string, oldID, newID int, now time.Time) (*Dir, error) {
	if err := os.MkdirAll(baseDir, dirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create backup base directory: %w", err)
	}

	name := fmt.Sprintf("renumber-%d-to-%d-%s-%s",
		oldID, newID, now.Format("20060102-150405"), uuid.NewString()[:8])
	path := filepath.Join(baseDir, name)
	if err := os.Mkdir(path, dirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &Dir{path: path}, nil
}

// Path returns the backup directory path.
func (d *Dir) Path() string {
	return d.path
}

// MappingPath returns the path of the rename mapping log.
func (d *Dir) MappingPath() string {
	return filepath.Join(d.path, MappingFileName)
}

// SaveConfig stores a byte-for-byte copy of the original configuration.
func (d *Dir) SaveConfig(data []byte) error {
	path := filepath.Join(d.path, ConfigFileName)
	if err := os.WriteFile(path, data, filePermissions); err != nil {
		return fmt.Errorf("failed to save config backup: %w", err)
	}
	return nil
}

// AppendMapping appends one rename record to the mapping log and flushes it
// to disk, so the log is complete up to the last executed rename even when
// the process dies mid-operation.
func (d *Dir) AppendMapping(oldRef, newRef string) error {
	if d.mapping == nil {
		f, err := os.OpenFile(d.MappingPath(), os.O_WRONLY|os.O_CREATE|os.O_APPEND, filePermissions)
		if err != nil {
			return fmt.Errorf("failed to open mapping log: %w", err)
		}
		d.mapping = f
	}

	if _, err := fmt.Fprintf(d.mapping, "%s -> %s\n", oldRef, newRef); err != nil {
		return fmt.Errorf("failed to append to mapping log: %w", err)
	}
	if err := d.mapping.Sync(); err != nil {
		return fmt.Errorf("failed to sync mapping log: %w", err)
	}
	return nil
}

// Close releases the mapping log handle, if one was opened.
func (d *Dir) Close() error {
	if d.mapping == nil {
		return nil
	}
	err := d.mapping.Close()
	d.mapping = nil
	return err
}
