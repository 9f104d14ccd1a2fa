// Package configstore provides access to guest configuration records kept
// by the cluster config filesystem. Each record is a plain-text file keyed
// by the guest's numeric identifier; VM-style and container-style guests
// live under separate directories.
package configstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultVMDir is the default directory for VM configuration files.
	DefaultVMDir = "/etc/pve/qemu-server"

	// DefaultCTDir is the default directory for container configuration files.
	DefaultCTDir = "/etc/pve/lxc"

	// FilePermissions are the permissions for newly written config files.
	FilePermissions = 0640
)

// ErrNotFound is returned when no configuration exists for an identifier.
var ErrNotFound = errors.New("configuration not found")

// UnitKind identifies which flavor of guest a configuration belongs to.
type UnitKind string

const (
	// UnitVM is a QEMU virtual machine.
	UnitVM UnitKind = "vm"
	// UnitCT is an LXC container.
	UnitCT UnitKind = "ct"
)

// Store reads and writes guest configuration records.
//
// The store does not own the lifecycle of the records beyond a renumber
// operation: the key swap is an explicit write-new / verify / delete-old
// sequence driven by the caller, so the window where both keys exist is
// part of the contract rather than an accident of file ordering.
type Store struct {
	vmDir string
	ctDir string
}

// New creates a Store using the platform's default config directories.
func New() *Store {
	return NewWithDirs(DefaultVMDir, DefaultCTDir)
}

// NewWithDirs creates a Store rooted at custom directories.
// This allows tests to operate on a temporary tree.
func NewWithDirs(vmDir, ctDir string) *Store {
	return &Store{vmDir: vmDir, ctDir: ctDir}
}

// Path returns the config file path for an identifier of the given kind.
func (s *Store) Path(kind UnitKind, id int) string {
	dir := s.vmDir
	if kind == UnitCT {
		dir = s.ctDir
	}
	return filepath.Join(dir, fmt.Sprintf("%d.conf", id))
}

// Kind reports which kind of guest owns the identifier, based on which
// config file exists. Returns ErrNotFound when neither exists.
func (s *Store) Kind(id int) (UnitKind, error) {
	if fileExists(s.Path(UnitVM, id)) {
		return UnitVM, nil
	}
	if fileExists(s.Path(UnitCT, id)) {
		return UnitCT, nil
	}
	return "", fmt.Errorf("guest %d: %w", id, ErrNotFound)
}

// Exists reports whether any configuration (VM or container) exists for id.
func (s *Store) Exists(id int) bool {
	return fileExists(s.Path(UnitVM, id)) || fileExists(s.Path(UnitCT, id))
}

// Read returns the raw configuration bytes for an identifier.
func (s *Store) Read(kind UnitKind, id int) ([]byte, error) {
	data, err := os.ReadFile(s.Path(kind, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("guest %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read config for guest %d: %w", id, err)
	}
	return data, nil
}

// WriteNew writes a configuration under a new identifier. It refuses to
// overwrite an existing record: the caller is expected to have validated
// that the target key is free, and this is the last line of defense.
func (s *Store) WriteNew(kind UnitKind, id int, data []byte) error {
	path := s.Path(kind, id)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, FilePermissions)
	if err != nil {
		return fmt.Errorf("failed to create config for guest %d: %w", id, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write config for guest %d: %w", id, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close config for guest %d: %w", id, err)
	}
	return nil
}

// Rewrite replaces the contents of an existing record in place. Used to
// persist the working copy as references are rewritten.
func (s *Store) Rewrite(kind UnitKind, id int, data []byte) error {
	if err := os.WriteFile(s.Path(kind, id), data, FilePermissions); err != nil {
		return fmt.Errorf("failed to rewrite config for guest %d: %w", id, err)
	}
	return nil
}

// Remove deletes the configuration record for an identifier.
func (s *Store) Remove(kind UnitKind, id int) error {
	if err := os.Remove(s.Path(kind, id)); err != nil {
		return fmt.Errorf("failed to remove config for guest %d: %w", id, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
