package renumber

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jbweber/renumber/internal/configstore"
)

// fakeRunner scripts every external command the orchestrator runs. Each
// command name maps to a handler; unscripted commands fail the plan loudly.
type fakeRunner struct {
	handlers map[string]func(args ...string) ([]byte, error)
	calls    []string
}

func newRunner() *fakeRunner {
	return &fakeRunner{handlers: map[string]func(args ...string) ([]byte, error){}}
}

func (f *fakeRunner) Run(name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, strings.Join(append([]string{name}, args...), " "))
	h, ok := f.handlers[name]
	if !ok {
		return nil, fmt.Errorf("unexpected command: %s %s", name, strings.Join(args, " "))
	}
	return h(args...)
}

func (f *fakeRunner) handle(name string, h func(args ...string) ([]byte, error)) {
	f.handlers[name] = h
}

// called reports whether any recorded call starts with prefix.
func (f *fakeRunner) called(prefix string) bool {
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// env is a complete test environment: a temporary config store, backup base
// and images directory, plus a scripted runner with a healthy default
// platform (registry listing, stopped guest, succeeding renames).
type env struct {
	store     *configstore.Store
	runner    *fakeRunner
	backupDir string
	imagesDir string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	base := t.TempDir()
	vmDir := filepath.Join(base, "qemu-server")
	ctDir := filepath.Join(base, "lxc")
	backupDir := filepath.Join(base, "backups")
	imagesDir := filepath.Join(base, "images")
	for _, dir := range []string{vmDir, ctDir, imagesDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("failed to create %s: %v", dir, err)
		}
	}

	runner := newRunner()
	runner.handle("pvesm", func(args ...string) ([]byte, error) {
		return []byte("local dir active 1 1 1 1%\n" +
			"local-lvm lvmthin active 1 1 1 1%\n" +
			"local-zfs zfspool active 1 1 1 1%\n" +
			"ceph-vm rbd active 1 1 1 1%\n"), nil
	})
	runner.handle("qm", func(args ...string) ([]byte, error) {
		if args[0] == "status" {
			return []byte("status: stopped\n"), nil
		}
		return nil, nil
	})
	runner.handle("pct", func(args ...string) ([]byte, error) {
		if args[0] == "status" {
			return []byte("status: stopped\n"), nil
		}
		return nil, nil
	})
	runner.handle("zfs", func(args ...string) ([]byte, error) {
		if args[0] == "list" {
			return []byte("rpool/data/vm-218-disk-0\nrpool/data/subvol-218-disk-2\n"), nil
		}
		return nil, nil
	})
	runner.handle("rbd", func(args ...string) ([]byte, error) { return nil, nil })
	runner.handle("vgs", func(args ...string) ([]byte, error) { return []byte("  pve\n"), nil })
	runner.handle("lvrename", func(args ...string) ([]byte, error) { return nil, nil })

	return &env{
		store:     configstore.NewWithDirs(vmDir, ctDir),
		runner:    runner,
		backupDir: backupDir,
		imagesDir: imagesDir,
	}
}

func (e *env) options(oldID, newID int) Options {
	return Options{
		OldID:          oldID,
		NewID:          newID,
		Store:          e.store,
		Runner:         e.runner,
		BackupBaseDir:  e.backupDir,
		ImagesDir:      e.imagesDir,
		CheckPrivilege: func() error { return nil },
		LookPath:       func(string) (string, error) { return "/usr/sbin/pvesm", nil },
		Now:            func() time.Time { return time.Date(2026, 8, 26, 14, 30, 0, 0, time.UTC) },
	}
}

func (e *env) writeConfig(t *testing.T, kind configstore.UnitKind, id int, content string) {
	t.Helper()
	if err := e.store.WriteNew(kind, id, []byte(content)); err != nil {
		t.Fatalf("failed to seed config for guest %d: %v", id, err)
	}
}

// backupDirs lists backup directories created during the test.
func (e *env) backupDirs(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("failed to list backup dir: %v", err)
	}
	var dirs []string
	for _, entry := range entries {
		dirs = append(dirs, filepath.Join(e.backupDir, entry.Name()))
	}
	return dirs
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}
