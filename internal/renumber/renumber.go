// Package renumber changes the identifier of a guest while preserving its
// backing storage volumes, configuration and local state.
package renumber

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jbweber/renumber/internal/backup"
	"github.com/jbweber/renumber/internal/configstore"
	"github.com/jbweber/renumber/internal/confref"
	"github.com/jbweber/renumber/internal/guest"
	"github.com/jbweber/renumber/internal/storage"
)

// DefaultImagesDir is where directory-backed guest images live on the host.
// A subdirectory keyed by the old identifier is relocated during renumber.
const DefaultImagesDir = "/var/lib/vz/images"

// requiredTool must be on PATH before any mutation takes place; without the
// storage manager the registry cannot be queried.
const requiredTool = "pvesm"

// Options configures a renumber run. OldID and NewID are required; every
// other field has a production default and exists so tests can inject a
// temporary filesystem and scripted commands.
type Options struct {
	OldID int
	NewID int

	// StartAfter starts the guest once the renumber completed.
	StartAfter bool

	Store         *configstore.Store
	Runner        storage.Runner
	BackupBaseDir string
	ImagesDir     string

	// CheckPrivilege verifies the caller may mutate cluster state.
	// Defaults to requiring effective UID 0.
	CheckPrivilege func() error

	// LookPath resolves required tooling. Defaults to exec.LookPath.
	LookPath func(file string) (string, error)

	// Now supplies timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Result describes a completed renumber operation.
type Result struct {
	UnitKind      configstore.UnitKind
	NewConfigPath string
	BackupDir     string
	MappingPath   string
	Renames       []backup.RenameRecord
	Relocation    *backup.Relocation

	// StartRequested and Started make the post-rename restart outcome
	// explicit: a failed start does not undo the renumber, so the error is
	// carried here instead of failing the operation.
	StartRequested bool
	Started        bool
	StartErr       error
}

// renameStep is one planned volume rename: the reference as configured, the
// derived new name, and the backend that will execute it.
type renameStep struct {
	ref     confref.Ref
	newName string
	kind    storage.BackendKind
	renamer storage.VolumeRenamer
}

func (s renameStep) newRef() confref.Ref {
	return confref.Ref{Pool: s.ref.Pool, Volume: s.newName}
}

// Run renumbers a guest from opts.OldID to opts.NewID.
//
// The operation proceeds in strict order:
//  1. Validate preconditions (no mutation before this passes)
//  2. Create the backup directory and copy the original config
//  3. Stop the guest if it is running
//  4. Write the working config at the new identifier's path
//  5. Plan every volume rename up front (scan, parse, classify)
//  6. Execute the plan; rewrite the working config after each rename
//  7. Relocate local image state keyed by the old identifier
//  8. Remove the old config (point of no return)
//  9. Optionally start the guest
//
// A rename failure in step 6 triggers best-effort reversal of the renames
// already applied; everything performed is recorded in the backup directory
// for manual recovery. There are no automatic retries.
func Run(opts Options) (*Result, error) {
	applyDefaults(&opts)

	// Step 1: preconditions.
	kind, err := validate(&opts)
	if err != nil {
		return nil, err
	}

	original, err := opts.Store.Read(kind, opts.OldID)
	if err != nil {
		return nil, err
	}

	// Step 2: backup before any mutation.
	startedAt := opts.Now()
	log.Printf("Backing up configuration of guest %d...", opts.OldID)
	bdir, err := backup.Create(opts.BackupBaseDir, opts.OldID, opts.NewID, startedAt)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := bdir.Close(); err != nil {
			log.Printf("Warning: failed to close mapping log: %v", err)
		}
	}()
	if err := bdir.SaveConfig(original); err != nil {
		return nil, err
	}

	manifest := &backup.Manifest{
		OperationID: uuid.NewString(),
		OldID:       opts.OldID,
		NewID:       opts.NewID,
		UnitKind:    string(kind),
		StartedAt:   startedAt,
	}

	// Step 3: the guest must not be running while its volumes move.
	ctrl := guest.NewController(opts.Runner)
	if err := ensureStopped(ctrl, kind, opts.OldID); err != nil {
		return nil, err
	}

	// Step 4: working copy under the new identifier, so the rewritten config
	// and the new identifier stay associated from the start.
	log.Printf("Creating working config at new identifier %d...", opts.NewID)
	if err := opts.Store.WriteNew(kind, opts.NewID, original); err != nil {
		return nil, err
	}

	// Step 5: full rename plan before any backend mutation, so an unknown
	// backend or a malformed reference aborts with zero volumes renamed.
	doc := confref.ParseDocument(original)
	plan, err := buildPlan(doc, opts.OldID, opts.NewID, opts.Runner)
	if err != nil {
		if rmErr := opts.Store.Remove(kind, opts.NewID); rmErr != nil {
			log.Printf("Warning: failed to remove working config: %v", rmErr)
		}
		return nil, err
	}

	// Step 6: execute.
	if err := executePlan(plan, doc, kind, opts.Store, opts.NewID, bdir, manifest); err != nil {
		if mErr := bdir.WriteManifest(manifest); mErr != nil {
			log.Printf("Warning: failed to write manifest: %v", mErr)
		}
		return nil, fmt.Errorf("%w (backup: %s)", err, bdir.Path())
	}

	// Step 7: local image state keyed by the old identifier.
	relocation, err := relocateLocalState(opts.ImagesDir, opts.OldID, opts.NewID)
	if err != nil {
		return nil, fmt.Errorf("%w (backup: %s)", err, bdir.Path())
	}
	if relocation != nil {
		manifest.Relocations = append(manifest.Relocations, *relocation)
	}

	if err := bdir.WriteManifest(manifest); err != nil {
		return nil, err
	}

	// Step 8: removing the old config completes the identifier swap.
	log.Printf("Removing old configuration of guest %d...", opts.OldID)
	if err := opts.Store.Remove(kind, opts.OldID); err != nil {
		return nil, fmt.Errorf("%w (backup: %s)", err, bdir.Path())
	}

	result := &Result{
		UnitKind:       kind,
		NewConfigPath:  opts.Store.Path(kind, opts.NewID),
		BackupDir:      bdir.Path(),
		MappingPath:    bdir.MappingPath(),
		Renames:        manifest.Renames,
		Relocation:     relocation,
		StartRequested: opts.StartAfter,
	}

	// Step 9: restart is best-effort; the renumber already completed.
	if opts.StartAfter {
		log.Printf("Starting guest %d...", opts.NewID)
		if err := ctrl.Start(kind, opts.NewID); err != nil {
			log.Printf("Warning: guest %d did not start: %v", opts.NewID, err)
			result.StartErr = err
		} else {
			result.Started = true
		}
	}

	return result, nil
}

func applyDefaults(opts *Options) {
	if opts.Store == nil {
		opts.Store = configstore.New()
	}
	if opts.Runner == nil {
		opts.Runner = storage.ExecRunner{}
	}
	if opts.BackupBaseDir == "" {
		opts.BackupBaseDir = backup.DefaultBaseDir
	}
	if opts.ImagesDir == "" {
		opts.ImagesDir = DefaultImagesDir
	}
	if opts.CheckPrivilege == nil {
		opts.CheckPrivilege = func() error {
			if os.Geteuid() != 0 {
				return fmt.Errorf("must run as root to modify cluster state")
			}
			return nil
		}
	}
	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
}

// validate checks every precondition. Nothing on disk changes before this
// returns nil, so a validation failure is always safe to retry.
func validate(opts *Options) (configstore.UnitKind, error) {
	if opts.OldID <= 0 || opts.NewID <= 0 {
		return "", fmt.Errorf("identifiers must be positive (got %d and %d)", opts.OldID, opts.NewID)
	}
	if opts.OldID == opts.NewID {
		return "", fmt.Errorf("old and new identifiers are both %d", opts.OldID)
	}
	if err := opts.CheckPrivilege(); err != nil {
		return "", err
	}
	if _, err := opts.LookPath(requiredTool); err != nil {
		return "", fmt.Errorf("required tool %q not found: %w", requiredTool, err)
	}

	kind, err := opts.Store.Kind(opts.OldID)
	if err != nil {
		return "", err
	}
	if opts.Store.Exists(opts.NewID) {
		return "", fmt.Errorf("guest %d already has a configuration", opts.NewID)
	}
	return kind, nil
}

func ensureStopped(ctrl *guest.Controller, kind configstore.UnitKind, id int) error {
	state, err := ctrl.Status(kind, id)
	if err != nil {
		return err
	}
	if state != guest.StateRunning {
		log.Printf("Guest %d is %s, no stop needed", id, state)
		return nil
	}

	log.Printf("Stopping guest %d...", id)
	if err := ctrl.Stop(kind, id); err != nil {
		return err
	}
	return nil
}

// buildPlan scans the document and resolves every managed storage reference
// owned by oldID into an executable rename step. Any reference on an
// unsupported backend, and any conventional-looking value that cannot be
// parsed, fails the plan; bind mounts and volumes owned by other guests are
// skipped.
func buildPlan(doc *confref.Document, oldID, newID int, runner storage.Runner) ([]renameStep, error) {
	registry := storage.NewRegistry(runner)

	var plan []renameStep
	seen := make(map[string]bool)
	for _, line := range confref.Scan(doc, oldID) {
		if confref.IsBindMount(line.Value) {
			log.Printf("Skipping bind mount on %s: %s", line.Key, line.Value)
			continue
		}

		ref, err := confref.ParseRef(line.Value)
		if err != nil {
			return nil, fmt.Errorf("line %d (%s): %w", line.Index+1, line.Key, err)
		}
		if seen[ref.String()] {
			continue
		}
		seen[ref.String()] = true

		name, ok := confref.ParseVolumeName(ref.Volume)
		if !ok {
			// The value carries the old identifier but the volume does not
			// follow the naming convention. Renaming it blind would be a
			// guess; refusing up front beats a half-renamed guest.
			return nil, fmt.Errorf("volume %q on %s does not follow the vm/subvol/base naming convention", ref.Volume, line.Key)
		}
		if name.OwnerID != oldID {
			log.Printf("Skipping %s: owned by guest %d", ref, name.OwnerID)
			continue
		}

		kind, err := registry.Classify(ref.Pool)
		if err != nil {
			return nil, err
		}
		renamer, err := storage.RenamerFor(kind, runner)
		if err != nil {
			return nil, fmt.Errorf("pool %q: %w", ref.Pool, err)
		}

		plan = append(plan, renameStep{
			ref:     ref,
			newName: name.WithOwner(newID),
			kind:    kind,
			renamer: renamer,
		})
	}
	return plan, nil
}

// executePlan runs the renames in order, rewriting and persisting the
// working config after each success. On failure it reverses the renames
// already applied, in reverse order; when every reversal succeeds the
// working config is removed so the abort leaves no trace beyond the backup.
func executePlan(plan []renameStep, doc *confref.Document, kind configstore.UnitKind,
	store *configstore.Store, newID int, bdir *backup.Dir, manifest *backup.Manifest) error {

	for i, step := range plan {
		log.Printf("Renaming %s -> %s (%s)...", step.ref, step.newRef(), step.kind)
		if err := step.renamer.Rename(step.ref.Pool, step.ref.Volume, step.newName); err != nil {
			if revertApplied(plan[:i], doc, bdir, manifest) {
				if rmErr := store.Remove(kind, newID); rmErr != nil {
					log.Printf("Warning: failed to remove working config: %v", rmErr)
				}
				if i == 0 {
					return fmt.Errorf("rename failed, no volumes changed: %w", err)
				}
				return fmt.Errorf("rename failed, earlier renames reverted: %w", err)
			}
			// Partial reversal: persist whatever the document reflects now.
			if wErr := store.Rewrite(kind, newID, doc.Bytes()); wErr != nil {
				log.Printf("Warning: failed to persist working config: %v", wErr)
			}
			return fmt.Errorf("rename failed and reversal incomplete, manual recovery required: %w", err)
		}

		if err := bdir.AppendMapping(step.ref.String(), step.newRef().String()); err != nil {
			return err
		}
		manifest.Renames = append(manifest.Renames, backup.RenameRecord{
			Pool:    step.ref.Pool,
			OldName: step.ref.Volume,
			NewName: step.newName,
			Backend: string(step.kind),
		})

		doc.ReplaceVolume(step.ref.Volume, step.newName)
		if err := store.Rewrite(kind, newID, doc.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// revertApplied renames already-applied steps back, newest first, and
// reports whether every reversal succeeded. Reversals are appended to the
// mapping log and flagged in the manifest like any other rename.
func revertApplied(applied []renameStep, doc *confref.Document, bdir *backup.Dir, manifest *backup.Manifest) bool {
	all := true
	for i := len(applied) - 1; i >= 0; i-- {
		step := applied[i]
		log.Printf("Reverting %s -> %s...", step.newRef(), step.ref)
		if err := step.renamer.Rename(step.ref.Pool, step.newName, step.ref.Volume); err != nil {
			log.Printf("Warning: failed to revert rename of %s: %v", step.newRef(), err)
			all = false
			continue
		}
		if err := bdir.AppendMapping(step.newRef().String(), step.ref.String()); err != nil {
			log.Printf("Warning: %v", err)
		}
		manifest.Renames[i].Reverted = true
		doc.ReplaceVolume(step.newName, step.ref.Volume)
	}
	return all
}

// relocateLocalState moves the host-local image directory keyed by the old
// identifier, when one exists.
func relocateLocalState(imagesDir string, oldID, newID int) (*backup.Relocation, error) {
	oldPath := filepath.Join(imagesDir, strconv.Itoa(oldID))
	info, err := os.Stat(oldPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to inspect local state %s: %w", oldPath, err)
	}
	if !info.IsDir() {
		return nil, nil
	}

	newPath := filepath.Join(imagesDir, strconv.Itoa(newID))
	log.Printf("Relocating local state %s -> %s...", oldPath, newPath)
	if err := os.Rename(oldPath, newPath); err != nil {
		return nil, fmt.Errorf("failed to relocate local state: %w", err)
	}
	return &backup.Relocation{OldPath: oldPath, NewPath: newPath}, nil
}
