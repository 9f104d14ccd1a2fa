package storage

import (
	"fmt"
	"log"
	"strings"
)

// VolumeRenamer renames a volume on one specific backend technology.
//
// Implementations wrap a single external rename primitive. A rename either
// fully succeeds or returns an error; callers must not assume anything about
// partial effects on failure beyond what the primitive guarantees.
type VolumeRenamer interface {
	// Rename renames oldVol to newVol within pool.
	Rename(pool, oldVol, newVol string) error
}

// RenamerFor returns the VolumeRenamer for a backend kind.
func RenamerFor(kind BackendKind, runner Runner) (VolumeRenamer, error) {
	switch kind {
	case BackendRBD:
		return &rbdRenamer{runner: runner}, nil
	case BackendZFSPool:
		return &zfsRenamer{runner: runner}, nil
	case BackendLVMThin:
		return &lvmThinRenamer{runner: runner}, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", kind)
	}
}

// rbdRenamer renames RBD images within their pool namespace.
type rbdRenamer struct {
	runner Runner
}

func (r *rbdRenamer) Rename(pool, oldVol, newVol string) error {
	_, err := r.runner.Run("rbd", "rename",
		fmt.Sprintf("%s/%s", pool, oldVol),
		fmt.Sprintf("%s/%s", pool, newVol))
	if err != nil {
		return fmt.Errorf("failed to rename RBD image %s/%s: %w", pool, oldVol, err)
	}
	return nil
}

// zfsRenamer renames ZFS dataset nodes. The pool name configured on the
// platform is not the dataset path, so the dataset is resolved from the
// host's dataset listing by its leaf name.
type zfsRenamer struct {
	runner Runner
}

func (r *zfsRenamer) Rename(pool, oldVol, newVol string) error {
	dataset, err := r.findDataset(oldVol)
	if err != nil {
		return err
	}

	parent := dataset[:len(dataset)-len(oldVol)]
	if _, err := r.runner.Run("zfs", "rename", dataset, parent+newVol); err != nil {
		return fmt.Errorf("failed to rename ZFS dataset %s: %w", dataset, err)
	}
	return nil
}

// findDataset locates the full dataset path whose leaf name is vol.
func (r *zfsRenamer) findDataset(vol string) (string, error) {
	out, err := r.runner.Run("zfs", "list", "-H", "-o", "name")
	if err != nil {
		return "", fmt.Errorf("failed to list ZFS datasets: %w", err)
	}

	var matches []string
	for _, line := range strings.Split(string(out), "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		if name == vol || strings.HasSuffix(name, "/"+vol) {
			matches = append(matches, name)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("ZFS dataset for volume %q not found", vol)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("volume %q matches multiple ZFS datasets: %s", vol, strings.Join(matches, ", "))
	}
}

// lvmThinRenamer renames logical volumes inside the host's volume group.
//
// The volume group is auto-discovered as the first one listed on the host.
// Hosts with multiple volume groups are ambiguous; we warn and proceed with
// the first, matching the platform's own single-VG assumption.
type lvmThinRenamer struct {
	runner Runner
}

func (r *lvmThinRenamer) Rename(pool, oldVol, newVol string) error {
	vg, err := r.findVolumeGroup()
	if err != nil {
		return err
	}

	if _, err := r.runner.Run("lvrename", vg, oldVol, newVol); err != nil {
		return fmt.Errorf("failed to rename logical volume %s/%s: %w", vg, oldVol, err)
	}
	return nil
}

func (r *lvmThinRenamer) findVolumeGroup() (string, error) {
	out, err := r.runner.Run("vgs", "--noheadings", "-o", "vg_name")
	if err != nil {
		return "", fmt.Errorf("failed to list volume groups: %w", err)
	}

	var groups []string
	for _, line := range strings.Split(string(out), "\n") {
		name := strings.TrimSpace(line)
		if name != "" {
			groups = append(groups, name)
		}
	}

	if len(groups) == 0 {
		return "", fmt.Errorf("no LVM volume group found on this host")
	}
	if len(groups) > 1 {
		log.Printf("Warning: multiple volume groups found (%s), using %q", strings.Join(groups, ", "), groups[0])
	}
	return groups[0], nil
}
