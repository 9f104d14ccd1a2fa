// Package confref scans guest configuration text for storage references and
// rewrites them for a new owner identifier.
//
// Guest configs are loosely structured `key: value` lines, optionally grouped
// under snapshot section headers. Storage references appear as
// `pool:volume[,options]` values on storage-bearing keys; host bind mounts
// appear on the same keys as absolute or relative paths and are never
// touched.
//
// Scanning is a coarse textual pre-filter; ownership is decided by parsing
// the volume name into its structured fields, so an identifier that happens
// to occur inside an unrelated volume name never triggers a rename.
package confref

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// storageKeyPattern matches configuration keys that can carry a storage
// reference: the root filesystem, mount points, disks on the supported bus
// families, EFI/TPM state volumes and unused-volume bookkeeping entries.
var storageKeyPattern = regexp.MustCompile(`^(rootfs|mp\d+|scsi\d+|ide\d+|sata\d+|virtio\d+|efidisk\d+|tpmstate\d+|unused\d+)$`)

// volumeNamePattern matches the platform's volume naming convention:
// prefix, owning identifier, then the per-disk suffix.
var volumeNamePattern = regexp.MustCompile(`^(vm|subvol|base)-(\d+)-(.+)$`)

// Line is one scanned configuration line that may carry a storage reference.
type Line struct {
	Index int    // zero-based position in the document
	Key   string // configuration key, e.g. "scsi0"
	Value string // everything after "key:"
}

// Ref is a managed storage reference extracted from a line value.
type Ref struct {
	Pool   string // storage pool name
	Volume string // volume name within the pool
}

// String returns the reference in its configured pool:volume form.
func (r Ref) String() string {
	return r.Pool + ":" + r.Volume
}

// Name is a volume name decomposed into its structured fields.
type Name struct {
	Prefix  string // "vm", "subvol" or "base"
	OwnerID int    // identifier of the owning guest
	Suffix  string // remainder, e.g. "disk-0" or "cloudinit"
}

// WithOwner returns the volume name with the owning identifier replaced.
// Only the owner field changes; prefix and suffix are preserved verbatim.
func (n Name) WithOwner(id int) string {
	return fmt.Sprintf("%s-%d-%s", n.Prefix, id, n.Suffix)
}

// Scan returns the document lines that may reference storage owned by oldID:
// lines with a storage-bearing key, or a volume= assignment, whose value
// contains the identifier textually. The substring test is a pre-filter
// only; callers decide ownership via ParseVolumeName.
func Scan(doc *Document, oldID int) []Line {
	idText := strconv.Itoa(oldID)

	var out []Line
	for i, raw := range doc.lines {
		key, value, ok := splitLine(raw)
		if !ok {
			continue
		}
		if !storageKeyPattern.MatchString(key) && !strings.Contains(value, "volume=") {
			continue
		}
		if !strings.Contains(value, idText) {
			continue
		}
		out = append(out, Line{Index: i, Key: key, Value: value})
	}
	return out
}

// IsBindMount reports whether a line value is a host bind-mount path rather
// than a managed storage reference. Bind mounts are never renamed.
func IsBindMount(value string) bool {
	return strings.HasPrefix(value, "/") || strings.HasPrefix(value, "./")
}

// ParseRef extracts the pool:volume reference from a line value. Values look
// like "pool:volume,opt=x" or carry an explicit "volume=pool:volume" segment.
func ParseRef(value string) (Ref, error) {
	ref := value
	if _, after, found := strings.Cut(value, "volume="); found {
		ref = after
	}
	if i := strings.IndexByte(ref, ','); i >= 0 {
		ref = ref[:i]
	}

	pool, volume, found := strings.Cut(ref, ":")
	if !found || pool == "" || volume == "" {
		return Ref{}, fmt.Errorf("value %q is not a pool:volume reference", value)
	}
	return Ref{Pool: pool, Volume: volume}, nil
}

// ParseVolumeName decomposes a volume name into its structured fields.
// The second return value is false when the name does not follow the
// platform's naming convention.
func ParseVolumeName(volume string) (Name, bool) {
	m := volumeNamePattern.FindStringSubmatch(volume)
	if m == nil {
		return Name{}, false
	}
	owner, err := strconv.Atoi(m[2])
	if err != nil {
		return Name{}, false
	}
	return Name{Prefix: m[1], OwnerID: owner, Suffix: m[3]}, true
}

// splitLine splits "key: value" configuration lines. Section headers,
// comments and blank lines report ok=false.
func splitLine(raw string) (key, value string, ok bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "[") {
		return "", "", false
	}
	key, value, found := strings.Cut(trimmed, ":")
	if !found {
		return "", "", false
	}
	return strings.TrimSpace(key), strings.TrimSpace(value), true
}
