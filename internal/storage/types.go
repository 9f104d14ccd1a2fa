package storage

// BackendKind represents the storage technology behind a pool.
type BackendKind string

const (
	BackendRBD     BackendKind = "rbd"     // Ceph RADOS block device pool
	BackendZFSPool BackendKind = "zfspool" // ZFS dataset pool
	BackendLVMThin BackendKind = "lvmthin" // LVM thin-provisioned volume group
	BackendUnknown BackendKind = "unknown" // Anything we cannot rename safely
)

// ParseBackendKind maps a registry type string to a BackendKind.
// Types outside the supported set map to BackendUnknown.
func ParseBackendKind(s string) BackendKind {
	switch s {
	case "rbd":
		return BackendRBD
	case "zfspool":
		return BackendZFSPool
	case "lvmthin":
		return BackendLVMThin
	default:
		return BackendUnknown
	}
}

// Pool describes one entry from the storage registry listing.
type Pool struct {
	Name string      // Pool name as configured on the platform
	Kind BackendKind // Declared backend technology
}
