// Package storage classifies storage pools and renames volumes on their
// backends.
//
// This package handles the storage side of a renumber operation:
//   - Pool classification via the platform's storage registry (pvesm)
//   - Backend-specific volume renames (Ceph RBD, ZFS datasets, LVM-thin)
//
// Backend Dispatch:
//
// The registry answers which backend technology a pool is declared with,
// and RenamerFor maps that answer to a VolumeRenamer implementation. Each
// implementation wraps exactly one external rename primitive and treats any
// non-zero exit as failure; there are no retries and no fallbacks.
//
// Command Execution:
//
// All external commands run through the Runner interface so tests can
// substitute fakes. The default runner shells out with os/exec and captures
// combined output for error reporting.
package storage
