package storage

import (
	"fmt"
	"strings"
)

// Registry answers which backend technology a storage pool uses, by querying
// the platform's storage manager. Classification is read-only and idempotent;
// the listing is fetched once and cached for the lifetime of the Registry,
// which matches the single-shot nature of a renumber run.
type Registry struct {
	runner Runner
	pools  map[string]BackendKind
}

// NewRegistry creates a Registry that queries through the given runner.
func NewRegistry(runner Runner) *Registry {
	return &Registry{runner: runner}
}

// Classify returns the backend kind declared for pool. A pool missing from
// the registry listing is an error: renaming a volume on a pool we cannot
// see is never safe.
func (r *Registry) Classify(pool string) (BackendKind, error) {
	if r.pools == nil {
		pools, err := r.list()
		if err != nil {
			return BackendUnknown, err
		}
		r.pools = pools
	}

	kind, ok := r.pools[pool]
	if !ok {
		return BackendUnknown, fmt.Errorf("storage pool %q not found in registry", pool)
	}
	return kind, nil
}

// list fetches and parses the registry listing. `pvesm status` prints one
// pool per line: name, type, status and capacity columns.
func (r *Registry) list() (map[string]BackendKind, error) {
	out, err := r.runner.Run("pvesm", "status")
	if err != nil {
		return nil, fmt.Errorf("failed to list storage pools: %w", err)
	}

	pools := make(map[string]BackendKind)
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		// Skip the header row.
		if fields[0] == "Name" {
			continue
		}
		pools[fields[0]] = ParseBackendKind(fields[1])
	}

	if len(pools) == 0 {
		return nil, fmt.Errorf("storage registry returned no pools")
	}
	return pools, nil
}
