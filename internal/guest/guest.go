// Package guest controls the lifecycle of compute units (VMs and
// containers) through the platform's management commands.
package guest

import (
	"fmt"
	"strings"

	"github.com/jbweber/renumber/internal/configstore"
	"github.com/jbweber/renumber/internal/storage"
)

// State is the reported lifecycle state of a guest.
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// Controller drives qm (VMs) and pct (containers) keyed by guest identifier.
type Controller struct {
	runner storage.Runner
}

// NewController creates a Controller using the given command runner.
func NewController(runner storage.Runner) *Controller {
	return &Controller{runner: runner}
}

// Status returns the guest's current lifecycle state.
func (c *Controller) Status(kind configstore.UnitKind, id int) (State, error) {
	out, err := c.runner.Run(tool(kind), "status", fmt.Sprintf("%d", id))
	if err != nil {
		return "", fmt.Errorf("failed to query status of guest %d: %w", id, err)
	}

	// Output is a single "status: <state>" line.
	for _, line := range strings.Split(string(out), "\n") {
		if state, found := strings.CutPrefix(strings.TrimSpace(line), "status:"); found {
			return State(strings.TrimSpace(state)), nil
		}
	}
	return "", fmt.Errorf("unrecognized status output for guest %d: %q", id, strings.TrimSpace(string(out)))
}

// Stop stops the guest. Stopping an already stopped guest is the caller's
// concern; this issues the stop unconditionally.
func (c *Controller) Stop(kind configstore.UnitKind, id int) error {
	if _, err := c.runner.Run(tool(kind), "stop", fmt.Sprintf("%d", id)); err != nil {
		return fmt.Errorf("failed to stop guest %d: %w", id, err)
	}
	return nil
}

// Start starts the guest.
func (c *Controller) Start(kind configstore.UnitKind, id int) error {
	if _, err := c.runner.Run(tool(kind), "start", fmt.Sprintf("%d", id)); err != nil {
		return fmt.Errorf("failed to start guest %d: %w", id, err)
	}
	return nil
}

func tool(kind configstore.UnitKind) string {
	if kind == configstore.UnitCT {
		return "pct"
	}
	return "qm"
}
