package storage

import (
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes an external command and returns its combined output.
//
// In production this is satisfied by ExecRunner. Tests substitute
// function-backed fakes to script command behavior.
type Runner interface {
	Run(name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes the command and captures stdout and stderr together, so a
// failing primitive's diagnostics end up in the returned error.
func (ExecRunner) Run(name string, args ...string) ([]byte, error) {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
		}
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
	}
	return out, nil
}
