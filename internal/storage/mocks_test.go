package storage

import (
	"fmt"
	"strings"
)

// fakeRunner is a scripted Runner implementation for testing.
type fakeRunner struct {
	// runFunc handles each invocation. The default fails, so tests must
	// script every command they expect.
	runFunc func(name string, args ...string) ([]byte, error)

	// calls records every invocation as "name arg1 arg2 ...".
	calls []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		runFunc: func(name string, args ...string) ([]byte, error) {
			return nil, fmt.Errorf("unexpected command: %s %s", name, strings.Join(args, " "))
		},
	}
}

func (f *fakeRunner) Run(name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, strings.Join(append([]string{name}, args...), " "))
	return f.runFunc(name, args...)
}
