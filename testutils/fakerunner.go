package testutils

import (
	"context"
	"strings"
	"sync"

	"github.com/replbridge/replbridge/driver"
)

// FakeRunner is a scripted driver.CommandRunner for tests. Rules are matched
// against the full command line in registration order; unmatched commands
// succeed with empty output.
type FakeRunner struct {
	mu    sync.Mutex
	rules []fakeRule
	calls []string
}

type fakeRule struct {
	substr string
	fn     func(name string, args []string) (*driver.CommandResult, error)
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{}
}

var _ driver.CommandRunner = (*FakeRunner)(nil)

// Handle returns res for any command whose rendered command line contains
// substr.
func (r *FakeRunner) Handle(substr string, res *driver.CommandResult) {
	r.HandleFunc(substr, func(string, []string) (*driver.CommandResult, error) {
		return res, nil
	})
}

// HandleErr makes matching commands fail at the runner level, as a spawn
// failure would.
func (r *FakeRunner) HandleErr(substr string, err error) {
	r.HandleFunc(substr, func(string, []string) (*driver.CommandResult, error) {
		return nil, err
	})
}

func (r *FakeRunner) HandleFunc(substr string, fn func(name string, args []string) (*driver.CommandResult, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, fakeRule{substr: substr, fn: fn})
}

func (r *FakeRunner) Run(ctx context.Context, name string, args ...string) (*driver.CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmdLine := name + " " + strings.Join(args, " ")

	r.mu.Lock()
	r.calls = append(r.calls, cmdLine)
	var matched *fakeRule
	for i := range r.rules {
		if strings.Contains(cmdLine, r.rules[i].substr) {
			matched = &r.rules[i]
			break
		}
	}
	r.mu.Unlock()

	if matched != nil {
		return matched.fn(name, args)
	}
	return &driver.CommandResult{ExitCode: 0}, nil
}

// Calls returns the command lines seen so far, in order.
func (r *FakeRunner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallCount reports how many recorded command lines contain substr.
func (r *FakeRunner) CallCount(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}
