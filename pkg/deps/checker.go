package deps

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Check is a single named startup requirement.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// Checker verifies that required dependencies are available before the
// presenter starts serving.
type Checker struct {
	checks []Check
}

// NewChecker creates a new checker with the given checks.
func NewChecker(checks ...Check) *Checker {
	return &Checker{checks: checks}
}

// Add appends a check.
func (c *Checker) Add(name string, run func(ctx context.Context) error) {
	c.checks = append(c.checks, Check{Name: name, Run: run})
}

// CheckAll runs every check and returns a *FailedChecksError listing the
// ones that failed.
func (c *Checker) CheckAll(ctx context.Context) error {
	return c.run(ctx, nil)
}

// CheckAndLog runs every check and logs each result.
func (c *Checker) CheckAndLog(ctx context.Context, log *slog.Logger) error {
	return c.run(ctx, log)
}

func (c *Checker) run(ctx context.Context, log *slog.Logger) error {
	failed := &FailedChecksError{}

	for _, check := range c.checks {
		err := check.Run(ctx)
		if err != nil {
			failed.Checks = append(failed.Checks, check.Name)
			failed.Errors = append(failed.Errors, err)
		}
		if log == nil {
			continue
		}
		if err != nil {
			log.Error("preflight check failed", "check", check.Name, "error", err)
		} else {
			log.Info("preflight check passed", "check", check.Name)
		}
	}

	if len(failed.Checks) > 0 {
		return failed
	}
	return nil
}

// FailedChecksError is returned when one or more checks fail.
type FailedChecksError struct {
	Checks []string
	Errors []error
}

func (e *FailedChecksError) Error() string {
	parts := make([]string, len(e.Checks))
	for i, name := range e.Checks {
		parts[i] = fmt.Sprintf("%s: %v", name, e.Errors[i])
	}
	return "failed checks: " + strings.Join(parts, "; ")
}

// Unwrap returns the underlying check errors.
func (e *FailedChecksError) Unwrap() []error {
	return e.Errors
}
