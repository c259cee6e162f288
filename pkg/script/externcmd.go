// Package script runs external programs in response to monitor state
// transitions. A script spec is parsed once, placeholder variables are
// substituted only when the spec references them, and execution goes through
// a Runner capability so callers can bound or fake the process launch.
package script

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// Runner launches an executable with its arguments and reports the outcome.
type Runner interface {
	Run(ctx context.Context, name string, args []string) error
}

// ExecRunner runs commands through os/exec with an optional per-run timeout.
type ExecRunner struct {
	// Timeout bounds one execution; zero means no bound beyond ctx.
	Timeout time.Duration
}

func (r ExecRunner) Run(ctx context.Context, name string, args []string) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	return exec.CommandContext(ctx, name, args...).Run()
}

var errEmptySpec = errors.New("script: empty command")

// Command is a parsed script spec: an executable plus arguments that may
// still contain placeholder variables.
type Command struct {
	argv []string
}

// Parse splits spec on whitespace, honoring single and double quotes so
// arguments may contain spaces.
func Parse(spec string) (*Command, error) {
	var (
		argv    []string
		current strings.Builder
		quote   rune
		inArg   bool
	)
	for _, r := range spec {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inArg = true
		case r == ' ' || r == '\t':
			if inArg {
				argv = append(argv, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, errors.New("script: unterminated quote")
	}
	if inArg {
		argv = append(argv, current.String())
	}
	if len(argv) == 0 {
		return nil, errEmptySpec
	}
	return &Command{argv: argv}, nil
}

// Matches reports whether any argument references the given placeholder.
func (c *Command) Matches(placeholder string) bool {
	for _, a := range c.argv {
		if strings.Contains(a, placeholder) {
			return true
		}
	}
	return false
}

// Substitute replaces every occurrence of placeholder with value.
func (c *Command) Substitute(placeholder, value string) {
	for i, a := range c.argv {
		c.argv[i] = strings.ReplaceAll(a, placeholder, value)
	}
}

// Argv returns the current argument vector (executable first).
func (c *Command) Argv() []string { return append([]string(nil), c.argv...) }

// String renders the command for log lines.
func (c *Command) String() string { return strings.Join(c.argv, " ") }

// Execute runs the command through r.
func (c *Command) Execute(ctx context.Context, r Runner) error {
	return r.Run(ctx, c.argv[0], c.argv[1:])
}
