// Package enumerate lists the files currently open on the local node.
package enumerate

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Enumerator returns raw open-file text in the snapshot row shape,
// one row per open file, with absolute local paths.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]byte, error)
}

// DefaultCommand is the Windows tool that lists files opened through shares.
const DefaultCommand = "openfiles.exe"

// DefaultArgs produce verbose CSV output without a header.
var DefaultArgs = []string{"/query", "/FO", "CSV", "/NH", "/V"}

// Command runs an external program and returns its standard output.
type Command struct {
	Name    string
	Args    []string
	Timeout time.Duration
}

// compile-time interface check.
var _ Enumerator = (*Command)(nil)

// NewCommand creates a Command enumerator. An empty name selects the
// default openfiles invocation.
func NewCommand(name string, args []string, timeout time.Duration) *Command {
	if name == "" {
		name = DefaultCommand
		if args == nil {
			args = DefaultArgs
		}
	}
	return &Command{Name: name, Args: args, Timeout: timeout}
}

// Enumerate runs the command. A non-zero exit or a timeout is an error.
func (c *Command) Enumerate(ctx context.Context) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", c.Name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", c.Name, err)
	}

	return stdout.Bytes(), nil
}

// String returns the command line.
func (c *Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}
