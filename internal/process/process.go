// Package process runs external tools with bounded lifetimes.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ErrTimeout is returned when a command outlives its context deadline.
var ErrTimeout = errors.New("process: timed out")

// Command configures a subprocess to execute.
type Command struct {
	// Binary is the executable path or name (resolved via PATH).
	Binary string
	Args   []string
	// Env is additional KEY=value pairs merged with os.Environ.
	Env []string
	// Stdin provides input to the process. May be nil.
	Stdin io.Reader
	// GracePeriod is how long to wait after SIGTERM before SIGKILL.
	// Defaults to 2 seconds if zero.
	GracePeriod time.Duration
}

// Result holds the output and status of a completed subprocess.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Run executes cmd and waits for it. The whole process group is signalled
// when ctx ends, so helper children of a wrapper script go with it.
func Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Binary == "" {
		return nil, errors.New("process: binary is required")
	}
	grace := cmd.GracePeriod
	if grace == 0 {
		grace = 2 * time.Second
	}

	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...)
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	if cmd.Stdin != nil {
		c.Stdin = cmd.Stdin
	}
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		return syscall.Kill(-c.Process.Pid, syscall.SIGTERM)
	}
	c.WaitDelay = grace

	start := time.Now()
	err := c.Run()
	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if c.ProcessState != nil {
		res.ExitCode = c.ProcessState.ExitCode()
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return res, fmt.Errorf("%w after %s: %s", ErrTimeout, res.Duration.Round(time.Millisecond), cmd.Binary)
		}
		if ctx.Err() != nil {
			return res, fmt.Errorf("process: killed by context: %w", ctx.Err())
		}
		return res, fmt.Errorf("process: %s exit code %d: %w", cmd.Binary, res.ExitCode, err)
	}
	return res, nil
}

// StderrTail returns the last n bytes of stderr, for error messages.
func (r *Result) StderrTail(n int) string {
	if r == nil {
		return ""
	}
	s := r.Stderr
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return string(bytes.TrimSpace(s))
}

// LookPath reports whether binary resolves on PATH (or is an existing path).
func LookPath(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}
