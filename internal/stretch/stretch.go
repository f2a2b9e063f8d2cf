// Package stretch changes the tempo of speech audio without shifting its
// pitch, by piping WAV bytes through an external tool.
package stretch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/snarg/narrator/internal/process"
)

const (
	BackendSoundStretch = "soundstretch"
	BackendSox          = "sox"
)

// Stretcher retimes a complete WAV container by tempoPct percent. Positive
// values speed speech up, negative values slow it down.
type Stretcher interface {
	Stretch(ctx context.Context, wav []byte, tempoPct int) ([]byte, error)
}

// Func adapts an ordinary function to the Stretcher interface.
type Func func(ctx context.Context, wav []byte, tempoPct int) ([]byte, error)

func (f Func) Stretch(ctx context.Context, wav []byte, tempoPct int) ([]byte, error) {
	return f(ctx, wav, tempoPct)
}

// Error describes a failed invocation of the external tool.
type Error struct {
	Backend  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Backend, e.Err)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the tool was killed for running too long.
func (e *Error) Timeout() bool { return errors.Is(e.Err, process.ErrTimeout) }

// Process runs a stretch tool reading WAV on stdin and writing WAV on stdout.
type Process struct {
	backend string
	binary  string
	timeout time.Duration
	args    func(tempoPct int) []string
}

// New returns the Process for a named backend. An empty binary selects the
// backend's usual executable name.
func New(backend, binary string, timeout time.Duration) (*Process, error) {
	switch backend {
	case BackendSoundStretch, "":
		return NewSoundStretch(binary, timeout), nil
	case BackendSox:
		return NewSox(binary, timeout), nil
	default:
		return nil, fmt.Errorf("unknown stretch backend %q", backend)
	}
}

// NewSoundStretch runs `soundstretch stdin stdout -tempo=N -speech`.
func NewSoundStretch(binary string, timeout time.Duration) *Process {
	if binary == "" {
		binary = "soundstretch"
	}
	return &Process{
		backend: BackendSoundStretch,
		binary:  binary,
		timeout: timeout,
		args: func(tempoPct int) []string {
			return []string{"stdin", "stdout", "-tempo=" + strconv.Itoa(tempoPct), "-speech"}
		},
	}
}

// NewSox runs sox's WSOLA tempo effect in speech mode.
func NewSox(binary string, timeout time.Duration) *Process {
	if binary == "" {
		binary = "sox"
	}
	return &Process{
		backend: BackendSox,
		binary:  binary,
		timeout: timeout,
		args: func(tempoPct int) []string {
			factor := 1 + float64(tempoPct)/100
			return []string{"-t", "wav", "-", "-t", "wav", "-", "tempo", "-s", strconv.FormatFloat(factor, 'f', 4, 64)}
		},
	}
}

// Backend returns the backend name.
func (p *Process) Backend() string { return p.backend }

// Binary returns the executable the backend invokes.
func (p *Process) Binary() string { return p.binary }

// Stretch pipes wav through the tool. The process is killed, along with its
// process group, if it outlives the configured timeout.
func (p *Process) Stretch(ctx context.Context, wav []byte, tempoPct int) ([]byte, error) {
	if tempoPct <= -100 {
		return nil, &Error{Backend: p.backend, Err: fmt.Errorf("tempo %d%% out of range", tempoPct)}
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	res, err := process.Run(ctx, process.Command{
		Binary: p.binary,
		Args:   p.args(tempoPct),
		Stdin:  bytes.NewReader(wav),
	})
	if err != nil {
		e := &Error{Backend: p.backend, Err: err, Stderr: res.StderrTail(256)}
		if res != nil {
			e.ExitCode = res.ExitCode
		}
		return nil, e
	}
	if len(res.Stdout) == 0 {
		return nil, &Error{Backend: p.backend, Err: errors.New("no output")}
	}
	return res.Stdout, nil
}

var (
	availMu sync.Mutex
	avail   = map[string]bool{}
)

// Available reports whether binary is in PATH. Results are cached.
func Available(binary string) bool {
	availMu.Lock()
	defer availMu.Unlock()
	if ok, seen := avail[binary]; seen {
		return ok
	}
	ok := process.LookPath(binary)
	avail[binary] = ok
	return ok
}
