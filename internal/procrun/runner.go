package procrun

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Stream identifies which pipe a line came from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Line is one line of collaborator output.
type Line struct {
	Stream Stream
	Text   string
}

// Command describes a process to launch.
type Command struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string // appended to the daemon environment
}

// String renders the command line for logs.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Binary)
	for _, arg := range c.Args {
		if arg == "" || strings.ContainsAny(arg, " \t\"'") {
			arg = fmt.Sprintf("%q", arg)
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}

// Result reports how a process ended.
type Result struct {
	ExitCode int
	Err      error
	Stderr   string // last lines of stderr
	Duration time.Duration
}

// Success reports a clean zero exit.
func (r Result) Success() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Starter launches processes. Runner is the production implementation.
type Starter interface {
	Start(ctx context.Context, cmd Command) (*Handle, error)
}

const (
	defaultStderrTail = 20
	maxLineBytes      = 1 << 20
	lineBuffer        = 64
	// How long output may keep flowing after a kill before the pipes are
	// force-closed.
	drainDelay = 5 * time.Second
)

// Runner spawns collaborator processes and streams their output.
type Runner struct {
	stderrTail int
}

// Option customizes a Runner.
type Option func(*Runner)

// WithStderrTail sets how many trailing stderr lines a Result keeps.
func WithStderrTail(lines int) Option {
	return func(r *Runner) {
		if lines > 0 {
			r.stderrTail = lines
		}
	}
}

// New constructs a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{stderrTail: defaultStderrTail}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches cmd and returns a handle immediately. Cancelling ctx kills
// the process group, so helpers the collaborator spawned die with it; there
// is no other timeout and no retry.
func (r *Runner) Start(ctx context.Context, cmd Command) (*Handle, error) {
	if strings.TrimSpace(cmd.Binary) == "" {
		return nil, errors.New("start process: empty binary")
	}
	proc := exec.CommandContext(ctx, cmd.Binary, cmd.Args...)
	proc.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		proc.Env = append(os.Environ(), cmd.Env...)
	}
	proc.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	proc.Cancel = func() error {
		if err := syscall.Kill(-proc.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			return err
		}
		return nil
	}
	proc.WaitDelay = drainDelay

	stdout, err := proc.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := proc.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	started := time.Now()
	if err := proc.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cmd.Binary, err)
	}

	h := &Handle{
		lines: make(chan Line, lineBuffer),
		done:  make(chan struct{}),
		tail:  newTailBuffer(r.stderrTail),
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go h.pump(Stdout, stdout, &readers)
	go h.pump(Stderr, stderr, &readers)

	drained := make(chan struct{})
	go func() {
		readers.Wait()
		close(drained)
	}()

	go func() {
		// Pipes must be drained before Wait closes them. After a kill, a
		// descendant outside the process group may still hold them open.
		select {
		case <-drained:
		case <-ctx.Done():
			select {
			case <-drained:
			case <-time.After(drainDelay):
				_ = stdout.Close()
				_ = stderr.Close()
				<-drained
			}
		}
		close(h.lines)
		waitErr := proc.Wait()

		res := Result{Duration: time.Since(started), Stderr: h.tail.String()}
		if proc.ProcessState != nil {
			res.ExitCode = proc.ProcessState.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.Err = ctxErr
		} else if waitErr != nil {
			var exitErr *exec.ExitError
			if !errors.As(waitErr, &exitErr) {
				res.Err = waitErr
			}
		}
		h.result = res
		close(h.done)
	}()
	return h, nil
}

// Handle tracks a running process.
type Handle struct {
	lines  chan Line
	done   chan struct{}
	tail   *tailBuffer
	result Result
}

// Lines delivers output lines in order per stream. It is closed once both
// streams reach EOF. Consumers must keep reading or the process stalls on a
// full pipe; Wait drains whatever a consumer leaves behind.
func (h *Handle) Lines() <-chan Line {
	return h.lines
}

// Done is closed after the process exited and its result is available.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the process exits and returns its result. Call it after
// ranging over Lines, or instead of it, but not concurrently with a reader.
func (h *Handle) Wait() Result {
	for range h.lines {
	}
	<-h.done
	return h.result
}

func (h *Handle) pump(stream Stream, r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	scanner.Split(scanLinesOrCR)
	for scanner.Scan() {
		text := strings.TrimRight(scanner.Text(), " \t")
		if stream == Stderr {
			h.tail.Add(text)
		}
		h.lines <- Line{Stream: stream, Text: text}
	}
	// Keep the pipe drained so the child never blocks if a line overflowed the buffer.
	_, _ = io.Copy(io.Discard, r)
}

// scanLinesOrCR splits on \n, \r\n, or a bare \r so carriage-return progress
// bars surface as individual lines.
func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			return i + 2, data[:i], nil
		}
		if data[i] == '\r' && i+1 == len(data) && !atEOF {
			// Need one more byte to tell \r from \r\n.
			return 0, nil, nil
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

type tailBuffer struct {
	mu    sync.Mutex
	limit int
	lines []string
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Add(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.limit {
		t.lines = t.lines[len(t.lines)-t.limit:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
