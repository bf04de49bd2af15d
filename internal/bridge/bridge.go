// Package bridge owns the connector's shell subprocess. It spawns the
// shell under a pseudo-terminal, streams its output through a callback,
// and accepts write/resize/kill commands. One bridge drives at most one
// live process at a time.
package bridge

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

var (
	ErrAlreadyRunning = errors.New("process already running")
	ErrNotRunning     = errors.New("no process running")
)

// Default terminal geometry used when the caller does not specify one.
const (
	DefaultCols uint16 = 80
	DefaultRows uint16 = 24
)

// Events carries the bridge's output and exit callbacks. OnExit fires
// only for exits the bridge did not itself request via Kill.
type Events struct {
	OnData func(data string)
	OnExit func(code int)
}

// Bridge manages a single PTY-backed shell process.
type Bridge struct {
	shell  string
	env    map[string]string
	events Events

	mu   sync.Mutex
	cmd  *exec.Cmd
	ptmx *os.File
	cols uint16
	rows uint16
}

// New creates a Bridge that will spawn the given shell with the given
// environment. Nothing runs until Spawn is called.
func New(shell string, env map[string]string, events Events) *Bridge {
	return &Bridge{shell: shell, env: env, events: events}
}

// Spawn starts the shell under a fresh pseudo-terminal with the given
// geometry. It fails if a process is already running. The working
// directory is the user's home, falling back to the current directory.
func (b *Bridge) Spawn(cols, rows uint16) error {
	if cols == 0 {
		cols = DefaultCols
	}
	if rows == 0 {
		rows = DefaultRows
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cmd != nil {
		return ErrAlreadyRunning
	}

	cmd := exec.Command(b.shell)
	cmd.Env = flattenEnv(b.env)
	if home, err := os.UserHomeDir(); err == nil {
		cmd.Dir = home
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return fmt.Errorf("spawn %s: %w", b.shell, err)
	}

	b.cmd = cmd
	b.ptmx = ptmx
	b.cols = cols
	b.rows = rows

	go b.readOutput(ptmx)
	go b.waitExit(cmd)

	log.Printf("[pty] spawned %s (%dx%d)", b.shell, cols, rows)
	return nil
}

// readOutput pumps PTY output into the OnData callback until the master
// side reports an error (process exit or Kill closing the fd).
func (b *Bridge) readOutput(ptmx *os.File) {
	buf := make([]byte, 32*1024)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 && b.events.OnData != nil {
			b.events.OnData(string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// waitExit reaps the child. If Kill already cleared the handle the exit
// is expected and suppressed; otherwise the handle is cleared here and
// OnExit fires exactly once.
func (b *Bridge) waitExit(cmd *exec.Cmd) {
	err := cmd.Wait()

	b.mu.Lock()
	if b.cmd != cmd {
		// Kill was called first; this exit was requested.
		b.mu.Unlock()
		return
	}
	b.cmd = nil
	if b.ptmx != nil {
		b.ptmx.Close()
		b.ptmx = nil
	}
	b.mu.Unlock()

	code := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	} else if err != nil {
		code = -1
	}

	log.Printf("[pty] process exited unexpectedly (code %d)", code)
	if b.events.OnExit != nil {
		b.events.OnExit(code)
	}
}

// Write forwards raw bytes to the shell's input. There is no buffering;
// a slow consumer queues at the OS pipe layer.
func (b *Bridge) Write(data string) error {
	b.mu.Lock()
	ptmx := b.ptmx
	b.mu.Unlock()

	if ptmx == nil {
		return ErrNotRunning
	}
	_, err := ptmx.Write([]byte(data))
	return err
}

// Resize adjusts the pseudo-terminal geometry.
func (b *Bridge) Resize(cols, rows uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ptmx == nil {
		return ErrNotRunning
	}
	if err := pty.Setsize(b.ptmx, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		return fmt.Errorf("resize: %w", err)
	}
	b.cols = cols
	b.rows = rows
	log.Printf("[pty] resized to %dx%d", cols, rows)
	return nil
}

// Kill terminates the process. It is idempotent and a no-op when nothing
// runs. The handle is cleared before signaling so the subsequent OS exit
// report is suppressed rather than surfacing as a crash.
func (b *Bridge) Kill() {
	b.mu.Lock()
	cmd := b.cmd
	ptmx := b.ptmx
	b.cmd = nil
	b.ptmx = nil
	b.mu.Unlock()

	if cmd == nil {
		return
	}

	if cmd.Process != nil {
		cmd.Process.Signal(syscall.SIGTERM)
	}
	if ptmx != nil {
		ptmx.Close()
	}
	log.Printf("[pty] killed")
}

// IsRunning reports whether a process is currently live.
func (b *Bridge) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cmd != nil
}

// Size returns the current terminal geometry; ok is false when no
// process is running.
func (b *Bridge) Size() (cols, rows uint16, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cmd == nil {
		return 0, 0, false
	}
	return b.cols, b.rows, true
}

func flattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
