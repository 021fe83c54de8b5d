package process

import (
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// Kind distinguishes the primary session command from one-shot shell commands.
type Kind int

const (
	// KindPrimary is the command fancyterm was launched with. Its stdin
	// receives forwarded input lines.
	KindPrimary Kind = iota
	// KindAdhoc is a "!command" run through the platform shell. It never
	// receives input.
	KindAdhoc
)

// String returns the kind name used in logs and span attributes.
func (k Kind) String() string {
	if k == KindAdhoc {
		return "adhoc"
	}
	return "primary"
}

// Spec describes a child to spawn.
type Spec struct {
	Argv []string // executable followed by its arguments
	Dir  string   // working directory; empty means the current directory
	Env  []string // extra KEY=VALUE pairs appended to os.Environ()
	Kind Kind
}

// CommandLine renders argv for display.
func (s Spec) CommandLine() string {
	return strings.Join(s.Argv, " ")
}

// Handle is a spawned child process. State transitions are driven by the
// Supervisor's completion goroutine; every accessor is safe for concurrent use.
type Handle struct {
	id   string
	spec Spec
	cmd  *exec.Cmd

	stdinMu sync.Mutex
	stdin   io.WriteCloser

	// read ends of the output pipes; closed by the readers, or by the
	// completion goroutine when the drain timeout expires
	stdout *os.File
	stderr *os.File

	mu     sync.Mutex
	state  State
	reaped bool

	readers sync.WaitGroup
	exited  chan struct{} // closed once the process is reaped
	done    chan struct{}
	span    trace.Span
}

// ID returns the handle's unique identifier.
func (h *Handle) ID() string { return h.id }

// Kind returns whether this is the primary or an ad hoc child.
func (h *Handle) Kind() Kind { return h.spec.Kind }

// Spec returns the spawn description.
func (h *Handle) Spec() Spec { return h.spec }

// PID returns the OS process id, or 0 if the process never started.
func (h *Handle) PID() int {
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// IsRunning reports whether the handle accepts writes.
func (h *Handle) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Phase == PhaseRunning && !h.reaped
}

// Done is closed once the terminal state is set and the completion event
// has been pushed.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *Handle) markReaped() {
	h.mu.Lock()
	h.reaped = true
	h.mu.Unlock()
	close(h.exited)
}

// signalable reports whether the OS process may still be signalled. Once
// reaped, its pid (and process group id) may be reused.
func (h *Handle) signalable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cmd != nil && h.cmd.Process != nil && !h.reaped && !h.state.IsTerminal()
}
