package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/fancyterm/internal/events"
	"github.com/zjrosen/fancyterm/internal/log"
)

// DefaultDrainTimeout bounds how long completion waits for the output
// streams to reach EOF after the child has been reaped.
const DefaultDrainTimeout = 2 * time.Second

// Supervisor spawns and controls child processes, delivering their output
// and lifecycle messages to a single sink.
type Supervisor struct {
	sink         events.Sink
	tracer       trace.Tracer
	drainTimeout time.Duration
	shell        []string

	mu      sync.Mutex
	handles map[string]*Handle
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithTracer records a span per child lifetime.
func WithTracer(t trace.Tracer) Option {
	return func(s *Supervisor) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithDrainTimeout overrides DefaultDrainTimeout.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.drainTimeout = d
		}
	}
}

// WithShell overrides the argv prefix used by Shell.
func WithShell(argv []string) Option {
	return func(s *Supervisor) {
		if len(argv) > 0 {
			s.shell = append([]string(nil), argv...)
		}
	}
}

// NewSupervisor creates a Supervisor pushing into sink.
func NewSupervisor(sink events.Sink, opts ...Option) *Supervisor {
	s := &Supervisor{
		sink:         sink,
		tracer:       noop.NewTracerProvider().Tracer("fancyterm/process"),
		drainTimeout: DefaultDrainTimeout,
		shell:        DefaultShell(),
		handles:      make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Spawn starts the child described by spec. On success the handle is
// Running and its readers are pushing output. On failure the returned error
// is a *SpawnError and no events are pushed.
func (s *Supervisor) Spawn(ctx context.Context, spec Spec) (*Handle, error) {
	if len(spec.Argv) == 0 || spec.Argv[0] == "" {
		return nil, &SpawnError{Command: spec.CommandLine(), Err: ErrEmptyCommand}
	}
	if spec.Dir != "" {
		info, err := os.Stat(spec.Dir)
		if err != nil || !info.IsDir() {
			return nil, &SpawnError{Command: spec.CommandLine(), Err: fmt.Errorf("%w: %s", ErrInvalidWorkDir, spec.Dir)}
		}
	}

	h := &Handle{
		id:     uuid.New().String(),
		spec:   spec,
		state:  State{Phase: PhaseStarting},
		exited: make(chan struct{}),
		done:   make(chan struct{}),
	}

	// #nosec G204 -- argv is the command the user asked fancyterm to run
	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	setProcessGroup(cmd)

	var (
		stdin      io.WriteCloser
		outR, outW *os.File
		errR, errW *os.File
		err        error
	)
	// (*os.File).Close tolerates nil receivers
	cleanup := func() {
		if stdin != nil {
			_ = stdin.Close()
		}
		_ = outR.Close()
		_ = outW.Close()
		_ = errR.Close()
		_ = errW.Close()
	}

	if stdin, err = cmd.StdinPipe(); err != nil {
		cleanup()
		return nil, &SpawnError{Command: spec.CommandLine(), Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	if outR, outW, err = os.Pipe(); err != nil {
		cleanup()
		return nil, &SpawnError{Command: spec.CommandLine(), Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	if errR, errW, err = os.Pipe(); err != nil {
		cleanup()
		return nil, &SpawnError{Command: spec.CommandLine(), Err: fmt.Errorf("stderr pipe: %w", err)}
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	log.Debug(log.CatProc, "Spawning process",
		"id", h.id,
		"kind", spec.Kind,
		"argv", spec.CommandLine(),
		"dir", spec.Dir)

	if err := cmd.Start(); err != nil {
		cleanup()
		log.ErrorErr(log.CatProc, "Failed to start process", err, "argv", spec.CommandLine())
		return nil, &SpawnError{Command: spec.CommandLine(), Err: classifyStartError(err)}
	}

	// the child holds its own copies of the write ends
	_ = outW.Close()
	_ = errW.Close()

	h.cmd = cmd
	h.stdin = stdin
	h.stdout = outR
	h.stderr = errR
	h.setState(Running())

	_, h.span = s.tracer.Start(ctx, "process.run",
		trace.WithAttributes(
			attribute.String("process.id", h.id),
			attribute.String("process.kind", spec.Kind.String()),
			attribute.String("process.command", spec.CommandLine()),
			attribute.String("process.dir", spec.Dir),
			attribute.Int("process.pid", cmd.Process.Pid),
		))

	log.Debug(log.CatProc, "Process started", "id", h.id, "pid", cmd.Process.Pid)

	s.mu.Lock()
	s.handles[h.id] = h
	s.mu.Unlock()

	h.readers.Add(2)
	go func() {
		defer h.readers.Done()
		defer func() { _ = outR.Close() }()
		readStream(h.id, outR, events.TagStdout, s.sink)
	}()
	go func() {
		defer h.readers.Done()
		defer func() { _ = errR.Close() }()
		readStream(h.id, errR, events.TagStderr, s.sink)
	}()
	go s.monitor(h)

	return h, nil
}

// Shell runs commandLine through the configured shell as an ad hoc child.
func (s *Supervisor) Shell(ctx context.Context, commandLine, dir string) (*Handle, error) {
	return s.Spawn(ctx, Spec{
		Argv: ShellArgv(s.shell, commandLine),
		Dir:  dir,
		Kind: KindAdhoc,
	})
}

// Write sends text plus a trailing newline to the child's stdin.
// Returns a *WriteError if the handle is not Running or the pipe is broken.
func (s *Supervisor) Write(h *Handle, text string) error {
	if h == nil || !h.IsRunning() {
		id := ""
		if h != nil {
			id = h.id
		}
		return &WriteError{HandleID: id, Err: ErrNotRunning}
	}

	h.stdinMu.Lock()
	defer h.stdinMu.Unlock()

	if _, err := io.WriteString(h.stdin, text+"\n"); err != nil {
		log.Debug(log.CatProc, "Stdin write failed", "id", h.id, "error", err)
		return &WriteError{HandleID: h.id, Err: err}
	}
	return nil
}

// Terminate asks the child to exit and force-kills it if it is still alive
// after timeout. Terminating a handle that already reached a terminal state
// is a no-op. Returns *TerminationTimeout when the kill was needed.
func (s *Supervisor) Terminate(h *Handle, timeout time.Duration) error {
	if h == nil || !h.signalable() {
		return nil
	}

	log.Debug(log.CatProc, "Terminating process", "id", h.id, "timeout", timeout)
	if err := requestStop(h.cmd.Process); err != nil {
		log.Debug(log.CatProc, "Graceful stop failed", "id", h.id, "error", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.exited:
		return nil
	case <-timer.C:
	}

	if !h.signalable() {
		return nil
	}
	log.Warn(log.CatProc, "Process ignored stop request, killing", "id", h.id)
	if err := forceKill(h.cmd.Process); err != nil {
		log.ErrorErr(log.CatProc, "Kill failed", err, "id", h.id)
	}
	return &TerminationTimeout{HandleID: h.id, Timeout: timeout}
}

// Kill force-kills the child without a grace period. No-op on a terminal handle.
func (s *Supervisor) Kill(h *Handle) {
	if h == nil || !h.signalable() {
		return
	}
	log.Debug(log.CatProc, "Killing process", "id", h.id)
	if err := forceKill(h.cmd.Process); err != nil {
		log.ErrorErr(log.CatProc, "Kill failed", err, "id", h.id)
	}
}

// Active returns the handles that have not yet completed.
func (s *Supervisor) Active() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		result = append(result, h)
	}
	return result
}

// monitor reaps the child, waits for its streams to drain, then publishes
// the terminal state followed by exactly one completion event.
func (s *Supervisor) monitor(h *Handle) {
	waitErr := h.cmd.Wait()
	h.markReaped()

	drained := make(chan struct{})
	go func() {
		h.readers.Wait()
		close(drained)
	}()

	timer := time.NewTimer(s.drainTimeout)
	select {
	case <-drained:
		timer.Stop()
	case <-timer.C:
		// a descendant still holds the pipes open
		log.Debug(log.CatProc, "Output did not drain, closing pipes", "id", h.id)
		_ = h.stdout.Close()
		_ = h.stderr.Close()
		<-drained
	}

	state := exitState(waitErr)
	h.setState(state)

	log.Debug(log.CatProc, "Process completed", "id", h.id, "state", state)
	s.sink.Push(events.System(completionMessage(h.spec.Kind, state)))

	if state.Phase == PhaseCrashed {
		h.span.SetStatus(codes.Error, state.Err.Error())
	} else {
		h.span.SetAttributes(attribute.Int("process.exit_code", state.ExitCode))
		if state.ExitCode != 0 {
			h.span.SetStatus(codes.Error, fmt.Sprintf("exit code %d", state.ExitCode))
		}
	}
	h.span.End()

	s.mu.Lock()
	delete(s.handles, h.id)
	s.mu.Unlock()

	close(h.done)
}

// exitState maps the result of cmd.Wait to a terminal State. A child killed
// by a signal has no exit code and is reported as crashed.
func exitState(err error) State {
	if err == nil {
		return Exited(0)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.Exited() {
		return Exited(exitErr.ExitCode())
	}
	return Crashed(err)
}

func completionMessage(kind Kind, state State) string {
	subject := "Process"
	if kind == KindAdhoc {
		subject = "Shell command"
	}
	if state.Phase == PhaseCrashed {
		return fmt.Sprintf("%s error: %v", subject, state.Err)
	}
	return fmt.Sprintf("%s finished with code %d.", subject, state.ExitCode)
}

func classifyStartError(err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrExecutableNotFound, err)
	}
	return err
}
