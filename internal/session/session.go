// Package session ties a primary child process to the console: it routes
// submitted lines, drains child output onto the display surface, and owns
// shutdown of every child it started.
//
// A Session is owned by the bubbletea update goroutine. Only Shutdown may
// run elsewhere, and only after RequestClose.
package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjrosen/fancyterm/internal/config"
	"github.com/zjrosen/fancyterm/internal/events"
	"github.com/zjrosen/fancyterm/internal/history"
	"github.com/zjrosen/fancyterm/internal/log"
	"github.com/zjrosen/fancyterm/internal/process"
)

// DefaultTerminateTimeout is the grace period given to the primary child on
// shutdown before it is killed.
const DefaultTerminateTimeout = 1200 * time.Millisecond

// Surface is the append-only display the dispatcher writes to.
type Surface interface {
	Render(tag events.Tag, text string)
	Clear()
	ScrollToEnd()
}

// Notifier receives lifecycle notifications for the window chrome.
type Notifier interface {
	// Notify reports the primary child's terminal state, once.
	Notify(state process.State)
	// Attention asks for the user's attention after new output.
	Attention()
	// CloseRequested reports that the session wants the window closed.
	CloseRequested()
}

// Config describes the primary child and session behavior.
type Config struct {
	Command     string
	Args        []string
	Interpreter []string // prepended to Command, e.g. ["python3", "-u"]
	Env         []string // extra KEY=VALUE pairs for the primary child

	// Dir overrides the working directory. When empty it is derived from
	// Command by ResolveCommand.
	Dir string

	TerminateTimeout time.Duration
	Preferences      config.Preferences

	// History persists submitted lines under Command. Optional.
	History      history.Store
	HistoryLimit int
}

// Session is the bridge between one primary child and the console.
type Session struct {
	cfg      Config
	queue    *events.Queue
	sup      *process.Supervisor
	surface  Surface
	notifier Notifier
	ring     *history.Ring
	prefs    config.Preferences

	argv     []string
	dir      string
	primary  *process.Handle
	startErr error

	inputEnabled bool
	notified     bool

	adhoc map[string]*process.Handle

	closing  bool
	snapshot closeSnapshot
}

type closeSnapshot struct {
	primary *process.Handle
	adhoc   []*process.Handle
}

// New creates a session. sup must push into queue.
func New(cfg Config, queue *events.Queue, sup *process.Supervisor, surface Surface, notifier Notifier) *Session {
	if cfg.TerminateTimeout <= 0 {
		cfg.TerminateTimeout = DefaultTerminateTimeout
	}

	argv0, dir := ResolveCommand(cfg.Command, len(cfg.Interpreter) > 0)
	if cfg.Dir != "" {
		dir = cfg.Dir
	}
	argv := make([]string, 0, len(cfg.Interpreter)+1+len(cfg.Args))
	argv = append(argv, cfg.Interpreter...)
	argv = append(argv, argv0)
	argv = append(argv, cfg.Args...)

	return &Session{
		cfg:      cfg,
		queue:    queue,
		sup:      sup,
		surface:  surface,
		notifier: notifier,
		ring:     history.New(),
		prefs:    cfg.Preferences,
		argv:     argv,
		dir:      dir,
		adhoc:    make(map[string]*process.Handle),
	}
}

// ResolveCommand returns the argv entry and working directory for command.
// A command naming an existing file is made absolute and runs in its own
// directory. Anything else is looked up on PATH and runs in the current
// directory. When interpreted is set the file is passed to the interpreter,
// so its absolute path is used the same way.
func ResolveCommand(command string, interpreted bool) (argv0, dir string) {
	hasSep := strings.ContainsRune(command, '/') || strings.ContainsRune(command, filepath.Separator)
	if !hasSep && !interpreted {
		return command, ""
	}
	info, err := os.Stat(command)
	if err != nil || info.IsDir() {
		return command, ""
	}
	abs, err := filepath.Abs(command)
	if err != nil {
		return command, ""
	}
	return abs, filepath.Dir(abs)
}

// Start loads persisted history and spawns the primary child. A spawn
// failure is reported on the surface, leaves input disabled and is
// returned for logging; the session stays usable for ad hoc commands.
func (s *Session) Start(ctx context.Context) error {
	s.loadHistory()

	s.queue.Push(events.System("Running: " + s.displayCommand()))

	h, err := s.sup.Spawn(ctx, process.Spec{
		Argv: s.argv,
		Dir:  s.dir,
		Env:  s.cfg.Env,
		Kind: process.KindPrimary,
	})
	if err != nil {
		s.startErr = err
		s.inputEnabled = false
		s.queue.Push(events.System("Error starting process: " + err.Error()))
		log.ErrorErr(log.CatSession, "Primary spawn failed", err, "argv", strings.Join(s.argv, " "))
		return err
	}

	s.primary = h
	s.inputEnabled = true
	log.Info(log.CatSession, "Session started", "id", h.ID(), "pid", h.PID(), "dir", s.dir)
	return nil
}

func (s *Session) displayCommand() string {
	shown := strings.TrimSpace(strings.Join(s.cfg.Args, " "))
	return strings.TrimSpace(s.cfg.Command + " " + shown)
}

func (s *Session) loadHistory() {
	if s.cfg.History == nil {
		return
	}
	lines, err := s.cfg.History.Recent(s.cfg.Command, s.cfg.HistoryLimit)
	if err != nil {
		log.ErrorErr(log.CatHistory, "Loading history failed", err, "scope", s.cfg.Command)
		return
	}
	s.ring.Load(lines)
	log.Debug(log.CatHistory, "Loaded history", "scope", s.cfg.Command, "entries", len(lines))
}

// Clear empties the display surface.
func (s *Session) Clear() {
	s.surface.Clear()
}

// NavigateHistory moves the history cursor by dir (-1 older, +1 newer) and
// returns the line to show. ok is false when there is no history.
func (s *Session) NavigateHistory(dir int) (string, bool) {
	return s.ring.Navigate(dir)
}

// History exposes the ring for display and tests.
func (s *Session) History() *history.Ring { return s.ring }

// SetPreferences replaces the runtime toggles.
func (s *Session) SetPreferences(p config.Preferences) {
	s.prefs = p
}

// Preferences returns the runtime toggles in effect.
func (s *Session) Preferences() config.Preferences { return s.prefs }

// InputEnabled reports whether lines are forwarded to the primary child.
func (s *Session) InputEnabled() bool { return s.inputEnabled }

// Closing reports whether RequestClose has been called.
func (s *Session) Closing() bool { return s.closing }

// PrimaryState returns the primary child's lifecycle state. A failed spawn
// is reported as crashed with the spawn error.
func (s *Session) PrimaryState() process.State {
	if s.primary != nil {
		return s.primary.State()
	}
	if s.startErr != nil {
		return process.Crashed(s.startErr)
	}
	return process.State{Phase: process.PhaseStarting}
}

// RequestClose disables input, records every child that must be stopped and
// tells the notifier. Calling it again is a no-op.
func (s *Session) RequestClose() {
	if s.closing {
		return
	}
	s.closing = true
	s.inputEnabled = false
	s.snapshot = s.takeSnapshot()
	log.Info(log.CatSession, "Close requested", "adhoc", len(s.snapshot.adhoc))
	s.notifier.CloseRequested()
}

func (s *Session) takeSnapshot() closeSnapshot {
	snap := closeSnapshot{primary: s.primary}
	for _, h := range s.adhoc {
		snap.adhoc = append(snap.adhoc, h)
	}
	return snap
}

// Shutdown stops every child recorded by RequestClose: ad hoc children are
// killed immediately and the primary gets the terminate timeout before it is
// killed. It returns once the primary has been stopped or ctx is done.
// Safe to run from a tea.Cmd goroutine.
func (s *Session) Shutdown(ctx context.Context) error {
	if !s.closing {
		s.closing = true
		s.snapshot = s.takeSnapshot()
	}
	snap := s.snapshot

	for _, h := range snap.adhoc {
		s.sup.Kill(h)
	}
	if snap.primary == nil {
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.sup.Terminate(snap.primary, s.cfg.TerminateTimeout)
	}()

	select {
	case err := <-errCh:
		var tt *process.TerminationTimeout
		if errors.As(err, &tt) {
			log.Warn(log.CatSession, "Primary killed after timeout", "timeout", tt.Timeout)
		}
		return err
	case <-ctx.Done():
		s.sup.Kill(snap.primary)
		return ctx.Err()
	}
}
