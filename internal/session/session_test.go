//go:build !windows

package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/fancyterm/internal/config"
	"github.com/zjrosen/fancyterm/internal/events"
	"github.com/zjrosen/fancyterm/internal/process"
)

type harness struct {
	s        *Session
	sup      *process.Supervisor
	surface  *fakeSurface
	notifier *fakeNotifier
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	if cfg.Preferences == (config.Preferences{}) {
		cfg.Preferences = config.Defaults().Preferences()
	}
	q := events.NewQueue()
	sup := process.NewSupervisor(q, process.WithDrainTimeout(500*time.Millisecond))
	t.Cleanup(func() {
		for _, h := range sup.Active() {
			sup.Kill(h)
		}
	})
	h := &harness{sup: sup, surface: &fakeSurface{}, notifier: &fakeNotifier{}}
	h.s = New(cfg, q, sup, h.surface, h.notifier)
	return h
}

// startScript starts a session whose primary child runs script under /bin/sh.
func startScript(t *testing.T, script string) *harness {
	t.Helper()
	h := newHarness(t, Config{Command: "/bin/sh", Args: []string{"-c", script}})
	require.NoError(t, h.s.Start(context.Background()))
	return h
}

// pump dispatches until cond holds.
func (h *harness) pump(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		h.s.Dispatch()
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met; surface: %+v", h.surface.lines)
}

func (h *harness) indexOf(tag events.Tag, substr string) int {
	for i, l := range h.surface.lines {
		if l.tag == tag && strings.Contains(l.text, substr) {
			return i
		}
	}
	return -1
}

func (h *harness) finished() bool {
	h.notifier.mu.Lock()
	defer h.notifier.mu.Unlock()
	return len(h.notifier.states) > 0
}

func TestSession_EchoThenStdout(t *testing.T) {
	h := startScript(t, `read line; echo "got: $line"`)

	h.s.Submit("hello")
	h.pump(t, func() bool { return strings.Contains(h.surface.text(events.TagStdout), "got: hello") })

	echo := h.indexOf(events.TagStdinEcho, "hello")
	out := h.indexOf(events.TagStdout, "got: hello")
	require.GreaterOrEqual(t, echo, 0)
	require.Less(t, echo, out, "echo must be rendered before the child's reply")
	require.Equal(t, "hello\n", h.surface.lines[echo].text)
}

func TestSession_StartBanner(t *testing.T) {
	h := startScript(t, `exit 0`)
	h.pump(t, h.finished)

	require.Equal(t, rendered{tag: events.TagSystem, text: "[System] Running: /bin/sh -c exit 0\n"}, h.surface.lines[0])
}

func TestSession_ShellCommand(t *testing.T) {
	h := startScript(t, `cat`)

	route := h.s.Submit("!echo hi")
	require.Equal(t, RouteShell, route)
	require.Equal(t, 1, h.s.ActiveAdhoc())

	h.pump(t, func() bool { return h.indexOf(events.TagSystem, "Shell command finished with code 0.") >= 0 })
	require.Eventually(t, func() bool {
		h.s.Dispatch()
		return h.s.ActiveAdhoc() == 0
	}, 5*time.Second, 5*time.Millisecond, "finished ad hoc children are pruned")

	running := h.indexOf(events.TagSystem, "Running: echo hi")
	out := h.indexOf(events.TagStdout, "hi")
	require.GreaterOrEqual(t, running, 0)
	require.Equal(t, "[System] Running: echo hi\n", h.surface.lines[running].text)
	require.Less(t, running, out)
	require.True(t, h.s.InputEnabled(), "ad hoc completion must not disable the primary")
}

func TestSession_EmptyShellCommand(t *testing.T) {
	h := newHarness(t, Config{Command: "/bin/sh"})

	require.Equal(t, RouteShell, h.s.Submit("!   "))
	h.s.Dispatch()

	require.Equal(t, []rendered{{tag: events.TagStdinEcho, text: "!   \n"}}, h.surface.lines)
	require.Equal(t, 0, h.s.ActiveAdhoc())
	require.Equal(t, []string{"!   "}, h.s.History().Entries())
}

func TestSession_ClearNeverForwards(t *testing.T) {
	h := startScript(t, `cat`)
	h.s.Dispatch()

	require.Equal(t, RouteClear, h.s.Submit("clear"))
	require.Equal(t, RouteClear, h.s.Submit("  CLS "))
	h.s.Submit("ping")

	h.pump(t, func() bool { return h.surface.text(events.TagStdout) == "ping\n" })
	require.Equal(t, 2, h.surface.clears)
	require.Equal(t, "ping\n", h.surface.text(events.TagStdinEcho), "clear commands are never echoed")
	require.Equal(t, []string{"clear", "  CLS ", "ping"}, h.s.History().Entries())
}

func TestSession_SubmitAfterExit(t *testing.T) {
	h := startScript(t, `exit 0`)
	h.pump(t, h.finished)
	require.False(t, h.s.InputEnabled())

	require.Equal(t, RouteNotRunning, h.s.Submit("anything"))
	h.s.Dispatch()

	require.Equal(t, 1, h.surface.count(events.TagSystem, "[System] Process is not running.\n"))
}

func TestSession_SubmitBeforeDispatchNoticesExit(t *testing.T) {
	h := startScript(t, `exit 0`)
	require.Eventually(t, func() bool { return h.s.PrimaryState().IsTerminal() }, 5*time.Second, 5*time.Millisecond)

	require.Equal(t, RouteNotRunning, h.s.Submit("late"))
}

func TestSession_NotifiesOnce(t *testing.T) {
	h := startScript(t, `echo bye; exit 3`)

	var finishedTicks int
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && finishedTicks == 0 {
		if h.s.Dispatch().Finished {
			finishedTicks++
		}
		time.Sleep(5 * time.Millisecond)
	}
	for i := 0; i < 5; i++ {
		require.False(t, h.s.Dispatch().Finished)
	}

	require.Equal(t, 1, finishedTicks)
	require.Equal(t, []process.State{process.Exited(3)}, h.notifier.states)
	last := h.surface.lines[len(h.surface.lines)-1]
	require.Equal(t, rendered{tag: events.TagSystem, text: "[System] Process finished with code 3.\n"}, last,
		"completion message is rendered on the tick that reports the exit")
}

func TestSession_StartFailure(t *testing.T) {
	h := newHarness(t, Config{Command: "fancyterm-no-such-command"})

	err := h.s.Start(context.Background())
	require.ErrorIs(t, err, process.ErrExecutableNotFound)
	require.False(t, h.s.InputEnabled())
	require.Equal(t, process.PhaseCrashed, h.s.PrimaryState().Phase)

	h.s.Submit("hello")
	res := h.s.Dispatch()
	require.True(t, res.Finished)
	require.GreaterOrEqual(t, h.indexOf(events.TagSystem, "Error starting process:"), 0)
	require.Equal(t, 1, h.surface.count(events.TagSystem, "[System] Process is not running.\n"))

	h.s.Dispatch()
	require.Len(t, h.notifier.states, 1, "a failed start notifies once")
	require.Equal(t, process.PhaseCrashed, h.notifier.states[0].Phase)
	require.ErrorIs(t, h.notifier.states[0].Err, process.ErrExecutableNotFound)
}

func TestSession_PrimaryEnv(t *testing.T) {
	h := newHarness(t, Config{
		Command: "/bin/sh",
		Args:    []string{"-c", `echo "$FANCYTERM_SESSION_VAR"`},
		Env:     []string{"FANCYTERM_SESSION_VAR=set"},
	})
	require.NoError(t, h.s.Start(context.Background()))
	h.pump(t, h.finished)

	require.Equal(t, "set\n", h.surface.text(events.TagStdout))
}

func TestSession_EchoDisabled(t *testing.T) {
	h := startScript(t, `cat`)
	prefs := h.s.Preferences()
	prefs.EchoInput = false
	h.s.SetPreferences(prefs)

	h.s.Submit("quiet")
	h.pump(t, func() bool { return h.surface.text(events.TagStdout) == "quiet\n" })
	require.Empty(t, h.surface.text(events.TagStdinEcho))
}

func TestSession_AttentionOnOutput(t *testing.T) {
	tests := []struct {
		name      string
		highlight bool
		want      bool
	}{
		{"highlight on", true, true},
		{"highlight off", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{
				Command:     "/bin/sh",
				Args:        []string{"-c", "echo out"},
				Preferences: config.Preferences{EchoInput: true, HighlightOnOutput: tt.highlight},
			})
			require.NoError(t, h.s.Start(context.Background()))
			h.pump(t, h.finished)
			require.Equal(t, tt.want, h.notifier.attention > 0)
		})
	}
}

func TestSession_ExitRequestsClose(t *testing.T) {
	h := startScript(t, `cat`)

	require.Equal(t, RouteExit, h.s.Submit(" Exit "))
	h.s.RequestClose()

	require.Equal(t, 1, h.notifier.closes)
	require.True(t, h.s.Closing())
	require.False(t, h.s.InputEnabled())
	require.Empty(t, h.surface.text(events.TagStdinEcho))
}

func TestSession_ShutdownStopsEveryChild(t *testing.T) {
	h := startScript(t, `cat`)
	h.s.Submit("!sleep 30")
	require.Equal(t, 1, h.s.ActiveAdhoc())

	h.s.RequestClose()
	adhoc := h.s.snapshot.adhoc
	require.Len(t, adhoc, 1)

	require.NoError(t, h.s.Shutdown(context.Background()))

	for _, hd := range append(adhoc, h.s.primary) {
		select {
		case <-hd.Done():
		case <-time.After(5 * time.Second):
			t.Fatalf("%s child still running", hd.Kind())
		}
	}
}

func TestSession_ShutdownEscalates(t *testing.T) {
	h := newHarness(t, Config{
		Command:          "/bin/sh",
		Args:             []string{"-c", `trap "" TERM; echo ready; while true; do sleep 1; done`},
		TerminateTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, h.s.Start(context.Background()))
	h.pump(t, func() bool { return strings.Contains(h.surface.text(events.TagStdout), "ready") })

	h.s.RequestClose()
	start := time.Now()
	err := h.s.Shutdown(context.Background())
	elapsed := time.Since(start)

	var tt *process.TerminationTimeout
	require.ErrorAs(t, err, &tt)
	require.Less(t, elapsed, 200*time.Millisecond+time.Second)

	h.pump(t, h.finished)
	require.Equal(t, process.PhaseCrashed, h.notifier.states[0].Phase)
}

func TestSession_ShutdownWithoutPrimary(t *testing.T) {
	h := newHarness(t, Config{Command: "fancyterm-no-such-command"})
	_ = h.s.Start(context.Background())

	h.s.RequestClose()
	require.NoError(t, h.s.Shutdown(context.Background()))
}

func TestSession_HistoryNavigation(t *testing.T) {
	h := newHarness(t, Config{Command: "/bin/sh"})

	_, ok := h.s.NavigateHistory(-1)
	require.False(t, ok)

	h.s.Submit("a")
	h.s.Submit("b")

	var got []string
	for i := 0; i < 3; i++ {
		line, ok := h.s.NavigateHistory(-1)
		require.True(t, ok)
		got = append(got, line)
	}
	require.Equal(t, []string{"b", "a", "a"}, got)
}

func TestSession_PersistentHistory(t *testing.T) {
	store := &memoryStore{}

	first := newHarness(t, Config{Command: "/bin/sh", History: store})
	first.s.Submit("one")
	first.s.Submit("   ")
	first.s.Submit("two")
	require.Equal(t, []string{"one", "two"}, store.lines["/bin/sh"])

	second := newHarness(t, Config{
		Command:      "/bin/sh",
		Args:         []string{"-c", "exit 0"},
		History:      store,
		HistoryLimit: 1,
	})
	require.NoError(t, second.s.Start(context.Background()))

	line, ok := second.s.NavigateHistory(-1)
	require.True(t, ok)
	require.Equal(t, "two", line)
	require.Equal(t, []string{"two"}, second.s.History().Entries())
}

func TestSession_InterpreterRunsScriptInItsDirectory(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "hello.sh")
	require.NoError(t, os.WriteFile(script, []byte("pwd -P\necho \"args: $*\"\n"), 0o600))

	h := newHarness(t, Config{
		Command:     script,
		Args:        []string{"x", "y"},
		Interpreter: []string{"/bin/sh"},
	})
	require.NoError(t, h.s.Start(context.Background()))
	h.pump(t, h.finished)

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	require.Equal(t, resolved+"\nargs: x y\n", h.surface.text(events.TagStdout))
	require.Equal(t, dir, h.s.dir)
}
