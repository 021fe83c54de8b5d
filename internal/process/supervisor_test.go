//go:build !windows

package process

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/fancyterm/internal/events"
)

// newTestSupervisor returns a supervisor and the queue it pushes into.
func newTestSupervisor(t *testing.T, opts ...Option) (*Supervisor, *events.Queue) {
	t.Helper()
	q := events.NewQueue()
	return NewSupervisor(q, opts...), q
}

func spawnSh(t *testing.T, s *Supervisor, script string) *Handle {
	t.Helper()
	h, err := s.Spawn(context.Background(), Spec{Argv: []string{"/bin/sh", "-c", script}})
	require.NoError(t, err)
	t.Cleanup(func() { s.Kill(h) })
	return h
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(10 * time.Second):
		t.Fatalf("process %s did not complete", h.ID())
	}
}

// textByTag concatenates queued event contents per tag, preserving order.
func textByTag(evs []events.Event) map[events.Tag]string {
	out := make(map[events.Tag]string)
	for _, e := range evs {
		out[e.Tag] += e.Content
	}
	return out
}

// waitForOutput polls q until the accumulated stdout contains want.
func waitForOutput(t *testing.T, q *events.Queue, want string) []events.Event {
	t.Helper()
	var got []events.Event
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got = append(got, q.Drain()...)
		if strings.Contains(textByTag(got)[events.TagStdout], want) {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q, got %q", want, textByTag(got)[events.TagStdout])
	return nil
}

func TestSpawn_EchoesStdinToStdout(t *testing.T) {
	s, q := newTestSupervisor(t)

	h := spawnSh(t, s, `read line; echo "got: $line"`)
	require.True(t, h.IsRunning())
	require.NotEmpty(t, h.ID())
	require.Greater(t, h.PID(), 0)

	require.NoError(t, s.Write(h, "hello"))
	waitDone(t, h)

	evs := q.Drain()
	byTag := textByTag(evs)
	require.Equal(t, "got: hello\n", byTag[events.TagStdout])
	require.Equal(t, events.System("Process finished with code 0."), evs[len(evs)-1])
	require.Equal(t, Exited(0), h.State())
}

func TestSpawn_StderrIsTagged(t *testing.T) {
	s, q := newTestSupervisor(t)

	h := spawnSh(t, s, `echo out; echo err 1>&2`)
	waitDone(t, h)

	byTag := textByTag(q.Drain())
	require.Equal(t, "out\n", byTag[events.TagStdout])
	require.Equal(t, "err\n", byTag[events.TagStderr])
}

func TestSpawn_ExitCode(t *testing.T) {
	s, q := newTestSupervisor(t)

	h := spawnSh(t, s, `exit 3`)
	waitDone(t, h)

	require.Equal(t, Exited(3), h.State())
	require.Equal(t, []events.Event{events.System("Process finished with code 3.")}, q.Drain())
}

func TestSpawn_CompletionEventIsLastAndUnique(t *testing.T) {
	s, q := newTestSupervisor(t)

	h := spawnSh(t, s, `i=0; while [ $i -lt 200 ]; do echo line $i; i=$((i+1)); done`)
	waitDone(t, h)

	evs := q.Drain()
	var systemCount int
	for _, e := range evs {
		if e.Tag == events.TagSystem {
			systemCount++
		}
	}
	require.Equal(t, 1, systemCount)
	require.Equal(t, events.TagSystem, evs[len(evs)-1].Tag)
	require.True(t, strings.HasSuffix(textByTag(evs)[events.TagStdout], "line 199\n"))
}

func TestSpawn_ExecutableNotFound(t *testing.T) {
	s, q := newTestSupervisor(t)

	h, err := s.Spawn(context.Background(), Spec{Argv: []string{"fancyterm-definitely-missing-binary"}})
	require.Nil(t, h)

	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	require.ErrorIs(t, err, ErrExecutableNotFound)
	require.Equal(t, 0, q.Len(), "failed spawn must not push events")
	require.Empty(t, s.Active())
}

func TestSpawn_MissingScriptPath(t *testing.T) {
	s, _ := newTestSupervisor(t)

	_, err := s.Spawn(context.Background(), Spec{Argv: []string{filepath.Join(t.TempDir(), "nope.sh")}})
	require.ErrorIs(t, err, ErrExecutableNotFound)
}

func TestSpawn_InvalidWorkDir(t *testing.T) {
	s, _ := newTestSupervisor(t)

	_, err := s.Spawn(context.Background(), Spec{
		Argv: []string{"/bin/sh", "-c", "true"},
		Dir:  filepath.Join(t.TempDir(), "missing"),
	})
	require.ErrorIs(t, err, ErrInvalidWorkDir)
}

func TestSpawn_EmptyCommand(t *testing.T) {
	s, _ := newTestSupervisor(t)

	_, err := s.Spawn(context.Background(), Spec{})
	require.ErrorIs(t, err, ErrEmptyCommand)
}

func TestSpawn_UsesWorkDir(t *testing.T) {
	s, q := newTestSupervisor(t)
	dir := t.TempDir()

	h, err := s.Spawn(context.Background(), Spec{Argv: []string{"/bin/sh", "-c", "pwd -P"}, Dir: dir})
	require.NoError(t, err)
	waitDone(t, h)

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	require.Equal(t, resolved+"\n", textByTag(q.Drain())[events.TagStdout])
}

func TestWrite_AfterExit(t *testing.T) {
	s, q := newTestSupervisor(t)

	h := spawnSh(t, s, `exit 0`)
	waitDone(t, h)
	q.Drain()

	err := s.Write(h, "too late")
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	require.ErrorIs(t, err, ErrNotRunning)
	require.Equal(t, 0, q.Len())
}

func TestWrite_NilHandle(t *testing.T) {
	s, _ := newTestSupervisor(t)
	require.ErrorIs(t, s.Write(nil, "x"), ErrNotRunning)
}

func TestTerminate_GracefulExit(t *testing.T) {
	s, _ := newTestSupervisor(t)

	h := spawnSh(t, s, `exec sleep 30`)

	start := time.Now()
	require.NoError(t, s.Terminate(h, 5*time.Second))
	require.Less(t, time.Since(start), 5*time.Second)

	waitDone(t, h)
	st := h.State()
	require.Equal(t, PhaseCrashed, st.Phase, "signal-terminated child has no exit code")
	require.Error(t, st.Err)
}

func TestTerminate_EscalatesToKill(t *testing.T) {
	s, q := newTestSupervisor(t)

	h := spawnSh(t, s, `trap "" TERM; echo ready; while true; do sleep 1; done`)
	waitForOutput(t, q, "ready")

	const timeout = 200 * time.Millisecond
	start := time.Now()
	err := s.Terminate(h, timeout)
	elapsed := time.Since(start)

	var tt *TerminationTimeout
	require.ErrorAs(t, err, &tt)
	require.GreaterOrEqual(t, elapsed, timeout)
	require.Less(t, elapsed, timeout+time.Second)

	waitDone(t, h)
	require.Equal(t, PhaseCrashed, h.State().Phase)
}

func TestTerminate_ExitedHandleIsNoop(t *testing.T) {
	s, q := newTestSupervisor(t)

	h := spawnSh(t, s, `exit 0`)
	waitDone(t, h)
	q.Drain()

	require.NoError(t, s.Terminate(h, time.Second))
	require.NoError(t, s.Terminate(h, time.Second))
	s.Kill(h)
	require.Equal(t, 0, q.Len(), "terminating an exited handle must not emit events")
	require.Equal(t, Exited(0), h.State())
}

func TestShell_AdhocMessages(t *testing.T) {
	s, q := newTestSupervisor(t)

	h, err := s.Shell(context.Background(), "echo hi", "")
	require.NoError(t, err)
	require.Equal(t, KindAdhoc, h.Kind())
	waitDone(t, h)

	evs := q.Drain()
	require.Contains(t, textByTag(evs)[events.TagStdout], "hi")
	require.Equal(t, events.System("Shell command finished with code 0."), evs[len(evs)-1])
}

func TestShell_DoesNotSourceProfile(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, ".profile"), []byte("echo PROFILE-NOISE\ncd /\n"), 0o600))
	t.Setenv("HOME", home)

	s, q := newTestSupervisor(t)
	dir := t.TempDir()

	h, err := s.Shell(context.Background(), "echo hi; pwd -P", dir)
	require.NoError(t, err)
	waitDone(t, h)

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	require.Equal(t, "hi\n"+resolved+"\n", textByTag(q.Drain())[events.TagStdout])
}

func TestSpawn_ExtraEnv(t *testing.T) {
	s, q := newTestSupervisor(t)

	h, err := s.Spawn(context.Background(), Spec{
		Argv: []string{"/bin/sh", "-c", `echo "$FANCYTERM_TEST_VAR"`},
		Env:  []string{"FANCYTERM_TEST_VAR=from-config"},
	})
	require.NoError(t, err)
	waitDone(t, h)

	require.Equal(t, "from-config\n", textByTag(q.Drain())[events.TagStdout])
}

func TestShell_CustomShell(t *testing.T) {
	s, q := newTestSupervisor(t, WithShell([]string{"/bin/sh", "-c"}))

	h, err := s.Shell(context.Background(), "echo $((1+2))", "")
	require.NoError(t, err)
	waitDone(t, h)

	require.Equal(t, "3\n", textByTag(q.Drain())[events.TagStdout])
}

func TestMonitor_DrainTimeoutWithInheritedPipes(t *testing.T) {
	s, q := newTestSupervisor(t, WithDrainTimeout(100*time.Millisecond))

	// the background sleep keeps stdout open after sh exits
	h := spawnSh(t, s, `sleep 30 & echo started`)
	pgid := h.PID()
	t.Cleanup(func() { _ = syscall.Kill(-pgid, syscall.SIGKILL) })

	waitDone(t, h)

	evs := q.Drain()
	require.Equal(t, "started\n", textByTag(evs)[events.TagStdout])
	require.Equal(t, events.System("Process finished with code 0."), evs[len(evs)-1])
}

func TestActive_TracksRunningHandles(t *testing.T) {
	s, _ := newTestSupervisor(t)

	h := spawnSh(t, s, `read x`)
	require.Len(t, s.Active(), 1)

	require.NoError(t, s.Write(h, ""))
	waitDone(t, h)
	require.Empty(t, s.Active())
}

func TestExitState(t *testing.T) {
	require.Equal(t, Exited(0), exitState(nil))

	generic := errors.New("wait failed")
	require.Equal(t, Crashed(generic), exitState(generic))

	err := exec.Command("/bin/sh", "-c", "exit 7").Run()
	require.Equal(t, Exited(7), exitState(err))

	err = exec.Command("/bin/sh", "-c", "kill -9 $$").Run()
	require.Equal(t, PhaseCrashed, exitState(err).Phase)
}

func TestCompletionMessage(t *testing.T) {
	tests := []struct {
		kind  Kind
		state State
		want  string
	}{
		{KindPrimary, Exited(0), "Process finished with code 0."},
		{KindPrimary, Exited(2), "Process finished with code 2."},
		{KindPrimary, Crashed(errors.New("signal: killed")), "Process error: signal: killed"},
		{KindAdhoc, Exited(1), "Shell command finished with code 1."},
		{KindAdhoc, Crashed(errors.New("boom")), "Shell command error: boom"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, completionMessage(tt.kind, tt.state))
	}
}
