// Package console is the bubbletea front end of a session: an append-only
// output view, a single input line and a small toolbar of display toggles.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
	"github.com/mattn/go-runewidth"

	"github.com/zjrosen/fancyterm/internal/config"
	"github.com/zjrosen/fancyterm/internal/events"
	"github.com/zjrosen/fancyterm/internal/log"
	"github.com/zjrosen/fancyterm/internal/process"
	"github.com/zjrosen/fancyterm/internal/pubsub"
	"github.com/zjrosen/fancyterm/internal/session"
)

// Zone IDs for the toolbar buttons.
const (
	zoneClear     = "console-clear"
	zoneEcho      = "console-echo"
	zoneHighlight = "console-highlight"
	zoneOnTop     = "console-ontop"
)

// chromeHeight is the number of rows used by header, toolbar, status and input.
const chromeHeight = 4

type (
	startMsg        struct{}
	tickMsg         time.Time
	shutdownDoneMsg struct{ err error }
	prefsSavedMsg   struct{ err error }
)

// Options configures a console Model.
type Options struct {
	Session    session.Config
	Queue      *events.Queue
	Supervisor *process.Supervisor
	Display    config.DisplayConfig

	Title string
	Icon  string

	// ConfigPath is where toggled preferences are saved. Empty disables saving.
	ConfigPath string
	// Preferences delivers hot-reloaded preferences. Optional.
	Preferences pubsub.Subscriber[config.Preferences]

	// Alerts receives the bell and notification escapes. Pass the same
	// *Output given to tea.WithOutput. Defaults to stdout.
	Alerts io.Writer
}

// Model is the console's bubbletea model.
type Model struct {
	sess    *session.Session
	surface *surface
	chrome  *chrome
	alerter *alerter

	viewport viewport.Model
	input    textinput.Model
	keys     KeyMap
	styles   Styles

	title      string
	icon       string
	refresh    time.Duration
	softWrap   bool
	configPath string
	timeout    time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	listener *pubsub.ContinuousListener[config.Preferences]

	width   int
	height  int
	focused bool

	attention  bool   // output arrived while unfocused
	confirming bool   // waiting for y/n on close
	closing    bool   // shutdown in progress
	status     string // transient status line message
	finished   *process.State
}

// New creates the console and its session.
func New(opts Options) Model {
	surf := newSurface(opts.Display.StripANSI)
	ch := &chrome{}
	sess := session.New(opts.Session, opts.Queue, opts.Supervisor, surf, ch)

	title := opts.Title
	if title == "" {
		title = filepath.Base(opts.Session.Command)
	}

	refresh := opts.Display.RefreshInterval
	if refresh <= 0 {
		refresh = 20 * time.Millisecond
	}

	styles := NewStyles(opts.Display.Colors)

	input := textinput.New()
	input.Prompt = "> "
	input.PromptStyle = styles.Prompt
	input.Placeholder = "type a line, !command, clear or exit"
	input.Focus()

	alerts := opts.Alerts
	if alerts == nil {
		alerts = os.Stdout
	}

	ctx, cancel := context.WithCancel(context.Background())
	var listener *pubsub.ContinuousListener[config.Preferences]
	if opts.Preferences != nil {
		listener = pubsub.NewContinuousListener(ctx, opts.Preferences)
	}

	timeout := opts.Session.TerminateTimeout
	if timeout <= 0 {
		timeout = session.DefaultTerminateTimeout
	}

	return Model{
		sess:       sess,
		surface:    surf,
		chrome:     ch,
		alerter:    newAlerter(alerts),
		viewport:   viewport.New(0, 0),
		input:      input,
		keys:       DefaultKeyMap(),
		styles:     styles,
		title:      title,
		icon:       displayIcon(opts.Icon),
		refresh:    refresh,
		softWrap:   opts.Display.Wrap,
		configPath: opts.ConfigPath,
		timeout:    timeout,
		ctx:        ctx,
		cancel:     cancel,
		listener:   listener,
		focused:    true,
	}
}

// displayIcon returns the text shown before the title. Terminals cannot
// show image icons, so a path to an image file is not displayed.
func displayIcon(icon string) string {
	if icon == "" {
		return ""
	}
	if _, err := os.Stat(icon); err == nil {
		log.Debug(log.CatUI, "Icon file cannot be shown in a terminal", "path", icon)
		return ""
	}
	return icon
}

// Session exposes the underlying session.
func (m Model) Session() *session.Session { return m.sess }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		tea.SetWindowTitle(m.windowTitle()),
		func() tea.Msg { return startMsg{} },
		m.tick(),
	}
	if m.listener != nil {
		cmds = append(cmds, m.listener.Listen())
	}
	return tea.Batch(cmds...)
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) windowTitle() string {
	if m.icon != "" {
		return m.icon + " " + m.title
	}
	return m.title
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case startMsg:
		if err := m.sess.Start(m.ctx); err != nil {
			m.status = "failed to start"
		}
		m = m.dispatch()
		return m, nil

	case tickMsg:
		m = m.dispatch()
		cmd := m.afterDispatch()
		return m, tea.Batch(cmd, m.tick())

	case tea.FocusMsg:
		m.focused = true
		m.attention = false
		return m, nil

	case tea.BlurMsg:
		m.focused = false
		return m, nil

	case pubsub.Event[config.Preferences]:
		switch msg.Type {
		case pubsub.UpdatedEvent:
			m.sess.SetPreferences(msg.Payload)
			log.Debug(log.CatUI, "Preferences reloaded")
		case pubsub.FailedEvent:
			m.status = "config reload failed: " + msg.Err.Error()
		}
		return m, m.listener.Listen()

	case prefsSavedMsg:
		if msg.err != nil {
			log.ErrorErr(log.CatConfig, "Saving preferences failed", msg.err)
			m.status = "could not save preferences"
		}
		return m, nil

	case shutdownDoneMsg:
		if msg.err != nil {
			log.Debug(log.CatUI, "Shutdown finished", "error", msg.err)
		}
		m.cancel()
		return m, tea.Quit

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// dispatch drains queued output onto the surface and syncs the viewport.
func (m Model) dispatch() Model {
	m.sess.Dispatch()
	if m.chrome.finished != nil && m.finished == nil {
		m.finished = m.chrome.finished
		m.input.Placeholder = "process finished: !command, clear or exit"
	}
	m.syncViewport()
	return m
}

// afterDispatch turns notifications into commands.
func (m *Model) afterDispatch() tea.Cmd {
	if m.chrome.takeAttention() && !m.focused {
		m.attention = true
		a := m.alerter
		title := m.title
		return func() tea.Msg {
			a.alert(title, "new output")
			return nil
		}
	}
	return nil
}

func (m *Model) syncViewport() {
	if !m.surface.dirty && !m.surface.follow {
		return
	}
	if m.surface.dirty {
		m.viewport.SetContent(m.surface.content(m.styles, m.viewport.Width, m.softWrap))
		m.surface.dirty = false
	}
	if m.surface.follow {
		m.viewport.GotoBottom()
		m.surface.follow = false
	}
}

func (m *Model) resize() {
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-chromeHeight, 1)
	m.input.Width = max(m.width-lipgloss.Width(m.input.Prompt)-1, 1)
	m.surface.dirty = true
	m.surface.follow = true
	m.syncViewport()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.closing {
		return m, nil
	}

	if m.confirming {
		switch {
		case key.Matches(msg, m.keys.Confirm):
			m.confirming = false
			return m.requestClose()
		case key.Matches(msg, m.keys.Cancel):
			m.confirming = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.sess.Preferences().ConfirmOnClose && m.sess.PrimaryState().Phase == process.PhaseRunning {
			m.confirming = true
			return m, nil
		}
		return m.requestClose()

	case key.Matches(msg, m.keys.Submit):
		line := m.input.Value()
		m.input.Reset()
		m.status = ""
		m.sess.Submit(line)
		if m.chrome.closeRequested {
			return m.beginShutdown()
		}
		m = m.dispatch()
		return m, nil

	case key.Matches(msg, m.keys.HistoryPrev):
		m.navigate(-1)
		return m, nil

	case key.Matches(msg, m.keys.HistoryNext):
		m.navigate(1)
		return m, nil

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case key.Matches(msg, m.keys.Clear):
		m.sess.Clear()
		m.syncViewport()
		return m, nil

	case key.Matches(msg, m.keys.ToggleEcho):
		return m.toggle(func(p *config.Preferences) { p.EchoInput = !p.EchoInput })

	case key.Matches(msg, m.keys.ToggleHighlight):
		return m.toggle(func(p *config.Preferences) { p.HighlightOnOutput = !p.HighlightOnOutput })

	case key.Matches(msg, m.keys.ToggleOnTop):
		return m.toggle(func(p *config.Preferences) { p.AlwaysOnTop = !p.AlwaysOnTop })

	case key.Matches(msg, m.keys.ToggleConfirm):
		return m.toggle(func(p *config.Preferences) { p.ConfirmOnClose = !p.ConfirmOnClose })
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) navigate(dir int) {
	line, ok := m.sess.NavigateHistory(dir)
	if !ok {
		return
	}
	m.input.SetValue(line)
	m.input.CursorEnd()
}

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionRelease && !m.closing {
		switch {
		case inZone(zoneClear, msg):
			m.sess.Clear()
			m.syncViewport()
			return m, nil
		case inZone(zoneEcho, msg):
			return m.toggle(func(p *config.Preferences) { p.EchoInput = !p.EchoInput })
		case inZone(zoneHighlight, msg):
			return m.toggle(func(p *config.Preferences) { p.HighlightOnOutput = !p.HighlightOnOutput })
		case inZone(zoneOnTop, msg):
			return m.toggle(func(p *config.Preferences) { p.AlwaysOnTop = !p.AlwaysOnTop })
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func inZone(id string, msg tea.MouseMsg) bool {
	z := zone.Get(id)
	return z != nil && z.InBounds(msg)
}

// toggle applies change to the preferences and saves them.
func (m Model) toggle(change func(*config.Preferences)) (tea.Model, tea.Cmd) {
	prefs := m.sess.Preferences()
	change(&prefs)
	m.sess.SetPreferences(prefs)
	log.Debug(log.CatUI, "Preferences toggled", "prefs", fmt.Sprintf("%+v", prefs))

	if m.configPath == "" {
		return m, nil
	}
	path := m.configPath
	return m, func() tea.Msg {
		return prefsSavedMsg{err: config.SavePreferences(path, prefs)}
	}
}

func (m Model) requestClose() (tea.Model, tea.Cmd) {
	m.sess.RequestClose()
	return m.beginShutdown()
}

// beginShutdown stops every child off the update goroutine, then quits.
func (m Model) beginShutdown() (tea.Model, tea.Cmd) {
	if m.closing {
		return m, nil
	}
	m.closing = true
	m.status = "closing..."
	sess := m.sess
	grace := m.timeout + 2*time.Second
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		return shutdownDoneMsg{err: sess.Shutdown(ctx)}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 {
		return ""
	}
	return zone.Scan(lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		m.toolbarView(),
		m.viewport.View(),
		m.statusView(),
		m.inputView(),
	))
}

func (m Model) headerView() string {
	var badges []string
	if m.attention {
		badges = append(badges, m.styles.Attention.Render("●"))
	}
	if m.sess.Preferences().AlwaysOnTop {
		badges = append(badges, m.styles.Badge.Render("pinned"))
	}
	right := strings.Join(badges, " ")

	// header padding is one column each side
	avail := max(m.width-lipgloss.Width(right)-3, 1)
	title := runewidth.Truncate(m.windowTitle(), avail, "…")

	left := m.styles.Header.Render(title)
	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) toolbarView() string {
	prefs := m.sess.Preferences()
	button := func(id, label string, active bool) string {
		style := m.styles.Button
		if active {
			style = m.styles.ButtonActive
		}
		return zone.Mark(id, style.Render(label))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		button(zoneClear, "Clear", false),
		button(zoneEcho, "Echo", prefs.EchoInput),
		button(zoneHighlight, "Highlight", prefs.HighlightOnOutput),
		button(zoneOnTop, "Pin", prefs.AlwaysOnTop),
	)
}

func (m Model) statusView() string {
	var text string
	style := m.styles.Status
	state := m.sess.PrimaryState()
	switch state.Phase {
	case process.PhaseStarting:
		text = "starting"
	case process.PhaseRunning:
		text = "running"
	case process.PhaseExited:
		text = fmt.Sprintf("exited with code %d", state.ExitCode)
		if state.ExitCode != 0 {
			style = m.styles.StatusError
		}
	case process.PhaseCrashed:
		text = "not running"
		style = m.styles.StatusError
	}
	if n := m.sess.ActiveAdhoc(); n == 1 {
		text += " · 1 shell command running"
	} else if n > 1 {
		text += fmt.Sprintf(" · %d shell commands running", n)
	}
	if m.status != "" {
		text += " · " + m.status
	}
	return style.Render(runewidth.Truncate(text, max(m.width, 1), "…"))
}

func (m Model) inputView() string {
	if m.confirming {
		return m.styles.Confirm.Render("Process is still running. Close anyway? (y/n)")
	}
	return m.input.View()
}
