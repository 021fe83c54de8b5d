package console

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"

	"github.com/zjrosen/fancyterm/internal/events"
)

// maxLines bounds the scrollback kept in memory.
const maxLines = 10000

type segment struct {
	tag  events.Tag
	text string
}

// line is one logical output line; it may mix tags when a child writes
// stdout and stderr without a newline in between.
type line []segment

// surface is the append-only output buffer behind the viewport. It
// implements session.Surface and is only touched on the update goroutine.
type surface struct {
	lines     []line
	stripANSI bool
	strippers map[events.Tag]*stripper

	dirty  bool
	follow bool // scroll to the bottom on the next sync
}

func newSurface(stripANSI bool) *surface {
	return &surface{
		lines:     []line{nil},
		stripANSI: stripANSI,
		strippers: make(map[events.Tag]*stripper),
	}
}

// Render appends text under tag.
func (s *surface) Render(tag events.Tag, text string) {
	text = s.sanitize(tag, text)
	if text == "" {
		return
	}

	parts := strings.Split(text, "\n")
	last := len(s.lines) - 1
	if parts[0] != "" {
		s.lines[last] = append(s.lines[last], segment{tag: tag, text: parts[0]})
	}
	for _, p := range parts[1:] {
		var l line
		if p != "" {
			l = line{{tag: tag, text: p}}
		}
		s.lines = append(s.lines, l)
	}
	if over := len(s.lines) - maxLines; over > 0 {
		s.lines = append([]line(nil), s.lines[over:]...)
	}
	s.dirty = true
}

// Clear drops everything rendered so far.
func (s *surface) Clear() {
	s.lines = []line{nil}
	s.dirty = true
	s.follow = true
}

// ScrollToEnd asks the viewport to follow the newest output.
func (s *surface) ScrollToEnd() {
	s.follow = true
}

func (s *surface) sanitize(tag events.Tag, text string) string {
	if s.stripANSI {
		st, ok := s.strippers[tag]
		if !ok {
			st = newStripper()
			s.strippers[tag] = st
		}
		text = st.strip(text)
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "")
	return strings.ReplaceAll(text, "\t", "    ")
}

// stripper removes escape sequences from one stream. The parser state
// survives between calls, so a sequence split across reads is still removed.
type stripper struct {
	parser *ansi.Parser
	buf    strings.Builder
}

func newStripper() *stripper {
	st := &stripper{parser: ansi.NewParser()}
	st.parser.SetHandler(ansi.Handler{
		Print:   func(r rune) { st.buf.WriteRune(r) },
		Execute: func(b byte) { st.buf.WriteByte(b) },
	})
	return st
}

func (st *stripper) strip(text string) string {
	st.buf.Reset()
	for i := 0; i < len(text); i++ {
		st.parser.Advance(text[i])
	}
	return st.buf.String()
}

// content renders the buffer for a viewport of the given width. The
// trailing empty line left by a final newline is not shown.
func (s *surface) content(styles Styles, width int, softWrap bool) string {
	lines := s.lines
	if n := len(lines); n > 0 && len(lines[n-1]) == 0 {
		lines = lines[:n-1]
	}

	rendered := make([]string, 0, len(lines))
	for _, l := range lines {
		var b strings.Builder
		for _, seg := range l {
			b.WriteString(styles.tag(seg.tag).Render(seg.text))
		}
		text := b.String()
		if softWrap && width > 0 && lipgloss.Width(text) > width {
			text = wrap.String(wordwrap.String(text, width), width)
		}
		rendered = append(rendered, text)
	}
	return strings.Join(rendered, "\n")
}

// plain returns the buffer without styling. Used by tests and copy.
func (s *surface) plain() string {
	var b strings.Builder
	for i, l := range s.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, seg := range l {
			b.WriteString(seg.text)
		}
	}
	return b.String()
}
