package console

import (
	"bytes"
	"io"

	"github.com/muesli/termenv"

	"github.com/zjrosen/fancyterm/internal/process"
)

// chrome collects session notifications for the model to act on after each
// dispatch. It implements session.Notifier.
type chrome struct {
	finished       *process.State
	attention      bool
	closeRequested bool
}

func (c *chrome) Notify(state process.State) {
	c.finished = &state
}

func (c *chrome) Attention() {
	c.attention = true
}

func (c *chrome) CloseRequested() {
	c.closeRequested = true
}

// takeAttention reports and resets a pending attention request.
func (c *chrome) takeAttention() bool {
	a := c.attention
	c.attention = false
	return a
}

// alerter asks the terminal for the user's attention with a bell and a
// desktop notification escape sequence. Both go out in a single write so
// they cannot be split by a frame.
type alerter struct {
	w io.Writer
}

func newAlerter(w io.Writer) *alerter {
	return &alerter{w: w}
}

func (a *alerter) alert(title, body string) {
	if a == nil {
		return
	}
	var buf bytes.Buffer
	buf.WriteByte('\a')
	termenv.NewOutput(&buf).Notify(title, body)
	_, _ = a.w.Write(buf.Bytes())
}
