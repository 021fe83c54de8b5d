// Package events defines the tagged text chunks that flow from child
// processes and the command interpreter to the display surface.
package events

// Tag classifies the origin of an Event and selects its display style.
type Tag int

const (
	// TagStdout is text read from a child's standard output.
	TagStdout Tag = iota
	// TagStderr is text read from a child's standard error.
	TagStderr
	// TagStdinEcho is a submitted input line echoed back to the display.
	TagStdinEcho
	// TagSystem is a lifecycle or diagnostic message generated by fancyterm.
	TagSystem
)

// String returns the tag name used in logs and config keys.
func (t Tag) String() string {
	switch t {
	case TagStdout:
		return "stdout"
	case TagStderr:
		return "stderr"
	case TagStdinEcho:
		return "stdin"
	case TagSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Event is an immutable chunk of text tagged with its origin.
type Event struct {
	Content string
	Tag     Tag
}

// Sink accepts events from producers. Implementations must be safe for
// concurrent use.
type Sink interface {
	Push(Event)
}

// Stdout builds a TagStdout event.
func Stdout(s string) Event { return Event{Content: s, Tag: TagStdout} }

// Stderr builds a TagStderr event.
func Stderr(s string) Event { return Event{Content: s, Tag: TagStderr} }

// Echo builds a TagStdinEcho event for a submitted line.
func Echo(line string) Event { return Event{Content: line + "\n", Tag: TagStdinEcho} }

// System builds a TagSystem event. The "[System] " prefix and trailing
// newline are added here so every system message renders on its own line.
func System(msg string) Event {
	return Event{Content: "[System] " + msg + "\n", Tag: TagSystem}
}
