// Package process supervises the child processes that fancyterm bridges to
// the display: the long-lived primary command and one-shot shell commands.
//
// A Supervisor spawns children with separate stdout/stderr pipes and a
// writable stdin, runs one reader goroutine per output stream, and detects
// completion. Everything the child prints and every lifecycle transition is
// delivered as tagged events to an events.Sink; the Supervisor never touches
// the display directly.
//
// Completion is observed only after both output streams reached EOF and the
// process was reaped, so the final "finished" message always follows the
// child's last output. A grandchild that inherits the pipes can hold them
// open past the child's exit; after the drain timeout the read ends are
// closed so completion is still reported.
package process
