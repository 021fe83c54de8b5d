package session

import (
	"github.com/zjrosen/fancyterm/internal/events"
	"github.com/zjrosen/fancyterm/internal/log"
)

// DispatchResult summarizes one dispatcher tick.
type DispatchResult struct {
	Rendered int  // events written to the surface
	Output   bool // at least one stdout or stderr event was written
	Finished bool // the primary child reached its terminal state on this tick
}

// Dispatch drains every queued event onto the surface in order. It never
// blocks and is the only writer of the surface. Call it periodically from
// the UI goroutine.
func (s *Session) Dispatch() DispatchResult {
	var res DispatchResult

	// Done closes after the completion event is queued, so checking first
	// guarantees that event is rendered on this tick.
	finished := s.primaryDone()

	for _, ev := range s.queue.Drain() {
		s.surface.Render(ev.Tag, ev.Content)
		res.Rendered++
		if ev.Tag == events.TagStdout || ev.Tag == events.TagStderr {
			res.Output = true
		}
	}
	if res.Rendered > 0 {
		s.surface.ScrollToEnd()
	}
	if res.Output && s.prefs.HighlightOnOutput {
		s.notifier.Attention()
	}

	if finished && !s.notified {
		s.notified = true
		s.inputEnabled = false
		state := s.PrimaryState()
		log.Info(log.CatSession, "Primary finished", "state", state)
		s.notifier.Notify(state)
		res.Finished = true
	}

	s.pruneAdhoc()
	return res
}

// primaryDone reports whether the primary child has completed or never
// started.
func (s *Session) primaryDone() bool {
	if s.primary == nil {
		return s.startErr != nil
	}
	select {
	case <-s.primary.Done():
		return true
	default:
		return false
	}
}

func (s *Session) pruneAdhoc() {
	for id, h := range s.adhoc {
		select {
		case <-h.Done():
			delete(s.adhoc, id)
		default:
		}
	}
}

// ActiveAdhoc returns the number of ad hoc children still in flight. The
// count is refreshed on each Dispatch.
func (s *Session) ActiveAdhoc() int { return len(s.adhoc) }
