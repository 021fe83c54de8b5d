package session

import (
	"context"
	"strings"

	"github.com/zjrosen/fancyterm/internal/events"
	"github.com/zjrosen/fancyterm/internal/log"
)

// Route identifies how a submitted line was handled.
type Route int

const (
	RouteClear Route = iota
	RouteExit
	RouteShell
	RouteForward
	RouteNotRunning
)

func (r Route) String() string {
	switch r {
	case RouteClear:
		return "clear"
	case RouteExit:
		return "exit"
	case RouteShell:
		return "shell"
	case RouteForward:
		return "forward"
	case RouteNotRunning:
		return "not-running"
	default:
		return "unknown"
	}
}

// Classify decides the route of line without side effects. running reports
// whether the primary child can accept input.
func Classify(line string, running bool) Route {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "clear", "cls":
		return RouteClear
	case "exit":
		return RouteExit
	}
	if strings.HasPrefix(line, "!") {
		return RouteShell
	}
	if running {
		return RouteForward
	}
	return RouteNotRunning
}

// Submit handles one line typed by the user.
func (s *Session) Submit(line string) Route {
	s.remember(line)

	running := s.inputEnabled && s.primary != nil && s.primary.IsRunning()
	route := Classify(line, running)
	log.Debug(log.CatSession, "Submit", "route", route)

	switch route {
	case RouteClear:
		s.Clear()
		return route
	case RouteExit:
		s.RequestClose()
		return route
	}

	if s.prefs.EchoInput {
		s.queue.Push(events.Echo(line))
	}

	switch route {
	case RouteShell:
		s.runShell(strings.TrimSpace(line[1:]))
	case RouteForward:
		if err := s.sup.Write(s.primary, line); err != nil {
			log.Debug(log.CatSession, "Forward failed", "error", err)
			s.queue.Push(events.System("Error sending input: " + err.Error()))
		}
	case RouteNotRunning:
		s.queue.Push(events.System("Process is not running."))
	}
	return route
}

func (s *Session) remember(line string) {
	if !s.ring.Append(line) {
		return
	}
	if s.cfg.History == nil {
		return
	}
	if err := s.cfg.History.Append(s.cfg.Command, line); err != nil {
		log.ErrorErr(log.CatHistory, "Persisting history failed", err)
	}
}

func (s *Session) runShell(command string) {
	if command == "" {
		return
	}
	s.queue.Push(events.System("Running: " + command))

	h, err := s.sup.Shell(context.Background(), command, s.dir)
	if err != nil {
		s.queue.Push(events.System("Error running command: " + err.Error()))
		return
	}
	s.adhoc[h.ID()] = h
}
