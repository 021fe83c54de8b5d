package cmd

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoCommand is returned when no command to run was given.
var ErrNoCommand = errors.New("no command given")

// Invocation is the parsed command line: the child to run plus window options.
type Invocation struct {
	Command string
	Args    []string
	Title   string
	Icon    string
	OnTop   bool
}

// parseInvocation splits cobra's positional args at the "--" separator.
// dashAt is cobra's ArgsLenAtDash: the number of args before "--", or -1
// when there was none. Exactly one positional (the command) must precede
// "--"; everything after it is passed to the child verbatim.
func parseInvocation(args []string, dashAt int, title, icon string, onTop bool) (Invocation, error) {
	before, after := args, []string(nil)
	if dashAt >= 0 {
		before, after = args[:dashAt], args[dashAt:]
	}

	switch {
	case len(before) == 0:
		return Invocation{}, ErrNoCommand
	case len(before) > 1:
		return Invocation{}, fmt.Errorf("expected one command before --, got %d (%s); pass arguments after --",
			len(before), strings.Join(before, " "))
	}

	command := strings.TrimSpace(before[0])
	if command == "" {
		return Invocation{}, ErrNoCommand
	}

	return Invocation{
		Command: command,
		Args:    append([]string{}, after...),
		Title:   title,
		Icon:    icon,
		OnTop:   onTop,
	}, nil
}
