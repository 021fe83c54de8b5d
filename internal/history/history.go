// Package history keeps the lines a user submitted and a cursor for
// stepping back and forth through them.
package history

import "strings"

// Store persists history lines per scope (typically the command being run).
type Store interface {
	Append(scope, line string) error
	Recent(scope string, limit int) ([]string, error)
}

// Ring is an append-only list of submitted lines plus a navigation cursor.
// The cursor ranges over [0, Len()]; Len() denotes the fresh, empty line.
// Not safe for concurrent use; it is owned by the UI goroutine.
type Ring struct {
	entries []string
	cursor  int
}

// New creates an empty ring.
func New() *Ring {
	return &Ring{}
}

// Load seeds the ring with previously persisted lines, oldest first, and
// resets the cursor. Blank lines are skipped.
func (r *Ring) Load(lines []string) {
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			r.entries = append(r.entries, line)
		}
	}
	r.cursor = len(r.entries)
}

// Append records a submitted line and resets the cursor to the fresh line.
// Lines that are empty after trimming are ignored; duplicates are kept.
// Returns whether the line was recorded.
func (r *Ring) Append(line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	r.entries = append(r.entries, line)
	r.cursor = len(r.entries)
	return true
}

// Navigate moves the cursor by dir (negative is older) and returns the line
// to show. The cursor clamps at both ends, so repeated moves past a boundary
// keep returning the boundary value. At the fresh position the line is "".
// Returns ok=false on an empty ring, leaving the input untouched.
func (r *Ring) Navigate(dir int) (string, bool) {
	if len(r.entries) == 0 {
		return "", false
	}
	r.cursor = max(0, min(r.cursor+dir, len(r.entries)))
	if r.cursor == len(r.entries) {
		return "", true
	}
	return r.entries[r.cursor], true
}

// Len returns the number of recorded lines.
func (r *Ring) Len() int { return len(r.entries) }

// Cursor returns the current cursor position.
func (r *Ring) Cursor() int { return r.cursor }

// Entries returns a copy of the recorded lines, oldest first.
func (r *Ring) Entries() []string {
	return append([]string(nil), r.entries...)
}
