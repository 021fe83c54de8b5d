package console

import (
	"os"
	"sync"
)

// Output is the terminal the program renders to. Writes are serialized so
// alert escapes sent from commands land between frames, never inside one.
// It keeps the file's descriptor visible, so bubbletea still detects a tty.
type Output struct {
	*os.File
	mu sync.Mutex
}

// NewOutput wraps f, usually os.Stdout.
func NewOutput(f *os.File) *Output {
	return &Output{File: f}
}

func (o *Output) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.File.Write(p)
}

// WriteString shadows (*os.File).WriteString so io.WriteString also locks.
func (o *Output) WriteString(s string) (int, error) {
	return o.Write([]byte(s))
}
