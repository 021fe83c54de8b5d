package session

import (
	"strings"
	"sync"

	"github.com/zjrosen/fancyterm/internal/events"
	"github.com/zjrosen/fancyterm/internal/process"
)

type rendered struct {
	tag  events.Tag
	text string
}

type fakeSurface struct {
	lines   []rendered
	clears  int
	scrolls int
}

func (f *fakeSurface) Render(tag events.Tag, text string) {
	f.lines = append(f.lines, rendered{tag: tag, text: text})
}

func (f *fakeSurface) Clear() {
	f.lines = nil
	f.clears++
}

func (f *fakeSurface) ScrollToEnd() { f.scrolls++ }

func (f *fakeSurface) text(tag events.Tag) string {
	var b strings.Builder
	for _, l := range f.lines {
		if l.tag == tag {
			b.WriteString(l.text)
		}
	}
	return b.String()
}

func (f *fakeSurface) count(tag events.Tag, text string) int {
	n := 0
	for _, l := range f.lines {
		if l.tag == tag && l.text == text {
			n++
		}
	}
	return n
}

type fakeNotifier struct {
	mu        sync.Mutex
	states    []process.State
	attention int
	closes    int
}

func (f *fakeNotifier) Notify(state process.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
}

func (f *fakeNotifier) Attention() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attention++
}

func (f *fakeNotifier) CloseRequested() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
}

type memoryStore struct {
	lines map[string][]string
	err   error
}

func (m *memoryStore) Append(scope, line string) error {
	if m.err != nil {
		return m.err
	}
	if m.lines == nil {
		m.lines = make(map[string][]string)
	}
	m.lines[scope] = append(m.lines[scope], line)
	return nil
}

func (m *memoryStore) Recent(scope string, limit int) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	lines := m.lines[scope]
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines, nil
}
