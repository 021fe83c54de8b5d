package console

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/fancyterm/internal/config"
	"github.com/zjrosen/fancyterm/internal/events"
)

// Styles holds the rendering styles for the console.
type Styles struct {
	Stdout lipgloss.Style
	Stderr lipgloss.Style
	Stdin  lipgloss.Style
	System lipgloss.Style
	Prompt lipgloss.Style

	Header       lipgloss.Style
	Badge        lipgloss.Style
	Attention    lipgloss.Style
	Status       lipgloss.Style
	StatusError  lipgloss.Style
	Button       lipgloss.Style
	ButtonActive lipgloss.Style
	Confirm      lipgloss.Style
}

// NewStyles builds styles from the configured tag colors.
func NewStyles(colors config.ColorConfig) Styles {
	fg := func(hex string) lipgloss.Style {
		s := lipgloss.NewStyle()
		if hex != "" {
			s = s.Foreground(lipgloss.Color(hex))
		}
		return s
	}

	return Styles{
		Stdout: fg(colors.Stdout),
		Stderr: fg(colors.Stderr),
		Stdin:  fg(colors.Stdin),
		System: fg(colors.System).Italic(true),
		Prompt: fg(colors.Prompt).Bold(true),

		Header:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#3C3C3C")).Padding(0, 1),
		Badge:        lipgloss.NewStyle().Foreground(lipgloss.Color("#1E1E1E")).Background(lipgloss.Color("#DCDCAA")).Padding(0, 1),
		Attention:    lipgloss.NewStyle().Foreground(lipgloss.Color("#F44747")).Bold(true),
		Status:       lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")),
		StatusError:  lipgloss.NewStyle().Foreground(lipgloss.Color("#F44747")),
		Button:       lipgloss.NewStyle().Foreground(lipgloss.Color("#A0A0A0")).Padding(0, 1),
		ButtonActive: lipgloss.NewStyle().Foreground(lipgloss.Color("#1E1E1E")).Background(lipgloss.Color("#569CD6")).Padding(0, 1),
		Confirm:      lipgloss.NewStyle().Foreground(lipgloss.Color("#DCDCAA")).Bold(true),
	}
}

func (s Styles) tag(t events.Tag) lipgloss.Style {
	switch t {
	case events.TagStderr:
		return s.Stderr
	case events.TagStdinEcho:
		return s.Stdin
	case events.TagSystem:
		return s.System
	default:
		return s.Stdout
	}
}
