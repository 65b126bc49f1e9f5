package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	subtle  lipgloss.Style
	scene   lipgloss.Style
	graph   lipgloss.Style
	falling lipgloss.Style
	resting lipgloss.Style
	cursor  lipgloss.Style
	err     lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Primary).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(t.Ground),
		label:   lipgloss.NewStyle().Foreground(t.Muted).Width(8),
		value:   lipgloss.NewStyle().Foreground(t.Text).Width(10).Align(lipgloss.Right),
		subtle:  lipgloss.NewStyle().Foreground(t.Muted).Italic(true),
		scene:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Ground).Foreground(t.Primary),
		graph:   lipgloss.NewStyle().Foreground(t.Accent).Padding(1, 0),
		falling: lipgloss.NewStyle().Foreground(t.Falling),
		resting: lipgloss.NewStyle().Foreground(t.Resting),
		cursor:  lipgloss.NewStyle().Bold(true).Foreground(t.Accent),
		err:     lipgloss.NewStyle().Bold(true).Foreground(t.Error),
	}
}

// HeightBar renders frac of width as filled cells.
func HeightBar(frac float64, width int) string {
	filled := int(frac * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// AnimatedSpinner returns frame of animated spinner
func AnimatedSpinner(frame int) string {
	spinners := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	return spinners[frame%len(spinners)]
}
