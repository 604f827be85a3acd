package tui

import (
	"github.com/charmbracelet/lipgloss"

	"finscope/internal/prefs"
)

// styles is the palette for one resolved theme.
type styles struct {
	sidebar       lipgloss.Style
	sidebarActive lipgloss.Style
	title         lipgloss.Style
	symbol        lipgloss.Style
	label         lipgloss.Style
	price         lipgloss.Style
	gain          lipgloss.Style
	loss          lipgloss.Style
	dim           lipgloss.Style
	err           lipgloss.Style
	status        lipgloss.Style
}

func newStyles(theme prefs.Theme) styles {
	if theme == prefs.ThemeLight {
		return styles{
			sidebar:       lipgloss.NewStyle().Foreground(lipgloss.Color("240")).PaddingRight(2),
			sidebarActive: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("153")),
			title:         lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("117")),
			symbol:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")),
			label:         lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
			price:         lipgloss.NewStyle().Foreground(lipgloss.Color("0")),
			gain:          lipgloss.NewStyle().Foreground(lipgloss.Color("28")),
			loss:          lipgloss.NewStyle().Foreground(lipgloss.Color("124")),
			dim:           lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
			err:           lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("160")),
			status:        lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("252")),
		}
	}
	return styles{
		sidebar:       lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingRight(2),
		sidebarActive: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6")),
		title:         lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6")),
		symbol:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		label:         lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		price:         lipgloss.NewStyle().Foreground(lipgloss.Color("15")),
		gain:          lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		loss:          lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		dim:           lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		err:           lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		status:        lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("236")),
	}
}

// changeStyle picks gain or loss colouring for a signed change.
func (s styles) changeStyle(c float64) lipgloss.Style {
	if c < 0 {
		return s.loss
	}
	return s.gain
}
