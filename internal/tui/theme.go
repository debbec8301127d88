package tui

import (
	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/compat"
)

// Theme defines the colors used by the terminal view.
type Theme struct {
	Primary   compat.CompleteAdaptiveColor
	Text      compat.CompleteAdaptiveColor
	TextMuted compat.CompleteAdaptiveColor
	BarBg     compat.CompleteAdaptiveColor
	BarText   compat.CompleteAdaptiveColor
	Border    compat.AdaptiveColor

	SelectedFg compat.AdaptiveColor
	SelectedBg compat.AdaptiveColor
	Paused     compat.AdaptiveColor
	Error      compat.AdaptiveColor
}

// DefaultTheme follows the Open Color palette: https://yeun.github.io/open-color/
var DefaultTheme = Theme{
	Primary: compat.CompleteAdaptiveColor{
		Light: compat.CompleteColor{TrueColor: lipgloss.Color("#e8590c"), ANSI256: lipgloss.Color("166"), ANSI: lipgloss.Color("3")},
		Dark:  compat.CompleteColor{TrueColor: lipgloss.Color("#ff922b"), ANSI256: lipgloss.Color("208"), ANSI: lipgloss.Color("11")},
	},
	Text: compat.CompleteAdaptiveColor{
		Light: compat.CompleteColor{TrueColor: lipgloss.Color("#111827"), ANSI256: lipgloss.Color("0"), ANSI: lipgloss.Color("0")},
		Dark:  compat.CompleteColor{TrueColor: lipgloss.Color("#F9FAFB"), ANSI256: lipgloss.Color("15"), ANSI: lipgloss.Color("15")},
	},
	TextMuted: compat.CompleteAdaptiveColor{
		Light: compat.CompleteColor{TrueColor: lipgloss.Color("#6B7280"), ANSI256: lipgloss.Color("240"), ANSI: lipgloss.Color("8")},
		Dark:  compat.CompleteColor{TrueColor: lipgloss.Color("#9CA3AF"), ANSI256: lipgloss.Color("250"), ANSI: lipgloss.Color("7")},
	},
	BarBg: compat.CompleteAdaptiveColor{
		Light: compat.CompleteColor{TrueColor: lipgloss.Color("#d9480f"), ANSI256: lipgloss.Color("166"), ANSI: lipgloss.Color("3")},
		Dark:  compat.CompleteColor{TrueColor: lipgloss.Color("#e8590c"), ANSI256: lipgloss.Color("166"), ANSI: lipgloss.Color("3")},
	},
	BarText: compat.CompleteAdaptiveColor{
		Light: compat.CompleteColor{TrueColor: lipgloss.Color("#f8f9fa"), ANSI256: lipgloss.Color("255"), ANSI: lipgloss.Color("15")},
		Dark:  compat.CompleteColor{TrueColor: lipgloss.Color("#f8f9fa"), ANSI256: lipgloss.Color("255"), ANSI: lipgloss.Color("15")},
	},
	Border: compat.AdaptiveColor{
		Light: lipgloss.Color("#D1D5DB"),
		Dark:  lipgloss.Color("#374151"),
	},
	SelectedFg: compat.AdaptiveColor{
		Light: lipgloss.Color("229"),
		Dark:  lipgloss.Color("229"),
	},
	SelectedBg: compat.AdaptiveColor{
		Light: lipgloss.Color("57"),
		Dark:  lipgloss.Color("57"),
	},
	Paused: compat.AdaptiveColor{
		Light: lipgloss.Color("#f59f00"),
		Dark:  lipgloss.Color("#fcc419"),
	},
	Error: compat.AdaptiveColor{
		Light: lipgloss.Color("#e03131"),
		Dark:  lipgloss.Color("#ff6b6b"),
	},
}

// Styles holds the lipgloss styles derived from a theme.
type Styles struct {
	Bar      lipgloss.Style
	BarLabel lipgloss.Style
	BarValue lipgloss.Style

	Title lipgloss.Style
	Text  lipgloss.Style
	Muted lipgloss.Style

	TableHeader    lipgloss.Style
	TableSelected  lipgloss.Style
	TableSeparator lipgloss.Style

	NavBar  lipgloss.Style
	NavKey  lipgloss.Style
	NavItem lipgloss.Style

	Paused lipgloss.Style
	Error  lipgloss.Style
}

// NewStyles creates Styles from the default adaptive theme.
func NewStyles() Styles {
	t := DefaultTheme
	return Styles{
		Bar: lipgloss.NewStyle().
			Foreground(t.BarText).
			Background(t.BarBg),
		BarLabel: lipgloss.NewStyle().
			Foreground(t.BarText).
			Background(t.BarBg),
		BarValue: lipgloss.NewStyle().
			Foreground(t.BarText).
			Background(t.BarBg).
			Bold(true),

		Title: lipgloss.NewStyle().
			Foreground(t.Primary).
			Bold(true),
		Text: lipgloss.NewStyle().
			Foreground(t.Text),
		Muted: lipgloss.NewStyle().
			Foreground(t.TextMuted),

		TableHeader: lipgloss.NewStyle().
			Foreground(t.Text).
			Bold(true),
		TableSelected: lipgloss.NewStyle().
			Foreground(t.SelectedFg).
			Background(t.SelectedBg),
		TableSeparator: lipgloss.NewStyle().
			Foreground(t.Border),

		NavBar: lipgloss.NewStyle().
			Padding(0, 1),
		NavKey: lipgloss.NewStyle().
			Foreground(t.Text).
			Background(t.Border).
			Padding(0, 1),
		NavItem: lipgloss.NewStyle().
			Foreground(t.TextMuted).
			PaddingRight(1),

		Paused: lipgloss.NewStyle().
			Foreground(t.Paused).
			Bold(true),
		Error: lipgloss.NewStyle().
			Foreground(t.Error).
			Bold(true),
	}
}
