// Package theme holds the palettes shared by the printmeter dashboard and
// setup wizard.
package theme

import "github.com/charmbracelet/lipgloss"

// Theme maps dashboard roles to colors.
type Theme struct {
	Name string

	Background   lipgloss.Color
	Surface      lipgloss.Color // cards and bars
	SurfaceHover lipgloss.Color // active tab
	Border       lipgloss.Color
	BorderAccent lipgloss.Color // live session cards

	TextDim     lipgloss.Color
	TextMuted   lipgloss.Color
	TextPrimary lipgloss.Color

	Accent       lipgloss.Color
	AccentBright lipgloss.Color
	KeyHint      lipgloss.Color

	// Printer state and spool fill levels.
	Printing lipgloss.Color
	Caution  lipgloss.Color
	Warning  lipgloss.Color
	Critical lipgloss.Color
}

// Active is the palette used for rendering.
var Active = FlexokiDark

// FlexokiDark is the default palette.
var FlexokiDark = Theme{
	Name:         "flexoki-dark",
	Background:   lipgloss.Color("#100F0F"),
	Surface:      lipgloss.Color("#1C1B1A"),
	SurfaceHover: lipgloss.Color("#282726"),
	Border:       lipgloss.Color("#403E3C"),
	BorderAccent: lipgloss.Color("#3AA99F"),
	TextDim:      lipgloss.Color("#575653"),
	TextMuted:    lipgloss.Color("#878580"),
	TextPrimary:  lipgloss.Color("#FFFCF0"),
	Accent:       lipgloss.Color("#3AA99F"),
	AccentBright: lipgloss.Color("#5BC8BE"),
	KeyHint:      lipgloss.Color("#24837B"),
	Printing:     lipgloss.Color("#879A39"),
	Caution:      lipgloss.Color("#D0A215"),
	Warning:      lipgloss.Color("#DA702C"),
	Critical:     lipgloss.Color("#D14D41"),
}

// CatppuccinMocha is a soft pastel palette.
var CatppuccinMocha = Theme{
	Name:         "catppuccin-mocha",
	Background:   lipgloss.Color("#1E1E2E"),
	Surface:      lipgloss.Color("#313244"),
	SurfaceHover: lipgloss.Color("#45475A"),
	Border:       lipgloss.Color("#585B70"),
	BorderAccent: lipgloss.Color("#89B4FA"),
	TextDim:      lipgloss.Color("#6C7086"),
	TextMuted:    lipgloss.Color("#A6ADC8"),
	TextPrimary:  lipgloss.Color("#CDD6F4"),
	Accent:       lipgloss.Color("#89B4FA"),
	AccentBright: lipgloss.Color("#B4D0FB"),
	KeyHint:      lipgloss.Color("#94E2D5"),
	Printing:     lipgloss.Color("#A6E3A1"),
	Caution:      lipgloss.Color("#F9E2AF"),
	Warning:      lipgloss.Color("#FAB387"),
	Critical:     lipgloss.Color("#F38BA8"),
}

// TokyoNight is a cool blue palette.
var TokyoNight = Theme{
	Name:         "tokyo-night",
	Background:   lipgloss.Color("#1A1B26"),
	Surface:      lipgloss.Color("#24283B"),
	SurfaceHover: lipgloss.Color("#343A52"),
	Border:       lipgloss.Color("#565F89"),
	BorderAccent: lipgloss.Color("#7AA2F7"),
	TextDim:      lipgloss.Color("#565F89"),
	TextMuted:    lipgloss.Color("#A9B1D6"),
	TextPrimary:  lipgloss.Color("#C0CAF5"),
	Accent:       lipgloss.Color("#7AA2F7"),
	AccentBright: lipgloss.Color("#A9C1FF"),
	KeyHint:      lipgloss.Color("#7DCFFF"),
	Printing:     lipgloss.Color("#9ECE6A"),
	Caution:      lipgloss.Color("#E0AF68"),
	Warning:      lipgloss.Color("#FF9E64"),
	Critical:     lipgloss.Color("#F7768E"),
}

// Terminal sticks to the ANSI 16 colors.
var Terminal = Theme{
	Name:         "terminal",
	Background:   lipgloss.Color("0"),
	Surface:      lipgloss.Color("0"),
	SurfaceHover: lipgloss.Color("8"),
	Border:       lipgloss.Color("8"),
	BorderAccent: lipgloss.Color("6"),
	TextDim:      lipgloss.Color("8"),
	TextMuted:    lipgloss.Color("7"),
	TextPrimary:  lipgloss.Color("15"),
	Accent:       lipgloss.Color("6"),
	AccentBright: lipgloss.Color("14"),
	KeyHint:      lipgloss.Color("6"),
	Printing:     lipgloss.Color("2"),
	Caution:      lipgloss.Color("3"),
	Warning:      lipgloss.Color("3"),
	Critical:     lipgloss.Color("1"),
}

// All lists the selectable palettes; the first is the default.
var All = []Theme{FlexokiDark, CatppuccinMocha, TokyoNight, Terminal}

// Names returns the palette names in All order.
func Names() []string {
	names := make([]string, len(All))
	for i, t := range All {
		names[i] = t.Name
	}
	return names
}

// ByName returns the named palette, or the default for unknown names.
func ByName(name string) Theme {
	for _, t := range All {
		if t.Name == name {
			return t
		}
	}
	return All[0]
}

// SetActive switches Active to the named palette.
func SetActive(name string) {
	Active = ByName(name)
}
