// Package styles holds the lipgloss palette shared by the CLI output and
// the watch dashboard.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors meet WCAG AA contrast on both black and dark surfaces
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	SurfaceColor   = lipgloss.Color("#1F2937")
	TextColor      = lipgloss.Color("#F9FAFB")
	BorderColor    = lipgloss.Color("#6B7280")
	BlueColor      = lipgloss.Color("#60A5FA")

	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)
	Text      = lipgloss.NewStyle().Foreground(TextColor)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor)

	Subtitle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	Label = lipgloss.NewStyle().
		Foreground(MutedColor).
		Width(10)

	Badge = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextColor).
		Padding(0, 1)

	Box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderColor).
		Padding(0, 1)

	TableHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			Padding(0, 1)

	TableCell = lipgloss.NewStyle().
			Padding(0, 1)
)

// StateColor returns the badge color for a lifecycle state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "ready":
		return SecondaryColor
	case "creating":
		return BlueColor
	case "error":
		return ErrorColor
	case "destroyed":
		return BorderColor
	default:
		return MutedColor
	}
}

// StateBadge renders state as a colored badge.
func StateBadge(state string) string {
	return Badge.Background(StateColor(state)).Render(state)
}

// Check renders a success or failure mark.
func Check(ok bool) string {
	if ok {
		return Secondary.Render("✓")
	}
	return Error.Render("✗")
}
