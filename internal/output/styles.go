package output

import (
	"github.com/charmbracelet/lipgloss"
)

// Colors, keyed to the pipeline's outcomes: allow (ok reads), caution
// (writes awaiting confirmation, warnings), block (denials, dangerous
// statements, failures).
var (
	ColorAllow   = lipgloss.Color("#04B575") // green
	ColorCaution = lipgloss.Color("#FFB800") // yellow
	ColorBlock   = lipgloss.Color("#FF4040") // red
	ColorInfo    = lipgloss.Color("#00BFFF") // cyan
	ColorMuted   = lipgloss.Color("#666666") // gray
	ColorLabel   = lipgloss.Color("#AAAAAA") // light gray for labels
)

// Box styles
var (
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorInfo).
			Padding(0, 1)

	AllowBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorAllow).
			Padding(0, 1)

	CautionBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorCaution).
			Padding(0, 1)

	BlockBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBlock).
			Padding(0, 1)
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorInfo)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorLabel).
			Width(18)

	ValueStyle = lipgloss.NewStyle()

	AllowText = lipgloss.NewStyle().
			Foreground(ColorAllow).
			Bold(true)

	CautionText = lipgloss.NewStyle().
			Foreground(ColorCaution).
			Bold(true)

	BlockText = lipgloss.NewStyle().
			Foreground(ColorBlock).
			Bold(true)

	MutedText = lipgloss.NewStyle().
			Foreground(ColorMuted)

	CodeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E0E0E0"))
)

// Indicators
const (
	IconAllow   = "✅"
	IconCaution = "⚠"
	IconBlock   = "❌"
	IconInfo    = "ℹ"
)
