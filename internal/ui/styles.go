package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	Primary    = lipgloss.Color("#e879f9") // Fuchsia accent
	Secondary  = lipgloss.Color("#7C3AED") // Violet
	Success    = lipgloss.Color("#10B981") // Emerald
	Warning    = lipgloss.Color("#F59E0B") // Amber
	Error      = lipgloss.Color("#EF4444") // Red
	Muted      = lipgloss.Color("#6B7280") // Gray
	Foreground = lipgloss.Color("#F9FAFB") // Light gray
	Relay      = lipgloss.Color("#0ea5e9") // Sky blue
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			MarginBottom(1)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)

	BoldStyle = lipgloss.NewStyle().
			Bold(true)
)

// Chat styles
var (
	SelfNameStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	PeerNameStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	SystemStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Italic(true)

	CountdownStyle = lipgloss.NewStyle().
			Foreground(Warning)

	AttachmentStyle = lipgloss.NewStyle().
			Foreground(Relay)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Foreground).
			Background(lipgloss.Color("#1F2937")).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(Muted)
)

// Status badge styles
var (
	badgeStyle = lipgloss.NewStyle().
			Foreground(Foreground).
			Padding(0, 1).
			Bold(true)

	P2PBadgeStyle          = badgeStyle.Background(Success)
	RelayBadgeStyle        = badgeStyle.Background(Relay)
	WaitingBadgeStyle      = badgeStyle.Background(Warning)
	DisconnectedBadgeStyle = badgeStyle.Background(Error)
)

// Box styles
var (
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(1, 2)

	SuccessBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(Success).
			Padding(1, 2)
)

// Table styles
var (
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(Primary).
				Align(lipgloss.Center)

	tableCellStyle = lipgloss.NewStyle().Padding(0, 1)

	TableRowStyle = tableCellStyle.Foreground(lipgloss.Color("255"))

	TableRowAltStyle = tableCellStyle.Foreground(lipgloss.Color("245"))
)

// Spinner style
var SpinnerStyle = lipgloss.NewStyle().Foreground(Primary)

const (
	IconSuccess = "✅"
	IconError   = "❌"
	IconWarning = "⚠️"
	IconInfo    = "ℹ️"
	IconRoom    = "🚪"
	IconPeer    = "👤"
	IconLock    = "🔒"
	IconRelay   = "↪"
	IconP2P     = "⚡"
	IconTimer   = "🔥"
	IconImage   = "🖼️"
	IconVideo   = "🎞️"
	IconCopy    = "📋"
	IconWeb     = "🌐"
	IconWaiting = "⏳"
)

// Messages go to stderr so they never interleave with the chat view.

func PrintError(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render(IconError), ErrorStyle.Render(msg))
}

func PrintWarning(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", WarningStyle.Render(IconWarning), WarningStyle.Render(msg))
}

func PrintSuccess(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", SuccessStyle.Render(IconSuccess), msg)
}

func PrintInfo(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", IconInfo, msg)
}

func PrintInfof(format string, args ...any) {
	PrintInfo(fmt.Sprintf(format, args...))
}
