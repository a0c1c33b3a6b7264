// Package utils holds small helpers shared by the server and the chat client.
package utils

import (
	"fmt"
	"time"
)

// FormatSize formats bytes to a human readable string.
func FormatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
	)

	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatCountdown renders the time left before a message self-destructs,
// rounded up to whole seconds.
func FormatCountdown(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	total := int((d + time.Second - 1) / time.Second)
	hours, minutes, seconds := total/3600, (total/60)%60, total%60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// FormatClock renders a message timestamp the way the chat log shows it.
func FormatClock(t time.Time) string {
	return t.Local().Format("15:04")
}
