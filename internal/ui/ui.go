// Package ui renders consolectl's terminal output.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vpnconsole/vpnconsole/internal/service"
)

// MaxWidth is the maximum width for styled output.
const MaxWidth = 80

// Colors.
var (
	Green  = lipgloss.Color("2")
	Red    = lipgloss.Color("1")
	Yellow = lipgloss.Color("3")
	Subtle = lipgloss.Color("8")
)

var (
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Subtle).
			Padding(0, 1).
			MarginBottom(1)
	titleStyle = lipgloss.NewStyle().Bold(true)
	subtle     = lipgloss.NewStyle().Foreground(Subtle)
)

func colored(c lipgloss.Color, s string) string {
	return lipgloss.NewStyle().Foreground(c).Render(s)
}

// Dot returns a colored ● for a service status: green up, red down, yellow
// unknown.
func Dot(s service.Status) string {
	switch s {
	case service.StatusUp:
		return colored(Green, "●")
	case service.StatusDown:
		return colored(Red, "●")
	case service.StatusUnknown:
		return colored(Yellow, "●")
	}
	return "●"
}

// Outcome renders one action outcome as a step line.
func Outcome(o service.Outcome) string {
	switch o.Classification {
	case service.Succeeded:
		return StepOK(o.Detail)
	case service.AlreadyInState:
		return StepInfo(o.Detail)
	}
	return StepFail(o.Detail)
}

// Section renders content inside a bordered box with a bold title.
func Section(title, content string, width int) string {
	if width > MaxWidth {
		width = MaxWidth
	}
	contentWidth := max(width-4, 40)
	return sectionStyle.Width(contentWidth).Render(titleStyle.Render(title) + "\n" + content)
}

// StepOK returns a green checkmark step line.
func StepOK(msg string) string { return colored(Green, "✔") + " " + msg }

// StepInfo returns a subtle step line for things that needed no change.
func StepInfo(msg string) string { return colored(Subtle, "●") + " " + msg }

// StepFail returns a red cross step line.
func StepFail(msg string) string { return colored(Red, "✘") + " " + msg }

// Warn returns a yellow warning message (caller writes to stderr).
func Warn(msg string) string { return colored(Yellow, "⚠") + " " + msg }

// Error returns a red error message (caller writes to stderr).
func Error(msg string) string { return colored(Red, "✘") + " " + msg }

// Header renders a log section header.
func Header(h string) string { return titleStyle.Render(h) }

// Table renders columnar data with subtle-colored headers. Widths are
// measured in cells, so styled cells line up.
func Table(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	pad := func(cell string, w int) string {
		return cell + strings.Repeat(" ", max(w-lipgloss.Width(cell), 0))
	}
	lines := make([]string, 0, len(rows)+1)
	parts := make([]string, len(headers))
	for i, h := range headers {
		parts[i] = pad(h, widths[i])
	}
	lines = append(lines, subtle.Render(strings.TrimRight(strings.Join(parts, "  "), " ")))
	for _, row := range rows {
		parts := make([]string, len(row))
		for i, cell := range row {
			w := 0
			if i < len(widths) {
				w = widths[i]
			}
			parts[i] = pad(cell, w)
		}
		lines = append(lines, strings.TrimRight(strings.Join(parts, "  "), " "))
	}
	return strings.Join(lines, "\n")
}

// Row renders a key-value row.
func Row(k, v string) string {
	return fmt.Sprintf("%-12s %s", k+":", v)
}

// Bytes formats a byte count for humans.
func Bytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
