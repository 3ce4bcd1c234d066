package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	spinnerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	userStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	assistantStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func renderTranscript(turns []turn, width int) string {
	if len(turns) == 0 {
		return mutedStyle.Render("No messages yet.")
	}
	body := lipgloss.NewStyle().Width(max(10, width-2))

	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		label := assistantStyle.Render("Assistant")
		if t.role == "user" {
			label = userStyle.Render("You")
		}
		sb.WriteString(label)
		sb.WriteString("\n")

		content := t.content
		if content == "" && t.failed {
			content = "(no answer)"
		}
		if t.failed {
			sb.WriteString(errorStyle.Render(body.Render(content)))
			continue
		}
		sb.WriteString(body.Render(content))
	}
	return sb.String()
}

func errorsIsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
