package tui

import (
	"unicode/utf8"

	"github.com/kailas-cloud/ragchat/internal/client"
)

const (
	historyTurns    = 6
	historyMaxChars = 1200
	clipMarker      = " …"
)

// turn is one rendered conversation entry.
type turn struct {
	role    string
	content string
	failed  bool
}

// buildHistory returns the last historyTurns successful turns, each clipped.
func buildHistory(turns []turn) []client.HistoryItem {
	var kept []turn
	for _, t := range turns {
		if !t.failed && t.content != "" {
			kept = append(kept, t)
		}
	}
	if len(kept) > historyTurns {
		kept = kept[len(kept)-historyTurns:]
	}
	out := make([]client.HistoryItem, len(kept))
	for i, t := range kept {
		out[i] = client.HistoryItem{Role: t.role, Content: clip(t.content, historyMaxChars)}
	}
	return out
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + clipMarker
}
