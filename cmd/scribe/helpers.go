package main

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// platformLabel turns a platform identifier like "google_meet" into a
// human-readable label.
func platformLabel(platform string) string {
	if platform == "" {
		return "-"
	}
	return titleCaser.String(strings.ReplaceAll(platform, "_", " "))
}

func displayTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return "(untitled meeting)"
	}
	return title
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Round(time.Second)
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh%02dm%02ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm%02ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
