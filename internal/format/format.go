// Package format renders durations, distances and counts for the dashboard.
package format

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Duration renders seconds as "45s", "12m", "2h" or "2h 5m".
func Duration(seconds int64) string {
	if seconds < 60 {
		if seconds < 0 {
			seconds = 0
		}
		return fmt.Sprintf("%ds", seconds)
	}
	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	hours, remaining := minutes/60, minutes%60
	if remaining == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, remaining)
}

// Distance renders centimeters as kilometers with one decimal.
func Distance(centimeters int64) string {
	return fmt.Sprintf("%.1f km", float64(centimeters)/100000)
}

// Count renders an integer with thousands separators.
func Count(n int64) string {
	return printer.Sprintf("%d", n)
}
