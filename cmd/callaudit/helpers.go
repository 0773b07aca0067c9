package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"callaudit/internal/audit"
	"callaudit/internal/scoring"
)

const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
)

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func formatScore(a *audit.Audit) string {
	if a.Status != audit.StatusCompleted {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", a.ScorePercentage)
}

func formatStepScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *score)
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.Local().Format("2006-01-02 15:04:05")
}

func formatTimePtr(value *time.Time) string {
	if value == nil {
		return "-"
	}
	return formatTime(*value)
}

// shortID trims a UUID to its first group for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func niveauColor(niveau string) string {
	switch niveau {
	case scoring.NiveauExcellent, scoring.NiveauBon:
		return ansiGreen
	case scoring.NiveauAcceptable:
		return ansiYellow
	case scoring.NiveauInsuffisant, scoring.NiveauRejet:
		return ansiRed
	default:
		return ""
	}
}

func renderNiveau(niveau string, colorize bool) string {
	if niveau == "" {
		return "-"
	}
	if !colorize {
		return niveau
	}
	color := niveauColor(niveau)
	if color == "" {
		return niveau
	}
	return color + niveau + ansiReset
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
