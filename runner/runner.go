package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

const (
	RunModeUpdates = iota + 1
	RunModeProspects
	RunModeStatus
	RunModeAwsLambda
)

var (
	ErrInvalidRunMode = errors.New("invalid run mode")
)

type Runner interface {
	Run(context.Context) error
	Close(context.Context) error
}

// ModeName is the name used in logs, the ledger and lambda events.
func ModeName(mode int) string {
	switch mode {
	case RunModeUpdates:
		return "updates"
	case RunModeProspects:
		return "prospects"
	case RunModeStatus:
		return "status"
	case RunModeAwsLambda:
		return "lambda"
	default:
		return "unknown"
	}
}

// ParseMode is the inverse of ModeName for the modes an event may ask for.
func ParseMode(name string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "updates":
		return RunModeUpdates, nil
	case "prospects":
		return RunModeProspects, nil
	case "status":
		return RunModeStatus, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidRunMode, name)
	}
}

// NewLogger writes human readable lines on a terminal and JSON otherwise.
func NewLogger(w io.Writer, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		w = zerolog.ConsoleWriter{Out: f, TimeFormat: time.DateTime}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func wrapText(text string, width int) []string {
	var lines []string

	currentLine := ""
	currentWidth := 0

	for _, r := range text {
		runeWidth := runewidth.RuneWidth(r)
		if currentWidth+runeWidth > width {
			lines = append(lines, currentLine)
			currentLine = string(r)
			currentWidth = runeWidth
		} else {
			currentLine += string(r)
			currentWidth += runeWidth
		}
	}

	if currentLine != "" {
		lines = append(lines, currentLine)
	}

	return lines
}

func banner(messages []string, width int) string {
	if width <= 0 {
		var err error

		width, _, err = term.GetSize(int(os.Stderr.Fd()))
		if err != nil {
			width = 80
		}
	}

	width = min(max(width, 20), 100)

	contentWidth := width - 4

	var wrappedLines []string
	for _, message := range messages {
		wrappedLines = append(wrappedLines, wrapText(message, contentWidth)...)
	}

	var builder strings.Builder

	builder.WriteString("╔" + strings.Repeat("═", width-2) + "╗\n")

	for _, line := range wrappedLines {
		paddingRight := max(contentWidth-runewidth.StringWidth(line), 0)

		builder.WriteString(fmt.Sprintf("║ %s%s ║\n", line, strings.Repeat(" ", paddingRight)))
	}

	builder.WriteString("╚" + strings.Repeat("═", width-2) + "╝\n")

	return builder.String()
}

// Banner is printed on stderr when a command starts from a terminal.
func Banner() {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return
	}

	messages := []string{
		"🏢 Sirene export",
		"Daily establishment updates and NAF prospect lists from the INSEE Sirene API",
	}

	fmt.Fprintln(os.Stderr, banner(messages, 0))
}
