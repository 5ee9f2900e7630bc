package cli

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
)

var (
	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	hunkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	headerStyle  = lipgloss.NewStyle().Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// useColor reports whether w is a terminal that should get colored output.
func useColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

// colorDiff styles a unified diff line by line.
func colorDiff(diff string) string {
	lines := strings.SplitAfter(diff, "\n")
	var b strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		body := strings.TrimSuffix(line, "\n")
		nl := line[len(body):]
		switch {
		case strings.HasPrefix(body, "---"), strings.HasPrefix(body, "+++"):
			b.WriteString(headerStyle.Render(body))
		case strings.HasPrefix(body, "@@"):
			b.WriteString(hunkStyle.Render(body))
		case strings.HasPrefix(body, "+"):
			b.WriteString(addedStyle.Render(body))
		case strings.HasPrefix(body, "-"):
			b.WriteString(removedStyle.Render(body))
		default:
			b.WriteString(body)
		}
		b.WriteString(nl)
	}
	return b.String()
}

func printDiff(w io.Writer, diff string) {
	if useColor(w) {
		diff = colorDiff(diff)
	}
	io.WriteString(w, diff)
}

func printWarning(w io.Writer, msg string) {
	line := "warning: " + msg
	if useColor(w) {
		line = warnStyle.Render(line)
	}
	io.WriteString(w, line+"\n")
}
