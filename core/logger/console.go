package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

// Located is one problem pinned to a place in the configuration document.
type Located struct {
	Path    string
	Line    int
	Message string
}

// Console renders human-readable command output. Colors are only used when the
// destination is a terminal.
type Console struct {
	out         io.Writer
	interactive bool
}

// NewConsole creates a console writing to out.
func NewConsole(out io.Writer) *Console {
	interactive := false
	if f, ok := out.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	return &Console{out: out, interactive: interactive}
}

func (c *Console) colorize(color, text string) string {
	if c.interactive {
		return color + text + colorReset
	}
	return text
}

// Writer returns the underlying writer.
func (c *Console) Writer() io.Writer {
	return c.out
}

// Success prints a check-marked line.
func (c *Console) Success(format string, args ...any) {
	fmt.Fprintf(c.out, "%s %s\n", c.colorize(colorGreen, "✓"), fmt.Sprintf(format, args...))
}

// Warning prints a warning line.
func (c *Console) Warning(format string, args ...any) {
	fmt.Fprintf(c.out, "%s %s\n", c.colorize(colorYellow, "!"), fmt.Sprintf(format, args...))
}

// Failure prints a cross-marked line.
func (c *Console) Failure(format string, args ...any) {
	fmt.Fprintf(c.out, "%s %s\n", c.colorize(colorRed, "✗"), fmt.Sprintf(format, args...))
}

// Line prints an undecorated line.
func (c *Console) Line(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

// Problems prints a numbered list of located problems under a bold header.
func (c *Console) Problems(title string, problems []Located) {
	if len(problems) == 0 {
		return
	}

	header := fmt.Sprintf("%s %s (%d)", c.colorize(colorRed, "✗"), title, len(problems))
	fmt.Fprintln(c.out, c.colorize(colorBold, header))

	for i, p := range problems {
		var b strings.Builder
		b.WriteString("  ")
		b.WriteString(c.colorize(colorCyan, fmt.Sprintf("%d.", i+1)))
		b.WriteString(" ")
		if p.Path != "" {
			b.WriteString(c.colorize(colorYellow, p.Path))
			if p.Line > 0 {
				b.WriteString(c.colorize(colorDim, fmt.Sprintf(" (line %d)", p.Line)))
			}
			b.WriteString(": ")
		}
		b.WriteString(p.Message)
		fmt.Fprintln(c.out, b.String())
	}
}

// Table prints rows aligned in columns under a header row.
func (c *Console) Table(header []string, rows [][]string) {
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, c.colorize(colorBold, strings.Join(header, "\t")))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}
