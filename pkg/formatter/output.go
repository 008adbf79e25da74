// Package formatter prints installer progress to the terminal and mirrors
// every line into the run log.
package formatter

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
)

var (
	colorGreen  = lipgloss.Color("#22c55e")
	colorRed    = lipgloss.Color("#ef4444")
	colorYellow = lipgloss.Color("#eab308")
	colorBlue   = lipgloss.Color("#3b82f6")
	colorCyan   = lipgloss.Color("#06b6d4")
	colorDim    = lipgloss.Color("#6b7280")

	successStyle = lipgloss.NewStyle().Foreground(colorGreen)
	errorStyle   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorYellow)
	infoStyle    = lipgloss.NewStyle().Foreground(colorBlue)
	stepStyle    = lipgloss.NewStyle().Foreground(colorCyan)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
	boldStyle    = lipgloss.NewStyle().Bold(true)
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
)

// Icons for different message types
const (
	IconSuccess  = "✓"
	IconError    = "✗"
	IconWarning  = "!"
	IconInfo     = "→"
	IconAdvisory = "⚑"
)

// Output provides formatted output methods
type Output struct {
	w       io.Writer
	verbose bool
	noColor bool
	log     *zap.Logger
}

// New creates an Output on stdout. Color is also disabled when stdout is not a terminal.
func New(verbose, noColor bool) *Output {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		noColor = true
	}
	return NewWriter(os.Stdout, verbose, noColor)
}

// NewWriter creates an Output on w.
func NewWriter(w io.Writer, verbose, noColor bool) *Output {
	return &Output{w: w, verbose: verbose, noColor: noColor, log: zap.NewNop()}
}

// WithLogger returns a copy of o that mirrors messages to l.
func (o *Output) WithLogger(l *zap.Logger) *Output {
	c := *o
	if l == nil {
		l = zap.NewNop()
	}
	c.log = l
	return &c
}

// Logger returns the run logger messages are mirrored to.
func (o *Output) Logger() *zap.Logger {
	return o.log
}

// IsVerbose reports whether Verbose lines are shown.
func (o *Output) IsVerbose() bool {
	return o.verbose
}

func (o *Output) style(s lipgloss.Style, text string) string {
	if o.noColor {
		return text
	}
	return s.Render(text)
}

func (o *Output) line(s lipgloss.Style, icon, msg string) {
	fmt.Fprintf(o.w, "%s %s\n", o.style(s, icon), msg)
}

// Success prints a success message
func (o *Output) Success(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	o.line(successStyle, IconSuccess, msg)
	o.log.Info(msg)
}

// Error prints an error message
func (o *Output) Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	o.line(errorStyle, IconError, msg)
	o.log.Error(msg)
}

// Warning prints a warning. Warnings never change the exit path.
func (o *Output) Warning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	o.line(warningStyle, IconWarning, msg)
	o.log.Warn(msg)
}

// Advisory prints a security advisory and tags it in the run log.
func (o *Output) Advisory(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	o.line(warningStyle.Bold(true), IconAdvisory, msg)
	o.log.Warn(msg, zap.Bool("advisory", true))
}

// Info prints an info message
func (o *Output) Info(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	o.line(infoStyle, IconInfo, msg)
	o.log.Info(msg)
}

// Step prints a step message
func (o *Output) Step(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	o.line(stepStyle, IconInfo, msg)
	o.log.Info(msg)
}

// Verbose prints only in verbose mode but always reaches the run log.
func (o *Output) Verbose(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if o.verbose {
		fmt.Fprintf(o.w, "  %s\n", o.style(dimStyle, msg))
	}
	o.log.Debug(msg)
}

// Section prints a section header
func (o *Output) Section(title string) {
	fmt.Fprintf(o.w, "\n%s\n\n", o.style(sectionStyle, "=== "+title+" ==="))
}

// Plain prints plain text without formatting
func (o *Output) Plain(format string, args ...interface{}) {
	fmt.Fprintf(o.w, format+"\n", args...)
}

// Bold renders bold text
func (o *Output) Bold(text string) string {
	return o.style(boldStyle, text)
}

// KeyValue prints a key-value pair
func (o *Output) KeyValue(key, value string) {
	fmt.Fprintf(o.w, "  %s: %s\n", o.style(boldStyle, key), value)
}

// Table prints a simple table
func (o *Output) Table(headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	format := func(cells []string) string {
		var b strings.Builder
		for i, cell := range cells {
			if i < len(widths) {
				fmt.Fprintf(&b, "%-*s  ", widths[i], cell)
			}
		}
		return strings.TrimRight(b.String(), " ")
	}

	header := format(headers)
	fmt.Fprintln(o.w, o.style(boldStyle, header))
	fmt.Fprintln(o.w, strings.Repeat("─", len(header)))
	for _, row := range rows {
		fmt.Fprintln(o.w, format(row))
	}
}
