// Package format renders armis CLI output: coloured status lines, tables
// and validation reports.
package format

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"golang.org/x/term"
)

var (
	SuccessColor   = color.New(color.FgGreen, color.Bold)
	WarningColor   = color.New(color.FgYellow, color.Bold)
	ErrorColor     = color.New(color.FgRed, color.Bold)
	InfoColor      = color.New(color.FgCyan)
	HeadingColor   = color.New(color.FgHiWhite, color.Bold)
	DimColor       = color.New(color.FgHiBlack)
	HighlightColor = color.New(color.FgHiRed)
)

func init() {
	EnableColor(colorWanted(os.Stdout))
}

// colorWanted honours NO_COLOR, ARMIS_NO_COLOR and ARMIS_FORCE_COLOR, and
// otherwise enables colour only on a terminal.
func colorWanted(f *os.File) bool {
	if _, ok := os.LookupEnv("ARMIS_FORCE_COLOR"); ok {
		return true
	}
	for _, k := range []string{"NO_COLOR", "ARMIS_NO_COLOR"} {
		if _, ok := os.LookupEnv(k); ok {
			return false
		}
	}
	return term.IsTerminal(int(f.Fd()))
}

// EnableColor switches colour on or off for both color and pterm output.
func EnableColor(enable bool) {
	color.NoColor = !enable
	if enable {
		pterm.EnableStyling()
	} else {
		pterm.DisableStyling()
	}
}

// IsColorEnabled returns whether colored output is enabled
func IsColorEnabled() bool {
	return !color.NoColor
}

func Success(format string, a ...any) string { return SuccessColor.Sprintf(format, a...) }
func Warning(format string, a ...any) string { return WarningColor.Sprintf(format, a...) }
func Error(format string, a ...any) string   { return ErrorColor.Sprintf(format, a...) }
func Info(format string, a ...any) string    { return InfoColor.Sprintf(format, a...) }
func Dim(format string, a ...any) string     { return DimColor.Sprintf(format, a...) }

// StatusSymbol returns a check mark or a cross.
func StatusSymbol(ok bool) string {
	if ok {
		return Success("✓")
	}
	return Error("✗")
}

// StatusLabel colours a command or token status.
func StatusLabel(status string) string {
	switch strings.ToLower(status) {
	case "ok", "active", "valid":
		return Success("%s", status)
	case "revoked", "expired", "error":
		return Error("%s", status)
	case "":
		return Dim("-")
	default:
		return Warning("%s", status)
	}
}

// PrintSuccess writes a green status line.
func PrintSuccess(w io.Writer, format string, a ...any) {
	fmt.Fprintf(w, "%s %s\n", StatusSymbol(true), fmt.Sprintf(format, a...))
}

// PrintFailure writes a red status line.
func PrintFailure(w io.Writer, format string, a ...any) {
	fmt.Fprintf(w, "%s %s\n", StatusSymbol(false), fmt.Sprintf(format, a...))
}

// TerminalWidth returns the width of stdout, or 80 when it is not a
// terminal.
func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}
