package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	colorTitle   = color.New(color.FgCyan, color.Bold)
	colorLabel   = color.New(color.FgGreen)
	colorMuted   = color.New(color.FgHiBlack)
	colorWarning = color.New(color.FgYellow)
	colorError   = color.New(color.FgRed)
)

// initColors disables colors when stdout is not a terminal.
func initColors() {
	color.NoColor = !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
}
