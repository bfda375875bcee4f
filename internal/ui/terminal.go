package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to an interactive terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// DisableColors switches all styles to plain text.
func DisableColors() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// ConfigureColor picks the color profile for out. Colors are off when
// noColor is set, when NO_COLOR is present in the environment, or when out
// is not a terminal.
func ConfigureColor(out *os.File, noColor bool) {
	if _, ok := os.LookupEnv("NO_COLOR"); noColor || ok || !IsTerminal(out) {
		DisableColors()
		return
	}
	lipgloss.SetColorProfile(termenv.NewOutput(out).EnvColorProfile())
}

// Interactive reports whether both stdin and stdout are terminals, which is
// when prompts and live progress are allowed.
func Interactive() bool {
	return IsTerminal(os.Stdin) && IsTerminal(os.Stdout)
}
