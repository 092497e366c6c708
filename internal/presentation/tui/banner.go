package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the Intake ASCII banner to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	// Teal to blue gradient.
	lines := []struct {
		text  string
		color string
	}{
		{"  ___       _        _        ", "#2dd4bf"},
		{" |_ _|_ __ | |_ __ _| | _____ ", "#22d3ee"},
		{"  | || '_ \\| __/ _` | |/ / _ \\", "#38bdf8"},
		{"  | || | | | || (_| |   <  __/", "#60a5fa"},
		{" |___|_| |_|\\__\\__,_|_|\\_\\___|", "#818cf8"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	if version != "" {
		fmt.Fprintln(w, termenv.String("  v"+version).Faint())
	}
	fmt.Fprintln(w)
}
