package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
)

// Step runs fn between a pending line and a success or failure line.
// Output is line based so it stays readable when redirected.
func Step(w io.Writer, message string, noColor bool, fn func() error) error {
	cyan := color.New(color.FgCyan)
	if noColor {
		cyan.DisableColor()
	}
	cyan.Fprintf(w, "… %s\n", message)

	start := time.Now()
	if err := fn(); err != nil {
		red := color.New(color.FgRed, color.Bold)
		if noColor {
			red.DisableColor()
		}
		red.Fprintf(w, "❌ %s failed\n", message)
		return err
	}

	fmt.Fprintln(w, FormatSuccess(fmt.Sprintf("%s (%s)", message, time.Since(start).Round(time.Millisecond)), noColor))
	return nil
}
