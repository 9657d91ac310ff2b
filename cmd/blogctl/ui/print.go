package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
)

// Confirm asks a yes/no question, defaulting to no
func Confirm(title, description string) (bool, error) {
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).WithTheme(huh.ThemeCatppuccin()).Run()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Field is one row of a summary table
type Field struct {
	Key   string
	Value string
}

// PrintSummary prints a titled key/value block
func PrintSummary(w io.Writer, title string, fields ...Field) {
	fmt.Fprintln(w, headingStyle.Render(title))
	for _, f := range fields {
		fmt.Fprintf(w, "  %s%s\n", labelStyle.Render(f.Key), f.Value)
	}
	fmt.Fprintln(w)
}

// PrintSuccess prints a success line
func PrintSuccess(w io.Writer, msg string) {
	fmt.Fprintln(w, okStyle.Render(msg))
}

// PrintHint prints a dimmed line
func PrintHint(w io.Writer, msg string) {
	fmt.Fprintln(w, hintStyle.Render(msg))
}

// PrintError prints an error message.
func PrintError(w io.Writer, msg string) {
	fmt.Fprintln(w, failStyle.Render("Error: "+msg))
}
