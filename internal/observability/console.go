package observability

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/rahul/planflow/internal/plan"
)

var (
	titleColor = color.New(color.FgHiCyan, color.Bold)
	doneColor  = color.New(color.FgGreen)
	todoColor  = color.New(color.FgYellow)
	errColor   = color.New(color.FgHiRed, color.Bold)
	dimColor   = color.New(color.Faint)
)

// TermWidth returns the width of stdout, or 80 when it is not a terminal.
func TermWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// IsInteractive reports whether f is attached to a terminal.
func IsInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func rule() string {
	w := TermWidth()
	if w > 100 {
		w = 100
	}
	return strings.Repeat("─", w)
}

// PrintBanner writes the one-line startup banner.
func PrintBanner(w io.Writer, version string) {
	titleColor.Fprintf(w, "planflow %s", version)
	dimColor.Fprintln(w, "  plan · research · report")
}

// PrintPlan writes a plan awaiting review, one line per step.
func PrintPlan(w io.Writer, p *plan.Plan) {
	if p == nil {
		dimColor.Fprintln(w, "(no plan)")
		return
	}
	fmt.Fprintln(w, rule())
	titleColor.Fprintln(w, p.Title)
	if p.Thought != "" {
		fmt.Fprintln(w, p.Thought)
	}
	fmt.Fprintln(w)
	for i, s := range p.Steps {
		mark := todoColor.Sprint("[ ]")
		if s.Done() {
			mark = doneColor.Sprint("[x]")
		}
		fmt.Fprintf(w, "%s %d. %s (%s)\n", mark, i+1, s.Title, s.StepType)
		if s.Description != "" {
			dimColor.Fprintf(w, "       %s\n", s.Description)
		}
	}
	fmt.Fprintln(w, rule())
}

// PrintReport writes the final report.
func PrintReport(w io.Writer, report string) {
	fmt.Fprintln(w, rule())
	fmt.Fprintln(w, strings.TrimSpace(report))
	fmt.Fprintln(w, rule())
}

// PrintError writes a terminal failure message.
func PrintError(w io.Writer, msg string) {
	errColor.Fprint(w, "error: ")
	fmt.Fprintln(w, msg)
}
