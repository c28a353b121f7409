// ABOUTME: Console rendering of engine events and the end-of-run summary.
// ABOUTME: Styled with lipgloss; one line per event, quiet about per-stage noise unless it fails.
package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/starforge/starforge/pipeline"
)

var (
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
	headerStyle  = lipgloss.NewStyle().Bold(true)
)

// eventPrinter renders engine events as console lines.
type eventPrinter struct {
	out io.Writer
}

func (p *eventPrinter) handle(evt pipeline.EngineEvent) {
	switch evt.Type {
	case pipeline.EventRunStarted:
		fmt.Fprintf(p.out, "%s run %v covering %v items\n",
			headerStyle.Render("starforge"), evt.Data["run_id"], evt.Data["total"])
	case pipeline.EventItemStarted:
		fmt.Fprintf(p.out, "%s %s (from %s)\n", runningStyle.Render("→"), evt.ItemID, evt.Stage)
	case pipeline.EventItemSkipped:
		fmt.Fprintf(p.out, "%s %s already complete\n", dimStyle.Render("·"), dimStyle.Render(evt.ItemID))
	case pipeline.EventStageCompleted:
		fmt.Fprintf(p.out, "  %s %s via %v (%v attempts)\n",
			okStyle.Render("✓"), evt.Stage, evt.Data["provider"], evt.Data["attempts"])
	case pipeline.EventStageRetrying:
		fmt.Fprintf(p.out, "  %s %s attempt %v on %v: %v\n",
			warnStyle.Render("↻"), evt.Stage, evt.Data["attempt"], evt.Data["provider"], evt.Data["error"])
	case pipeline.EventProviderFallback:
		fmt.Fprintf(p.out, "  %s falling back %v → %v\n",
			warnStyle.Render("⇢"), evt.Data["from"], evt.Data["to"])
	case pipeline.EventStageFailed:
		fmt.Fprintf(p.out, "  %s %s: %v\n", failStyle.Render("✗"), evt.Stage, evt.Data["error"])
	case pipeline.EventItemFailed:
		fmt.Fprintf(p.out, "%s %s failed at %s\n", failStyle.Render("✗"), evt.ItemID, evt.Stage)
	case pipeline.EventItemSucceeded:
		fmt.Fprintf(p.out, "%s %s\n", okStyle.Render("✓"), evt.ItemID)
	}
}

// printSummary renders the final run accounting.
func printSummary(out io.Writer, summary *pipeline.RunSummary) {
	fmt.Fprintf(out, "\n%s\n", headerStyle.Render("run "+summary.RunID))
	fmt.Fprintf(out, "  %s %d succeeded\n", okStyle.Render("✓"), summary.Succeeded)
	fmt.Fprintf(out, "  %s %d skipped\n", dimStyle.Render("·"), summary.Skipped)
	if summary.Failed > 0 {
		fmt.Fprintf(out, "  %s %d failed\n", failStyle.Render("✗"), summary.Failed)
		for _, item := range summary.FailedItems {
			fmt.Fprintf(out, "      %s %s: %s\n",
				failStyle.Render(item.ID), dimStyle.Render(string(item.Stage)), item.LastError)
		}
	} else {
		fmt.Fprintf(out, "  %s 0 failed\n", dimStyle.Render("✗"))
	}
}
