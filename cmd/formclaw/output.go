package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/roelfdiedericks/formclaw/internal/browser"
	"github.com/roelfdiedericks/formclaw/internal/form"
	"github.com/roelfdiedericks/formclaw/internal/history"
	"github.com/roelfdiedericks/formclaw/internal/workflow"
)

var (
	primaryColor   = lipgloss.Color("39")  // Blue
	secondaryColor = lipgloss.Color("245") // Gray
	errorColor     = lipgloss.Color("196") // Red
	successColor   = lipgloss.Color("82")  // Green
	warningColor   = lipgloss.Color("214") // Orange
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	labelStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Width(10)

	okStyle   = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	skipStyle = lipgloss.NewStyle().Foreground(warningColor)
	dimStyle  = lipgloss.NewStyle().Foreground(secondaryColor)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)
)

func statusText(status string) string {
	switch status {
	case string(form.StatusFilled):
		return okStyle.Render(status)
	case string(form.StatusSkipped):
		return skipStyle.Render(status)
	default:
		return failStyle.Render(status)
	}
}

func row(label, value string) string {
	return labelStyle.Render(label) + " " + value
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func printResult(w io.Writer, res *workflow.Result) {
	outcome := okStyle.Render("success")
	if !res.Success() {
		outcome = failStyle.Render("failed")
	}

	lines := []string{
		titleStyle.Render("formclaw run"),
		row("id", res.RunID),
		row("url", res.URL),
		row("result", outcome),
		row("took", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond).String()),
	}
	if res.PDFPath != "" {
		lines = append(lines, row("pdf", res.PDFPath))
	}
	if res.Report != nil {
		r := res.Report
		lines = append(lines, row("fields", fmt.Sprintf("%d filled, %d skipped, %d failed",
			r.Count(form.StatusFilled), r.Count(form.StatusSkipped), r.Count(form.StatusFailed))))
		for _, f := range history.FieldsFromReport(r) {
			lines = append(lines, fieldLine(f))
		}
	}
	if res.Err != nil {
		lines = append(lines, row("error", failStyle.Render(res.Err.Error())))
	}
	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}

func fieldLine(f history.Field) string {
	line := fmt.Sprintf("  %s %s", statusText(f.Status), truncate(f.Question, 48))
	if f.Answer != "" {
		line += dimStyle.Render(" → " + truncate(f.Answer, 32))
	}
	if f.Error != "" {
		line += dimStyle.Render(" (" + f.Error + ")")
	}
	return line
}

func printRuns(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no runs recorded"))
		return
	}
	for _, r := range runs {
		outcome := okStyle.Render("ok  ")
		if !r.Success {
			outcome = failStyle.Render("FAIL")
		}
		fmt.Fprintf(w, "%s %s %s %s\n",
			outcome,
			dimStyle.Render(r.StartedAt.Format("2006-01-02 15:04:05")),
			r.ID,
			truncate(r.Error, 60),
		)
	}
}

func printRun(w io.Writer, r *history.Run) {
	outcome := okStyle.Render("success")
	if !r.Success {
		outcome = failStyle.Render("failed")
	}
	lines := []string{
		titleStyle.Render("run " + r.ID),
		row("url", r.URL),
		row("started", r.StartedAt.Format(time.RFC3339)),
		row("took", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()),
		row("result", outcome),
		row("state", r.State),
	}
	if r.PDFPath != "" {
		lines = append(lines, row("pdf", fmt.Sprintf("%s (%d chars)", r.PDFPath, r.DocumentChars)))
	}
	if r.Error != "" {
		lines = append(lines, row("error", failStyle.Render(r.Error)))
	}
	for _, f := range r.Fields {
		lines = append(lines, fieldLine(f))
	}
	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}

func printProfiles(w io.Writer, profiles []browser.ProfileInfo, active string) {
	if len(profiles) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no profiles"))
		return
	}
	for _, p := range profiles {
		name := p.Name
		if name == active {
			name = titleStyle.Render(name + " *")
		}
		fmt.Fprintf(w, "%-24s %10s  %s\n", name, browser.FormatSize(p.Size), dimStyle.Render(p.LastUsed.Format("2006-01-02 15:04")))
	}
}
