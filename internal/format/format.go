// Package format renders tasks and status lines for the terminal.
package format

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/amirbrooks/mdbase-tasknotes/internal/pathtmpl"
)

var timeNow = time.Now

var statusIcons = map[string]string{
	"open":        "☐",
	"in-progress": "◐",
	"done":        "☑",
	"cancelled":   "☒",
}

const (
	red     = lipgloss.Color("1")
	green   = lipgloss.Color("2")
	yellow  = lipgloss.Color("3")
	blue    = lipgloss.Color("4")
	magenta = lipgloss.Color("5")
	cyan    = lipgloss.Color("6")
	white   = lipgloss.Color("7")
	gray    = lipgloss.Color("8")
)

var priorityColors = map[string]lipgloss.Color{
	"urgent": red,
	"high":   red,
	"normal": yellow,
	"low":    green,
}

var statusColors = map[string]lipgloss.Color{
	"open":        blue,
	"in-progress": yellow,
	"done":        green,
	"cancelled":   gray,
}

// ColorEnabled reports whether f is a terminal and NO_COLOR is unset.
func ColorEnabled(f *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Printer writes user-facing output. Errors go to Err, everything else to
// Out.
type Printer struct {
	Out   io.Writer
	Err   io.Writer
	color bool
	r     *lipgloss.Renderer
}

func NewPrinter(out, errOut io.Writer, color bool) *Printer {
	r := lipgloss.NewRenderer(out, termenv.WithProfile(termenv.ANSI256))
	r.SetColorProfile(termenv.ANSI256)
	if !color {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Printer{Out: out, Err: errOut, color: color, r: r}
}

func (p *Printer) paint(s string, c lipgloss.Color) string {
	if !p.color {
		return s
	}
	return p.r.NewStyle().Foreground(c).Render(s)
}

func (p *Printer) Dim(s string) string {
	if !p.color {
		return s
	}
	return p.r.NewStyle().Faint(true).Render(s)
}

func (p *Printer) Bold(s string) string {
	if !p.color {
		return s
	}
	return p.r.NewStyle().Bold(true).Render(s)
}

func (p *Printer) Cyan(s string) string { return p.paint(s, cyan) }
func (p *Printer) Blue(s string) string { return p.paint(s, blue) }

func (p *Printer) Success(msg string) { fmt.Fprintln(p.Out, p.paint("✓", green)+" "+msg) }
func (p *Printer) Warning(msg string) { fmt.Fprintln(p.Out, p.paint("⚠", yellow)+" "+msg) }
func (p *Printer) Info(msg string)    { fmt.Fprintln(p.Out, p.paint("ℹ", blue)+" "+msg) }
func (p *Printer) Error(msg string)   { fmt.Fprintln(p.Err, p.paint("✗", red)+" "+msg) }

func (p *Printer) Println(s string) { fmt.Fprintln(p.Out, s) }

// StatusIcon maps a status to its checkbox glyph; unknown statuses get a
// bullet.
func StatusIcon(status string) string {
	if icon, ok := statusIcons[status]; ok {
		return icon
	}
	return "•"
}

// FormatDuration renders minutes as 45m, 1h 30m or 2h.
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	h, m := minutes/60, minutes%60
	if m > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dh", h)
}

// FormatDate shows "today" for the current day and colours past dates red.
// Values that are not dates are returned unchanged.
func (p *Printer) FormatDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	d, ok := parseDay(s)
	if !ok {
		return s
	}
	now := timeNow()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch {
	case d.Equal(today):
		return p.Cyan("today")
	case d.Before(today):
		return p.paint(d.Format("2006-01-02"), red)
	}
	return d.Format("2006-01-02")
}

func parseDay(s string) (time.Time, bool) {
	loc := timeNow().Location()
	if len(s) >= 10 {
		if d, err := time.ParseInLocation("2006-01-02", s[:10], loc); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// Task is a task document with role-keyed fields.
type Task struct {
	Path   string
	Fields map[string]any
	Body   string
}

func (t Task) str(key string) string {
	if s, ok := t.Fields[key].(string); ok {
		return s
	}
	return ""
}

func (t Task) list(key string) []string {
	var out []string
	switch v := t.Fields[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, v...)
	}
	return out
}

func (t Task) minutes(key string) int {
	switch v := t.Fields[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	}
	return 0
}

// ProjectNames unwraps the task's project links.
func (t Task) ProjectNames() []string {
	var out []string
	for _, p := range t.list("projects") {
		if name := pathtmpl.ProjectName(p); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func prefixed(prefix string, items []string) string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = prefix + s
	}
	return strings.Join(out, " ")
}

// Task renders a one-line summary.
func (p *Printer) Task(t Task) string {
	parts := []string{StatusIcon(t.str("status"))}
	if pr := t.str("priority"); pr != "" && pr != "normal" {
		parts = append(parts, p.paint("["+pr+"]", colorOr(priorityColors, pr)))
	}
	parts = append(parts, t.str("title"))
	if due := t.str("due"); due != "" {
		parts = append(parts, p.Dim("due:")+p.FormatDate(due))
	}
	if sch := t.str("scheduled"); sch != "" {
		parts = append(parts, p.Dim("scheduled:")+p.FormatDate(sch))
	}
	if tags := t.list("tags"); len(tags) > 0 {
		parts = append(parts, p.Cyan(prefixed("#", tags)))
	}
	if ctxs := t.list("contexts"); len(ctxs) > 0 {
		parts = append(parts, p.paint(prefixed("@", ctxs), magenta))
	}
	if projects := t.ProjectNames(); len(projects) > 0 {
		parts = append(parts, p.Blue(prefixed("+", projects)))
	}
	if est := t.minutes("timeEstimate"); est > 0 {
		parts = append(parts, p.Dim("~"+FormatDuration(est)))
	}
	return strings.Join(parts, " ")
}

// TaskDetail renders every known field, time entries, the path and the
// body.
func (p *Printer) TaskDetail(t Task) string {
	rule := p.Dim(strings.Repeat("─", 60))
	status := t.str("status")
	lines := []string{
		StatusIcon(status) + " " + p.Bold(t.str("title")),
		rule,
		"  Status:   " + p.paint(status, colorOr(statusColors, status)),
	}
	if pr := t.str("priority"); pr != "" {
		lines = append(lines, "  Priority: "+p.paint(pr, colorOr(priorityColors, pr)))
	}
	if v := t.str("due"); v != "" {
		lines = append(lines, "  Due:      "+p.FormatDate(v))
	}
	if v := t.str("scheduled"); v != "" {
		lines = append(lines, "  Scheduled: "+p.FormatDate(v))
	}
	if v := t.str("completedDate"); v != "" {
		lines = append(lines, "  Completed: "+p.FormatDate(v))
	}
	if v := t.str("dateCreated"); v != "" {
		lines = append(lines, "  Created:  "+p.Dim(v))
	}
	if tags := t.list("tags"); len(tags) > 0 {
		lines = append(lines, "  Tags:     "+p.Cyan(prefixed("#", tags)))
	}
	if ctxs := t.list("contexts"); len(ctxs) > 0 {
		lines = append(lines, "  Contexts: "+p.paint(prefixed("@", ctxs), magenta))
	}
	if projects := t.ProjectNames(); len(projects) > 0 {
		lines = append(lines, "  Projects: "+p.Blue(prefixed("+", projects)))
	}
	if est := t.minutes("timeEstimate"); est > 0 {
		lines = append(lines, "  Estimate: "+FormatDuration(est))
	}
	if rec := t.str("recurrence"); rec != "" {
		lines = append(lines, "  Recurs:   "+rec)
	}
	if entries, ok := t.Fields["timeEntries"].([]any); ok && len(entries) > 0 {
		lines = append(lines, "", p.Dim("  Time entries:"))
		for _, e := range entries {
			if entry, ok := e.(map[string]any); ok {
				lines = append(lines, "    "+timeEntry(entry))
			}
		}
	}
	lines = append(lines, "", p.Dim("  Path: "+t.Path))
	if strings.TrimSpace(t.Body) != "" {
		lines = append(lines, "", rule, strings.TrimRight(t.Body, "\n"))
	}
	return strings.Join(lines, "\n")
}

func timeEntry(entry map[string]any) string {
	start, end := "?", "running"
	if s, ok := entry["startTime"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			start = ts.In(timeNow().Location()).Format("2006-01-02 15:04")
		}
	}
	if s, ok := entry["endTime"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			end = ts.In(timeNow().Location()).Format("15:04")
		}
	}
	dur := ""
	if mins := (Task{Fields: entry}).minutes("duration"); mins > 0 {
		dur = " (" + FormatDuration(mins) + ")"
	}
	return start + " → " + end + dur
}

func colorOr(m map[string]lipgloss.Color, key string) lipgloss.Color {
	if c, ok := m[key]; ok {
		return c
	}
	return white
}
