package format

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeze(t *testing.T, now time.Time) {
	t.Helper()
	prev := timeNow
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = prev })
}

func TestStatusIcon(t *testing.T) {
	assert.Equal(t, "☐", StatusIcon("open"))
	assert.Equal(t, "◐", StatusIcon("in-progress"))
	assert.Equal(t, "☑", StatusIcon("done"))
	assert.Equal(t, "☒", StatusIcon("cancelled"))
	assert.Equal(t, "•", StatusIcon("waiting"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45m", FormatDuration(45))
	assert.Equal(t, "1h 30m", FormatDuration(90))
	assert.Equal(t, "2h", FormatDuration(120))
}

func TestTaskLinePlain(t *testing.T) {
	freeze(t, time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))
	p := NewPrinter(&bytes.Buffer{}, &bytes.Buffer{}, false)
	line := p.Task(Task{Fields: map[string]any{
		"title":        "Buy groceries",
		"status":       "open",
		"priority":     "high",
		"due":          "2026-03-04",
		"scheduled":    "2026-03-01",
		"tags":         []any{"shopping", "home"},
		"contexts":     []any{"errands"},
		"projects":     []any{"[[Areas/House|House]]"},
		"timeEstimate": 90,
	}})
	assert.Equal(t, "☐ [high] Buy groceries due:today scheduled:2026-03-01 #shopping #home @errands +House ~1h 30m", line)
}

func TestTaskLineColoredStripsToPlain(t *testing.T) {
	freeze(t, time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))
	p := NewPrinter(&bytes.Buffer{}, &bytes.Buffer{}, true)
	fields := map[string]any{"title": "Call", "status": "done", "priority": "urgent", "due": "2026-02-01"}
	colored := p.Task(Task{Fields: fields})
	plain := NewPrinter(&bytes.Buffer{}, &bytes.Buffer{}, false).Task(Task{Fields: fields})
	assert.NotEqual(t, plain, colored)
	assert.Equal(t, plain, ansi.Strip(colored))
	assert.Equal(t, "☑ [urgent] Call due:2026-02-01", plain)
}

func TestTaskDetail(t *testing.T) {
	freeze(t, time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))
	p := NewPrinter(&bytes.Buffer{}, &bytes.Buffer{}, false)
	out := p.TaskDetail(Task{
		Path: "tasks/Write report.md",
		Fields: map[string]any{
			"title":      "Write report",
			"status":     "in-progress",
			"priority":   "normal",
			"recurrence": "FREQ=WEEKLY",
			"timeEntries": []any{
				map[string]any{"startTime": "2026-03-02T09:00:00Z", "endTime": "2026-03-02T10:30:00Z", "duration": 90},
				map[string]any{"startTime": "2026-03-03T09:00:00.000Z"},
			},
		},
		Body: "Draft outline first.\n",
	})
	lines := strings.Split(out, "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "◐ Write report", lines[0])
	assert.Equal(t, strings.Repeat("─", 60), lines[1])
	assert.Contains(t, out, "  Status:   in-progress")
	assert.Contains(t, out, "  Priority: normal")
	assert.Contains(t, out, "  Recurs:   FREQ=WEEKLY")
	assert.Contains(t, out, "    2026-03-02 09:00 → 10:30 (1h 30m)")
	assert.Contains(t, out, "    2026-03-03 09:00 → running")
	assert.Contains(t, out, "  Path: tasks/Write report.md")
	assert.True(t, strings.HasSuffix(out, "Draft outline first."))
}

func TestMessages(t *testing.T) {
	var out, errOut bytes.Buffer
	p := NewPrinter(&out, &errOut, false)
	p.Success("Task created")
	p.Warning("careful")
	p.Info("fyi")
	p.Error("Failed to create task: boom")
	assert.Equal(t, "✓ Task created\n⚠ careful\nℹ fyi\n", out.String())
	assert.Equal(t, "✗ Failed to create task: boom\n", errOut.String())
}

func TestColorEnabledRespectsNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.False(t, ColorEnabled(nil))
}
