package pathtmpl

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirbrooks/mdbase-tasknotes/internal/fieldmap"
	"github.com/amirbrooks/mdbase-tasknotes/internal/store"
)

var fixedNow = time.Date(2026, time.March, 7, 14, 5, 9, 42_000_000, time.UTC)

func render(t *testing.T, tpl string, fm map[string]any) Result {
	t.Helper()
	return Render(tpl, BuildValues(fm, fieldmap.Default(), fixedNow))
}

func TestRenderCalendarTemplate(t *testing.T) {
	res := render(t, "calendar/{{year}}/{{month}}-{{monthNameShort}}/{{titleKebab}}.md",
		map[string]any{"title": "Ship launch plan"})
	require.NoError(t, res.Err())
	assert.Equal(t, "calendar/2026/03-Mar/ship-launch-plan.md", res.Path)
	assert.Empty(t, res.Missing)
	assert.False(t, res.Unsafe)
}

func TestRenderReportsMissingPlaceholders(t *testing.T) {
	res := render(t, "tasks/{{mystery}}/{title}", map[string]any{"title": "x"})
	assert.Empty(t, res.Path)
	assert.Equal(t, []string{"mystery"}, res.Missing)

	var mve *MissingValuesError
	require.ErrorAs(t, res.Err(), &mve)
	assert.Equal(t, []string{"mystery"}, mve.Missing)
}

func TestRenderMissingIsSortedAndUnique(t *testing.T) {
	res := render(t, "{zeta}/{alpha}/{{zeta}}/{dueDate}", map[string]any{})
	assert.Equal(t, []string{"alpha", "dueDate", "zeta"}, res.Missing)
}

func TestRenderNormalizesSeparators(t *testing.T) {
	cases := map[string]string{
		"/tasks/{title}":        "tasks/Plan.md",
		"tasks//{title}":        "tasks/Plan.md",
		"tasks\\\\{title}/":     "tasks/Plan.md",
		"tasks/{title}.MD":      "tasks/Plan.MD",
		"tasks/{title}.md":      "tasks/Plan.md",
		"  notes///{{title}}  ": "notes/Plan.md",
	}
	for tpl, want := range cases {
		t.Run(tpl, func(t *testing.T) {
			res := render(t, tpl, map[string]any{"title": "Plan"})
			assert.Equal(t, want, res.Path)
		})
	}
}

func TestRenderRejectsUnsafePaths(t *testing.T) {
	for _, tpl := range []string{"../{title}", "tasks/../../{title}", "///", "a/\x00/{title}"} {
		t.Run(tpl, func(t *testing.T) {
			res := render(t, tpl, map[string]any{"title": "Plan"})
			assert.Empty(t, res.Path)
			assert.Empty(t, res.Missing)
			assert.True(t, res.Unsafe)
			assert.ErrorIs(t, res.Err(), ErrUnsafePath)
		})
	}
}

func TestRenderIsDeterministicExceptNonce(t *testing.T) {
	fm := map[string]any{"title": "Weekly review", "tags": []any{"work", "review"}}
	tpl := "{{year}}/{{week}}/{{zettel}}-{{titleSnake}}-{{timestamp}}-{{hashtags}}"
	first := render(t, tpl, fm)
	second := render(t, tpl, fm)
	require.NotEmpty(t, first.Path)
	assert.Equal(t, first.Path, second.Path)

	a := render(t, "{{nano}}", fm)
	b := render(t, "{{nano}}", fm)
	require.NotEmpty(t, a.Path)
	assert.NotEqual(t, a.Path, b.Path)
	assert.True(t, strings.HasPrefix(a.Path, "1772892309042"), a.Path)
}

func TestBuildValuesDefaultsAndDates(t *testing.T) {
	v := BuildValues(map[string]any{}, fieldmap.Default(), fixedNow)
	expect := map[string]string{
		"title":          "task",
		"priority":       "normal",
		"status":         "open",
		"priorityShort":  "N",
		"statusShort":    "O",
		"date":           "2026-03-07",
		"time":           "140509",
		"timestamp":      "2026-03-07-140509",
		"dateTime":       "2026-03-07-1405",
		"shortDate":      "260307",
		"shortYear":      "26",
		"monthName":      "March",
		"dayName":        "Saturday",
		"dayNameShort":   "Sat",
		"week":           "10",
		"quarter":        "1",
		"time12":         "0205 PM",
		"time24":         "1405",
		"hour12":         "02",
		"ampm":           "PM",
		"unix":           "1772892309",
		"unixMs":         "1772892309042",
		"milliseconds":   "042",
		"ms":             "042",
		"timezone":       "+0000",
		"timezoneShort":  "+0000",
		"utcZ":           "Z",
		"zettel":         "260307134l",
		"details":        "",
		"parentNote":     "",
		"timeEstimate":   "",
		"utcOffsetShort": "+0000",
	}
	for k, want := range expect {
		got, ok := v.Lookup(k)
		require.True(t, ok, k)
		assert.Equal(t, want, got, k)
	}
}

func TestBuildValuesTaskFields(t *testing.T) {
	fm := map[string]any{
		"title":        "  Fix: the <parser>  ",
		"priority":     "high",
		"due":          "2026-03-10",
		"contexts":     []any{"home", "phone"},
		"projects":     []any{"[[Areas/Website|Site]]", "Plain"},
		"tags":         []any{"bug", " ", "ui"},
		"timeEstimate": 45,
		"owner":        "sam/ops",
		"nested":       map[string]any{"a": 1},
	}
	v := BuildValues(fm, fieldmap.Default(), fixedNow)
	get := func(k string) string {
		s, ok := v.Lookup(k)
		require.True(t, ok, k)
		return s
	}
	assert.Equal(t, "Fix the parser", get("title"))
	assert.Equal(t, "fix_the_parser", get("titleSnake"))
	assert.Equal(t, "fix-the-parser", get("titleKebab"))
	assert.Equal(t, "fixTheParser", get("titleCamel"))
	assert.Equal(t, "FixTheParser", get("titlePascal"))
	assert.Equal(t, "H", get("priorityShort"))
	assert.Equal(t, "2026-03-10", get("dueDate"))
	assert.Equal(t, "2026-03-10", get("due"))
	assert.Equal(t, "home/phone", get("contexts"))
	assert.Equal(t, "home", get("context"))
	assert.Equal(t, "Website/Plain", get("projects"))
	assert.Equal(t, "Website", get("project"))
	assert.Equal(t, "bug, ui", get("tags"))
	assert.Equal(t, "#bug #ui", get("hashtags"))
	assert.Equal(t, "45", get("timeEstimate"))
	assert.Equal(t, "samops", get("owner"))
	_, ok := v.Lookup("nested")
	assert.False(t, ok)
}

func TestBuildValuesUsesMappedFields(t *testing.T) {
	var f store.Fields
	f.Set("name", store.FieldDef{Role: "title"})
	f.Set("deadline", store.FieldDef{Role: "due"})
	m := fieldmap.Build(f)

	v := BuildValues(map[string]any{"name": "Renew passport", "deadline": "2026-05-01"}, m, fixedNow)
	title, _ := v.Lookup("title")
	alias, _ := v.Lookup("name")
	due, _ := v.Lookup("deadline")
	assert.Equal(t, "Renew passport", title)
	assert.Equal(t, "Renew passport", alias)
	assert.Equal(t, "2026-05-01", due)
}

func TestRenderSingularContextIsFirstEntry(t *testing.T) {
	fm := map[string]any{
		"title":    "x",
		"contexts": []any{"home", "phone"},
		"projects": []any{"[[A]]", "B"},
	}
	r := render(t, "{{context}}/{{project}}/{{title}}", fm)
	require.NoError(t, r.Err())
	assert.Equal(t, "home/A/x.md", r.Path)

	r = render(t, "{{context}}/{{title}}", map[string]any{"title": "x"})
	assert.Equal(t, []string{"context"}, r.Missing)
}

func TestBuildValuesFallsBackFromBlankMappedField(t *testing.T) {
	var f store.Fields
	f.Set("name", store.FieldDef{Role: "title"})
	m := fieldmap.Build(f)

	v := BuildValues(map[string]any{"name": "  ", "title": "Renew passport"}, m, fixedNow)
	title, _ := v.Lookup("title")
	assert.Equal(t, "Renew passport", title)

	v = BuildValues(map[string]any{"name": nil, "title": "Renew passport"}, m, fixedNow)
	title, _ = v.Lookup("title")
	assert.Equal(t, "Renew passport", title)
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"  a   b  ":          "a b",
		"what? <now>":        "what now",
		"a/b\\c|d":           "abcd",
		"[[link]] #tag":      "link tag",
		"...hidden...":       "hidden",
		"tab\there":          "tab here",
		"bell\x07ring\u0085": "bellring",
		"":                   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Sanitize(in), "%q", in)
	}
}

func TestWeekOfYear(t *testing.T) {
	cases := []struct {
		date time.Time
		want int
	}{
		{time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC), 1},
		{time.Date(2026, 1, 3, 9, 0, 0, 0, time.UTC), 1},
		{time.Date(2026, 1, 4, 9, 0, 0, 0, time.UTC), 2},
		{time.Date(2026, 12, 27, 9, 0, 0, 0, time.UTC), 1},
		{time.Date(2026, 12, 26, 9, 0, 0, 0, time.UTC), 52},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, weekOfYear(tc.date), tc.date.Format("2006-01-02"))
	}
}

func TestDeriveWithoutPattern(t *testing.T) {
	assert.Equal(t, Result{}, Derive(nil, nil, fieldmap.Default(), fixedNow))
	assert.Equal(t, Result{}, Derive(&store.TypeDef{Name: "task"}, nil, fieldmap.Default(), fixedNow))
	assert.ErrorIs(t, Result{}.Err(), ErrNoTemplate)
}

func TestProjectName(t *testing.T) {
	assert.Equal(t, "Website", ProjectName("[[Areas/Website|Site]]"))
	assert.Equal(t, "Website", ProjectName("[[Website]]"))
	assert.Equal(t, "Plain", ProjectName(" Plain "))
}
