package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirbrooks/mdbase-tasknotes/internal/config"
	"github.com/amirbrooks/mdbase-tasknotes/internal/fieldmap"
	"github.com/amirbrooks/mdbase-tasknotes/internal/store"
)

type result struct {
	out  string
	err  string
	code int
}

func mtn(args ...string) result {
	var out, errOut bytes.Buffer
	code := run(context.Background(), args, &out, &errOut, false)
	return result{out: out.String(), err: errOut.String(), code: code}
}

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.EnvCollectionPath, "")
	prev := timeNow
	timeNow = func() time.Time { return time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { timeNow = prev })
}

func newCollection(t *testing.T) string {
	t.Helper()
	isolate(t)
	dir := t.TempDir()
	_, err := store.Init(dir, false)
	require.NoError(t, err)
	return dir
}

func writeTaskType(t *testing.T, dir, pattern string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mdbase.yaml"), []byte("spec_version: \"0.2.0\"\nname: test\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "_types"), 0o755))
	typeDef := "---\nname: task\npath_pattern: \"" + pattern + "\"\nfields:\n  title:\n    type: string\n    required: true\n  status:\n    type: string\n    default: open\n---\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "_types", "task.md"), []byte(typeDef), 0o644))
}

func listJSON(t *testing.T, dir string, args ...string) []map[string]any {
	t.Helper()
	r := mtn(append([]string{"--path", dir, "--json", "list"}, args...)...)
	require.Equal(t, ExitOK, r.code, r.err)
	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.out), &items))
	return items
}

func TestTaskLifecycle(t *testing.T) {
	dir := newCollection(t)

	r := mtn("--path", dir, "create", "Buy groceries tomorrow #shopping @errands")
	require.Equal(t, ExitOK, r.code, r.err)
	assert.True(t, strings.HasPrefix(r.out, "✓ Task created\n"))
	assert.Contains(t, r.out, "☐ Buy groceries due:")
	assert.Contains(t, r.out, "#shopping @errands")
	assert.Contains(t, r.out, "  → tasks/Buy groceries.md")

	items := listJSON(t, dir)
	require.Len(t, items, 1)
	assert.Equal(t, "tasks/Buy groceries.md", items[0]["path"])
	assert.Equal(t, "2026-03-05", items[0]["due"])
	assert.Equal(t, "open", items[0]["status"])
	assert.Equal(t, "normal", items[0]["priority"])
	assert.Equal(t, []any{"shopping"}, items[0]["tags"])

	r = mtn("--path", dir, "show", "groceries")
	require.Equal(t, ExitOK, r.code, r.err)
	assert.Contains(t, r.out, "  Status:   open")
	assert.Contains(t, r.out, "  Path: tasks/Buy groceries.md")

	r = mtn("--path", dir, "complete", "Buy groceries")
	require.Equal(t, ExitOK, r.code, r.err)
	assert.Equal(t, "✓ Completed: Buy groceries\n", r.out)

	r = mtn("--path", dir, "complete", "Buy groceries")
	assert.Equal(t, "✓ Task \"Buy groceries\" is already completed.\n", r.out)

	r = mtn("--path", dir, "list")
	assert.Equal(t, "No tasks found.\n", r.out)

	items = listJSON(t, dir, "--status", "done")
	require.Len(t, items, 1)
	assert.Equal(t, "2026-03-04", items[0]["completedDate"])

	r = mtn("--path", dir, "archive", "tasks/Buy groceries.md")
	require.Equal(t, ExitOK, r.code, r.err)
	assert.Equal(t, "✓ Archived: Buy groceries\n", r.out)
	r = mtn("--path", dir, "archive", "tasks/Buy groceries.md")
	assert.Equal(t, "✓ Task \"Buy groceries\" is already archived.\n", r.out)

	items = listJSON(t, dir, "--where", "tags~archive")
	require.Len(t, items, 1)
	assert.Equal(t, []any{"shopping", "archive"}, items[0]["tags"])
}

func TestCreateWithoutText(t *testing.T) {
	dir := newCollection(t)
	r := mtn("--path", dir, "create")
	assert.Equal(t, ExitFailure, r.code)
	assert.Equal(t, "✗ Please provide task text.\n", r.err)
}

func TestCreateReportsMissingTemplateValues(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeTaskType(t, dir, "tasks/{{mystery}}/{{title}}.md")

	r := mtn("--path", dir, "create", "Write report")
	assert.Equal(t, ExitFailure, r.code)
	assert.Equal(t, "⚠ Cannot resolve path_pattern \"tasks/{{mystery}}/{{title}}.md\": missing template values for mystery.\n", r.out)
	assert.True(t, strings.HasPrefix(r.err, "✗ Failed to create task: "), r.err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCreateFallsBackToRenderedPath(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeTaskType(t, dir, "calendar/{{year}}/{{titleKebab}}.md")

	r := mtn("--path", dir, "create", "Write report")
	require.Equal(t, ExitOK, r.code, r.err)
	assert.Regexp(t, `→ calendar/\d{4}/write-report\.md`, r.out)

	items := listJSON(t, dir)
	require.Len(t, items, 1)
	assert.Equal(t, "task", items[0]["type"])
	assert.Equal(t, "open", items[0]["status"])
}

func TestDeleteChecksBacklinks(t *testing.T) {
	dir := newCollection(t)
	require.Equal(t, ExitOK, mtn("--path", dir, "create", "Alpha").code)
	require.Equal(t, ExitOK, mtn("--path", dir, "create", "Beta -- depends on [[Alpha]]").code)

	r := mtn("--path", dir, "delete", "Alpha")
	assert.Equal(t, ExitFailure, r.code)
	assert.Equal(t, "⚠ Task has 1 backlink(s):\n  - tasks/Beta.md\n", r.out)
	assert.Equal(t, "✗ Use --force to delete anyway.\n", r.err)
	assert.FileExists(t, filepath.Join(dir, "tasks", "Alpha.md"))

	r = mtn("--path", dir, "delete", "Alpha", "--force")
	require.Equal(t, ExitOK, r.code, r.err)
	assert.Equal(t, "✓ Deleted: tasks/Alpha.md\n", r.out)
	assert.NoFileExists(t, filepath.Join(dir, "tasks", "Alpha.md"))

	r = mtn("--path", dir, "delete", "Beta")
	require.Equal(t, ExitOK, r.code, r.err)
}

func TestResolveErrors(t *testing.T) {
	dir := newCollection(t)
	require.Equal(t, ExitOK, mtn("--path", dir, "create", "Write report draft").code)
	require.Equal(t, ExitOK, mtn("--path", dir, "create", "Write report final").code)

	r := mtn("--path", dir, "show", "report")
	assert.Equal(t, ExitFailure, r.code)
	assert.Contains(t, r.err, "Ambiguous title \"report\". Matches:\n  - tasks/Write report draft.md\n  - tasks/Write report final.md")

	r = mtn("--path", dir, "show", "nothing")
	assert.Equal(t, ExitFailure, r.code)
	assert.Equal(t, "✗ No task found matching \"nothing\"\n", r.err)
}

func TestProjects(t *testing.T) {
	dir := newCollection(t)
	require.Equal(t, ExitOK, mtn("--path", dir, "create", "Paint fence +House").code)
	require.Equal(t, ExitOK, mtn("--path", dir, "create", "Fix roof +House +[[Side Work]]").code)
	require.Equal(t, ExitOK, mtn("--path", dir, "complete", "Fix roof").code)

	r := mtn("--path", dir, "projects", "list", "--stats")
	require.Equal(t, ExitOK, r.code, r.err)
	assert.Equal(t, "  +House  1 open, 1 done (50%)\n  +Side Work  0 open, 1 done (100%)\n", r.out)

	r = mtn("--path", dir, "projects")
	assert.Equal(t, "  +House\n  +Side Work\n", r.out)

	r = mtn("--path", dir, "projects", "show", "house")
	require.Equal(t, ExitOK, r.code, r.err)
	assert.True(t, strings.HasPrefix(r.out, "Project: +house\n\n"))
	assert.Contains(t, r.out, "Paint fence")
	assert.Contains(t, r.out, "Fix roof")

	r = mtn("--path", dir, "projects", "show", "Garden")
	assert.Equal(t, "No tasks in project \"Garden\".\n", r.out)
}

func TestProjectsEmpty(t *testing.T) {
	dir := newCollection(t)
	r := mtn("--path", dir, "projects", "list")
	assert.Equal(t, "No projects found.\n", r.out)
}

func TestConfigCommand(t *testing.T) {
	isolate(t)

	r := mtn("config", "--set", "language")
	assert.Equal(t, ExitFailure, r.code)
	assert.Equal(t, "✗ Invalid format. Use --set key=value (e.g., --set collectionPath=/path/to/vault)\n", r.err)

	r = mtn("config", "--set", "colour=red")
	assert.Equal(t, ExitFailure, r.code)
	assert.Equal(t, "✗ Unknown config key: colour. Valid keys: collectionPath, language\n", r.err)

	r = mtn("config", "--get", "collectionPath")
	assert.Equal(t, "(not set)\n", r.out)

	r = mtn("config", "--set", "language=de")
	require.Equal(t, ExitOK, r.code, r.err)
	assert.Equal(t, "✓ Set language = de\n", r.out)

	r = mtn("config", "--get", "language")
	assert.Equal(t, "de\n", r.out)

	r = mtn("config", "--set", "collectionPath=")
	assert.Equal(t, "✓ Set collectionPath = (null)\n", r.out)

	r = mtn("config", "--list")
	assert.Contains(t, r.out, "Config file: "+config.Path()+"\n\n")
	assert.Contains(t, r.out, "  collectionPath: (not set)\n")
	assert.Contains(t, r.out, "  language: de\n")
}

func TestConfigCollectionPathIsUsed(t *testing.T) {
	dir := newCollection(t)
	require.Equal(t, ExitOK, mtn("config", "--set", "collectionPath="+dir).code)
	r := mtn("create", "Call mom")
	require.Equal(t, ExitOK, r.code, r.err)
	assert.FileExists(t, filepath.Join(dir, "tasks", "Call mom.md"))
}

func TestInit(t *testing.T) {
	isolate(t)
	dir := filepath.Join(t.TempDir(), "vault")

	r := mtn("init", dir)
	require.Equal(t, ExitOK, r.code, r.err)
	assert.Equal(t, "✓ Initialized mdbase-tasknotes collection:\n"+
		"  mdbase.yaml\n  _types/task.md\n  tasks/\n\n"+
		"Collection path: "+dir+"\n"+
		"Create tasks with: mtn create \"Buy groceries tomorrow #shopping\"\n", r.out)

	r = mtn("init", dir)
	assert.Equal(t, ExitFailure, r.code)
	assert.Contains(t, r.err, "already exists")

	r = mtn("init", dir, "--force")
	assert.Equal(t, ExitOK, r.code, r.err)
}

func TestOpenFailure(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	r := mtn("--path", dir, "list")
	assert.Equal(t, ExitFailure, r.code)
	assert.True(t, strings.HasPrefix(r.err, "✗ Failed to open collection at "+dir), r.err)
}

func TestUnknownCommand(t *testing.T) {
	r := mtn("frobnicate")
	assert.Equal(t, ExitFailure, r.code)
	assert.True(t, strings.HasPrefix(r.err, "Unknown command: frobnicate\n"))

	r = mtn("help")
	assert.Equal(t, ExitOK, r.code)
	assert.Contains(t, r.out, "Usage:")
}

func TestExtractGlobalFlags(t *testing.T) {
	gf, rest, err := extractGlobalFlags([]string{"list", "--path", "/v", "--json", "--status", "done", "--verbose"})
	require.NoError(t, err)
	assert.Equal(t, GlobalFlags{Path: "/v", JSON: true, Verbose: true}, gf)
	assert.Equal(t, []string{"list", "--status", "done"}, rest)

	gf, rest, err = extractGlobalFlags([]string{"create", "Ship", "--", "notes", "--json"})
	require.NoError(t, err)
	assert.False(t, gf.JSON)
	assert.Equal(t, []string{"create", "Ship", "--", "notes", "--json"}, rest)

	_, _, err = extractGlobalFlags([]string{"list", "--path"})
	assert.Error(t, err)
}

func TestParseWhere(t *testing.T) {
	m := fieldmap.Default()
	cases := []struct {
		expr string
		want store.Condition
	}{
		{"priority=high", store.Condition{Field: "priority", Op: store.OpEq, Value: "high"}},
		{`title=="Call mom"`, store.Condition{Field: "title", Op: store.OpEq, Value: "Call mom"}},
		{"status!=done", store.Condition{Field: "status", Op: store.OpNeq, Value: "done"}},
		{"due<2026-04-01", store.Condition{Field: "due", Op: store.OpLt, Value: "2026-04-01"}},
		{"due>=2026-04-01", store.Condition{Field: "due", Op: store.OpGte, Value: "2026-04-01"}},
		{"tags~work", store.Condition{Field: "tags", Op: store.OpContains, Value: "work"}},
		{"recurrence?", store.Exists("recurrence")},
	}
	for _, tc := range cases {
		got, err := parseWhere(tc.expr, m)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}

	_, err := parseWhere("bogus", m)
	assert.Error(t, err)
	_, err = parseWhere("a!b", m)
	assert.Error(t, err)
}

func TestParseWhereUsesMapping(t *testing.T) {
	var fields store.Fields
	fields.Set("state", store.FieldDef{Type: "string", Role: "status"})
	m := fieldmap.Build(fields)

	got, err := parseWhere("status=open", m)
	require.NoError(t, err)
	assert.Equal(t, "state", got.Field)

	got, err = parseWhere("custom=1", m)
	require.NoError(t, err)
	assert.Equal(t, "custom", got.Field)
}

func TestListConditions(t *testing.T) {
	m := fieldmap.Default()

	conds, err := listFilter{}.conditions(m, "2026-03-04")
	require.NoError(t, err)
	assert.Equal(t, []store.Condition{store.Neq("status", "done"), store.Neq("status", "cancelled")}, conds)

	conds, err = listFilter{Overdue: true, Tag: "#work"}.conditions(m, "2026-03-04")
	require.NoError(t, err)
	assert.Equal(t, []store.Condition{
		store.Contains("tags", "work"),
		store.Lt("due", "2026-03-04"),
		store.Neq("status", "done"),
		store.Neq("status", "cancelled"),
	}, conds)

	conds, err = listFilter{Status: "done", Priority: "high", Where: []string{"due?"}}.conditions(m, "2026-03-04")
	require.NoError(t, err)
	assert.Equal(t, []store.Condition{store.Exists("due")}, conds)
}
