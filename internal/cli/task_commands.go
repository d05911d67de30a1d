package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/amirbrooks/mdbase-tasknotes/internal/fieldmap"
	"github.com/amirbrooks/mdbase-tasknotes/internal/nlp"
	"github.com/amirbrooks/mdbase-tasknotes/internal/store"
	"github.com/amirbrooks/mdbase-tasknotes/internal/tasks"
)

const defaultListLimit = 50

func newFlagSet(e *env, name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(e.errOut)
	return fs
}

// parseFlags returns the exit code to use when parsing stops the command.
func parseFlags(fs *pflag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitOK, false
		}
		return ExitFailure, false
	}
	return ExitOK, true
}

func cmdCreate(ctx context.Context, e *env, args []string) int {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		e.p.Error("Please provide task text.")
		return ExitFailure
	}
	c, m, ok := e.openCollection()
	if !ok {
		return ExitFailure
	}

	draft := nlp.Parse(text, timeNow())
	res, err := tasks.Create(ctx, c, m, draft.Frontmatter(), draft.Body, e.logger)
	for _, w := range res.Warnings {
		e.p.Warning(w)
	}
	if err != nil {
		e.p.Error("Failed to create task: " + err.Error())
		return ExitFailure
	}

	if e.gf.JSON {
		if err := writeJSON(e.out, recordJSON(*res.Record)); err != nil {
			e.p.Error(err.Error())
			return ExitFailure
		}
		return ExitOK
	}
	e.p.Success("Task created")
	e.p.Println(e.p.Task(toTask(*res.Record, m)))
	e.p.Println(e.p.Dim("  → " + res.Record.Path))
	return ExitOK
}

type listFilter struct {
	Status   string
	Priority string
	Tag      string
	Due      string
	Overdue  bool
	Where    []string
}

// conditions builds the query for list. Raw --where conditions replace
// every other filter. Without a status filter only open work is shown.
func (f listFilter) conditions(m fieldmap.Mapping, today string) ([]store.Condition, error) {
	if len(f.Where) > 0 {
		conds := make([]store.Condition, 0, len(f.Where))
		for _, w := range f.Where {
			cond, err := parseWhere(w, m)
			if err != nil {
				return nil, err
			}
			conds = append(conds, cond)
		}
		return conds, nil
	}

	status := m.Field(fieldmap.Status)
	unfinished := []store.Condition{store.Neq(status, "done"), store.Neq(status, "cancelled")}
	var conds []store.Condition
	switch {
	case f.Status != "":
		conds = append(conds, store.Eq(status, f.Status))
	case !f.Overdue:
		conds = append(conds, unfinished...)
	}
	if f.Priority != "" {
		conds = append(conds, store.Eq(m.Field(fieldmap.Priority), f.Priority))
	}
	if f.Tag != "" {
		conds = append(conds, store.Contains(m.Field(fieldmap.Tags), strings.TrimPrefix(f.Tag, "#")))
	}
	if f.Due != "" {
		conds = append(conds, store.Eq(m.Field(fieldmap.Due), f.Due))
	}
	if f.Overdue {
		conds = append(conds, store.Lt(m.Field(fieldmap.Due), today))
		conds = append(conds, unfinished...)
	}
	return conds, nil
}

var whereOps = []struct {
	tok string
	op  store.Op
}{
	{"==", store.OpEq},
	{"!=", store.OpNeq},
	{"<=", store.OpLte},
	{">=", store.OpGte},
	{"~=", store.OpContains},
	{"=", store.OpEq},
	{"<", store.OpLt},
	{">", store.OpGt},
	{"~", store.OpContains},
}

// parseWhere reads field<op>value or field? (exists). Role names are
// translated to the collection's field names.
func parseWhere(expr string, m fieldmap.Mapping) (store.Condition, error) {
	expr = strings.TrimSpace(expr)
	i := strings.IndexAny(expr, "=!<>~")
	if i <= 0 {
		if field, ok := strings.CutSuffix(expr, "?"); ok && strings.TrimSpace(field) != "" {
			return store.Exists(fieldName(m, field)), nil
		}
		return store.Condition{}, fmt.Errorf("invalid --where %q (expected field=value)", expr)
	}
	field := fieldName(m, expr[:i])
	rest := expr[i:]
	for _, w := range whereOps {
		if v, ok := strings.CutPrefix(rest, w.tok); ok {
			v = strings.Trim(strings.TrimSpace(v), `"`)
			return store.Condition{Field: field, Op: w.op, Value: v}, nil
		}
	}
	return store.Condition{}, fmt.Errorf("invalid --where %q (unknown operator)", expr)
}

func fieldName(m fieldmap.Mapping, name string) string {
	name = strings.TrimSpace(name)
	if r, ok := fieldmap.ParseRole(name); ok {
		return m.Field(r)
	}
	return name
}

func cmdList(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet(e, "list")
	status := fs.StringP("status", "s", "", "Filter by status")
	priority := fs.StringP("priority", "P", "", "Filter by priority")
	tag := fs.StringP("tag", "t", "", "Filter by tag")
	due := fs.String("due", "", "Filter by due date (YYYY-MM-DD)")
	overdue := fs.Bool("overdue", false, "Only unfinished tasks due before today")
	where := fs.StringArray("where", nil, "Condition such as priority=high (repeatable; replaces other filters)")
	limit := fs.IntP("limit", "n", defaultListLimit, "Maximum number of tasks")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	c, m, ok := e.openCollection()
	if !ok {
		return ExitFailure
	}
	filter := listFilter{
		Status:   *status,
		Priority: *priority,
		Tag:      *tag,
		Due:      *due,
		Overdue:  *overdue,
		Where:    *where,
	}
	conds, err := filter.conditions(m, timeNow().Format("2006-01-02"))
	if err != nil {
		e.p.Error(err.Error())
		return ExitFailure
	}
	res, err := c.Query(ctx, store.Query{
		Types:   []string{fieldmap.TaskType},
		Where:   conds,
		OrderBy: []store.OrderBy{{Field: m.Field(fieldmap.Due)}},
		Limit:   *limit,
	})
	if err != nil {
		e.p.Error(err.Error())
		return ExitFailure
	}

	if e.gf.JSON {
		items := make([]map[string]any, 0, len(res.Results))
		for _, rec := range res.Results {
			items = append(items, recordJSON(rec))
		}
		if err := writeJSON(e.out, items); err != nil {
			e.p.Error(err.Error())
			return ExitFailure
		}
		return ExitOK
	}

	if len(res.Results) == 0 {
		e.p.Println(e.p.Dim("No tasks found."))
		return ExitOK
	}
	for _, rec := range res.Results {
		e.p.Println(e.p.Task(toTask(rec, m)))
	}
	if res.HasMore {
		e.p.Println(e.p.Dim("\n  ... and more (use --limit to show more)"))
	}
	return ExitOK
}

// resolveTask finds and reads the task named by args.
func (e *env) resolveTask(ctx context.Context, c *store.Collection, m fieldmap.Mapping, args []string) (*store.Record, bool) {
	ref := strings.TrimSpace(strings.Join(args, " "))
	if ref == "" {
		e.p.Error("Please provide a task path or title.")
		return nil, false
	}
	p, err := tasks.ResolvePath(ctx, c, m, ref)
	if err != nil {
		e.p.Error(err.Error())
		return nil, false
	}
	rec, err := c.Read(ctx, p)
	if err != nil {
		e.p.Error("Failed to read task: " + err.Error())
		return nil, false
	}
	return rec, true
}

func cmdShow(ctx context.Context, e *env, args []string) int {
	c, m, ok := e.openCollection()
	if !ok {
		return ExitFailure
	}
	rec, ok := e.resolveTask(ctx, c, m, args)
	if !ok {
		return ExitFailure
	}
	if e.gf.JSON {
		out := recordJSON(*rec)
		out["body"] = rec.Body
		if err := writeJSON(e.out, out); err != nil {
			e.p.Error(err.Error())
			return ExitFailure
		}
		return ExitOK
	}
	e.p.Println(e.p.TaskDetail(toTask(*rec, m)))
	return ExitOK
}

func cmdComplete(ctx context.Context, e *env, args []string) int {
	c, m, ok := e.openCollection()
	if !ok {
		return ExitFailure
	}
	rec, ok := e.resolveTask(ctx, c, m, args)
	if !ok {
		return ExitFailure
	}
	t := toTask(*rec, m)
	title, _ := t.Fields[string(fieldmap.Title)].(string)
	if s, _ := t.Fields[string(fieldmap.Status)].(string); s == "done" {
		e.p.Success(fmt.Sprintf("Task %q is already completed.", title))
		return ExitOK
	}

	_, err := c.Update(ctx, rec.Path, fieldmap.Denormalize(map[string]any{
		string(fieldmap.Status):        "done",
		string(fieldmap.CompletedDate): timeNow().Format("2006-01-02"),
	}, m))
	if err != nil {
		e.p.Error("Failed to complete task: " + err.Error())
		return ExitFailure
	}
	e.p.Success("Completed: " + title)
	return ExitOK
}

func cmdArchive(ctx context.Context, e *env, args []string) int {
	c, m, ok := e.openCollection()
	if !ok {
		return ExitFailure
	}
	rec, ok := e.resolveTask(ctx, c, m, args)
	if !ok {
		return ExitFailure
	}
	t := toTask(*rec, m)
	title, _ := t.Fields[string(fieldmap.Title)].(string)

	var tags []any
	switch v := t.Fields[string(fieldmap.Tags)].(type) {
	case []any:
		tags = append(tags, v...)
	case string:
		if strings.TrimSpace(v) != "" {
			tags = append(tags, v)
		}
	}
	for _, tag := range tags {
		if tag == "archive" {
			e.p.Success(fmt.Sprintf("Task %q is already archived.", title))
			return ExitOK
		}
	}
	tags = append(tags, "archive")

	_, err := c.Update(ctx, rec.Path, map[string]any{m.Field(fieldmap.Tags): tags})
	if err != nil {
		e.p.Error("Failed to archive task: " + err.Error())
		return ExitFailure
	}
	e.p.Success("Archived: " + title)
	return ExitOK
}

func cmdDelete(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet(e, "delete")
	force := fs.BoolP("force", "f", false, "Delete even when other documents link to the task")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	c, m, ok := e.openCollection()
	if !ok {
		return ExitFailure
	}
	ref := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if ref == "" {
		e.p.Error("Please provide a task path or title.")
		return ExitFailure
	}
	p, err := tasks.ResolvePath(ctx, c, m, ref)
	if err != nil {
		e.p.Error(err.Error())
		return ExitFailure
	}

	res, err := c.Delete(ctx, p, store.DeleteOptions{CheckBacklinks: !*force})
	if err != nil {
		e.p.Error("Failed to delete task: " + err.Error())
		return ExitFailure
	}
	if len(res.BrokenLinks) > 0 {
		e.p.Warning(fmt.Sprintf("Task has %d backlink(s):", len(res.BrokenLinks)))
		for _, link := range res.BrokenLinks {
			e.p.Println("  - " + link)
		}
		e.p.Error("Use --force to delete anyway.")
		return ExitFailure
	}
	e.p.Success("Deleted: " + res.Path)
	return ExitOK
}
