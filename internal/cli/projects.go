package cli

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/amirbrooks/mdbase-tasknotes/internal/fieldmap"
	"github.com/amirbrooks/mdbase-tasknotes/internal/format"
	"github.com/amirbrooks/mdbase-tasknotes/internal/store"
)

const projectScanLimit = 500

type projectStats struct {
	Name  string `json:"name"`
	Open  int    `json:"open"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

func (s projectStats) percent() int {
	if s.Total == 0 {
		return 0
	}
	return int(math.Round(float64(s.Done) / float64(s.Total) * 100))
}

func cmdProjects(ctx context.Context, e *env, args []string) int {
	sub := "list"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub, args = args[0], args[1:]
	}
	switch sub {
	case "list", "ls":
		return cmdProjectsList(ctx, e, args)
	case "show":
		return cmdProjectsShow(ctx, e, args)
	}
	e.p.Error("Usage: mtn projects <list|show> ...")
	return ExitFailure
}

func loadTasks(ctx context.Context, c *store.Collection, m fieldmap.Mapping) ([]format.Task, error) {
	res, err := c.Query(ctx, store.Query{Types: []string{fieldmap.TaskType}, Limit: projectScanLimit})
	if err != nil {
		return nil, err
	}
	out := make([]format.Task, 0, len(res.Results))
	for _, rec := range res.Results {
		out = append(out, toTask(rec, m))
	}
	return out, nil
}

// collectProjects counts open and finished tasks per project, sorted by
// name.
func collectProjects(all []format.Task) []projectStats {
	byName := map[string]*projectStats{}
	for _, t := range all {
		status, _ := t.Fields[string(fieldmap.Status)].(string)
		finished := status == "done" || status == "cancelled"
		for _, name := range t.ProjectNames() {
			s, ok := byName[name]
			if !ok {
				s = &projectStats{Name: name}
				byName[name] = s
			}
			s.Total++
			if finished {
				s.Done++
			} else {
				s.Open++
			}
		}
	}
	out := make([]projectStats, 0, len(byName))
	for _, s := range byName {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func cmdProjectsList(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet(e, "projects list")
	stats := fs.Bool("stats", false, "Show open/done counts")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	c, m, ok := e.openCollection()
	if !ok {
		return ExitFailure
	}
	all, err := loadTasks(ctx, c, m)
	if err != nil {
		e.p.Error(err.Error())
		return ExitFailure
	}
	projects := collectProjects(all)

	if e.gf.JSON {
		if err := writeJSON(e.out, projects); err != nil {
			e.p.Error(err.Error())
			return ExitFailure
		}
		return ExitOK
	}
	if len(projects) == 0 {
		e.p.Println(e.p.Dim("No projects found."))
		return ExitOK
	}
	for _, s := range projects {
		line := "  " + e.p.Blue("+"+s.Name)
		if *stats {
			line += fmt.Sprintf("  %d open, %d done (%d%%)", s.Open, s.Done, s.percent())
		}
		e.p.Println(line)
	}
	return ExitOK
}

func cmdProjectsShow(ctx context.Context, e *env, args []string) int {
	name := strings.TrimSpace(strings.Join(args, " "))
	if name == "" {
		e.p.Error("Please provide a project name.")
		return ExitFailure
	}
	name = strings.TrimPrefix(name, "+")
	c, m, ok := e.openCollection()
	if !ok {
		return ExitFailure
	}
	all, err := loadTasks(ctx, c, m)
	if err != nil {
		e.p.Error(err.Error())
		return ExitFailure
	}

	var matched []format.Task
	for _, t := range all {
		for _, p := range t.ProjectNames() {
			if strings.EqualFold(p, name) {
				matched = append(matched, t)
				break
			}
		}
	}

	if e.gf.JSON {
		items := make([]map[string]any, 0, len(matched))
		for _, t := range matched {
			item := map[string]any{"path": t.Path}
			for k, v := range t.Fields {
				item[k] = v
			}
			items = append(items, item)
		}
		if err := writeJSON(e.out, items); err != nil {
			e.p.Error(err.Error())
			return ExitFailure
		}
		return ExitOK
	}
	if len(matched) == 0 {
		e.p.Println(e.p.Dim(fmt.Sprintf("No tasks in project %q.", name)))
		return ExitOK
	}
	e.p.Println(e.p.Bold("Project: +" + name + "\n"))
	for _, t := range matched {
		e.p.Println(e.p.Task(t))
	}
	return ExitOK
}
