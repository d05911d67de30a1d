// Package pathtmpl renders a type's path_pattern into a collection-relative
// markdown path for a new task.
package pathtmpl

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/amirbrooks/mdbase-tasknotes/internal/fieldmap"
	"github.com/amirbrooks/mdbase-tasknotes/internal/store"
)

var placeholder = regexp.MustCompile(`\{\{(\w+)\}\}|\{(\w+)\}`)

var (
	slashRun = regexp.MustCompile(`/+`)

	// ErrNoTemplate means the type declares no path_pattern.
	ErrNoTemplate = errors.New("no path template")
	// ErrUnsafePath means substitution succeeded but produced an empty,
	// traversing, or NUL-containing path.
	ErrUnsafePath = errors.New("rendered path is unsafe")
)

// Result is the outcome of rendering one template. Path is set only when
// every placeholder had a value and the normalized path is safe.
type Result struct {
	Template string
	Path     string
	Missing  []string
	Unsafe   bool
}

// MissingValuesError lists placeholders that had no value.
type MissingValuesError struct {
	Template string
	Missing  []string
}

func (e *MissingValuesError) Error() string {
	return fmt.Sprintf("missing template values for %s", strings.Join(e.Missing, ", "))
}

// Err explains why Path is empty; it is nil when Path is set.
func (r Result) Err() error {
	switch {
	case r.Path != "":
		return nil
	case len(r.Missing) > 0:
		return &MissingValuesError{Template: r.Template, Missing: r.Missing}
	case r.Unsafe:
		return ErrUnsafePath
	default:
		return ErrNoTemplate
	}
}

// Render substitutes placeholders in one pass. Absent or blank values are
// reported in Missing (sorted, unique) and no path is produced.
func Render(template string, values Values) Result {
	res := Result{Template: template}
	missing := map[string]struct{}{}
	rendered := placeholder.ReplaceAllStringFunc(template, func(match string) string {
		sub := placeholder.FindStringSubmatch(match)
		key := sub[1]
		if key == "" {
			key = sub[2]
		}
		val, ok := values.Lookup(key)
		if !ok || strings.TrimSpace(val) == "" {
			missing[key] = struct{}{}
			return ""
		}
		return val
	})
	if len(missing) > 0 {
		for k := range missing {
			res.Missing = append(res.Missing, k)
		}
		sort.Strings(res.Missing)
		return res
	}

	p := normalize(rendered)
	if p == "" || hasTraversal(p) || strings.ContainsRune(p, 0) {
		res.Unsafe = true
		return res
	}
	if !strings.HasSuffix(strings.ToLower(p), ".md") {
		p += ".md"
	}
	res.Path = p
	return res
}

// Derive renders the task type's path_pattern. A nil type or an empty
// pattern yields the zero Result.
func Derive(td *store.TypeDef, fm map[string]any, m fieldmap.Mapping, now time.Time) Result {
	if td == nil || strings.TrimSpace(td.PathPattern) == "" {
		return Result{}
	}
	return Render(td.PathPattern, BuildValues(fm, m, now))
}

func normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = slashRun.ReplaceAllString(p, "/")
	p = strings.Trim(p, "/")
	return strings.TrimSpace(p)
}

func hasTraversal(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
