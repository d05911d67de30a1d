// Package tasks creates and locates task documents on top of the collection
// store, applying schema defaults and the path template fallback.
package tasks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/amirbrooks/mdbase-tasknotes/internal/fieldmap"
	"github.com/amirbrooks/mdbase-tasknotes/internal/pathtmpl"
	"github.com/amirbrooks/mdbase-tasknotes/internal/store"
)

var timeNow = time.Now

// Store is the part of the collection the task flows need.
type Store interface {
	Type(name string) (*store.TypeDef, bool)
	Create(ctx context.Context, in store.CreateInput) (*store.Record, error)
	Query(ctx context.Context, q store.Query) (*store.QueryResult, error)
}

// CreateResult carries the created record (nil on failure) and any warnings
// produced on the way. Warnings are meaningful even when Create fails.
type CreateResult struct {
	Record   *store.Record
	Rendered pathtmpl.Result
	Warnings []string
}

// Create writes a new task from role-keyed frontmatter. Defaults are
// applied in order: field defaults, timestamps, match rules. When the store
// needs an explicit path, the type's path_pattern is rendered and creation
// is retried once; if that fails the store's original error is returned.
func Create(ctx context.Context, s Store, m fieldmap.Mapping, roleFM map[string]any, body string, logger *slog.Logger) (*CreateResult, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	td, _ := s.Type(fieldmap.TaskType)
	fm := fieldmap.Denormalize(roleFM, m)
	now := timeNow()

	ApplyFieldDefaults(fm, td)
	ApplyTimestampDefaults(fm, m, td, now)
	ApplyMatchDefaults(fm, td)

	in := store.CreateInput{Type: fieldmap.TaskType, Frontmatter: fm, Body: body}
	res := &CreateResult{}
	rec, err := s.Create(ctx, in)
	if err == nil {
		res.Record = rec
		return res, nil
	}
	if !store.HasCode(err, store.CodePathRequired) {
		return res, err
	}

	res.Rendered = pathtmpl.Derive(td, fm, m, now)
	if res.Rendered.Path == "" {
		switch {
		case len(res.Rendered.Missing) > 0:
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"Cannot resolve path_pattern %q: missing template values for %s.",
				res.Rendered.Template, strings.Join(res.Rendered.Missing, ", ")))
		case res.Rendered.Unsafe:
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"Cannot resolve path_pattern %q: rendered path is unsafe.", res.Rendered.Template))
		}
		return res, err
	}
	logger.Debug("creating task at rendered path", "template", res.Rendered.Template, "path", res.Rendered.Path)

	in.Path = res.Rendered.Path
	rec, err = s.Create(ctx, in)
	if err != nil {
		return res, err
	}
	res.Record = rec
	return res, nil
}

// NotFoundError is returned when no task matches a title. It satisfies
// errors.Is(err, store.ErrNotFound).
type NotFoundError struct {
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("No task found matching %q", e.Query)
}

func (e *NotFoundError) Is(target error) bool {
	return target == store.ErrNotFound
}

// AmbiguousError is returned when a title matches more than one task.
// It satisfies errors.Is(err, store.ErrConflict).
type AmbiguousError struct {
	Query string
	Paths []string
}

func (e *AmbiguousError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ambiguous title %q. Matches:", e.Query)
	for _, p := range e.Paths {
		b.WriteString("\n  - ")
		b.WriteString(p)
	}
	return b.String()
}

func (e *AmbiguousError) Is(target error) bool {
	return target == store.ErrConflict
}

// ResolvePath turns a path or title into a task path. Input containing a
// slash or ending in .md is taken as a path; otherwise an exact title match
// is tried before a substring match.
func ResolvePath(ctx context.Context, s Store, m fieldmap.Mapping, pathOrTitle string) (string, error) {
	q := strings.TrimSpace(pathOrTitle)
	if q == "" {
		return "", fmt.Errorf("%w: empty task reference", store.ErrInvalid)
	}
	if strings.Contains(q, "/") || strings.HasSuffix(strings.ToLower(q), ".md") {
		return q, nil
	}
	titleField := m.Field(fieldmap.Title)

	exact, err := s.Query(ctx, store.Query{
		Types: []string{fieldmap.TaskType},
		Where: []store.Condition{store.Eq(titleField, q)},
		Limit: 2,
	})
	if err != nil {
		return "", err
	}
	if len(exact.Results) == 1 {
		return exact.Results[0].Path, nil
	}

	fuzzy, err := s.Query(ctx, store.Query{
		Types: []string{fieldmap.TaskType},
		Where: []store.Condition{store.Contains(titleField, q)},
		Limit: 5,
	})
	if err != nil {
		return "", err
	}
	switch len(fuzzy.Results) {
	case 0:
		return "", &NotFoundError{Query: q}
	case 1:
		return fuzzy.Results[0].Path, nil
	}
	paths := make([]string, len(fuzzy.Results))
	for i, r := range fuzzy.Results {
		paths[i] = r.Path
	}
	return "", &AmbiguousError{Query: q, Paths: paths}
}
