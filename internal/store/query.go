package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Op is a condition operator.
type Op string

const (
	OpEq       Op = "eq"
	OpNeq      Op = "neq"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpContains Op = "contains"
	OpExists   Op = "exists"
)

// Condition compares one frontmatter field against a value.
//
// contains matches a list element exactly, or a case-insensitive substring
// of a string field. exists takes a boolean (nil means true).
type Condition struct {
	Field string
	Op    Op
	Value any
}

func Eq(field string, v any) Condition       { return Condition{Field: field, Op: OpEq, Value: v} }
func Neq(field string, v any) Condition      { return Condition{Field: field, Op: OpNeq, Value: v} }
func Lt(field string, v any) Condition       { return Condition{Field: field, Op: OpLt, Value: v} }
func Contains(field string, v any) Condition { return Condition{Field: field, Op: OpContains, Value: v} }
func Exists(field string) Condition          { return Condition{Field: field, Op: OpExists, Value: true} }

type OrderBy struct {
	Field string
	Desc  bool
}

// Query selects documents. Empty Types means every document; Where
// conditions are ANDed; Limit <= 0 means no limit.
type Query struct {
	Types   []string
	Where   []Condition
	OrderBy []OrderBy
	Limit   int
}

type QueryResult struct {
	Results []Record
	HasMore bool
}

// Query scans the collection. Unreadable or malformed documents are
// skipped and logged.
func (c *Collection) Query(ctx context.Context, q Query) (*QueryResult, error) {
	for _, cond := range q.Where {
		if !validOp(cond.Op) {
			return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalid, cond.Op)
		}
	}
	var hits []Record
	err := c.walkDocuments(ctx, func(rel string) error {
		rec, err := c.readRecord(rel)
		if err != nil {
			c.logger.Debug("skipping document", "path", rel, "error", err)
			return nil
		}
		if len(q.Types) > 0 && !containsString(q.Types, rec.Type) {
			return nil
		}
		for _, cond := range q.Where {
			if !cond.matches(rec.Frontmatter) {
				return nil
			}
		}
		hits = append(hits, *rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(q.OrderBy) > 0 {
		sort.SliceStable(hits, func(i, j int) bool {
			for _, ob := range q.OrderBy {
				d := compareForSort(hits[i].Frontmatter[ob.Field], hits[j].Frontmatter[ob.Field], ob.Desc)
				if d != 0 {
					return d < 0
				}
			}
			return false
		})
	}
	res := &QueryResult{Results: hits}
	if q.Limit > 0 && len(hits) > q.Limit {
		res.Results = hits[:q.Limit]
		res.HasMore = true
	}
	if res.Results == nil {
		res.Results = []Record{}
	}
	return res, nil
}

func validOp(op Op) bool {
	switch op {
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte, OpContains, OpExists:
		return true
	}
	return false
}

func (cond Condition) matches(fm map[string]any) bool {
	v, present := fm[cond.Field]
	if v == nil {
		present = false
	}
	switch cond.Op {
	case OpExists:
		want := true
		if b, ok := cond.Value.(bool); ok {
			want = b
		}
		return present == want
	case OpEq:
		return present && valuesEqual(v, cond.Value)
	case OpNeq:
		return !present || !valuesEqual(v, cond.Value)
	case OpContains:
		if !present {
			return false
		}
		want, _ := scalarString(cond.Value)
		if list, ok := asList(v); ok {
			for _, item := range list {
				if s, ok := scalarString(item); ok && s == want {
					return true
				}
			}
			return false
		}
		s, ok := scalarString(v)
		return ok && strings.Contains(strings.ToLower(s), strings.ToLower(want))
	case OpLt, OpLte, OpGt, OpGte:
		if !present {
			return false
		}
		c, ok := compareValues(v, cond.Value)
		if !ok {
			return false
		}
		switch cond.Op {
		case OpLt:
			return c < 0
		case OpLte:
			return c <= 0
		case OpGt:
			return c > 0
		default:
			return c >= 0
		}
	}
	return false
}

func valuesEqual(a, b any) bool {
	sa, oka := scalarString(a)
	sb, okb := scalarString(b)
	return oka && okb && sa == sb
}

// compareValues orders two scalars numerically when both parse as numbers,
// otherwise lexically.
func compareValues(a, b any) (int, bool) {
	sa, oka := scalarString(a)
	sb, okb := scalarString(b)
	if !oka || !okb {
		return 0, false
	}
	fa, errA := strconv.ParseFloat(sa, 64)
	fb, errB := strconv.ParseFloat(sb, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	return strings.Compare(sa, sb), true
}

// compareForSort keeps documents without a value after those with one,
// regardless of direction.
func compareForSort(a, b any, desc bool) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	c, ok := compareValues(a, b)
	if !ok {
		return 0
	}
	if desc {
		return -c
	}
	return c
}

func asList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
