package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Error codes reported by Create.
const (
	CodePathRequired = "path_required"
	CodePathConflict = "path_conflict"
	CodeValidation   = "validation_error"
	CodeUnknownType  = "unknown_type"
	CodeInvalidPath  = "invalid_path"
)

// Error is a coded store failure. It satisfies errors.Is for the matching
// sentinel (ErrConflict, ErrInvalid, ErrNotFound).
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return "store error"
	}
	if strings.TrimSpace(e.Message) == "" {
		return e.Code
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	switch e.Code {
	case CodePathConflict:
		return target == ErrConflict
	case CodeValidation, CodeInvalidPath, CodePathRequired:
		return target == ErrInvalid
	case CodeUnknownType:
		return target == ErrNotFound
	}
	return false
}

// HasCode reports whether err is a store *Error carrying code.
func HasCode(err error, code string) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == code
}

// CreateInput describes a new document. Path is optional; without it the
// type's path_pattern must be fillable from Frontmatter alone.
type CreateInput struct {
	Type        string
	Frontmatter map[string]any
	Body        string
	Path        string
}

// Create validates and writes a new document of a known type.
func (c *Collection) Create(ctx context.Context, in CreateInput) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	td, ok := c.types[in.Type]
	if !ok {
		return nil, &Error{Code: CodeUnknownType, Message: fmt.Sprintf("unknown type %q", in.Type)}
	}
	fm := cloneMap(in.Frontmatter)
	if missing := td.MissingRequired(fm); len(missing) > 0 {
		return nil, &Error{
			Code:    CodeValidation,
			Message: fmt.Sprintf("missing required field(s): %s", strings.Join(missing, ", ")),
		}
	}

	rel := strings.TrimSpace(in.Path)
	if rel == "" {
		native, ok := td.nativePath(fm)
		if !ok {
			return nil, &Error{
				Code:    CodePathRequired,
				Message: fmt.Sprintf("a path is required to create a %q document", td.Name),
			}
		}
		rel = native
	}
	clean, err := cleanRelPath(rel)
	if err != nil {
		return nil, &Error{Code: CodeInvalidPath, Message: err.Error()}
	}
	if _, err := os.Stat(c.abs(clean)); err == nil {
		return nil, &Error{Code: CodePathConflict, Message: fmt.Sprintf("a document already exists at %s", clean)}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	// Without match rules the explicit type field is the only way the
	// document is found again.
	if !td.hasMatchRules() {
		fm["type"] = td.Name
	}
	data, err := renderDocument(fm, in.Body, td.Fields.Names())
	if err != nil {
		return nil, err
	}
	if err := atomicWriteFile(c.abs(clean), data, 0o644); err != nil {
		return nil, err
	}
	c.logger.Debug("document created", "path", clean, "type", td.Name)
	return &Record{Path: clean, Type: td.Name, Frontmatter: fm, Body: in.Body}, nil
}

// Update merges fields into the document's frontmatter. A nil value removes
// the key.
func (c *Collection) Update(ctx context.Context, rel string, fields map[string]any) (*Record, error) {
	rec, err := c.Read(ctx, rel)
	if err != nil {
		return nil, err
	}
	for k, v := range fields {
		if v == nil {
			delete(rec.Frontmatter, k)
			continue
		}
		rec.Frontmatter[k] = v
	}
	var order []string
	if td, ok := c.types[rec.Type]; ok {
		order = td.Fields.Names()
	}
	data, err := renderDocument(rec.Frontmatter, rec.Body, order)
	if err != nil {
		return nil, err
	}
	if err := atomicWriteFile(c.abs(rec.Path), data, 0o644); err != nil {
		return nil, err
	}
	return rec, nil
}

type DeleteOptions struct {
	CheckBacklinks bool
}

// DeleteResult lists documents still linking to the target. When
// BrokenLinks is non-empty and backlinks were checked, nothing was deleted.
type DeleteResult struct {
	Path        string
	Deleted     bool
	BrokenLinks []string
}

func (c *Collection) Delete(ctx context.Context, rel string, opts DeleteOptions) (*DeleteResult, error) {
	rec, err := c.Read(ctx, rel)
	if err != nil {
		return nil, err
	}
	res := &DeleteResult{Path: rec.Path}
	if opts.CheckBacklinks {
		links, err := c.Backlinks(ctx, rec.Path)
		if err != nil {
			return nil, err
		}
		if len(links) > 0 {
			res.BrokenLinks = links
			return res, nil
		}
	}
	if err := os.Remove(c.abs(rec.Path)); err != nil {
		return nil, err
	}
	res.Deleted = true
	return res, nil
}
