package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"
)

// ConfigFile marks the root of a collection.
const ConfigFile = "mdbase.yaml"

const defaultTypesFolder = "_types"

type randReader struct{}

func (randReader) Read(p []byte) (int, error) { return rand.Read(p) }

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid")
	timeNow     = func() time.Time { return time.Now().UTC() }
)

// Config is the decoded mdbase.yaml.
type Config struct {
	SpecVersion string   `yaml:"spec_version,omitempty"`
	Name        string   `yaml:"name,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Settings    Settings `yaml:"settings,omitempty"`
}

type Settings struct {
	TypesFolder string   `yaml:"types_folder,omitempty"`
	Exclude     []string `yaml:"exclude,omitempty"`
}

// Collection is a directory of markdown documents described by mdbase.yaml
// and the type definitions in its types folder.
type Collection struct {
	Root string

	cfg       Config
	types     map[string]*TypeDef
	typeOrder []string
	exclude   []*pathGlob
	logger    *slog.Logger
}

// Option configures a Collection at Open time.
type Option func(*Collection)

// WithLogger routes diagnostics (skipped documents, bad type files) to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Open loads the collection rooted at root. The directory must contain
// mdbase.yaml; type definitions are read eagerly.
func Open(root string, opts ...Option) (*Collection, error) {
	abs, err := filepath.Abs(expandHome(root))
	if err != nil {
		return nil, err
	}
	c := &Collection{
		Root:   abs,
		types:  map[string]*TypeDef{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	b, err := os.ReadFile(filepath.Join(abs, ConfigFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no %s in %s", ErrNotFound, ConfigFile, abs)
		}
		return nil, err
	}
	if err := yaml.Unmarshal(b, &c.cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, ConfigFile, err)
	}
	if strings.TrimSpace(c.cfg.Settings.TypesFolder) == "" {
		c.cfg.Settings.TypesFolder = defaultTypesFolder
	}
	if c.exclude, err = excludeGlobs(c.cfg.Settings.Exclude); err != nil {
		return nil, err
	}
	if err := c.loadTypes(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collection) Config() Config {
	return c.cfg
}

// Type returns the definition registered under name.
func (c *Collection) Type(name string) (*TypeDef, bool) {
	td, ok := c.types[name]
	return td, ok
}

// Types lists type definitions sorted by name.
func (c *Collection) Types() []*TypeDef {
	out := make([]*TypeDef, 0, len(c.typeOrder))
	for _, name := range c.typeOrder {
		out = append(out, c.types[name])
	}
	return out
}

func (c *Collection) loadTypes() error {
	dir := filepath.Join(c.Root, filepath.FromSlash(c.cfg.Settings.TypesFolder))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".md") {
			continue
		}
		td, err := readTypeFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("type %s: %w", e.Name(), err)
		}
		if _, dup := c.types[td.Name]; dup {
			return fmt.Errorf("%w: type %q defined twice", ErrConflict, td.Name)
		}
		c.types[td.Name] = td
		c.typeOrder = append(c.typeOrder, td.Name)
	}
	sort.Strings(c.typeOrder)
	return nil
}

// Read loads the document at the collection-relative path rel.
func (c *Collection) Read(ctx context.Context, rel string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := cleanRelPath(rel)
	if err != nil {
		return nil, err
	}
	rec, err := c.readRecord(clean)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, clean)
		}
		return nil, err
	}
	return rec, nil
}

func (c *Collection) readRecord(rel string) (*Record, error) {
	b, err := os.ReadFile(c.abs(rel))
	if err != nil {
		return nil, err
	}
	fm, body, err := parseFrontmatter(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rel, err)
	}
	return &Record{
		Path:        rel,
		Type:        c.classify(rel, fm),
		Frontmatter: fm,
		Body:        body,
	}, nil
}

// classify names the type a document belongs to: an explicit `type` field
// naming a known type wins, then the first type (by name) whose match rules
// accept it.
func (c *Collection) classify(rel string, fm map[string]any) string {
	if name, ok := fm["type"].(string); ok {
		if _, known := c.types[name]; known {
			return name
		}
	}
	for _, name := range c.typeOrder {
		if c.types[name].Matches(rel, fm) {
			return name
		}
	}
	return ""
}

// walkDocuments calls fn for every markdown document outside the types
// folder and hidden directories, in path order.
func (c *Collection) walkDocuments(ctx context.Context, fn func(rel string) error) error {
	typesDir := path.Clean(c.cfg.Settings.TypesFolder)
	var rels []string
	err := filepath.WalkDir(c.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, rerr := filepath.Rel(c.Root, p)
		if rerr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") || rel == typesDir || c.excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !strings.EqualFold(path.Ext(rel), ".md") || c.excluded(rel) {
			return nil
		}
		rels = append(rels, rel)
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(rels)
	for _, rel := range rels {
		if err := fn(rel); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collection) excluded(rel string) bool {
	for _, g := range c.exclude {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func (c *Collection) abs(rel string) string {
	return filepath.Join(c.Root, filepath.FromSlash(rel))
}

// cleanRelPath normalizes a collection-relative path and rejects anything
// that would escape the root.
func cleanRelPath(rel string) (string, error) {
	rel = strings.TrimSpace(strings.ReplaceAll(rel, "\\", "/"))
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalid)
	}
	if strings.ContainsRune(rel, 0) {
		return "", fmt.Errorf("%w: path contains NUL", ErrInvalid)
	}
	if strings.HasPrefix(rel, "/") || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: path %q must be relative to the collection", ErrInvalid, rel)
	}
	clean := path.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: path %q escapes the collection", ErrInvalid, rel)
	}
	return clean, nil
}

func newULID() string {
	t := ulid.Timestamp(timeNow())
	entropy := ulid.Monotonic(randReader{}, 0)
	id, err := ulid.New(t, entropy)
	if err != nil {
		return fmt.Sprintf("%d", timeNow().UnixNano())
	}
	return id.String()
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~"+string(os.PathSeparator)) || p == "~" {
		home, _ := os.UserHomeDir()
		if home != "" {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func atomicWriteFile(p string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, ".tmp-"+newULID())
	if err := os.WriteFile(tmp, data, perm); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	// Rename is atomic on same filesystem.
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
