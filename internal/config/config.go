// Package config stores user settings for the mtn CLI in
// ~/.config/mdbase-tasknotes/config.json. The file may contain comments and
// trailing commas.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
)

// EnvCollectionPath overrides the configured collection path.
const EnvCollectionPath = "MDBASE_TASKNOTES_PATH"

var ErrUnknownKey = errors.New("unknown config key")

type Config struct {
	CollectionPath *string `json:"collectionPath"`
	Language       string  `json:"language"`
}

func Defaults() Config {
	return Config{Language: "en"}
}

// Dir is the directory holding config.json.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".config", "mdbase-tasknotes")
	}
	return filepath.Join(home, ".config", "mdbase-tasknotes")
}

func Path() string {
	return filepath.Join(Dir(), "config.json")
}

// Load reads the config file. A missing or unreadable file yields Defaults.
func Load() Config {
	cfg, _ := read()
	return cfg
}

func read() (Config, error) {
	cfg := Defaults()
	b, err := os.ReadFile(Path())
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(jsonc.ToJSON(b), &cfg); err != nil {
		return Defaults(), fmt.Errorf("%s: %w", Path(), err)
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = "en"
	}
	return cfg, nil
}

// Save writes cfg atomically.
func Save(cfg Config) error {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	dir := Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-config-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), Path()); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Keys lists the settable keys, sorted.
func Keys() []string {
	keys := []string{"collectionPath", "language"}
	sort.Strings(keys)
	return keys
}

// Get returns the value of key; an unset collectionPath is empty.
func (c Config) Get(key string) (string, error) {
	switch key {
	case "collectionPath":
		if c.CollectionPath == nil {
			return "", nil
		}
		return *c.CollectionPath, nil
	case "language":
		return c.Language, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

// Set updates key. "null" or an empty value clears collectionPath.
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "collectionPath":
		if value == "" || value == "null" {
			c.CollectionPath = nil
			return nil
		}
		abs, err := filepath.Abs(expandHome(value))
		if err != nil {
			return err
		}
		c.CollectionPath = &abs
		return nil
	case "language":
		if value == "" {
			return fmt.Errorf("language cannot be empty")
		}
		c.Language = value
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

// ResolveCollectionPath picks the collection root: the flag, then
// $MDBASE_TASKNOTES_PATH, then the config file, then the working
// directory. The result is absolute.
func ResolveCollectionPath(flagPath string) string {
	candidate := strings.TrimSpace(flagPath)
	if candidate == "" {
		candidate = strings.TrimSpace(os.Getenv(EnvCollectionPath))
	}
	if candidate == "" {
		if cp := Load().CollectionPath; cp != nil {
			candidate = strings.TrimSpace(*cp)
		}
	}
	if candidate == "" {
		candidate = "."
	}
	abs, err := filepath.Abs(expandHome(candidate))
	if err != nil {
		return candidate
	}
	return abs
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
