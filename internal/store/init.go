package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const defaultConfigYAML = `spec_version: "0.2.0"
name: tasks
settings:
  types_folder: _types
`

const defaultTaskType = `---
name: task
description: A task managed by mtn.
path_pattern: "tasks/{title}.md"
match:
  path_glob: "tasks/**/*.md"
fields:
  title:
    type: string
    required: true
  status:
    type: enum
    values: [open, in-progress, done, cancelled]
    default: open
  priority:
    type: enum
    values: [low, normal, high, urgent]
    default: normal
  due:
    type: date
  scheduled:
    type: date
  completedDate:
    type: date
  tags:
    type: list
    items:
      type: string
  contexts:
    type: list
    items:
      type: string
  projects:
    type: list
    items:
      type: string
  timeEstimate:
    type: integer
  recurrence:
    type: string
  recurrenceAnchor:
    type: enum
    values: [scheduled, completion]
  dateCreated:
    type: datetime
  dateModified:
    type: datetime
  timeEntries:
    type: list
---

# Task

Tasks live under tasks/. Field names may be remapped with tn_role.
`

// Init scaffolds a collection at root and returns the paths it wrote,
// relative to root. An existing collection is left alone unless force is
// set.
func Init(root string, force bool) ([]string, error) {
	abs, err := filepath.Abs(expandHome(root))
	if err != nil {
		return nil, err
	}
	cfgPath := filepath.Join(abs, ConfigFile)
	if _, err := os.Stat(cfgPath); err == nil && !force {
		return nil, fmt.Errorf("%w: %s already exists in %s (use --force to overwrite)", ErrConflict, ConfigFile, abs)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	var created []string
	if err := atomicWriteFile(cfgPath, []byte(defaultConfigYAML), 0o644); err != nil {
		return nil, err
	}
	created = append(created, ConfigFile)

	typePath := filepath.Join(abs, defaultTypesFolder, "task.md")
	if err := atomicWriteFile(typePath, []byte(defaultTaskType), 0o644); err != nil {
		return nil, err
	}
	created = append(created, defaultTypesFolder+"/task.md")

	if err := os.MkdirAll(filepath.Join(abs, "tasks"), 0o755); err != nil {
		return nil, err
	}
	created = append(created, "tasks/")
	return created, nil
}
