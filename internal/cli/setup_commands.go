package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/amirbrooks/mdbase-tasknotes/internal/config"
	"github.com/amirbrooks/mdbase-tasknotes/internal/store"
)

func unknownConfigKey(key string) string {
	return fmt.Sprintf("Unknown config key: %s. Valid keys: %s", key, strings.Join(config.Keys(), ", "))
}

func cmdConfig(e *env, args []string) int {
	fs := newFlagSet(e, "config")
	set := fs.String("set", "", "Set a value (key=value)")
	get := fs.String("get", "", "Print a single value")
	fs.Bool("list", false, "List all values (default)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	cfg := config.Load()

	switch {
	case fs.Changed("set"):
		key, value, ok := strings.Cut(*set, "=")
		if !ok {
			e.p.Error("Invalid format. Use --set key=value (e.g., --set collectionPath=/path/to/vault)")
			return ExitFailure
		}
		if err := cfg.Set(key, value); err != nil {
			if errors.Is(err, config.ErrUnknownKey) {
				e.p.Error(unknownConfigKey(key))
			} else {
				e.p.Error(err.Error())
			}
			return ExitFailure
		}
		if err := config.Save(cfg); err != nil {
			e.p.Error("Failed to save config: " + err.Error())
			return ExitFailure
		}
		shown := value
		if strings.TrimSpace(shown) == "" {
			shown = "(null)"
		}
		e.p.Success(fmt.Sprintf("Set %s = %s", key, shown))
		return ExitOK

	case fs.Changed("get"):
		v, err := cfg.Get(*get)
		if err != nil {
			e.p.Error(unknownConfigKey(*get))
			return ExitFailure
		}
		if v == "" {
			v = "(not set)"
		}
		e.p.Println(v)
		return ExitOK
	}

	if e.gf.JSON {
		if err := writeJSON(e.out, cfg); err != nil {
			e.p.Error(err.Error())
			return ExitFailure
		}
		return ExitOK
	}
	e.p.Println(e.p.Dim("Config file: " + config.Path() + "\n"))
	for _, key := range config.Keys() {
		v, _ := cfg.Get(key)
		if v == "" {
			v = e.p.Dim("(not set)")
		}
		e.p.Println("  " + key + ": " + v)
	}
	return ExitOK
}

func cmdInit(e *env, args []string) int {
	fs := newFlagSet(e, "init")
	force := fs.BoolP("force", "f", false, "Overwrite an existing collection config")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	target := fs.Arg(0)
	if target == "" {
		target = e.gf.Path
	}
	if target == "" {
		wd, err := os.Getwd()
		if err != nil {
			e.p.Error(err.Error())
			return ExitFailure
		}
		target = wd
	}

	created, err := store.Init(target, *force)
	if err != nil {
		e.p.Error(err.Error())
		return ExitFailure
	}
	e.p.Success("Initialized mdbase-tasknotes collection:")
	for _, f := range created {
		e.p.Println(e.p.Dim("  " + f))
	}
	e.p.Println("")
	e.p.Println("Collection path: " + e.p.Cyan(target))
	e.p.Println("Create tasks with: " + e.p.Cyan(`mtn create "Buy groceries tomorrow #shopping"`))
	return ExitOK
}
