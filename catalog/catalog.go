// Package catalog holds the set of scripts the dashboard is allowed to run.
//
// A catalog is loaded once from a YAML or JSON file mapping script names to
// their executable path, description and declared arguments. It is immutable
// after loading; a reload builds a new Catalog.
//
// Example catalog file:
//
//	auto_merge_dependabot:
//	  path: /home/scripts/github/auto_merge_dependabot.py
//	  description: Merge open Dependabot PRs.
//	  args:
//	    - name: user
//	      label: GitHub user
//	      default: dependabot[bot]
//	      pattern: '^[a-zA-Z0-9\[\]_-]{1,40}$'
package catalog

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

var argNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Arg declares a single named flag a script accepts. It is passed to the
// child as "--<name> <value>".
type Arg struct {
	Name     string `yaml:"name" json:"name"`
	Label    string `yaml:"label" json:"label"`
	Default  string `yaml:"default" json:"default,omitempty"`
	Required bool   `yaml:"required" json:"required"`
	// Pattern is an optional allow-list regular expression for values.
	// The whole value must match. DefaultValuePattern applies when empty.
	Pattern string `yaml:"pattern" json:"pattern,omitempty"`

	re *regexp.Regexp
}

// Flag returns the command line flag for the argument.
func (a Arg) Flag() string {
	return "--" + a.Name
}

// Script is a runnable entry of the catalog.
type Script struct {
	Name        string `yaml:"-" json:"name"`
	Path        string `yaml:"path" json:"path"`
	Description string `yaml:"description" json:"description"`
	Args        []Arg  `yaml:"args" json:"args"`
}

// Catalog is an immutable set of scripts keyed by name.
type Catalog struct {
	scripts map[string]*Script
	names   []string
}

// Load reads the catalog file at path. JSON files are accepted as well since
// they are valid YAML.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scripts file %s: %w", path, err)
	}
	defer f.Close()

	scripts := make(map[string]Script)
	if err := yaml.NewDecoder(f).Decode(&scripts); err != nil {
		return nil, fmt.Errorf("failed to decode scripts file %s: %w", path, err)
	}
	return New(scripts)
}

// New builds a Catalog from the given definitions, validating each of them.
func New(scripts map[string]Script) (*Catalog, error) {
	c := &Catalog{
		scripts: make(map[string]*Script, len(scripts)),
		names:   make([]string, 0, len(scripts)),
	}

	for name, s := range scripts {
		if name == "" {
			return nil, fmt.Errorf("script with empty name")
		}
		if s.Path == "" {
			return nil, fmt.Errorf("script %q: path is required", name)
		}

		script := s
		script.Name = name
		script.Args = make([]Arg, len(s.Args))
		seen := make(map[string]bool, len(s.Args))
		for i, a := range s.Args {
			if !argNameRe.MatchString(a.Name) {
				return nil, fmt.Errorf("script %q: invalid argument name %q", name, a.Name)
			}
			if seen[a.Name] {
				return nil, fmt.Errorf("script %q: duplicate argument %q", name, a.Name)
			}
			seen[a.Name] = true

			pattern := a.Pattern
			if pattern == "" {
				pattern = DefaultValuePattern
			}
			// Values must match the whole pattern.
			re, err := regexp.Compile(`^(?:` + pattern + `)$`)
			if err != nil {
				return nil, fmt.Errorf("script %q: argument %q: invalid pattern: %w", name, a.Name, err)
			}
			a.re = re
			script.Args[i] = a
		}

		c.scripts[name] = &script
		c.names = append(c.names, name)
	}

	sort.Strings(c.names)
	return c, nil
}

// Get returns the script registered under name.
func (c *Catalog) Get(name string) (*Script, bool) {
	if c == nil {
		return nil, false
	}
	s, ok := c.scripts[name]
	return s, ok
}

// Names returns the script names in sorted order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	result := make([]string, len(c.names))
	copy(result, c.names)
	return result
}

// Scripts returns copies of all scripts, sorted by name.
func (c *Catalog) Scripts() []Script {
	if c == nil {
		return nil
	}
	result := make([]Script, 0, len(c.names))
	for _, name := range c.names {
		result = append(result, *c.scripts[name])
	}
	return result
}

// Len returns the number of scripts.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}
