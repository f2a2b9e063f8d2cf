// Package script loads narration scripts: named sections of clauses, each
// clause an ordered list of lines recorded as one take.
package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Clause is the ordered lines of one recording.
type Clause []string

// Text joins the clause's lines with newlines.
func (c Clause) Text() string { return strings.Join(c, "\n") }

type Section struct {
	Name    string   `json:"name" yaml:"name"`
	Clauses []Clause `json:"clauses" yaml:"clauses"`
}

type Script struct {
	Name     string    `json:"name" yaml:"name"`
	Sections []Section `json:"sections" yaml:"sections"`
}

// ClauseCount returns the number of clauses across all sections.
func (s *Script) ClauseCount() int {
	n := 0
	for _, sec := range s.Sections {
		n += len(sec.Clauses)
	}
	return n
}

// Validate rejects scripts that cannot be rendered.
func (s *Script) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("script has no name"))
	} else if strings.ContainsAny(s.Name, `/\`) {
		errs = append(errs, fmt.Errorf("script name %q contains a path separator", s.Name))
	}
	if len(s.Sections) == 0 {
		errs = append(errs, errors.New("script has no sections"))
	}
	for i, sec := range s.Sections {
		if sec.Name == "" {
			errs = append(errs, fmt.Errorf("section %d has no name", i))
		} else if strings.ContainsAny(sec.Name, `/\`) {
			errs = append(errs, fmt.Errorf("section %d name %q contains a path separator", i, sec.Name))
		}
		if len(sec.Clauses) == 0 {
			errs = append(errs, fmt.Errorf("section %d (%s) has no clauses", i, sec.Name))
		}
		for j, c := range sec.Clauses {
			if len(c) == 0 || strings.TrimSpace(c.Text()) == "" {
				errs = append(errs, fmt.Errorf("section %d (%s) clause %d is empty", i, sec.Name, j))
			}
		}
	}
	return errors.Join(errs...)
}

// Parse decodes a script. format is "json" or "yaml".
func Parse(data []byte, format string) (*Script, error) {
	var s Script
	switch format {
	case "json":
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported script format %q", format)
	}
	return &s, nil
}

// Load reads and validates a script file. A script without a name takes the
// file's base name.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	s, err := Parse(data, ext)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return s, nil
}

// filePattern matches script file names.
var filePattern = regexp.MustCompile(`(?i)\.(json|ya?ml)$`)

// IsScriptFile reports whether path looks like a script file.
func IsScriptFile(path string) bool {
	base := filepath.Base(path)
	return !strings.HasPrefix(base, ".") && filePattern.MatchString(base)
}

// Discover walks dir and returns every script file path, sorted.
func Discover(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsScriptFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// Find returns the path of the script named name under dir, matching either
// the script's name field or the file's base name.
func Find(dir, name string) (string, error) {
	paths, err := Discover(dir)
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		if strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)) == name {
			return p, nil
		}
	}
	for _, p := range paths {
		if s, err := Load(p); err == nil && s.Name == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("script %q: %w", name, fs.ErrNotExist)
}
